package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60, cfg.BookingHorizonDays)
	assert.Equal(t, 30, cfg.SlotGridMinutes)
	assert.Equal(t, 2, cfg.CancelLeadHours)
	assert.Equal(t, 16000, cfg.ContextCharBudget)
	assert.Equal(t, 3, cfg.LLMMaxAttempts)
	assert.Equal(t, 5, cfg.ToolLoopLimit)
	assert.Equal(t, 5*time.Minute, cfg.DedupTTL)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "Asia/Almaty", cfg.ClinicTimezone)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOOKING_HORIZON_DAYS", "30")
	t.Setenv("CANCEL_LEAD_HOURS", "4")
	t.Setenv("LLM_TIMEOUT", "10s")
	t.Setenv("RATE_LIMIT_MAX", "5")

	cfg := Load()

	assert.Equal(t, 30, cfg.BookingHorizonDays)
	assert.Equal(t, 4, cfg.CancelLeadHours)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 5, cfg.RateLimitMax)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SLOT_GRID_MINUTES", "half-hour")
	t.Setenv("DEDUP_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 30, cfg.SlotGridMinutes)
	assert.Equal(t, 5*time.Minute, cfg.DedupTTL)
}
