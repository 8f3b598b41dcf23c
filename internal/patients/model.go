package patients

import "time"

// Client is a person the bot talks to, keyed by phone number across
// transports.
type Client struct {
	ID          int       `json:"id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name,omitempty"`
	IsBlocked   bool      `json:"is_blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Roles resolved per identity at context-load time.
const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)
