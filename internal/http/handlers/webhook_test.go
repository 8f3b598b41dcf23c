package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-ai-assistant/internal/messaging"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

type echoAgent struct{}

func (echoAgent) Process(_ context.Context, _, text, _ string) string {
	return "echo: " + text
}

type openBlocklist struct {
	patients.Repository
}

func (openBlocklist) IsBlocked(context.Context, string) (bool, error) { return false, nil }

type captureSender struct {
	mu   sync.Mutex
	sent map[string]string
}

func (c *captureSender) Send(_ context.Context, recipient, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sent == nil {
		c.sent = make(map[string]string)
	}
	c.sent[recipient] = text
	return nil
}

func newTestHandler(t *testing.T) (*WhatsAppWebhookHandler, *captureSender) {
	t.Helper()
	mr := miniredis.RunT(t)
	ingress := messaging.NewIngress(messaging.IngressConfig{
		Agent:   echoAgent{},
		Clients: openBlocklist{},
		Redis:   redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Logger:  logging.New("error"),
	})
	sender := &captureSender{}
	h := NewWhatsAppWebhookHandler(ingress, sender, logging.New("error"))
	h.inflight = func(fn func()) { fn() } // process synchronously in tests
	return h, sender
}

const incomingText = `{
	"typeWebhook": "incomingMessageReceived",
	"idMessage": "m1",
	"senderData": {"chatId": "77011112233@c.us", "senderName": "Aizhan"},
	"messageData": {"typeMessage": "textMessage", "textMessageData": {"textMessage": "hello"}}
}`

func TestWebhookRepliesViaSendAPI(t *testing.T) {
	h, sender := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(incomingText))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "echo: hello", sender.sent["+77011112233"])
}

func TestWebhookAcksIgnoredNotifications(t *testing.T) {
	h, sender := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(`{"typeWebhook":"outgoingMessageStatus","idMessage":"m2"}`))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.sent)
}

func TestWebhookAcksGarbage(t *testing.T) {
	h, sender := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("not json at all"))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, sender.sent)
}

func TestWebhookDeduplicatesRetries(t *testing.T) {
	h, sender := newTestHandler(t)

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(incomingText))
		h.Handle(httptest.NewRecorder(), req)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.sent, 1)
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
