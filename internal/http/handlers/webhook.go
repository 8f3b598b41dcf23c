// Package handlers contains the HTTP endpoints: the WhatsApp webhook
// receiver and the health check.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/messaging"
	"github.com/wolfman30/dental-ai-assistant/internal/observability/metrics"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

const maxWebhookBody = 1 << 20

// WhatsAppWebhookHandler receives GREEN-API notifications. The gateway
// retries undelivered webhooks, so the handler acknowledges immediately and
// processes in the background; the reply goes out through the send API, not
// the HTTP response.
type WhatsAppWebhookHandler struct {
	ingress  *messaging.Ingress
	sender   messaging.Sender
	log      *logging.Logger
	timeout  time.Duration
	inflight func(func()) // test seam, defaults to go func()
}

// NewWhatsAppWebhookHandler builds the handler.
func NewWhatsAppWebhookHandler(ingress *messaging.Ingress, sender messaging.Sender, log *logging.Logger) *WhatsAppWebhookHandler {
	if ingress == nil {
		panic("handlers: ingress required")
	}
	if sender == nil {
		panic("handlers: sender required")
	}
	if log == nil {
		log = logging.Default()
	}
	return &WhatsAppWebhookHandler{
		ingress:  ingress,
		sender:   sender,
		log:      log,
		timeout:  2 * time.Minute,
		inflight: func(fn func()) { go fn() },
	}
}

// Handle acknowledges the webhook and kicks off processing.
func (h *WhatsAppWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	in, ok := messaging.ParseGreenWebhook(body)
	if !ok {
		// receipts, state changes and malformed payloads are acknowledged
		// so the gateway stops retrying them
		w.WriteHeader(http.StatusOK)
		return
	}

	h.inflight(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		reply := h.ingress.Handle(ctx, in)
		if reply == "" {
			return
		}
		if err := h.sender.Send(ctx, in.Phone, reply); err != nil {
			metrics.OutboundMessages.WithLabelValues(messaging.SourceWhatsApp, "error").Inc()
			h.log.Error("whatsapp reply failed", "phone", in.Phone, "error", err)
			return
		}
		metrics.OutboundMessages.WithLabelValues(messaging.SourceWhatsApp, "ok").Inc()
	})

	w.WriteHeader(http.StatusOK)
}

// HealthCheck reports liveness.
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
