// Package messaging contains the chat transport clients (GREEN-API for
// WhatsApp, Telegram Bot API) and the inbound pipeline that guards the
// conversational agent.
package messaging

import "context"

// Message sources. The value is recorded in history and metrics labels.
const (
	SourceWhatsApp = "whatsapp"
	SourceTelegram = "telegram"
)

// Inbound is one normalized incoming message from any transport.
type Inbound struct {
	Source    string
	MessageID string
	Phone     string // E.164 with leading +
	Name      string // sender display name when the transport provides one
	Text      string
	// Unsupported marks voice notes, images and other non-text payloads.
	// The pipeline answers those with a canned reply without involving
	// the model.
	Unsupported bool
}

// Sender delivers one outbound text message. Both transport clients
// implement it, as does the notification fanout.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}
