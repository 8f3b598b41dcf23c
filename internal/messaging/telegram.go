package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

const (
	telegramAPIBase    = "https://api.telegram.org"
	telegramPollWindow = 30 // long-poll timeout in seconds

	replyAskContact = "Hello! To link this chat to your patient record, " +
		"tap the button below and share your phone number."
	replyLinked     = "Thank you! Your number is linked. How can I help you?"
	replyNotLinked  = "Please send /start first so I can link this chat to your phone number."
	replyForeignCtc = "Please share your own contact, not someone else's."
)

// TelegramLinker persists the chat-to-phone mapping. Implemented by
// patients.Repository.
type TelegramLinker interface {
	LinkTelegram(ctx context.Context, chatID int64, phone, name string) error
	PhoneByChatID(ctx context.Context, chatID int64) (string, error)
}

// TelegramConfig controls the bot client.
type TelegramConfig struct {
	Token      string
	BaseURL    string
	Linker     TelegramLinker
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// TelegramBot wraps the Bot API for sending and long-polls getUpdates for
// receiving. A chat must be linked to a phone number via the /start contact
// flow before its messages reach the agent.
type TelegramBot struct {
	token      string
	baseURL    string
	linker     TelegramLinker
	httpClient *http.Client
	log        *logging.Logger
}

// NewTelegramBot creates a configured bot client.
func NewTelegramBot(cfg TelegramConfig) (*TelegramBot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if cfg.Linker == nil {
		return nil, errors.New("telegram: linker is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = telegramAPIBase
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			// must exceed the long-poll window
			timeout = (telegramPollWindow + 10) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &TelegramBot{
		token:      cfg.Token,
		baseURL:    baseURL,
		linker:     cfg.Linker,
		httpClient: httpClient,
		log:        log,
	}, nil
}

// Send delivers a text message. recipient is the numeric chat id as a
// string, matching the Sender interface shared with WhatsApp.
func (b *TelegramBot) Send(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", recipient, err)
	}
	return b.sendMessage(ctx, chatID, text, nil)
}

type tgReplyMarkup struct {
	Keyboard        [][]tgKeyboardButton `json:"keyboard,omitempty"`
	OneTimeKeyboard bool                 `json:"one_time_keyboard,omitempty"`
	ResizeKeyboard  bool                 `json:"resize_keyboard,omitempty"`
	RemoveKeyboard  bool                 `json:"remove_keyboard,omitempty"`
}

type tgKeyboardButton struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

func (b *TelegramBot) sendMessage(ctx context.Context, chatID int64, text string, markup *tgReplyMarkup) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return b.call(ctx, "sendMessage", payload, nil)
}

func (b *TelegramBot) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", b.baseURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram: %s failed: %s", method, envelope.Description)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return nil
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int64 `json:"message_id"`
	From      struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"from"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text    string     `json:"text"`
	Contact *tgContact `json:"contact"`
}

type tgContact struct {
	PhoneNumber string `json:"phone_number"`
	UserID      int64  `json:"user_id"`
	FirstName   string `json:"first_name"`
}

// Poll runs the getUpdates loop until ctx is cancelled. Every linked text
// message is passed to handle, whose return value is sent back to the chat.
func (b *TelegramBot) Poll(ctx context.Context, handle func(ctx context.Context, in Inbound) string) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Error("telegram poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.handleUpdate(ctx, u, handle)
		}
	}
}

func (b *TelegramBot) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	var updates []tgUpdate
	err := b.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         telegramPollWindow,
		"allowed_updates": []string{"message"},
	}, &updates)
	return updates, err
}

func (b *TelegramBot) handleUpdate(ctx context.Context, u tgUpdate, handle func(ctx context.Context, in Inbound) string) {
	if u.Message == nil {
		return
	}
	msg := u.Message
	chatID := msg.Chat.ID

	if msg.Contact != nil {
		b.linkContact(ctx, chatID, msg.Contact.UserID, msg.Contact.PhoneNumber, msg.Contact.FirstName)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/start") {
		markup := &tgReplyMarkup{
			Keyboard:        [][]tgKeyboardButton{{{Text: "Share my phone number", RequestContact: true}}},
			OneTimeKeyboard: true,
			ResizeKeyboard:  true,
		}
		if err := b.sendMessage(ctx, chatID, replyAskContact, markup); err != nil {
			b.log.Error("telegram send failed", "chat_id", chatID, "error", err)
		}
		return
	}

	phone, err := b.linker.PhoneByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, patients.ErrNotFound) {
			if err := b.sendMessage(ctx, chatID, replyNotLinked, nil); err != nil {
				b.log.Error("telegram send failed", "chat_id", chatID, "error", err)
			}
			return
		}
		b.log.Error("telegram chat lookup failed", "chat_id", chatID, "error", err)
		return
	}

	reply := handle(ctx, Inbound{
		Source:    SourceTelegram,
		MessageID: fmt.Sprintf("%d:%d", chatID, msg.MessageID),
		Phone:     phone,
		Name:      strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName),
		Text:      text,
	})
	if reply == "" {
		return
	}
	if err := b.sendMessage(ctx, chatID, reply, nil); err != nil {
		b.log.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
}

// linkContact rejects forwarded contacts: the shared number must belong to
// the sender of the message.
func (b *TelegramBot) linkContact(ctx context.Context, chatID, contactUserID int64, rawPhone, name string) {
	if contactUserID != 0 && contactUserID != chatID {
		if err := b.sendMessage(ctx, chatID, replyForeignCtc, nil); err != nil {
			b.log.Error("telegram send failed", "chat_id", chatID, "error", err)
		}
		return
	}
	phone := rawPhone
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	if err := b.linker.LinkTelegram(ctx, chatID, phone, name); err != nil {
		b.log.Error("telegram link failed", "chat_id", chatID, "error", err)
		return
	}
	markup := &tgReplyMarkup{RemoveKeyboard: true}
	if err := b.sendMessage(ctx, chatID, replyLinked, markup); err != nil {
		b.log.Error("telegram send failed", "chat_id", chatID, "error", err)
	}
}
