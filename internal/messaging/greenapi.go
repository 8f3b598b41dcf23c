package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

const defaultGreenAPIBaseURL = "https://api.green-api.com"

// GreenAPIConfig controls the WhatsApp client.
type GreenAPIConfig struct {
	BaseURL    string
	InstanceID string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// GreenAPIClient talks to the GREEN-API WhatsApp gateway. Endpoints follow
// the {base}/waInstance{id}/{method}/{token} scheme.
type GreenAPIClient struct {
	baseURL    string
	instanceID string
	token      string
	httpClient *http.Client
	log        *logging.Logger
}

// NewGreenAPIClient creates a configured client with sane defaults.
func NewGreenAPIClient(cfg GreenAPIConfig) (*GreenAPIClient, error) {
	if strings.TrimSpace(cfg.InstanceID) == "" {
		return nil, errors.New("greenapi: instance id is required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("greenapi: token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGreenAPIBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &GreenAPIClient{
		baseURL:    baseURL,
		instanceID: cfg.InstanceID,
		token:      cfg.Token,
		httpClient: httpClient,
		log:        log,
	}, nil
}

// Send delivers a text message to a phone number in +E.164 form.
func (c *GreenAPIClient) Send(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(struct {
		ChatID  string `json:"chatId"`
		Message string `json:"message"`
	}{
		ChatID:  chatIDFromPhone(phone),
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("greenapi: marshal send body: %w", err)
	}

	var resp struct {
		IDMessage string `json:"idMessage"`
	}
	if err := c.invoke(ctx, "sendMessage", body, &resp); err != nil {
		return err
	}
	c.log.Debug("whatsapp message sent", "phone", phone, "id_message", resp.IDMessage)
	return nil
}

func (c *GreenAPIClient) invoke(ctx context.Context, method string, body []byte, out any) error {
	url := fmt.Sprintf("%s/waInstance%s/%s/%s", c.baseURL, c.instanceID, method, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("greenapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("greenapi: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("greenapi: read %s response: %w", method, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("greenapi: %s returned status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("greenapi: decode %s response: %w", method, err)
		}
	}
	return nil
}

// greenWebhook mirrors the fields of a GREEN-API notification we care about.
type greenWebhook struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	SenderData  struct {
		ChatID     string `json:"chatId"`
		SenderName string `json:"senderName"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData"`
		ExtendedTextMessageData struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData"`
	} `json:"messageData"`
}

// ParseGreenWebhook extracts an inbound message from a GREEN-API webhook
// body. ok is false for notifications that need no reply at all, such as
// delivery receipts, state changes and group chatter.
func ParseGreenWebhook(body []byte) (Inbound, bool) {
	var hook greenWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return Inbound{}, false
	}
	if hook.TypeWebhook != "incomingMessageReceived" {
		return Inbound{}, false
	}
	phone, ok := phoneFromChatID(hook.SenderData.ChatID)
	if !ok {
		return Inbound{}, false
	}

	in := Inbound{
		Source:    SourceWhatsApp,
		MessageID: hook.IDMessage,
		Phone:     phone,
		Name:      hook.SenderData.SenderName,
	}
	switch hook.MessageData.TypeMessage {
	case "textMessage":
		in.Text = hook.MessageData.TextMessageData.TextMessage
	case "extendedTextMessage":
		in.Text = hook.MessageData.ExtendedTextMessageData.Text
	default:
		in.Unsupported = true
	}
	if !in.Unsupported && strings.TrimSpace(in.Text) == "" {
		return Inbound{}, false
	}
	return in, true
}

// chatIDFromPhone maps +77011234567 to 77011234567@c.us.
func chatIDFromPhone(phone string) string {
	return strings.TrimPrefix(phone, "+") + "@c.us"
}

// phoneFromChatID maps 77011234567@c.us back to +77011234567. Group chats
// (@g.us) are rejected.
func phoneFromChatID(chatID string) (string, bool) {
	digits, ok := strings.CutSuffix(chatID, "@c.us")
	if !ok || digits == "" {
		return "", false
	}
	return "+" + digits, true
}
