package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-ai-assistant/internal/patients"
)

type fakeLinker struct {
	mu     sync.Mutex
	phones map[int64]string
	linked []string
}

func (f *fakeLinker) LinkTelegram(_ context.Context, chatID int64, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phones == nil {
		f.phones = make(map[int64]string)
	}
	f.phones[chatID] = phone
	f.linked = append(f.linked, phone)
	return nil
}

func (f *fakeLinker) PhoneByChatID(_ context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	phone, ok := f.phones[chatID]
	if !ok {
		return "", patients.ErrNotFound
	}
	return phone, nil
}

// botHarness records every Bot API method call the client makes.
type botHarness struct {
	mu    sync.Mutex
	sent  []map[string]any
	paths []string
}

func (h *botHarness) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(data, &payload)
		h.mu.Lock()
		h.paths = append(h.paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			h.sent = append(h.sent, payload)
		}
		h.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
}

func newTestBot(t *testing.T, linker TelegramLinker) (*TelegramBot, *botHarness) {
	t.Helper()
	h := &botHarness{}
	srv := h.server()
	t.Cleanup(srv.Close)
	bot, err := NewTelegramBot(TelegramConfig{Token: "test-token", BaseURL: srv.URL, Linker: linker})
	require.NoError(t, err)
	return bot, h
}

func update(chatID int64, text string) tgUpdate {
	u := tgUpdate{UpdateID: 1, Message: &tgMessage{MessageID: 7, Text: text}}
	u.Message.Chat.ID = chatID
	return u
}

func TestTelegramSend(t *testing.T) {
	bot, h := newTestBot(t, &fakeLinker{})

	require.NoError(t, bot.Send(context.Background(), "42", "your appointment is confirmed"))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, "/bottest-token/sendMessage", h.paths[0])
	assert.Equal(t, float64(42), h.sent[0]["chat_id"])
	assert.Equal(t, "your appointment is confirmed", h.sent[0]["text"])
}

func TestTelegramSendBadChatID(t *testing.T) {
	bot, _ := newTestBot(t, &fakeLinker{})
	assert.Error(t, bot.Send(context.Background(), "not-a-number", "hi"))
}

func TestTelegramStartAsksForContact(t *testing.T) {
	bot, h := newTestBot(t, &fakeLinker{})

	bot.handleUpdate(context.Background(), update(42, "/start"), nil)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, replyAskContact, h.sent[0]["text"])
	markup := h.sent[0]["reply_markup"].(map[string]any)
	keyboard := markup["keyboard"].([]any)
	row := keyboard[0].([]any)
	button := row[0].(map[string]any)
	assert.Equal(t, true, button["request_contact"])
}

func TestTelegramContactLinksChat(t *testing.T) {
	linker := &fakeLinker{}
	bot, h := newTestBot(t, linker)

	u := update(42, "")
	u.Message.Contact = &tgContact{PhoneNumber: "77011112233", UserID: 42, FirstName: "Aizhan"}

	bot.handleUpdate(context.Background(), u, nil)

	assert.Equal(t, []string{"+77011112233"}, linker.linked)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, replyLinked, h.sent[0]["text"])
}

func TestTelegramForeignContactRejected(t *testing.T) {
	linker := &fakeLinker{}
	bot, h := newTestBot(t, linker)

	u := update(42, "")
	u.Message.Contact = &tgContact{PhoneNumber: "77010000000", UserID: 99}

	bot.handleUpdate(context.Background(), u, nil)

	assert.Empty(t, linker.linked)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, replyForeignCtc, h.sent[0]["text"])
}

func TestTelegramUnlinkedChatPrompted(t *testing.T) {
	bot, h := newTestBot(t, &fakeLinker{})

	called := false
	bot.handleUpdate(context.Background(), update(42, "book me in"), func(context.Context, Inbound) string {
		called = true
		return "should not happen"
	})

	assert.False(t, called)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, replyNotLinked, h.sent[0]["text"])
}

func TestTelegramLinkedMessageReachesHandler(t *testing.T) {
	linker := &fakeLinker{phones: map[int64]string{42: "+77011112233"}}
	bot, h := newTestBot(t, linker)

	var got Inbound
	bot.handleUpdate(context.Background(), update(42, "book me in"), func(_ context.Context, in Inbound) string {
		got = in
		return "done, see you tomorrow"
	})

	assert.Equal(t, SourceTelegram, got.Source)
	assert.Equal(t, "+77011112233", got.Phone)
	assert.Equal(t, "book me in", got.Text)
	assert.Equal(t, "42:7", got.MessageID)

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.sent, 1)
	assert.Equal(t, "done, see you tomorrow", h.sent[0]["text"])
}
