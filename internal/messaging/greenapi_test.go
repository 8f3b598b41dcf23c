package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreenAPISend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"idMessage":"abc123"}`))
	}))
	defer srv.Close()

	c, err := NewGreenAPIClient(GreenAPIConfig{
		BaseURL:    srv.URL,
		InstanceID: "1101000001",
		Token:      "secret-token",
	})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "+77011112233", "Hello!"))
	assert.Equal(t, "/waInstance1101000001/sendMessage/secret-token", gotPath)
	assert.Equal(t, "77011112233@c.us", gotBody["chatId"])
	assert.Equal(t, "Hello!", gotBody["message"])
}

func TestGreenAPISendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "instance not authorized", 466)
	}))
	defer srv.Close()

	c, err := NewGreenAPIClient(GreenAPIConfig{BaseURL: srv.URL, InstanceID: "1", Token: "t"})
	require.NoError(t, err)

	err = c.Send(context.Background(), "+77011112233", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "466")
}

func TestNewGreenAPIClientValidation(t *testing.T) {
	_, err := NewGreenAPIClient(GreenAPIConfig{Token: "t"})
	assert.Error(t, err)
	_, err = NewGreenAPIClient(GreenAPIConfig{InstanceID: "1"})
	assert.Error(t, err)
}

func TestParseGreenWebhook(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantOK   bool
		wantText string
		wantUns  bool
	}{
		{
			name: "plain text",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"m1",
				"senderData":{"chatId":"77011112233@c.us","senderName":"Aizhan"},
				"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"book me in"}}}`,
			wantOK:   true,
			wantText: "book me in",
		},
		{
			name: "extended text",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"m2",
				"senderData":{"chatId":"77011112233@c.us"},
				"messageData":{"typeMessage":"extendedTextMessage","extendedTextMessageData":{"text":"a link reply"}}}`,
			wantOK:   true,
			wantText: "a link reply",
		},
		{
			name: "voice note",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"m3",
				"senderData":{"chatId":"77011112233@c.us"},
				"messageData":{"typeMessage":"audioMessage"}}`,
			wantOK:  true,
			wantUns: true,
		},
		{
			name: "group chat ignored",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"m4",
				"senderData":{"chatId":"1234567-890@g.us"},
				"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"hi all"}}}`,
			wantOK: false,
		},
		{
			name:   "delivery receipt ignored",
			body:   `{"typeWebhook":"outgoingMessageStatus","idMessage":"m5"}`,
			wantOK: false,
		},
		{
			name: "blank text ignored",
			body: `{"typeWebhook":"incomingMessageReceived","idMessage":"m6",
				"senderData":{"chatId":"77011112233@c.us"},
				"messageData":{"typeMessage":"textMessage","textMessageData":{"textMessage":"  "}}}`,
			wantOK: false,
		},
		{
			name:   "garbage ignored",
			body:   `not json`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok := ParseGreenWebhook([]byte(tt.body))
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, SourceWhatsApp, in.Source)
			assert.Equal(t, "+77011112233", in.Phone)
			assert.Equal(t, tt.wantText, in.Text)
			assert.Equal(t, tt.wantUns, in.Unsupported)
		})
	}
}
