package inbenta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/convobench/inbenta-relay-go/internal/errors"
	"github.com/convobench/inbenta-relay-go/internal/model"
)

func chatToken(chatbotURL string) *Token {
	return &Token{
		AccessToken: "access-1",
		Expiration:  time.Now().Unix() + 300,
		APIs:        Endpoints{Chatbot: chatbotURL},
	}
}

func TestOpenConversation(t *testing.T) {
	userType := 7
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/conversation", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-Inbenta-Key"))
		assert.Equal(t, "harness", r.Header.Get("X-Inbenta-Source"))
		assert.Equal(t, "preproduction", r.Header.Get("X-Inbenta-Env"))
		assert.Equal(t, "7", r.Header.Get("X-Inbenta-User-Type"))
		assert.Equal(t, "Europe/Vienna", r.Header.Get("timezone"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "de", body["lang"])

		json.NewEncoder(w).Encode(map[string]string{
			"sessionToken": "sess-token",
			"sessionId":    "sess-id",
		})
	}))
	defer server.Close()

	c := NewChatClient(ChatClientConfig{
		Credentials: Credentials{APIKey: "key"},
		Source:      "harness",
		Environment: "preproduction",
		Lang:        "de",
		Timezone:    "Europe/Vienna",
		UserType:    &userType,
	})

	conv, err := c.OpenConversation(context.Background(), chatToken(server.URL))
	require.NoError(t, err)
	assert.Equal(t, "sess-token", conv.SessionToken)
	assert.Equal(t, "sess-id", conv.SessionID)
}

func TestOpenConversationMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"missing session token", map[string]string{"sessionId": "sess-id"}, "Session token not found"},
		{"missing session id", map[string]string{"sessionToken": "sess-token"}, "Session id not found"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer server.Close()

			c := NewChatClient(ChatClientConfig{Credentials: Credentials{APIKey: "key"}})
			_, err := c.OpenConversation(context.Background(), chatToken(server.URL))

			require.Error(t, err)
			appErr, ok := apperrors.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrCodeSession, appErr.Code)
			assert.Contains(t, appErr.Message, tc.want)
		})
	}
}

func TestSendBodies(t *testing.T) {
	tests := []struct {
		name     string
		event    OutboundEvent
		wantBody string
	}{
		{"welcome direct call", WelcomeEvent{}, `{"directCall":"sys-welcome"}`},
		{"free text", TextEvent{Text: "hello"}, `{"message":"hello"}`},
		{"plain option payload", OptionEvent{Payload: "3"}, `{"option":"3"}`},
		{"structured option payload", OptionEvent{Payload: `{"id":3}`}, `{"option":{"id":3}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotBody []byte
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/conversation/message", r.URL.Path)
				assert.Equal(t, "Bearer sess-token", r.Header.Get("X-Inbenta-Session"))
				body, err := io.ReadAll(r.Body)
				require.NoError(t, err)
				gotBody = body
				json.NewEncoder(w).Encode(map[string]any{"answers": []any{}})
			}))
			defer server.Close()

			c := NewChatClient(ChatClientConfig{Credentials: Credentials{APIKey: "key"}})
			conv := &Conversation{SessionToken: "sess-token", SessionID: "sess-id"}

			msgs, err := c.Send(context.Background(), chatToken(server.URL), conv, tc.event)
			require.NoError(t, err)
			assert.Empty(t, msgs)
			assert.JSONEq(t, tc.wantBody, string(gotBody))
		})
	}
}

func TestSendReturnsOrderedMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"answers": []map[string]any{
				{"type": "answer", "messageList": []string{"Here is", "your answer"}},
				{
					"type":        "polarQuestion",
					"messageList": []string{"Was that it?"},
					"options": []map[string]any{
						{"label": "Yes", "value": 1},
						{"label": "No", "value": 2},
					},
				},
			},
		})
	}))
	defer server.Close()

	c := NewChatClient(ChatClientConfig{Credentials: Credentials{APIKey: "key"}})
	conv := &Conversation{SessionToken: "sess-token", SessionID: "sess-id"}

	messages, err := c.Send(context.Background(), chatToken(server.URL), conv, TextEvent{Text: "question"})
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "Here is your answer", messages[0].Text)
	assert.Empty(t, messages[0].Buttons)

	require.Len(t, messages[1].Buttons, 2)
	assert.Equal(t, "1", messages[1].Buttons[0].Payload)
	assert.Equal(t, "2", messages[1].Buttons[1].Payload)
}

func TestRatingEventsGoToTracking(t *testing.T) {
	tests := []struct {
		name  string
		event OutboundEvent
	}{
		{"rating event", RatingEvent{Value: "2", Code: "RC-1"}},
		{"option payload of type rate", OptionEvent{Payload: `{"type":"rate","data":{"value":"2","code":"RC-1"}}`}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var paths []string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				paths = append(paths, r.URL.Path)
				var body ratePayload
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "rate", body.Type)
				assert.Equal(t, "2", body.Data.Value)
				assert.Equal(t, "RC-1", body.Data.Code)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			c := NewChatClient(ChatClientConfig{Credentials: Credentials{APIKey: "key"}})
			conv := &Conversation{SessionToken: "sess-token", SessionID: "sess-id"}

			messages, err := c.Send(context.Background(), chatToken(server.URL), conv, tc.event)
			require.NoError(t, err)
			assert.Nil(t, messages)
			assert.Equal(t, []string{"/v1/tracking/events"}, paths)
		})
	}
}

func TestSendTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewChatClient(ChatClientConfig{Credentials: Credentials{APIKey: "key"}})
	conv := &Conversation{SessionToken: "sess-token", SessionID: "sess-id"}

	_, err := c.Send(context.Background(), chatToken(server.URL), conv, TextEvent{Text: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTransport, apperrors.GetCode(err))
}

func TestEventFromUserMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  model.UserMessage
		want OutboundEvent
	}{
		{
			name: "free text",
			msg:  model.UserMessage{Text: "hello"},
			want: TextEvent{Text: "hello"},
		},
		{
			name: "button with payload",
			msg:  model.UserMessage{Buttons: []model.Button{{Payload: "opt-1"}}},
			want: OptionEvent{Payload: "opt-1"},
		},
		{
			name: "button with rate payload",
			msg:  model.UserMessage{Buttons: []model.Button{{Payload: `{"type":"rate","data":{"value":"1","code":"RC"}}`}}},
			want: RatingEvent{Value: "1", Code: "RC"},
		},
		{
			name: "button with only display text",
			msg:  model.UserMessage{Buttons: []model.Button{{Text: "Yes"}}},
			want: TextEvent{Text: "Yes"},
		},
		{
			name: "empty button falls back to message text",
			msg:  model.UserMessage{Text: "typed", Buttons: []model.Button{{}}},
			want: TextEvent{Text: "typed"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EventFromUserMessage(tc.msg))
		})
	}
}
