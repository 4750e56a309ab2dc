package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:TEST-token"

type recordedCall struct {
	Method string
	Body   map[string]any
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []recordedCall
	// method -> raw JSON response body
	responses map[string]string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, prefix)
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: method, Body: body})
	resp, ok := f.responses[method]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		return
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeBotAPI) lastCall() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testClient(t *testing.T, responses map[string]string) (*Client, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := &Client{
		Client: srv.Client(),
		Host:   srv.URL,
		Token:  testToken,
	}
	return c, fake
}

func TestGetMe(t *testing.T) {
	assert := assert.New(t)
	c, _ := testClient(t, map[string]string{
		"getMe": `{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Replyer","username":"replyer_bot"}}`,
	})
	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(int64(99), me.ID)
	assert.True(me.IsBot)
	assert.Equal("replyer_bot", me.Username)
}

func TestGetUpdates(t *testing.T) {
	assert := assert.New(t)
	c, fake := testClient(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"from":{"id":5,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"date":1700000000,"text":"hi"}},
			{"update_id":11,"message":{"message_id":2,"from":{"id":5,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"date":1700000001,"document":{"file_id":"doc1","file_unique_id":"u1","file_size":1024}}}
		]}`,
	})
	updates, err := c.GetUpdates(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal("hi", updates[0].Message.Text)
	if assert.NotNil(updates[1].Message.Document) {
		assert.Equal(int64(1024), updates[1].Message.Document.FileSize)
	}

	call := fake.lastCall()
	assert.Equal("getUpdates", call.Method)
	assert.Equal(float64(10), call.Body["offset"])
}

func TestSendAndCopy(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c, fake := testClient(t, map[string]string{
		"sendMessage":   `{"ok":true,"result":{"message_id":77,"chat":{"id":1,"type":"private"},"date":1700000000,"text":"ok"}}`,
		"copyMessage":   `{"ok":true,"result":{"message_id":78}}`,
		"deleteMessage": `{"ok":true,"result":true}`,
	})

	m, err := c.SendMessage(ctx, SendMessageParams{ChatID: 1, Text: "hello", ParseMode: "Markdown"})
	require.NoError(t, err)
	assert.Equal(77, m.MessageID)
	assert.Equal("Markdown", fake.lastCall().Body["parse_mode"])

	id, err := c.CopyMessage(ctx, CopyMessageParams{ChatID: 1, FromChatID: 5, MessageID: 2, Caption: "cap"})
	require.NoError(t, err)
	assert.Equal(78, id.MessageID)
	assert.Equal(float64(5), fake.lastCall().Body["from_chat_id"])

	assert.NoError(c.DeleteMessage(ctx, 1, 77))
	assert.Equal("deleteMessage", fake.lastCall().Method)
}

func TestAPIError(t *testing.T) {
	assert := assert.New(t)
	c, _ := testClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
	})
	_, err := c.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})
	var apiErr *APIError
	if assert.True(errors.As(err, &apiErr)) {
		assert.Equal(403, apiErr.StatusCode)
		assert.Equal("sendMessage", apiErr.Method)
		assert.False(apiErr.IsThrottled())
	}
}

func TestTransportErrorRedactsToken(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	c := &Client{Client: &http.Client{Timeout: time.Second}, Host: host, Token: testToken}
	_, err := c.GetMe(context.Background())
	assert.Error(err)
	assert.NotContains(err.Error(), testToken)
}

func TestDeleteWebhookDropsPending(t *testing.T) {
	assert := assert.New(t)
	c, fake := testClient(t, map[string]string{
		"deleteWebhook": `{"ok":true,"result":true}`,
	})
	require.NoError(t, c.DeleteWebhook(context.Background(), true))
	call := fake.lastCall()
	assert.Equal("deleteWebhook", call.Method)
	assert.Equal(true, call.Body["drop_pending_updates"])

	require.NoError(t, c.DeleteWebhook(context.Background(), false))
	assert.Equal(false, fake.lastCall().Body["drop_pending_updates"])
}
