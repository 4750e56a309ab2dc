package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moskvenov/replyer/bot"
	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/gate/engine"
	"github.com/moskvenov/replyer/gate/throttle"
	"github.com/moskvenov/replyer/relay"
	"github.com/moskvenov/replyer/store"
)

func TestConfigValidate(t *testing.T) {
	assert := assert.New(t)

	c := defaultConfig
	assert.Error(c.Validate())

	c.BotToken = "123:abc"
	assert.NoError(c.Validate())

	c.UseWebhook = true
	assert.Error(c.Validate())
	c.WebhookURL = "https://bot.example.com/webhook"
	assert.NoError(c.Validate())

	c.ThrottleCacheSize = 0
	c.ThrottleTimeout = 0
	assert.NoError(c.Validate())
	assert.Equal(10_000, c.ThrottleCacheSize)
	assert.Equal(500*time.Millisecond, c.ThrottleTimeout)
}

// answers memcached "version" requests, which is all the startup ping needs
func fakeMemcachedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					if _, err := r.ReadString('\n'); err != nil {
						return
					}
					if _, err := io.WriteString(conn, "VERSION 1.6.21\r\n"); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestSelectLimiter(t *testing.T) {
	assert := assert.New(t)
	logger := slog.Default()

	c := defaultConfig
	lim, conn := selectLimiter(c, logger)
	assert.Nil(conn)
	_, ok := lim.(*throttle.MemLimiter)
	assert.True(ok)

	mr := miniredis.RunT(t)
	c.RedisURL = "redis://" + mr.Addr()
	lim, conn = selectLimiter(c, logger)
	if assert.NotNil(conn) {
		_, ok = lim.(*throttle.RedisLimiter)
		assert.True(ok)
		assert.NoError(conn.Close())
	}

	// configured but unreachable: fall back rather than refuse to start
	addr := mr.Addr()
	mr.Close()
	c.RedisURL = "redis://" + addr
	lim, conn = selectLimiter(c, logger)
	assert.Nil(conn)
	_, ok = lim.(*throttle.MemLimiter)
	assert.True(ok)

	// redis down, memcached up
	c.MemcachedServers = []string{fakeMemcachedAddr(t)}
	lim, conn = selectLimiter(c, logger)
	if assert.NotNil(conn) {
		_, ok = lim.(*throttle.MemcacheLimiter)
		assert.True(ok)
		assert.NoError(conn.Close())
	}

	c.RedisURL = ""
	c.MemcachedServers = []string{addr}
	lim, conn = selectLimiter(c, logger)
	assert.Nil(conn)
	_, ok = lim.(*throttle.MemLimiter)
	assert.True(ok)
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []botapi.SendMessageParams
}

func (m *recordingMessenger) SendMessage(ctx context.Context, p botapi.SendMessageParams) (*botapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, p)
	return &botapi.Message{MessageID: len(m.sent), Chat: botapi.Chat{ID: p.ChatID}}, nil
}

func (m *recordingMessenger) CopyMessage(ctx context.Context, p botapi.CopyMessageParams) (*botapi.MessageID, error) {
	return &botapi.MessageID{MessageID: 1}, nil
}

func (m *recordingMessenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return nil
}

func (m *recordingMessenger) sentTo(chatID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.sent {
		if p.ChatID == chatID {
			n++
		}
	}
	return n
}

const testAdmin = int64(1)

func testServer(t *testing.T, secret string) (*Server, *recordingMessenger) {
	t.Helper()
	st := store.NewMemStore()
	eng, _ := engine.EngineTestFixture(st)
	msgr := &recordingMessenger{}
	rel := relay.NewRelay([]int64{testAdmin}, &bot.MessengerDeliverer{Messenger: msgr}, nil)
	d := bot.NewDispatcher(bot.DispatcherConfig{
		Admins: []int64{testAdmin},
		AckTTL: time.Millisecond,
	}, msgr, st, eng, rel, nil)
	s := &Server{
		logger:     slog.Default(),
		config:     Config{WebhookSecret: secret},
		dispatcher: d,
	}
	return s, msgr
}

const webhookBody = `{"update_id":1,"message":{"message_id":3,"from":{"id":42,"first_name":"Sam"},"chat":{"id":42,"type":"private"},"date":1700000000,"text":"hello"}}`

func postWebhook(s *Server, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretTokenHeader, secret)
	}
	rec := httptest.NewRecorder()
	s.newWebhookEcho().ServeHTTP(rec, req)
	return rec
}

func TestWebhookSecret(t *testing.T) {
	assert := assert.New(t)
	s, msgr := testServer(t, "s3cret")

	rec := postWebhook(s, "wrong", webhookBody)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	rec = postWebhook(s, "", webhookBody)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	s.dispatcher.Wait()
	assert.Equal(0, msgr.sentTo(testAdmin))

	rec = postWebhook(s, "s3cret", webhookBody)
	assert.Equal(http.StatusOK, rec.Code)
	s.dispatcher.Wait()
	assert.Equal(1, msgr.sentTo(testAdmin))
	// acknowledgment to the sender
	assert.Equal(1, msgr.sentTo(42))
}

func TestWebhookBadPayload(t *testing.T) {
	assert := assert.New(t)
	s, _ := testServer(t, "")

	rec := postWebhook(s, "", `{"update_id":`)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	s, _ := testServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	s.newWebhookEcho().ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"status":"ok"`)
}
