// Minimal client for the Telegram Bot API: just the methods the relay bot needs.
package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"

	"github.com/moskvenov/replyer/util"
)

const DefaultHost = "https://api.telegram.org"

// Server-side long-poll duration used by GetUpdates; the HTTP client timeout must exceed it.
const LongPollTimeout = 30 * time.Second

type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client *http.Client
	Host   string
	Token  string
	// Paces outbound calls (everything except GetUpdates). Nil means no pacing.
	Limiter   *rate.Limiter
	UserAgent string
}

// Client with the retrying HTTP transport and outbound calls paced at perSecond.
func NewClient(host, token string, perSecond float64) *Client {
	if host == "" {
		host = DefaultHost
	}
	c := &Client{
		Client: util.RobustHTTPClient(LongPollTimeout+30*time.Second, token),
		Host:   strings.TrimSuffix(host, "/"),
		Token:  token,
	}
	if perSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient(LongPollTimeout+30*time.Second, c.Token)
	}
	return c.Client
}

// Strips the token out of transport errors, which otherwise embed the full request URL.
func (c *Client) redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) && c.Token != "" {
		ue.URL = strings.ReplaceAll(ue.URL, c.Token, "<redacted>")
	}
	return err
}

func do[T any](ctx context.Context, c *Client, method string, params any, paced bool) (T, error) {
	var zero T
	if paced && c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return zero, fmt.Errorf("waiting for send slot: %w", err)
		}
	}

	body := []byte("{}")
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return zero, err
		}
		body = b
	}

	uri := c.Host + "/bot" + c.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return zero, c.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "replyer/"+versioninfo.Short())
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		apiRequests.WithLabelValues(method, "transport").Inc()
		return zero, fmt.Errorf("%s request failed: %w", method, c.redact(err))
	}
	defer resp.Body.Close()

	var out apiResponse[T]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		apiRequests.WithLabelValues(method, "decode").Inc()
		return zero, fmt.Errorf("decoding %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		apiRequests.WithLabelValues(method, "api").Inc()
		apiErr := &APIError{
			Method:      method,
			StatusCode:  out.ErrorCode,
			Description: out.Description,
		}
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode
		}
		if out.Parameters != nil {
			apiErr.RetryAfter = out.Parameters.RetryAfter
		}
		return zero, apiErr
	}
	apiRequests.WithLabelValues(method, "ok").Inc()
	return out.Result, nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	u, err := do[User](ctx, c, "getMe", nil, false)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Long-polls for message updates with an id of at least offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	return do[[]Update](ctx, c, "getUpdates", params, false)
}

func (c *Client) SetWebhook(ctx context.Context, hookURL, secretToken string) error {
	params := map[string]any{
		"url":             hookURL,
		"allowed_updates": []string{"message"},
	}
	if secretToken != "" {
		params["secret_token"] = secretToken
	}
	_, err := do[bool](ctx, c, "setWebhook", params, false)
	return err
}

// Removes any webhook. With dropPending, updates queued while no receiver was active are discarded.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	params := map[string]any{
		"drop_pending_updates": dropPending,
	}
	_, err := do[bool](ctx, c, "deleteWebhook", params, false)
	return err
}

func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	m, err := do[Message](ctx, c, "sendMessage", p, true)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) CopyMessage(ctx context.Context, p CopyMessageParams) (*MessageID, error) {
	m, err := do[MessageID](ctx, c, "copyMessage", p, true)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	_, err := do[bool](ctx, c, "deleteMessage", params, true)
	return err
}
