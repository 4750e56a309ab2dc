package util

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type LeveledSlog struct {
	inner *slog.Logger
	// substrings (eg, credentials embedded in request URLs) replaced before logging
	secrets []string
}

func (l LeveledSlog) scrub(keysAndValues []interface{}) []interface{} {
	if len(l.secrets) == 0 {
		return keysAndValues
	}
	out := make([]interface{}, len(keysAndValues))
	for i, v := range keysAndValues {
		s := fmt.Sprint(v)
		for _, secret := range l.secrets {
			s = strings.ReplaceAll(s, secret, "<redacted>")
		}
		out[i] = s
	}
	return out
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, l.scrub(keysAndValues)...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, l.scrub(keysAndValues)...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, l.scrub(keysAndValues)...)
}

// re-writes HTTP client DEBUG to INFO level (this is where retry is logged)
func (l LeveledSlog) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, l.scrub(keysAndValues)...)
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and retries. The returned client has the stdlib http.Client
// interface, but has Hashicorp retryablehttp logic internally, and is
// wrapped for OpenTelemetry span propagation.
//
// This client will retry on connection errors, 5xx status (except 501), and
// 429 Backoff requests (respecting 'Retry-After' header). It will log
// intermediate failures with WARN level, with any of the given secrets
// scrubbed from log values. This does not start from http.DefaultClient.
//
// The timeout must be longer than any server-side long-poll duration used
// with the client.
func RobustHTTPClient(timeout time.Duration, secrets ...string) *http.Client {

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = cleanhttp.DefaultPooledClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{
		inner:   slog.Default().With("system", "http"),
		secrets: secrets,
	})
	client := retryClient.StandardClient()
	client.Transport = otelhttp.NewTransport(client.Transport)
	client.Timeout = timeout
	return client
}
