package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/moskvenov/replyer/botapi"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// registers collectors with the default registry, so may only be built once per process
var promMiddleware = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("replyer")
})

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) newWebhookEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.New(s.logger))
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("replyer"))
	e.Use(promMiddleware())
	e.Use(middleware.BodyLimit("4M"))
	e.HTTPErrorHandler = s.errorHandler

	e.GET("/_health", s.HandleHealthCheck)
	e.POST("/webhook", s.HandleWebhook)
	return e
}

// Serves the webhook endpoint and registers it with the Bot API, until ctx is cancelled. The webhook is removed again on shutdown.
func (s *Server) RunWebhook(ctx context.Context) error {
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)
	httpd := &http.Server{
		Handler:        s.newWebhookEcho(),
		Addr:           s.config.Bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting webhook server", "bind", s.config.Bind)
		errCh <- httpd.ListenAndServe()
	}()

	if err := s.client.SetWebhook(ctx, s.config.WebhookURL, s.config.WebhookSecret); err != nil {
		_ = httpd.Close()
		return err
	}
	s.logger.Info("webhook registered", "url", s.config.WebhookURL)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	// cleanup must outlive the cancelled run context
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := httpd.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("webhook server shutdown error", "err", err)
	}
	if err := s.client.DeleteWebhook(shutdownCtx, false); err != nil {
		s.logger.Warn("failed to remove webhook", "err", err)
	}
	return nil
}

func (s *Server) HandleWebhook(c echo.Context) error {
	if secret := s.config.WebhookSecret; secret != "" {
		got := c.Request().Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			webhookRejected.Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid secret token")
		}
	}
	var upd botapi.Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update payload")
	}
	updatesReceived.WithLabelValues("webhook").Inc()
	// handled asynchronously; the Bot API only needs a prompt 200
	if err := s.dispatcher.Submit(c.Request().Context(), upd); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "busy")
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "replyer"})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= 500 {
		s.logger.Warn("replyer-http-internal-error", "err", err)
	}
	if err := c.JSON(code, GenericStatus{Status: "error", Daemon: "replyer", Message: msg}); err != nil {
		s.logger.Error("failed to write error response", "err", err)
	}
}
