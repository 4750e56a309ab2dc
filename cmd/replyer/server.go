package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/moskvenov/replyer/bot"
	"github.com/moskvenov/replyer/botapi"
	"github.com/moskvenov/replyer/gate"
	"github.com/moskvenov/replyer/gate/banstate"
	"github.com/moskvenov/replyer/gate/mutesweep"
	"github.com/moskvenov/replyer/gate/throttle"
	"github.com/moskvenov/replyer/relay"
	"github.com/moskvenov/replyer/store"
)

type Config struct {
	BotToken          string
	BotAPIHost        string
	Admins            []int64
	RedisURL          string
	MemcachedServers  []string
	ThrottleWindow    time.Duration
	ThrottleCacheSize int
	MediaSizeLimit    int64
	SweepInterval     time.Duration
	UseWebhook        bool
	WebhookURL        string
	WebhookSecret     string
	Bind              string
	MaxConcurrent     int64
	SendRateLimit     float64
	AckTTL            time.Duration
	DisplayOffset     time.Duration
	// Deadline for each shared throttle round-trip.
	ThrottleTimeout   time.Duration
	Logger            *slog.Logger
}

var defaultConfig = Config{
	ThrottleWindow:    10 * time.Second,
	ThrottleCacheSize: 10_000,
	MediaSizeLimit:    50 * 1024 * 1024,
	SweepInterval:     60 * time.Second,
	MaxConcurrent:     64,
	SendRateLimit:     25,
	AckTTL:            3 * time.Second,
	DisplayOffset:     3 * time.Hour,
	ThrottleTimeout:   500 * time.Millisecond,
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is not set")
	}
	if c.UseWebhook && c.WebhookURL == "" {
		return fmt.Errorf("webhook mode requires WEBHOOK_URL")
	}
	if c.ThrottleWindow <= 0 {
		return fmt.Errorf("throttle window must be positive, got %s", c.ThrottleWindow)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.ThrottleCacheSize <= 0 {
		c.ThrottleCacheSize = defaultConfig.ThrottleCacheSize
	}
	if c.ThrottleTimeout <= 0 {
		c.ThrottleTimeout = defaultConfig.ThrottleTimeout
	}
	return nil
}

type Server struct {
	logger      *slog.Logger
	config      Config
	client      *botapi.Client
	dispatcher  *bot.Dispatcher
	sweeper     *mutesweep.Sweeper
	// shared throttle backend connection, if any
	limiterConn io.Closer
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	st, err := store.NewGormStore(db)
	if err != nil {
		return nil, err
	}

	client := botapi.NewClient(config.BotAPIHost, config.BotToken, config.SendRateLimit)
	limiter, conn := selectLimiter(config, logger)

	engine := &gate.Engine{
		Logger:         logger.With("system", "gate"),
		Limiter:        limiter,
		Bans:           banstate.NewBanState(st, logger.With("system", "banstate")),
		Stages:         gate.DefaultStages(),
		ThrottleWindow: config.ThrottleWindow,
		MediaSizeLimit: config.MediaSizeLimit,
		Timeout:        5 * time.Second,
	}

	rel := relay.NewRelay(config.Admins, &bot.MessengerDeliverer{Messenger: client}, logger)
	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		Admins:        config.Admins,
		AckTTL:        config.AckTTL,
		DisplayOffset: config.DisplayOffset,
		MaxConcurrent: config.MaxConcurrent,
	}, client, st, engine, rel, logger)

	s := &Server{
		logger:      logger,
		config:      config,
		client:      client,
		dispatcher:  dispatcher,
		sweeper:     mutesweep.NewSweeper(st, config.SweepInterval, logger),
		limiterConn: conn,
	}
	return s, nil
}

// Picks the throttle backend once: redis, then memcached, when configured and reachable, otherwise in-process. An unreachable shared backend is not fatal.
//
// The returned closer is non-nil only for a shared backend.
func selectLimiter(config Config, logger *slog.Logger) (throttle.Limiter, io.Closer) {
	tlog := logger.With("system", "throttle")
	if config.RedisURL != "" {
		rdl, err := throttle.NewRedisLimiter(config.RedisURL, config.ThrottleTimeout, tlog)
		if err == nil {
			logger.Info("throttle: using redis")
			return rdl, rdl
		}
		logger.Warn("throttle: redis unavailable", "err", err)
	}
	if len(config.MemcachedServers) > 0 {
		mcl, err := throttle.NewMemcacheLimiter(config.MemcachedServers, config.ThrottleTimeout, tlog)
		if err == nil {
			logger.Info("throttle: using memcached", "servers", config.MemcachedServers)
			return mcl, mcl
		}
		logger.Warn("throttle: memcached unavailable", "err", err)
	}
	if config.RedisURL != "" || len(config.MemcachedServers) > 0 {
		logger.Warn("throttle: falling back to in-process limiter")
	}
	return throttle.NewMemLimiter(config.ThrottleCacheSize, config.ThrottleWindow), nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Runs the mute sweeper and the configured update receiver until ctx is cancelled, then drains in-flight updates.
func (s *Server) Run(ctx context.Context) error {
	me, err := s.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("checking bot token: %w", err)
	}
	s.logger.Info("bot identity", "id", me.ID, "username", me.Username, "admins", len(s.config.Admins))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.sweeper.Run(ctx)
	})
	eg.Go(func() error {
		if s.config.UseWebhook {
			return s.RunWebhook(ctx)
		}
		return s.RunPolling(ctx)
	})
	err = eg.Wait()

	s.logger.Info("waiting for in-flight updates")
	s.dispatcher.Drain()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) Close() {
	if s.limiterConn != nil {
		if err := s.limiterConn.Close(); err != nil {
			s.logger.Warn("closing throttle backend", "err", err)
		}
	}
}
