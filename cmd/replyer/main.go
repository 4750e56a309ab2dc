package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/moskvenov/replyer/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "replyer",
		Usage:   "feedback relay bot (forwards user messages to administrators, with moderation)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"REPLYER_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format (json or text)",
			EnvVars: []string{"REPLYER_LOG_FMT", "LOG_FMT"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "bot-token",
			Usage:    "Telegram Bot API token",
			Required: true,
			EnvVars:  []string{"BOT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "bot-api-host",
			Usage:   "method, hostname, and port of the Bot API server",
			Value:   "https://api.telegram.org",
			EnvVars: []string{"BOT_API_HOST"},
		},
		&cli.StringFlag{
			Name:    "admin-ids",
			Usage:   "comma-separated numeric ids of administrator accounts",
			EnvVars: []string{"ADMIN_IDS"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/replyer/replyer.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL for the shared throttle; in-process throttle if empty",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "memcached-servers",
			Usage:   "comma-separated memcached host:port list for the shared throttle, used when redis is not configured or unreachable",
			EnvVars: []string{"MEMCACHED_SERVERS"},
		},
		&cli.DurationFlag{
			Name:    "throttle-window",
			Usage:   "minimum time between accepted messages from one user",
			Value:   defaultConfig.ThrottleWindow,
			EnvVars: []string{"THROTTLE_WINDOW"},
		},
		&cli.IntFlag{
			Name:    "throttle-cache-size",
			Usage:   "maximum number of users tracked by the in-process throttle",
			Value:   defaultConfig.ThrottleCacheSize,
			EnvVars: []string{"THROTTLE_CACHE_SIZE"},
		},
		&cli.Int64Flag{
			Name:    "media-size-limit",
			Usage:   "maximum size in bytes of documents, videos, audio and voice messages",
			Value:   defaultConfig.MediaSizeLimit,
			EnvVars: []string{"MEDIA_SIZE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "sweep-interval",
			Usage:   "how often expired mutes are cleared",
			Value:   defaultConfig.SweepInterval,
			EnvVars: []string{"SWEEP_INTERVAL"},
		},
		&cli.BoolFlag{
			Name:    "use-webhook",
			Usage:   "receive updates via webhook instead of long polling",
			EnvVars: []string{"USE_WEBHOOK"},
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Usage:   "public URL the Bot API should deliver updates to (required with --use-webhook)",
			EnvVars: []string{"WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "secret token the Bot API sends with every webhook request",
			EnvVars: []string{"WEBHOOK_SECRET"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for webhook requests",
			Value:   ":3000",
			EnvVars: []string{"WEBAPP_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3001",
			EnvVars: []string{"REPLYER_METRICS_LISTEN"},
		},
		&cli.Int64Flag{
			Name:    "max-concurrent-messages",
			Usage:   "maximum number of updates handled concurrently",
			Value:   defaultConfig.MaxConcurrent,
			EnvVars: []string{"MAX_CONCURRENT_MESSAGES"},
		},
		&cli.Float64Flag{
			Name:    "send-rate-limit",
			Usage:   "max outbound Bot API requests per second",
			Value:   defaultConfig.SendRateLimit,
			EnvVars: []string{"SEND_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "ack-ttl",
			Usage:   "how long the delivery acknowledgment stays visible to the sender",
			Value:   defaultConfig.AckTTL,
			EnvVars: []string{"ACK_TTL"},
		},
		&cli.DurationFlag{
			Name:    "display-utc-offset",
			Usage:   "offset from UTC for times shown to administrators",
			Value:   defaultConfig.DisplayOffset,
			EnvVars: []string{"DISPLAY_UTC_OFFSET"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownOTEL, err := configOTEL(ctx, "replyer")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		admins, err := cliutil.ParseIDList(cctx.String("admin-ids"))
		if err != nil {
			return fmt.Errorf("parsing ADMIN_IDS: %w", err)
		}
		if len(admins) == 0 {
			logger.Warn("no administrators configured (ADMIN_IDS is empty); messages will not be delivered anywhere")
		}

		config := Config{
			BotToken:          cctx.String("bot-token"),
			BotAPIHost:        cctx.String("bot-api-host"),
			Admins:            admins,
			RedisURL:          cctx.String("redis-url"),
			MemcachedServers:  splitList(cctx.String("memcached-servers")),
			ThrottleWindow:    cctx.Duration("throttle-window"),
			ThrottleCacheSize: cctx.Int("throttle-cache-size"),
			MediaSizeLimit:    cctx.Int64("media-size-limit"),
			SweepInterval:     cctx.Duration("sweep-interval"),
			UseWebhook:        cctx.Bool("use-webhook"),
			WebhookURL:        cctx.String("webhook-url"),
			WebhookSecret:     cctx.String("webhook-secret"),
			Bind:              cctx.String("bind"),
			MaxConcurrent:     cctx.Int64("max-concurrent-messages"),
			SendRateLimit:     cctx.Float64("send-rate-limit"),
			AckTTL:            cctx.Duration("ack-ttl"),
			DisplayOffset:     cctx.Duration("display-utc-offset"),
			Logger:            logger,
		}
		if err := config.Validate(); err != nil {
			return err
		}

		db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-metadb-connections"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, config)
		if err != nil {
			return err
		}
		defer srv.Close()

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("failed to run replyer service: %w", err)
		}
		return nil
	},
}
