package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/deskmirror/internal/config"
	"github.com/zulandar/deskmirror/internal/db"
	"github.com/zulandar/deskmirror/internal/notify"
	"github.com/zulandar/deskmirror/internal/notify/discord"
	"github.com/zulandar/deskmirror/internal/notify/slackhook"
	"github.com/zulandar/deskmirror/internal/sd"
	"github.com/zulandar/deskmirror/internal/statusapi"
	"github.com/zulandar/deskmirror/internal/workers"
	"gorm.io/gorm"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg)
		},
	}
}

func runDaemon(parent context.Context, cfg *config.Config) error {
	log := newLogger(cfg.Log)

	gdb, err := openStore(cfg)
	if err != nil {
		return err
	}

	client, err := sd.New(cfg.SD.BaseURL, cfg.SD.APIPrefix, cfg.SD.Timeout())
	if err != nil {
		return err
	}

	sink, err := newSink(cfg.Notify, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newRunner(gdb, client, sink, cfg, log)
	if err != nil {
		return err
	}

	if cfg.Sync.ReauthOnStartup {
		reauth, err := workers.NewReauth(workers.ReauthOpts{
			DB:       gdb,
			Client:   client,
			Interval: cfg.Sync.ReauthInterval(),
			Margin:   cfg.Sync.ReauthMargin(),
			Log:      log,
		})
		if err != nil {
			return err
		}
		log.Info().Msg("startup reauth pass")
		if err := reauth.Tick(ctx); err != nil {
			log.Warn().Err(err).Msg("startup reauth pass failed")
		}
	}

	if cfg.Status.Enabled {
		go func() {
			if err := statusapi.Start(ctx, statusapi.StartOpts{DB: gdb, Port: cfg.Status.Port}); err != nil {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
		log.Info().Int("port", cfg.Status.Port).Msg("status server enabled")
	}

	log.Info().Str("sd", cfg.SD.BaseURL).Str("db", cfg.DB.Driver).Msg("deskmirror starting")
	return runner.Run(ctx)
}

// newRunner wires the five workers onto one runner.
func newRunner(gdb *gorm.DB, client *sd.Client, sink notify.Sink, cfg *config.Config, log zerolog.Logger) (*workers.Runner, error) {
	runner, err := workers.NewRunner(gdb, log, cfg.Sync.TickDeadline())
	if err != nil {
		return nil, err
	}

	poller, err := workers.NewPoller(workers.PollerOpts{
		DB:       gdb,
		Client:   client,
		Sink:     sink,
		Interval: cfg.Sync.PollInterval(),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	runner.Add(poller)

	executor, err := workers.NewExecutorSync(workers.ExecutorSyncOpts{
		DB:       gdb,
		Client:   client,
		Sink:     sink,
		Interval: cfg.Sync.ExecutorInterval(),
		PageSize: cfg.Sync.PageSize,
		MaxPages: cfg.Sync.MaxPages,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	runner.Add(executor)

	dispatcher, err := workers.NewDispatcherSync(workers.DispatcherSyncOpts{
		DB:       gdb,
		Client:   client,
		Sink:     sink,
		Interval: cfg.Sync.DispatcherInterval(),
		PageSize: cfg.Sync.PageSize,
		MaxPages: cfg.Sync.MaxPages,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	runner.Add(dispatcher)

	reauth, err := workers.NewReauth(workers.ReauthOpts{
		DB:       gdb,
		Client:   client,
		Interval: cfg.Sync.ReauthInterval(),
		Margin:   cfg.Sync.ReauthMargin(),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	runner.Add(reauth)

	cleanup, err := workers.NewCleanup(workers.CleanupOpts{
		DB:              gdb,
		Interval:        cfg.Sync.CleanupInterval(),
		SessionTTL:      cfg.Sync.SessionTTL(),
		Retention:       cfg.Sync.DoneRetention(),
		CompactSchedule: cfg.Sync.CompactSchedule,
		BusyTicks:       runner.ActiveTicks,
		Log:             log,
	})
	if err != nil {
		return nil, err
	}
	runner.Add(cleanup)

	return runner, nil
}

// newSink builds the configured notification sink.
func newSink(cfg config.NotifyConfig, log zerolog.Logger) (notify.Sink, error) {
	switch cfg.Backend {
	case "slack":
		return slackhook.New(slackhook.Opts{
			BotToken:  cfg.Slack.BotToken,
			ChannelID: cfg.Slack.ChannelID,
		})
	case "discord":
		return discord.New(discord.Opts{
			BotToken:  cfg.Discord.BotToken,
			ChannelID: cfg.Discord.ChannelID,
		})
	default:
		return &notify.LogSink{Log: log}, nil
	}
}

// openStore connects to the configured backend and migrates the schema.
func openStore(cfg *config.Config) (*gorm.DB, error) {
	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
