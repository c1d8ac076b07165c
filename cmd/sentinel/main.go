package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"FibSentinel/internal/collector"
	"FibSentinel/internal/config"
	"FibSentinel/internal/notifier"
	"FibSentinel/internal/recorder"
	"FibSentinel/internal/scheduler"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.With().Caller().Logger()
	log.Info().Msg("FibSentinel starting...")

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Msgf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Msgf("config validation: %v", err)
	}
	setupLogging(cfg)

	fetcher := collector.NewEastMoneyFetcher(cfg.DataSource, cfg.Proxy)
	log.Info().Msgf("data source: %s", fetcher.Name())
	col := collector.NewCollector(fetcher, cfg)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if path := cfg.Database.SQLitePath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Warn().Msgf("create database dir failed, using noop: %v", err)
		} else if sr, err := recorder.NewSQLiteRecorder(path); err != nil {
			log.Warn().Msgf("init sqlite recorder failed, using noop: %v", err)
		} else {
			rec = sr
		}
	}
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = log.Logger.WithContext(ctx)

	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Warn().Msg("telegram not configured, reports are only logged and recorded")
	}

	sched := scheduler.NewScheduler(ctx, col, sender, rec)
	if err := sched.RegisterAll(cfg.Schedule.ScreenCron); err != nil {
		log.Fatal().Msgf("register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing screen pass now")
		go sched.RunNow()
	}

	log.Info().Msgf("FibSentinel is running on %q. Press Ctrl+C to stop.", cfg.Schedule.ScreenCron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Msgf("unknown log level %q, using info", cfg.Log.Level)
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).With().Caller().Logger()
	}
	zerolog.DefaultContextLogger = &log.Logger
}
