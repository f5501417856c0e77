package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/credentials"
	"github.com/MikeSquared-Agency/scribe/internal/extractor"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
	"github.com/MikeSquared-Agency/scribe/internal/recorder"
	"github.com/MikeSquared-Agency/scribe/internal/session"
	"github.com/MikeSquared-Agency/scribe/internal/status"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/transcriber"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("scribe starting", "port", cfg.Port, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		slog.Error("invalid SCRIBE_TIMEZONE", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	// Credentials
	pool := credentials.New(cfg.APIKeys, slog.Default())
	if pool.Len() == 0 {
		slog.Error("SCRIBE_API_KEYS is required")
		os.Exit(1)
	}
	slog.Info("credential pool ready", "keys", pool.Len())

	// Database
	db, err := store.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		slog.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("store ready", "driver", cfg.StoreDriver)

	// Remote calls
	llm := openai.NewClient(cfg.APIBaseURL)
	trans := transcriber.New(llm, pool, cfg.TranscribeModel, slog.Default())
	ext := extractor.New(llm, pool, cfg.ExtractModel, slog.Default())
	slog.Info("model clients ready",
		"base_url", cfg.APIBaseURL,
		"transcribe_model", cfg.TranscribeModel,
		"extract_model", cfg.ExtractModel,
	)

	statusCh := status.New(cfg.HistorySize)

	deps := session.Deps{
		Recorder: recorder.NewFFMPEG(recorder.Options{
			Command:     cfg.FFMPEGCommand,
			InputFormat: cfg.AudioInputFormat,
			InputDevice: cfg.AudioInputDevice,
		}),
		Transcriber: trans,
		Extractor:   ext,
		Store:       db,
		Status:      statusCh,
		Logger:      slog.Default(),
	}

	// NATS/Hermes (optional: without it there are no calendar, alarm or event side effects)
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Warn("NATS unavailable, running without side effects", "url", cfg.NatsURL, "error", err)
	} else {
		defer hermesClient.Close()
		deps.Calendar = hermes.NewCalendar(hermesClient)
		deps.Alarms = hermes.NewAlarms(hermesClient)
		deps.Events = hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	ctrl := session.New(deps, session.Config{
		RecordingsDir:  cfg.RecordingsDir,
		ChunkThreshold: cfg.ChunkBytes,
		Concurrency:    cfg.TranscribeConcurrency,
		EventDuration:  time.Duration(cfg.EventMinutes) * time.Minute,
		Location:       loc,
	})

	if hermesClient != nil {
		if err := hermesClient.Subscribe(hermes.SubjectSessionCommand, ctrl.HandleCommand); err != nil {
			slog.Error("failed to subscribe to session commands", "error", err)
			os.Exit(1)
		}
		go forwardStatus(ctx, statusCh, hermesClient)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, cfg.WSOrigins, ctrl, db, statusCh, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	slog.Info("scribe ready", "port", cfg.Port, "recordings", cfg.RecordingsDir)

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}

	// Refuses Starts from the bus as well, then drains the current session.
	ctrl.Close()
	slog.Info("scribe stopped")
}

// forwardStatus mirrors status snapshots onto the bus until ctx is done.
func forwardStatus(ctx context.Context, ch *status.Channel, pub hermes.Publisher) {
	updates, cancel := ch.Subscribe(16)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := pub.Publish(hermes.SubjectStatus, snap); err != nil {
				slog.Debug("status publish failed", "error", err)
			}
		}
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
