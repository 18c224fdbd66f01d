package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/02loveslollipop/sensorlink/services/devicesim/internal/board"
	"github.com/02loveslollipop/sensorlink/services/devicesim/internal/bridge"
	"github.com/02loveslollipop/sensorlink/services/devicesim/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("devicesim failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := bridge.New(cfg.APIURL, &http.Client{Timeout: cfg.RequestTimeout})
	b := board.New(cfg.Actuators, cfg.Seed, cfg.DropoutRate)

	logger.Info("sim_started", "api", cfg.APIURL, "actuators", cfg.Actuators, "dry_run", cfg.DryRun)

	if !cfg.DryRun {
		if err := client.SyncStates(ctx, b.States()); err != nil {
			logger.Warn("sim_sync_failed", "err", err)
		}
	}

	readTick := time.NewTicker(cfg.ReadInterval)
	defer readTick.Stop()
	pollTick := time.NewTicker(cfg.PollInterval)
	defer pollTick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("sim_stopped")
			return nil
		case now := <-readTick.C:
			sendReading(ctx, logger, client, b.Next(now.UTC()), cfg.DryRun)
		case <-pollTick.C:
			if cfg.DryRun {
				continue
			}
			pollOnce(ctx, logger, client, b)
		}
	}
}

func sendReading(ctx context.Context, logger *slog.Logger, client *bridge.Client, r board.Reading, dryRun bool) {
	attrs := []any{
		"temperature", board.ValueString(r.Temperature),
		"humidity", board.ValueString(r.Humidity),
		"voltage", board.ValueString(r.Voltage),
		"fan_on", r.FanOn,
	}
	if dryRun {
		logger.Info("sim_reading_dry_run", attrs...)
		return
	}
	persisted, err := client.PostReading(ctx, r)
	if err != nil {
		logger.Warn("sim_reading_failed", append(attrs, "err", err)...)
		return
	}
	logger.Info("sim_reading_sent", append(attrs, "persisted", persisted)...)
}

func pollOnce(ctx context.Context, logger *slog.Logger, client *bridge.Client, b *board.Board) {
	action, ok, err := client.PollCommand(ctx)
	if err != nil {
		logger.Warn("sim_poll_failed", "err", err)
		return
	}
	if !ok {
		return
	}

	id, on, err := b.Apply(action)
	if err != nil {
		if errors.Is(err, board.ErrUnknownAction) {
			logger.Warn("sim_action_ignored", "action", action, "err", err)
			return
		}
		logger.Error("sim_action_failed", "action", action, "err", err)
		return
	}
	if err := client.Ack(ctx, id, on); err != nil {
		logger.Warn("sim_ack_failed", "id", id, "on", on, "err", err)
		return
	}
	logger.Info("sim_action_applied", "action", action, "on_ids", b.OnIDs())
}
