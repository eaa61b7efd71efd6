package notify

import (
	"context"
	"log/slog"
)

// DryRunChannel logs messages instead of delivering them. It never fails.
type DryRunChannel struct {
	logger *slog.Logger
}

func NewDryRunChannel(logger *slog.Logger) *DryRunChannel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DryRunChannel{logger: logger}
}

func (d *DryRunChannel) Name() string { return "dry-run" }

func (d *DryRunChannel) Send(_ context.Context, msg Message) error {
	d.logger.Info("dry run, skipping delivery",
		"kind", msg.Kind,
		"id", msg.OutageID,
		"text", msg.Text,
	)
	return nil
}
