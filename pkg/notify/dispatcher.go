package notify

import (
	"context"
	"log/slog"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// Dispatcher fans each message out to every channel.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(channels []Channel, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		channels: channels,
		logger:   logger,
	}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.Name())
	}
	return names
}

// NotifyNew announces a new outage and reports whether any channel delivered it.
func (d *Dispatcher) NotifyNew(ctx context.Context, o model.Outage) bool {
	return d.deliver(ctx, NewMessage(o))
}

// NotifyStatusChange announces a status transition and reports whether any
// channel delivered it.
func (d *Dispatcher) NotifyStatusChange(ctx context.Context, c model.StatusChange) bool {
	return d.deliver(ctx, StatusChangeMessage(c))
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) bool {
	if len(d.channels) == 0 {
		d.logger.Error("no notification channels configured", "id", msg.OutageID)
		return false
	}

	delivered := 0
	for _, ch := range d.channels {
		if err := ch.Send(ctx, msg); err != nil {
			d.logger.Error("send notification failed",
				"channel", ch.Name(),
				"id", msg.OutageID,
				"kind", msg.Kind,
				"error", err,
			)
			continue
		}
		delivered++
		d.logger.Debug("notification sent", "channel", ch.Name(), "id", msg.OutageID)
	}
	return delivered > 0
}
