// Package notify formats outage messages and delivers them to the configured
// channels.
package notify

import (
	"context"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// Message is one rendered notification.
type Message struct {
	Kind     model.ChangeKind `json:"kind"`
	OutageID string           `json:"outage_id"`
	Status   string           `json:"status"`
	Text     string           `json:"text"`
	URL      string           `json:"url"`
}

// Channel delivers messages to an external system.
type Channel interface {
	// Name returns the channel identifier.
	Name() string

	// Send delivers a message. Implementations must be safe for concurrent use.
	Send(ctx context.Context, msg Message) error
}
