package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
)

// ErrNotExist is returned by a Backend that has never stored a snapshot.
var ErrNotExist = errors.New("state does not exist")

// Backend defines the durable storage for state snapshots.
type Backend interface {
	// Name returns the backend identifier.
	Name() string

	// Read returns the stored snapshot, or ErrNotExist if there is none.
	Read(ctx context.Context) (*model.Snapshot, error)

	// Write replaces the stored snapshot with snap.
	Write(ctx context.Context, snap *model.Snapshot) error

	// Close releases resources.
	Close() error
}

// Keys of the snapshot_meta table used by the SQL backends.
const (
	metaSchemaVersion = "schema_version"
	metaLastCheck     = "last_check"
	metaStatsMonth    = "stats_month"
	metaStatsCount    = "stats_total_notifications_this_month"
)

func metaRows(snap *model.Snapshot) map[string]string {
	return map[string]string{
		metaSchemaVersion: snap.SchemaVersion,
		metaLastCheck:     formatTime(snap.LastCheck),
		metaStatsMonth:    snap.Stats.Month,
		metaStatsCount:    strconv.Itoa(snap.Stats.TotalNotificationsThisMonth),
	}
}

func applyMeta(snap *model.Snapshot, meta map[string]string) error {
	snap.SchemaVersion = meta[metaSchemaVersion]
	snap.Stats.Month = meta[metaStatsMonth]

	if v, ok := meta[metaLastCheck]; ok && v != "" {
		t, err := parseTime(v)
		if err != nil {
			return fmt.Errorf("parse last_check: %w", err)
		}
		snap.LastCheck = t
	}

	if v, ok := meta[metaStatsCount]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse notification count: %w", err)
		}
		snap.Stats.TotalNotificationsThisMonth = n
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
