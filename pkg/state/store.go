// Package state keeps the durable snapshot of known outages and the monthly
// notification counter.
//
// A Store is loaded once, mutated in memory, and written back at most once.
// Mutations set a dirty flag; Save skips the write when nothing changed.
// A Store is not safe for concurrent use.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ogulcanaydogan/outagewatch/pkg/detect"
	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/storage"
)

// LoadSource tells where a loaded snapshot came from.
type LoadSource int

const (
	LoadedExisting  LoadSource = iota // Decoded from the backend
	LoadedFresh                       // Backend had no snapshot yet
	LoadedRecovered                   // Backend content unreadable; started empty
)

func (s LoadSource) String() string {
	switch s {
	case LoadedExisting:
		return "existing"
	case LoadedFresh:
		return "fresh"
	case LoadedRecovered:
		return "recovered"
	default:
		return fmt.Sprintf("LoadSource(%d)", int(s))
	}
}

// LoadResult describes the outcome of Load. Err is set only for
// LoadedRecovered and is informational.
type LoadResult struct {
	Source LoadSource
	Err    error
}

// Store holds the in-memory snapshot and its dirty flag.
type Store struct {
	backend storage.Backend
	snap    *model.Snapshot
	dirty   bool
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and month rollover.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Load reads the snapshot from backend. It never fails: a missing snapshot
// or unreadable content yields an empty snapshot for the current month.
func Load(ctx context.Context, backend storage.Backend, opts ...Option) (*Store, LoadResult) {
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	snap, err := backend.Read(ctx)
	switch {
	case errors.Is(err, storage.ErrNotExist):
		s.logger.Info("no state found, starting empty")
		s.snap = model.NewSnapshot(now)
		return s, LoadResult{Source: LoadedFresh}
	case err != nil:
		s.logger.Error("read state failed, starting empty", "error", err)
		s.snap = model.NewSnapshot(now)
		return s, LoadResult{Source: LoadedRecovered, Err: err}
	case snap == nil:
		s.snap = model.NewSnapshot(now)
		return s, LoadResult{Source: LoadedFresh}
	}

	snap.Normalize(now)
	s.snap = snap
	s.logger.Info("state loaded", "outages", len(snap.Outages), "month", snap.Stats.Month)
	return s, LoadResult{Source: LoadedExisting}
}

// Changes classifies current records against the stored outages.
func (s *Store) Changes(current []model.Outage) model.ChangeResult {
	return detect.Detect(current, s.snap.Outages)
}

// UpdateOutages records the latest display fields of every current outage.
// Month rollover is checked first, even for an empty list.
func (s *Store) UpdateOutages(current []model.Outage) {
	s.rolloverMonth()
	now := s.now().UTC()

	for _, o := range current {
		entry, ok := s.snap.Outages[o.ID]
		if !ok {
			entry = &model.StoredOutage{
				ID:               o.ID,
				FirstSeen:        now,
				LastUpdated:      now,
				NotifiedStatuses: model.NewStatusSet(),
			}
			entry.CopyDisplay(o)
			s.snap.Outages[o.ID] = entry
			s.dirty = true
			continue
		}

		if entry.SameDisplay(o) {
			continue
		}

		entry.CopyDisplay(o)
		entry.LastUpdated = now
		s.dirty = true
	}
}

// MarkNotified records status as notified for id. Unknown ids are ignored.
func (s *Store) MarkNotified(id, status string) {
	entry, ok := s.snap.Outages[id]
	if !ok {
		s.logger.Debug("mark notified for unknown outage", "id", id)
		return
	}
	if entry.NotifiedStatuses == nil {
		entry.NotifiedStatuses = model.NewStatusSet()
	}
	if entry.NotifiedStatuses.Add(status) {
		s.dirty = true
		s.logger.Debug("marked notified", "id", id, "status", status)
	}
}

// IncrementNotificationCount adds one to this month's counter.
func (s *Store) IncrementNotificationCount() {
	s.rolloverMonth()
	s.snap.Stats.TotalNotificationsThisMonth++
	s.dirty = true
}

// NotificationCountThisMonth returns the counter, or 0 when it belongs to an
// earlier month. It does not modify state.
func (s *Store) NotificationCountThisMonth() int {
	return s.snap.NotificationCount(s.now())
}

// IsDirty reports whether state changed since load or the last save.
func (s *Store) IsDirty() bool { return s.dirty }

// Save writes the snapshot when dirty or forced and reports whether a write
// happened. Write failures are returned as *WriteError.
func (s *Store) Save(ctx context.Context, force bool) (bool, error) {
	if !force && !s.dirty {
		s.logger.Debug("state unchanged, skipping save")
		return false, nil
	}

	s.snap.LastCheck = s.now().UTC()
	if err := s.backend.Write(ctx, s.snap); err != nil {
		return false, &WriteError{Backend: s.backend.Name(), Err: err}
	}

	s.dirty = false
	s.logger.Info("state saved", "outages", len(s.snap.Outages))
	return true, nil
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *model.Snapshot {
	return cloneSnapshot(s.snap)
}

// Outages returns copies of all stored outages ordered by id.
func (s *Store) Outages() []model.StoredOutage {
	out := make([]model.StoredOutage, 0, len(s.snap.Outages))
	for _, o := range s.snap.Outages {
		out = append(out, cloneOutage(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Outage returns a copy of the stored outage with the given id.
func (s *Store) Outage(id string) (model.StoredOutage, bool) {
	o, ok := s.snap.Outages[id]
	if !ok {
		return model.StoredOutage{}, false
	}
	return cloneOutage(o), true
}

func (s *Store) rolloverMonth() {
	month := model.MonthOf(s.now())
	if s.snap.Stats.Month == month {
		return
	}
	s.logger.Info("month rollover, resetting notification count",
		"previous_month", s.snap.Stats.Month,
		"previous_count", s.snap.Stats.TotalNotificationsThisMonth,
		"month", month,
	)
	s.snap.Stats.Month = month
	s.snap.Stats.TotalNotificationsThisMonth = 0
	s.dirty = true
}

func cloneOutage(o *model.StoredOutage) model.StoredOutage {
	c := *o
	c.NotifiedStatuses = model.NewStatusSet(o.NotifiedStatuses.Sorted()...)
	return c
}

func cloneSnapshot(snap *model.Snapshot) *model.Snapshot {
	c := *snap
	c.Outages = make(map[string]*model.StoredOutage, len(snap.Outages))
	for id, o := range snap.Outages {
		oc := cloneOutage(o)
		c.Outages[id] = &oc
	}
	return &c
}
