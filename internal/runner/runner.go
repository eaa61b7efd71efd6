// Package runner drives one check of the outage page: scrape, diff against
// stored state, notify within budget, and persist.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/outagewatch/pkg/budget"
	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/state"
	"github.com/ogulcanaydogan/outagewatch/pkg/storage"
)

// ErrNoOutages is returned when the scrape yields no records. It cannot be
// told apart from a failed fetch, so the run is treated as failed.
var ErrNoOutages = errors.New("no outages retrieved")

// Scraper produces the current outage records.
type Scraper interface {
	FetchOutages(ctx context.Context) ([]model.Outage, error)
}

// Notifier posts announcements. A true result means the message counts as
// delivered.
type Notifier interface {
	NotifyNew(ctx context.Context, o model.Outage) bool
	NotifyStatusChange(ctx context.Context, c model.StatusChange) bool
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveNotification(kind, result string)
	ObserveRun(monthlyCount, limit, tracked int, finished time.Time, took time.Duration)
}

// Summary describes what a run did.
type Summary struct {
	LoadSource     state.LoadSource `json:"load_source"`
	Records        int              `json:"records"`
	NewOutages     int              `json:"new_outages"`
	StatusChanges  int              `json:"status_changes"`
	Sent           int              `json:"sent"`
	Failed         int              `json:"failed"`
	Throttled      int              `json:"throttled"`
	QuotaExhausted bool             `json:"quota_exhausted"`
	Saved          bool             `json:"saved"`
	MonthlyCount   int              `json:"monthly_count"`
}

// Runner executes runs against a storage backend.
type Runner struct {
	scraper   Scraper
	notifier  Notifier
	policy    *budget.Policy
	recorder  Recorder
	forceSave bool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(rn *Runner) { rn.recorder = r }
}

// WithForceSave writes state even when nothing changed.
func WithForceSave(force bool) Option {
	return func(rn *Runner) { rn.forceSave = force }
}

// WithClock overrides the time source passed to the state store.
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) { rn.now = now }
}

// New creates a Runner. A nil logger discards output.
func New(s Scraper, n Notifier, policy *budget.Policy, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runner{
		scraper:  s,
		notifier: n,
		policy:   policy,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one check. State write failures are returned as
// *state.WriteError; a failed individual notification is not an error.
func (r *Runner) Run(ctx context.Context, backend storage.Backend) (Summary, error) {
	start := r.now()
	var summary Summary

	store, res := state.Load(ctx, backend, state.WithClock(r.now), state.WithLogger(r.logger))
	summary.LoadSource = res.Source
	if res.Source == state.LoadedRecovered {
		r.logger.Warn("state was unreadable, continuing with empty state", "error", res.Err)
	}

	outages, err := r.scraper.FetchOutages(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch outages: %w", err)
	}
	summary.Records = len(outages)
	if len(outages) == 0 {
		r.logger.Warn("no outage records retrieved")
		return summary, ErrNoOutages
	}
	r.logger.Info("outage records retrieved", "count", len(outages))

	changes := store.Changes(outages)
	summary.NewOutages = len(changes.NewOutages)
	summary.StatusChanges = len(changes.StatusChanges)

	switch {
	case !changes.HasChanges():
		r.logger.Info("no new outages or status changes")
	case !r.policy.CanSend(store.NotificationCountThisMonth()):
		summary.QuotaExhausted = true
		r.logger.Warn("monthly notification limit reached, skipping notifications",
			"count", store.NotificationCountThisMonth(),
			"limit", r.policy.Limit(),
		)
	default:
		r.logger.Info("changes detected",
			"new", len(changes.NewOutages),
			"status_changes", len(changes.StatusChanges),
		)
		// Entries must exist before MarkNotified can record new outages.
		store.UpdateOutages(outages)
		r.notify(ctx, store, changes, &summary)
	}

	return r.finish(ctx, store, outages, start, summary)
}

func (r *Runner) notify(ctx context.Context, store *state.Store, changes model.ChangeResult, summary *Summary) {
	for _, o := range changes.NewOutages {
		if !r.policy.ShouldNotify(store.NotificationCountThisMonth(), model.ChangeNew) {
			r.throttled(model.ChangeNew, o.ID, store, summary)
			continue
		}
		if !r.notifier.NotifyNew(ctx, o) {
			r.failed(model.ChangeNew, o.ID, summary)
			continue
		}
		store.MarkNotified(o.ID, o.Status)
		store.IncrementNotificationCount()
		r.sent(model.ChangeNew, summary)
		r.logger.Info("new outage notified", "id", o.ID, "title", o.Title)
	}

	for _, c := range changes.StatusChanges {
		if !r.policy.ShouldNotify(store.NotificationCountThisMonth(), model.ChangeStatusChange) {
			r.throttled(model.ChangeStatusChange, c.Outage.ID, store, summary)
			continue
		}
		if !r.notifier.NotifyStatusChange(ctx, c) {
			r.failed(model.ChangeStatusChange, c.Outage.ID, summary)
			continue
		}
		store.MarkNotified(c.Outage.ID, c.NewStatus)
		store.IncrementNotificationCount()
		r.sent(model.ChangeStatusChange, summary)
		r.logger.Info("status change notified",
			"id", c.Outage.ID,
			"title", c.Outage.Title,
			"old_status", displayStatus(c.OldStatus),
			"new_status", displayStatus(c.NewStatus),
		)
	}
}

func (r *Runner) finish(ctx context.Context, store *state.Store, outages []model.Outage, start time.Time, summary Summary) (Summary, error) {
	store.UpdateOutages(outages)
	saved, err := store.Save(ctx, r.forceSave)
	if err != nil {
		return summary, err
	}
	summary.Saved = saved
	summary.MonthlyCount = store.NotificationCountThisMonth()

	finished := r.now()
	if r.recorder != nil {
		r.recorder.ObserveRun(summary.MonthlyCount, r.policy.Limit(), len(store.Outages()), finished, finished.Sub(start))
	}

	r.logger.Info("run complete",
		"sent", summary.Sent,
		"failed", summary.Failed,
		"throttled", summary.Throttled,
		"saved", summary.Saved,
		"monthly_count", summary.MonthlyCount,
		"band", r.policy.Band(summary.MonthlyCount),
	)
	return summary, nil
}

func (r *Runner) sent(kind model.ChangeKind, summary *Summary) {
	summary.Sent++
	r.observe(kind, "sent")
}

func (r *Runner) failed(kind model.ChangeKind, id string, summary *Summary) {
	summary.Failed++
	r.observe(kind, "failed")
	if kind == model.ChangeNew {
		r.logger.Warn("new outage not announced; it is stored and will not be retried", "kind", kind, "id", id)
		return
	}
	r.logger.Warn("status change not announced; it is sent again only if the status reappears", "kind", kind, "id", id)
}

func (r *Runner) throttled(kind model.ChangeKind, id string, store *state.Store, summary *Summary) {
	summary.Throttled++
	r.observe(kind, "throttled")
	r.logger.Info("notification throttled",
		"kind", kind,
		"id", id,
		"band", r.policy.Band(store.NotificationCountThisMonth()),
	)
}

func (r *Runner) observe(kind model.ChangeKind, result string) {
	if r.recorder != nil {
		r.recorder.ObserveNotification(string(kind), result)
	}
}

func displayStatus(s string) string {
	if s == "" {
		return "進行中"
	}
	return s
}
