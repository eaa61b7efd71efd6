package state_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/state"
	"github.com/ogulcanaydogan/outagewatch/pkg/storage"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newClock(year int, month time.Month, day int) *clock {
	return &clock{t: time.Date(year, month, day, 12, 0, 0, 0, time.UTC)}
}

type memBackend struct {
	snap     *model.Snapshot
	readErr  error
	writeErr error
	writes   int
}

func (m *memBackend) Name() string { return "memory" }

func (m *memBackend) Read(context.Context) (*model.Snapshot, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if m.snap == nil {
		return nil, storage.ErrNotExist
	}
	return m.snap, nil
}

func (m *memBackend) Write(_ context.Context, snap *model.Snapshot) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.snap = snap
	return nil
}

func (m *memBackend) Close() error { return nil }

func outage(id, status string) model.Outage {
	return model.Outage{
		ID:     id,
		Date:   "2025.12.09",
		Status: status,
		Title:  "障害 " + id,
		URL:    "https://www.toshima.co.jp/trouble/detail/" + id,
	}
}

func load(t *testing.T, b storage.Backend, c *clock) *state.Store {
	t.Helper()
	s, _ := state.Load(context.Background(), b, state.WithClock(c.now))
	return s
}

func TestLoad_Fresh(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s, res := state.Load(context.Background(), &memBackend{}, state.WithClock(c.now))

	assert.Equal(t, state.LoadedFresh, res.Source)
	assert.NoError(t, res.Err)
	assert.False(t, s.IsDirty())
	assert.Equal(t, 0, s.NotificationCountThisMonth())

	snap := s.Snapshot()
	assert.Empty(t, snap.Outages)
	assert.Equal(t, "2025-12", snap.Stats.Month)
	assert.Equal(t, model.SchemaVersion, snap.SchemaVersion)
}

func TestLoad_RecoversFromUnreadableState(t *testing.T) {
	c := newClock(2025, time.December, 9)
	readErr := errors.New("parse state file: unexpected EOF")
	s, res := state.Load(context.Background(), &memBackend{readErr: readErr}, state.WithClock(c.now))

	assert.Equal(t, state.LoadedRecovered, res.Source)
	assert.ErrorIs(t, res.Err, readErr)
	assert.False(t, s.IsDirty())
	assert.Empty(t, s.Outages())
	assert.Equal(t, 0, s.NotificationCountThisMonth())
}

func TestLoad_CorruptFileOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	c := newClock(2025, time.December, 9)
	s, res := state.Load(context.Background(), storage.NewFile(path), state.WithClock(c.now))
	assert.Equal(t, state.LoadedRecovered, res.Source)
	assert.Empty(t, s.Outages())
}

func TestLoad_Existing(t *testing.T) {
	c := newClock(2025, time.December, 9)
	b := &memBackend{snap: &model.Snapshot{
		SchemaVersion: model.SchemaVersion,
		Outages: map[string]*model.StoredOutage{
			"91": {Status: "終了"},
		},
		Stats: model.Stats{Month: "2025-12", TotalNotificationsThisMonth: 7},
	}}

	s, res := state.Load(context.Background(), b, state.WithClock(c.now))
	assert.Equal(t, state.LoadedExisting, res.Source)
	assert.Equal(t, 7, s.NotificationCountThisMonth())

	got, ok := s.Outage("91")
	require.True(t, ok)
	assert.Equal(t, "91", got.ID, "id is filled from the map key")
	assert.NotNil(t, got.NotifiedStatuses)
	assert.False(t, s.IsDirty())
}

func TestLoadSource_String(t *testing.T) {
	assert.Equal(t, "existing", state.LoadedExisting.String())
	assert.Equal(t, "fresh", state.LoadedFresh.String())
	assert.Equal(t, "recovered", state.LoadedRecovered.String())
	assert.Equal(t, "LoadSource(9)", state.LoadSource(9).String())
}

func TestChanges(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)

	res := s.Changes([]model.Outage{outage("91", "")})
	require.Len(t, res.NewOutages, 1)

	s.UpdateOutages([]model.Outage{outage("91", "")})
	s.MarkNotified("91", "")

	res = s.Changes([]model.Outage{outage("91", "復旧")})
	require.Len(t, res.StatusChanges, 1)
	assert.Equal(t, "", res.StatusChanges[0].OldStatus)
	assert.Equal(t, "復旧", res.StatusChanges[0].NewStatus)
}

func TestUpdateOutages_NewEntry(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)

	s.UpdateOutages([]model.Outage{outage("91", "")})
	assert.True(t, s.IsDirty())

	got, ok := s.Outage("91")
	require.True(t, ok)
	assert.Equal(t, c.t, got.FirstSeen)
	assert.Equal(t, c.t, got.LastUpdated)
	assert.Empty(t, got.NotifiedStatuses)
	assert.Equal(t, "障害 91", got.Title)
}

func TestUpdateOutages_IdenticalRecordIsNotDirty(t *testing.T) {
	b := &memBackend{}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)
	s.UpdateOutages([]model.Outage{outage("91", "")})
	_, err := s.Save(context.Background(), false)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	s.UpdateOutages([]model.Outage{outage("91", "")})
	assert.False(t, s.IsDirty())

	got, _ := s.Outage("91")
	assert.Equal(t, c.t.Add(-time.Hour), got.LastUpdated)
}

func TestUpdateOutages_ChangedFieldBumpsLastUpdated(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)
	s.UpdateOutages([]model.Outage{outage("91", "")})
	s.MarkNotified("91", "")
	_, err := s.Save(context.Background(), false)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	changed := outage("91", "")
	changed.Area = "目白3丁目"
	s.UpdateOutages([]model.Outage{changed})
	assert.True(t, s.IsDirty())

	got, _ := s.Outage("91")
	assert.Equal(t, "目白3丁目", got.Area)
	assert.Equal(t, c.t, got.LastUpdated)
	assert.Equal(t, c.t.Add(-time.Hour), got.FirstSeen)
	assert.True(t, got.NotifiedStatuses.Has(""), "notified statuses survive updates")
}

func TestUpdateOutages_KeepsDisappearedEntries(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)
	s.UpdateOutages([]model.Outage{outage("91", ""), outage("90", "")})
	s.UpdateOutages([]model.Outage{outage("91", "")})

	_, ok := s.Outage("90")
	assert.True(t, ok)
	assert.Len(t, s.Outages(), 2)
}

func TestUpdateOutages_EmptyListRollsMonthOver(t *testing.T) {
	b := &memBackend{snap: &model.Snapshot{
		SchemaVersion: model.SchemaVersion,
		Outages:       map[string]*model.StoredOutage{},
		Stats:         model.Stats{Month: "2025-11", TotalNotificationsThisMonth: 100},
	}}
	c := newClock(2025, time.December, 1)
	s := load(t, b, c)

	assert.Equal(t, 0, s.NotificationCountThisMonth(), "stale month reads as zero")
	assert.False(t, s.IsDirty(), "reading the count does not mutate")

	s.UpdateOutages(nil)
	assert.True(t, s.IsDirty())

	snap := s.Snapshot()
	assert.Equal(t, "2025-12", snap.Stats.Month)
	assert.Equal(t, 0, snap.Stats.TotalNotificationsThisMonth)
}

func TestIncrementNotificationCount(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)

	s.IncrementNotificationCount()
	s.IncrementNotificationCount()
	assert.Equal(t, 2, s.NotificationCountThisMonth())
	assert.True(t, s.IsDirty())

	c.t = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, s.NotificationCountThisMonth())
	s.IncrementNotificationCount()
	assert.Equal(t, 1, s.NotificationCountThisMonth())
	assert.Equal(t, "2026-01", s.Snapshot().Stats.Month)
}

func TestMarkNotified_Idempotent(t *testing.T) {
	b := &memBackend{}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)
	s.UpdateOutages([]model.Outage{outage("91", "復旧")})
	s.MarkNotified("91", "復旧")
	_, err := s.Save(context.Background(), false)
	require.NoError(t, err)

	s.MarkNotified("91", "復旧")
	assert.False(t, s.IsDirty())

	got, _ := s.Outage("91")
	assert.Equal(t, []string{"復旧"}, got.NotifiedStatuses.Sorted())
}

func TestMarkNotified_UnknownID(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)

	s.MarkNotified("404", "")
	assert.False(t, s.IsDirty())
	_, ok := s.Outage("404")
	assert.False(t, ok)
}

func TestSave_SkipsWhenClean(t *testing.T) {
	b := &memBackend{}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)

	wrote, err := s.Save(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 0, b.writes)
}

func TestSave_Forced(t *testing.T) {
	b := &memBackend{}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)

	c.t = c.t.Add(5 * time.Minute)
	wrote, err := s.Save(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, 1, b.writes)
	assert.Equal(t, c.t, b.snap.LastCheck)
}

func TestSave_ClearsDirty(t *testing.T) {
	b := &memBackend{}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)
	s.IncrementNotificationCount()

	wrote, err := s.Save(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.False(t, s.IsDirty())

	wrote, err = s.Save(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, 1, b.writes)
}

func TestSave_WriteFailure(t *testing.T) {
	diskErr := errors.New("disk full")
	b := &memBackend{writeErr: diskErr}
	c := newClock(2025, time.December, 9)
	s := load(t, b, c)
	s.IncrementNotificationCount()

	wrote, err := s.Save(context.Background(), false)
	assert.False(t, wrote)
	require.Error(t, err)

	var we *state.WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "memory", we.Backend)
	assert.ErrorIs(t, err, diskErr)
	assert.True(t, s.IsDirty(), "failed write keeps the dirty flag")
}

func TestSnapshot_IsDetached(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)
	s.UpdateOutages([]model.Outage{outage("91", "")})

	snap := s.Snapshot()
	snap.Outages["91"].NotifiedStatuses.Add("x")
	snap.Outages["91"].Title = "changed"

	got, _ := s.Outage("91")
	assert.Equal(t, "障害 91", got.Title)
	assert.False(t, got.NotifiedStatuses.Has("x"))
}

func TestOutages_SortedByID(t *testing.T) {
	c := newClock(2025, time.December, 9)
	s := load(t, &memBackend{}, c)
	s.UpdateOutages([]model.Outage{outage("91", ""), outage("88", ""), outage("90", "")})

	var ids []string
	for _, o := range s.Outages() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"88", "90", "91"}, ids)
}

func TestRoundTrip_FileBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	c := newClock(2025, time.December, 9)

	s := load(t, storage.NewFile(path), c)
	s.UpdateOutages([]model.Outage{outage("91", "終了"), outage("90", "")})
	s.MarkNotified("91", "")
	s.MarkNotified("91", "終了")
	s.IncrementNotificationCount()
	_, err := s.Save(ctx, false)
	require.NoError(t, err)
	before := s.Snapshot()

	reloaded, res := state.Load(ctx, storage.NewFile(path), state.WithClock(c.now))
	require.Equal(t, state.LoadedExisting, res.Source)
	after := reloaded.Snapshot()

	assert.Equal(t, before.Outages, after.Outages)
	assert.Equal(t, before.Stats, after.Stats)
	assert.Equal(t, before.SchemaVersion, after.SchemaVersion)
	assert.Equal(t, 1, reloaded.NotificationCountThisMonth())
}

func TestRoundTrip_SQLiteBackend(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer db.Close()
	c := newClock(2025, time.December, 9)

	s, res := state.Load(ctx, db, state.WithClock(c.now))
	require.Equal(t, state.LoadedFresh, res.Source)
	s.UpdateOutages([]model.Outage{outage("89", "")})
	s.MarkNotified("89", "")
	_, err = s.Save(ctx, false)
	require.NoError(t, err)

	reloaded, res := state.Load(ctx, db, state.WithClock(c.now))
	require.Equal(t, state.LoadedExisting, res.Source)
	assert.Equal(t, s.Outages(), reloaded.Outages())
}
