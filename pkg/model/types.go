package model

import (
	"encoding/json"
	"sort"
	"time"
)

// SchemaVersion is the layout tag written into every persisted snapshot.
const SchemaVersion = "1.0"

// MonthLayout formats the month tag used by Stats.
const MonthLayout = "2006-01"

// Outage is a single entry scraped from the provider's announcement page.
// An empty Status means the outage is ongoing with no explicit label.
type Outage struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Status      string    `json:"status"`
	Title       string    `json:"title"`
	Area        string    `json:"area"`
	URL         string    `json:"url"`
	LastUpdated time.Time `json:"last_updated"`
}

// StoredOutage is the durable record kept for every outage id ever seen.
type StoredOutage struct {
	ID               string    `json:"id"`
	Date             string    `json:"date"`
	Status           string    `json:"status"`
	Title            string    `json:"title"`
	Area             string    `json:"area"`
	URL              string    `json:"url"`
	FirstSeen        time.Time `json:"first_seen"`
	LastUpdated      time.Time `json:"last_updated"`
	NotifiedStatuses StatusSet `json:"notified_statuses"`
}

// SameDisplay reports whether the display fields match the given outage.
func (s *StoredOutage) SameDisplay(o Outage) bool {
	return s.Date == o.Date &&
		s.Status == o.Status &&
		s.Title == o.Title &&
		s.Area == o.Area &&
		s.URL == o.URL
}

// CopyDisplay overwrites the display fields from the given outage.
func (s *StoredOutage) CopyDisplay(o Outage) {
	s.Date = o.Date
	s.Status = o.Status
	s.Title = o.Title
	s.Area = o.Area
	s.URL = o.URL
}

// Stats holds the monthly notification counter.
type Stats struct {
	Month                       string `json:"month"`
	TotalNotificationsThisMonth int    `json:"total_notifications_this_month"`
}

// Snapshot is the whole persisted state document.
type Snapshot struct {
	SchemaVersion string                   `json:"schema_version"`
	LastCheck     time.Time                `json:"last_check"`
	Outages       map[string]*StoredOutage `json:"outages"`
	Stats         Stats                    `json:"stats"`
}

// NewSnapshot returns an empty snapshot whose counter applies to the month of now.
func NewSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		LastCheck:     now.UTC(),
		Outages:       make(map[string]*StoredOutage),
		Stats: Stats{
			Month: MonthOf(now),
		},
	}
}

// Normalize fills in defaults for fields missing from a decoded document.
func (s *Snapshot) Normalize(now time.Time) {
	if s.SchemaVersion == "" {
		s.SchemaVersion = SchemaVersion
	}
	if s.Outages == nil {
		s.Outages = make(map[string]*StoredOutage)
	}
	for id, o := range s.Outages {
		if o == nil {
			delete(s.Outages, id)
			continue
		}
		if o.ID == "" {
			o.ID = id
		}
		if o.NotifiedStatuses == nil {
			o.NotifiedStatuses = NewStatusSet()
		}
	}
	if s.Stats.Month == "" {
		s.Stats.Month = MonthOf(now)
		s.Stats.TotalNotificationsThisMonth = 0
	}
	if s.Stats.TotalNotificationsThisMonth < 0 {
		s.Stats.TotalNotificationsThisMonth = 0
	}
}

// NotificationCount returns the counter when it belongs to the month of now
// and 0 otherwise.
func (s *Snapshot) NotificationCount(now time.Time) int {
	if s.Stats.Month != MonthOf(now) {
		return 0
	}
	return s.Stats.TotalNotificationsThisMonth
}

// MonthOf returns the UTC "YYYY-MM" tag for t.
func MonthOf(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// StatusSet is a membership-only set of status strings. The empty string is
// a valid member.
type StatusSet map[string]struct{}

// NewStatusSet creates a set holding the given statuses.
func NewStatusSet(statuses ...string) StatusSet {
	s := make(StatusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

// Has reports whether status is a member.
func (s StatusSet) Has(status string) bool {
	_, ok := s[status]
	return ok
}

// Add inserts status and reports whether the set changed.
func (s StatusSet) Add(status string) bool {
	if _, ok := s[status]; ok {
		return false
	}
	s[status] = struct{}{}
	return true
}

// Sorted returns the members in lexical order.
func (s StatusSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for st := range s {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s StatusSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array, dropping duplicates. null yields an empty set.
func (s *StatusSet) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = NewStatusSet(list...)
	return nil
}
