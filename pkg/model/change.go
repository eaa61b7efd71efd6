package model

// ChangeKind distinguishes the two notifiable change types.
type ChangeKind string

const (
	ChangeNew          ChangeKind = "new"
	ChangeStatusChange ChangeKind = "status_change"
)

// StatusChange describes an existing outage whose status moved to a value
// that has not been notified before.
type StatusChange struct {
	Outage    Outage `json:"outage"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// ChangeResult is the classified delta between a scrape and stored state.
type ChangeResult struct {
	NewOutages    []Outage       `json:"new_outages"`
	StatusChanges []StatusChange `json:"status_changes"`
}

// HasChanges reports whether any new outage or status change was found.
func (r ChangeResult) HasChanges() bool {
	return len(r.NewOutages) > 0 || len(r.StatusChanges) > 0
}

// TotalChanges returns the combined count of both lists.
func (r ChangeResult) TotalChanges() int {
	return len(r.NewOutages) + len(r.StatusChanges)
}
