// Package detect classifies freshly scraped outages against stored state.
package detect

import "github.com/ogulcanaydogan/outagewatch/pkg/model"

// Detect compares current records with stored entries. Ids missing from
// stored become new outages. A stored id whose status differs yields a status
// change only when the new status was never notified for that id. Output
// lists keep the order of current.
func Detect(current []model.Outage, stored map[string]*model.StoredOutage) model.ChangeResult {
	var result model.ChangeResult

	for _, o := range current {
		entry, ok := stored[o.ID]
		if !ok || entry == nil {
			result.NewOutages = append(result.NewOutages, o)
			continue
		}

		if entry.Status == o.Status {
			continue
		}

		if entry.NotifiedStatuses.Has(o.Status) {
			continue
		}

		result.StatusChanges = append(result.StatusChanges, model.StatusChange{
			Outage:    o,
			OldStatus: entry.Status,
			NewStatus: o.Status,
		})
	}

	return result
}
