// Package eligibility decides which spreadsheet rows receive the email
// in a run.
package eligibility

import (
	"github.com/nhle/sheet-mailer/internal/model"
)

// Filter selects rows that are due to be sent to.
type Filter struct {
	startRow int
	markers  model.Markers
	retry    bool
}

// New builds a Filter from the sheet settings.
func New(cfg *model.AppConfig) *Filter {
	return &Filter{
		startRow: cfg.Sheet.StartRow,
		markers:  model.MarkersFrom(cfg.Sheet),
		retry:    cfg.Sheet.UndeliveredPolicy == model.PolicyRetryUndelivered,
	}
}

// Eligible returns the recipients among rows in ascending row order. A
// row qualifies when it is at or after the start row, has an address,
// and has no status (or the undelivered marker under the retry policy).
func (f *Filter) Eligible(rows []model.Row) []model.Recipient {
	var out []model.Recipient
	last := 0
	for _, row := range rows {
		// Output stays strictly ascending even for unsorted input.
		if row.Number <= last {
			continue
		}
		last = row.Number

		if !f.accepts(row) {
			continue
		}
		out = append(out, model.Recipient{Row: row.Number, Address: row.Address})
	}
	return out
}

func (f *Filter) accepts(row model.Row) bool {
	if row.Number < f.startRow || row.Address == "" {
		return false
	}
	switch model.ClassifyStatus(row.Status, f.markers) {
	case model.StatusUnset:
		return true
	case model.StatusUndelivered:
		return f.retry
	default:
		return false
	}
}
