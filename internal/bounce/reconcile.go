// Package bounce matches bounce notifications from the mailbox back to
// spreadsheet rows and marks those rows undelivered.
package bounce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/sheet-mailer/internal/mailbox"
	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
)

// Mailbox is the part of the IMAP gateway the reconciler needs.
type Mailbox interface {
	FetchUnseen(ctx context.Context, f mailbox.Filter) ([]mailbox.Message, error)
}

// Match is the outcome for one extracted address.
type Match struct {
	UID     uint32
	Address string

	// Row is set when the address was found.
	Row int

	// Err is set for lookup or update failures.
	Err error
}

// Report summarizes one reconciliation pass.
type Report struct {
	// Scanned counts fetched notifications.
	Scanned int

	// Skipped counts notifications no address could be extracted from.
	Skipped int

	Marked    []Match
	Unmatched []Match
}

// Reconciler marks rows undelivered for every bounce it can match.
type Reconciler struct {
	mailbox   Mailbox
	sheet     sheet.Worksheet
	extractor Extractor
	log       *zap.SugaredLogger

	cfg         model.BounceConfig
	addressCol  int
	statusCol   int
	undelivered string

	now func() time.Time
}

// NewReconciler builds a Reconciler from the bounce and sheet settings.
func NewReconciler(
	cfg *model.AppConfig,
	mb Mailbox,
	ws sheet.Worksheet,
	log *zap.SugaredLogger,
) (*Reconciler, error) {
	extractor, err := NewExtractor(cfg.Bounce)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Reconciler{
		mailbox:     mb,
		sheet:       ws,
		extractor:   extractor,
		log:         log,
		cfg:         cfg.Bounce,
		addressCol:  cfg.Sheet.EmailColumn,
		statusCol:   cfg.Sheet.StatusColumn,
		undelivered: cfg.Sheet.UndeliveredText,
		now:         time.Now,
	}, nil
}

// Filter returns the mailbox search for the configured window and
// filter mode.
func (r *Reconciler) Filter() mailbox.Filter {
	f := mailbox.Filter{
		Since: r.now().AddDate(0, 0, -r.cfg.WindowDays),
	}
	switch r.cfg.FilterBy {
	case model.FilterBySubject:
		f.Subject = r.cfg.Subject
	default:
		f.From = r.cfg.Sender
	}
	return f
}

// Reconcile fetches unseen bounces and marks matching rows. Lookup and
// update failures are recorded per address in the report. A mailbox
// failure is returned as a *model.MailboxError; messages fetched before
// it are still applied, since fetching already marked them seen.
func (r *Reconciler) Reconcile(ctx context.Context) (*Report, error) {
	messages, fetchErr := r.mailbox.FetchUnseen(ctx, r.Filter())
	if fetchErr != nil && len(messages) == 0 {
		return nil, fetchErr
	}

	report := &Report{Scanned: len(messages)}
	for _, msg := range messages {
		address, ok := r.extractor.Extract(msg.Raw)
		if !ok {
			report.Skipped++
			r.log.Debugf("Skipping notification UID %d: no failed address found", msg.UID)
			continue
		}

		m := r.mark(ctx, msg.UID, address)
		if m.Err != nil {
			report.Unmatched = append(report.Unmatched, m)
			r.log.Warnf("Could not mark %s as undelivered: %v", address, m.Err)
			continue
		}
		report.Marked = append(report.Marked, m)
		r.log.Infof("Marked email as undelivered for: %s (Row %d)", address, m.Row)
	}

	return report, fetchErr
}

func (r *Reconciler) mark(ctx context.Context, uid uint32, address string) Match {
	m := Match{UID: uid, Address: address}

	row, err := r.sheet.FindRow(ctx, r.addressCol, address)
	if errors.Is(err, sheet.ErrCellNotFound) {
		m.Err = fmt.Errorf("%w: %w", model.ErrAddressNotFound, err)
		return m
	}
	if err != nil {
		m.Err = err
		return m
	}
	m.Row = row

	if err := r.sheet.UpdateCell(ctx, row, r.statusCol, r.undelivered); err != nil {
		m.Err = err
	}
	return m
}
