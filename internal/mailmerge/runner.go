// Package mailmerge runs one batch: reconcile bounces, pick eligible
// rows, send.
package mailmerge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/sheet-mailer/internal/bounce"
	"github.com/nhle/sheet-mailer/internal/dispatch"
	"github.com/nhle/sheet-mailer/internal/eligibility"
	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
)

// RunOptions toggles parts of a batch.
type RunOptions struct {
	// DryRun reports the eligible recipients without touching the
	// mailbox, the sheet or the SMTP server.
	DryRun bool

	// SkipBounces skips reconciliation.
	SkipBounces bool
}

// Summary is the outcome of one batch.
type Summary struct {
	Bounces    *bounce.Report
	Recipients []model.Recipient
	Deliveries []dispatch.Delivery
}

// Sent counts recipients whose row was marked sent.
func (s *Summary) Sent() int {
	return s.count(dispatch.Sent)
}

// Failed counts recipients that ended in the Failed state.
func (s *Summary) Failed() int {
	return s.count(dispatch.Failed)
}

// BouncesMarked counts rows marked undelivered.
func (s *Summary) BouncesMarked() int {
	if s.Bounces == nil {
		return 0
	}
	return len(s.Bounces.Marked)
}

func (s *Summary) count(state dispatch.State) int {
	n := 0
	for _, d := range s.Deliveries {
		if d.State == state {
			n++
		}
	}
	return n
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d eligible, %d sent, %d failed, %d bounces marked",
		len(s.Recipients), s.Sent(), s.Failed(), s.BouncesMarked())
}

// Runner orders the pipeline for one batch.
type Runner struct {
	cfg       *model.AppConfig
	opener    sheet.Opener
	mailbox   bounce.Mailbox
	transport dispatch.Transport
	log       *zap.SugaredLogger
}

// NewRunner creates a Runner. mb may be nil when bounce checking is
// disabled.
func NewRunner(
	cfg *model.AppConfig,
	opener sheet.Opener,
	mb bounce.Mailbox,
	transport dispatch.Transport,
	log *zap.SugaredLogger,
) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		cfg:       cfg,
		opener:    opener,
		mailbox:   mb,
		transport: transport,
		log:       log,
	}
}

// Run processes one batch. The returned error is fatal and happens
// before anything is sent: a *model.ConfigError for a missing sheet or
// attachment, or a read failure. Mailbox and per-recipient failures are
// logged and reported in the Summary instead.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	composer, err := dispatch.NewComposer(r.cfg.SMTP.From, r.cfg.Email)
	if err != nil {
		r.log.Errorf("%v", err)
		return nil, err
	}

	ws, err := r.openWorksheet(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}

	if opts.DryRun || opts.SkipBounces || r.mailbox == nil {
		r.log.Debug("Skipping bounce check")
	} else {
		summary.Bounces = r.reconcile(ctx, ws)
	}

	rows, err := ws.Rows(ctx, r.cfg.Sheet.EmailColumn, r.cfg.Sheet.StatusColumn)
	if err != nil {
		return nil, fmt.Errorf("reading recipients from %s: %w", ws.Title(), err)
	}
	summary.Recipients = eligibility.New(r.cfg).Eligible(rows)
	r.log.Infof("Found %d recipients to email", len(summary.Recipients))

	if opts.DryRun {
		for _, rc := range summary.Recipients {
			r.log.Infof("Would send to %s (Row %d)", rc.Address, rc.Row)
		}
		return summary, nil
	}

	loop := dispatch.NewLoop(r.cfg, composer, r.transport, ws, r.log)
	summary.Deliveries = loop.Run(ctx, summary.Recipients)

	r.log.Infof("Run complete: %s", summary)
	return summary, nil
}

func (r *Runner) openWorksheet(ctx context.Context) (sheet.Worksheet, error) {
	name, index := r.cfg.Sheet.Name, r.cfg.Sheet.WorksheetIndex

	ws, err := r.opener.Open(ctx, name, index)
	switch {
	case errors.Is(err, sheet.ErrSpreadsheetNotFound):
		r.log.Errorf("Spreadsheet '%s' not found.", name)
		return nil, &model.ConfigError{Message: fmt.Sprintf("spreadsheet %q", name), Err: err}
	case errors.Is(err, sheet.ErrWorksheetNotFound):
		r.log.Errorf("Worksheet %d of '%s' not found.", index, name)
		return nil, &model.ConfigError{Message: fmt.Sprintf("worksheet %d of %q", index, name), Err: err}
	case err != nil:
		r.log.Errorf("Error opening spreadsheet: %v", err)
		return nil, fmt.Errorf("opening spreadsheet %q: %w", name, err)
	}
	return ws, nil
}

func (r *Runner) reconcile(ctx context.Context, ws sheet.Worksheet) *bounce.Report {
	rec, err := bounce.NewReconciler(r.cfg, r.mailbox, ws, r.log)
	if err != nil {
		r.log.Errorf("Error checking mailbox: %v", err)
		return nil
	}

	report, err := rec.Reconcile(ctx)
	if err != nil {
		r.log.Errorf("Error checking mailbox: %v", err)
	}
	return report
}
