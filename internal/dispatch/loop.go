// Package dispatch sends the email to each eligible recipient and marks
// the row sent.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
)

// State is the position of one recipient in the send state machine.
type State int

const (
	Pending State = iota
	Sending
	Sent
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Delivery is the outcome for one recipient.
type Delivery struct {
	Recipient model.Recipient
	State     State

	// Transmitted is true once the server accepted the message, even if
	// a later step failed.
	Transmitted bool

	// Err is a *model.DeliveryError when State is Failed.
	Err error
}

// Loop sends to recipients one at a time.
type Loop struct {
	composer  *Composer
	transport Transport
	sheet     sheet.Worksheet
	delay     Delay
	log       *zap.SugaredLogger

	addressCol int
	statusCol  int
	sentText   string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop wires a Loop from the sheet and dispatch settings.
func NewLoop(
	cfg *model.AppConfig,
	composer *Composer,
	transport Transport,
	ws sheet.Worksheet,
	log *zap.SugaredLogger,
) *Loop {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Loop{
		composer:   composer,
		transport:  transport,
		sheet:      ws,
		delay:      Delay{Min: cfg.Dispatch.MinDelay, Max: cfg.Dispatch.MaxDelay},
		log:        log,
		addressCol: cfg.Sheet.EmailColumn,
		statusCol:  cfg.Sheet.StatusColumn,
		sentText:   cfg.Sheet.SentText,
		sleep:      Sleep,
	}
}

// Run processes recipients in order. A failed recipient is logged and
// the loop moves on; only a cancelled context stops it early, leaving the
// remaining recipients Pending.
func (l *Loop) Run(ctx context.Context, recipients []model.Recipient) []Delivery {
	deliveries := make([]Delivery, len(recipients))
	for i, r := range recipients {
		deliveries[i] = Delivery{Recipient: r, State: Pending}
	}

	for i := range deliveries {
		if ctx.Err() != nil {
			break
		}
		l.deliver(ctx, &deliveries[i])
	}
	return deliveries
}

func (l *Loop) deliver(ctx context.Context, d *Delivery) {
	r := d.Recipient
	d.State = Sending
	msg := l.composer.Compose(r.Address)

	fail := func(err error) {
		d.State = Failed
		d.Err = &model.DeliveryError{Row: r.Row, Address: r.Address, Err: err}
		l.log.Errorf("Failed to send email to %s (Row %d): %v", r.Address, r.Row, err)
	}

	pause := l.delay.Next()
	l.log.Debugf("Waiting %s before sending to %s", pause.Round(time.Millisecond), r.Address)
	if err := l.sleep(ctx, pause); err != nil {
		fail(err)
		return
	}

	if err := l.transport.Send(ctx, msg); err != nil {
		d.Transmitted = errors.Is(err, ErrSessionClose)
		fail(err)
		return
	}
	d.Transmitted = true
	l.log.Infof("Email sent to %s (Row %d)", r.Address, r.Row)

	row, err := l.sheet.FindRow(ctx, l.addressCol, r.Address)
	if errors.Is(err, sheet.ErrCellNotFound) {
		fail(fmt.Errorf("%w: %w", model.ErrAddressNotFound, err))
		return
	}
	if err != nil {
		fail(err)
		return
	}
	if err := l.sheet.UpdateCell(ctx, row, l.statusCol, l.sentText); err != nil {
		fail(fmt.Errorf("marking row %d sent: %w", row, err))
		return
	}

	d.State = Sent
}
