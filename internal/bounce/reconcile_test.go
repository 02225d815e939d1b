package bounce

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/sheet-mailer/internal/mailbox"
	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/tests/testutil"
)

type fakeMailbox struct {
	messages []mailbox.Message
	err      error

	filter mailbox.Filter
}

func (f *fakeMailbox) FetchUnseen(_ context.Context, filter mailbox.Filter) ([]mailbox.Message, error) {
	f.filter = filter
	return f.messages, f.err
}

func testConfig() *model.AppConfig {
	return &model.AppConfig{
		Bounce: model.BounceConfig{
			Strategy:   model.StrategyBody,
			FilterBy:   model.FilterBySender,
			Sender:     "mailer-daemon@googlemail.com",
			Subject:    "Delivery Status Notification",
			WindowDays: 7,
			Marker:     marker,
		},
		Sheet: model.SheetConfig{
			StartRow:        2,
			EmailColumn:     1,
			StatusColumn:    2,
			SentText:        "Sent",
			UndeliveredText: "Undelivered",
		},
	}
}

func bounceFor(address string) []byte {
	return crlf(fmt.Sprintf(`From: Mail Delivery Subsystem <mailer-daemon@googlemail.com>
Subject: Delivery Status Notification (Failure)
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="b1"

--b1
Content-Type: text/plain; charset="UTF-8"

Your message wasn't delivered to %s because the address couldn't be found.

--b1--
`, address))
}

func TestReconcile(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", [][]string{
		{"Email", "Status"},
		{"a@x.com", "Sent"},
		{"b@x.com", ""},
		{"c@x.com", "Sent"},
	})

	mb := &fakeMailbox{messages: []mailbox.Message{
		{UID: 10, Raw: bounceFor("a@x.com")},
		{UID: 11, Raw: bounceFor("nobody@x.com")},
		{UID: 12, Raw: crlf("Subject: hello\nContent-Type: text/plain\n\nnot a bounce\n")},
	}}

	r, err := NewReconciler(testConfig(), mb, ws, nil)
	require.NoError(t, err)

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 1, report.Skipped)

	require.Len(t, report.Marked, 1)
	assert.Equal(t, Match{UID: 10, Address: "a@x.com", Row: 2}, report.Marked[0])

	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, "nobody@x.com", report.Unmatched[0].Address)
	assert.ErrorIs(t, report.Unmatched[0].Err, model.ErrAddressNotFound)

	assert.Equal(t, "Undelivered", testutil.Cell(t, ws, 2, 2))
	assert.Equal(t, "", testutil.Cell(t, ws, 3, 2))
	assert.Equal(t, "Sent", testutil.Cell(t, ws, 4, 2))
}

func TestReconcileMarksFirstDuplicate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", [][]string{
		{"Email", "Status"},
		{"a@x.com", "Sent"},
		{"a@x.com", "Sent"},
	})

	mb := &fakeMailbox{messages: []mailbox.Message{{UID: 1, Raw: bounceFor("a@x.com")}}}
	r, err := NewReconciler(testConfig(), mb, ws, nil)
	require.NoError(t, err)

	_, err = r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Undelivered", testutil.Cell(t, ws, 2, 2))
	assert.Equal(t, "Sent", testutil.Cell(t, ws, 3, 2))
}

func TestReconcileMailboxError(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", [][]string{
		{"Email", "Status"},
		{"a@x.com", "Sent"},
	})

	mbErr := &model.MailboxError{Op: "login", Err: errors.New("invalid credentials")}
	r, err := NewReconciler(testConfig(), &fakeMailbox{err: mbErr}, ws, nil)
	require.NoError(t, err)

	report, err := r.Reconcile(context.Background())
	assert.Nil(t, report)

	var got *model.MailboxError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "login", got.Op)
	assert.Equal(t, "Sent", testutil.Cell(t, ws, 2, 2))
}

func TestReconcileAppliesMessagesFetchedBeforeError(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", [][]string{
		{"Email", "Status"},
		{"foo@bar.com", "Sent"},
		{"b@x.com", "Sent"},
	})

	mb := &fakeMailbox{
		messages: []mailbox.Message{{UID: 3, Raw: bounceFor("foo@bar.com")}},
		err:      &model.MailboxError{Op: "fetch", Err: errors.New("connection reset")},
	}
	r, err := NewReconciler(testConfig(), mb, ws, nil)
	require.NoError(t, err)

	report, err := r.Reconcile(context.Background())

	var mbErr *model.MailboxError
	require.ErrorAs(t, err, &mbErr)
	assert.Equal(t, "fetch", mbErr.Op)

	require.NotNil(t, report)
	assert.Equal(t, 1, report.Scanned)
	require.Len(t, report.Marked, 1)
	assert.Equal(t, 2, report.Marked[0].Row)
	assert.Equal(t, "Undelivered", testutil.Cell(t, ws, 2, 2))
	assert.Equal(t, "Sent", testutil.Cell(t, ws, 3, 2))
}

func TestReconcilerFilter(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filterBy string
		want     mailbox.Filter
	}{
		{
			name:     "by sender",
			filterBy: model.FilterBySender,
			want: mailbox.Filter{
				Since: time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC),
				From:  "mailer-daemon@googlemail.com",
			},
		},
		{
			name:     "by subject",
			filterBy: model.FilterBySubject,
			want: mailbox.Filter{
				Since:   time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC),
				Subject: "Delivery Status Notification",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Bounce.FilterBy = tt.filterBy

			mb := &fakeMailbox{}
			r, err := NewReconciler(cfg, mb, nil, nil)
			require.NoError(t, err)
			r.now = func() time.Time { return now }

			assert.Equal(t, tt.want, r.Filter())

			_, err = r.Reconcile(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, mb.filter)
		})
	}
}

func TestNewReconcilerUnknownStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Bounce.Strategy = "dsn"

	_, err := NewReconciler(cfg, &fakeMailbox{}, nil, nil)
	assert.Error(t, err)
}
