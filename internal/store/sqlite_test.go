package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
	"github.com/nhle/sheet-mailer/internal/store"
	"github.com/nhle/sheet-mailer/tests/testutil"
)

var recipients = [][]string{
	{"Name", "Email", "Status"},
	{"Ann", "a@x.com"},
	{"Bob", "", ""},
	{"Cid", "b@x.com", "Sent"},
}

func TestOpen(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSpreadsheet(ctx, "Recipients", "Main", "Archive")
	require.NoError(t, err)

	ws, err := s.Open(ctx, "Recipients", 1)
	require.NoError(t, err)
	assert.Equal(t, "Archive", ws.Title())

	_, err = s.Open(ctx, "Missing", 0)
	assert.ErrorIs(t, err, sheet.ErrSpreadsheetNotFound)

	_, err = s.Open(ctx, "Recipients", 2)
	assert.ErrorIs(t, err, sheet.ErrWorksheetNotFound)
}

func TestCreateSpreadsheetDefaultsToOneWorksheet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSpreadsheet(ctx, "Recipients")
	require.NoError(t, err)

	ws, err := s.Open(ctx, "Recipients", 0)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", ws.Title())
}

func TestCreateSpreadsheetRejectsDuplicateName(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSpreadsheet(ctx, "Recipients")
	require.NoError(t, err)

	_, err = s.CreateSpreadsheet(ctx, "Recipients")
	assert.Error(t, err)
}

func TestRowsAndColumn(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", recipients)
	ctx := context.Background()

	rows, err := ws.Rows(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []model.Row{
		{Number: 1, Address: "Email", Status: "Status"},
		{Number: 2, Address: "a@x.com"},
		{Number: 3},
		{Number: 4, Address: "b@x.com", Status: "Sent"},
	}, rows)

	col, err := ws.Column(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Status", "", "", "Sent"}, col)

	empty, err := ws.Column(ctx, 9)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindRowAndUpdateCell(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", recipients)
	ctx := context.Background()

	row, err := ws.FindRow(ctx, 2, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, row)

	_, err = ws.FindRow(ctx, 2, "nobody@x.com")
	assert.ErrorIs(t, err, sheet.ErrCellNotFound)

	// Exact match only.
	_, err = ws.FindRow(ctx, 2, "A@X.COM")
	assert.ErrorIs(t, err, sheet.ErrCellNotFound)

	require.NoError(t, ws.UpdateCell(ctx, 2, 3, "Sent"))
	assert.Equal(t, "Sent", testutil.Cell(t, ws, 2, 3))

	require.NoError(t, ws.UpdateCell(ctx, 4, 3, ""))
	assert.Equal(t, "", testutil.Cell(t, ws, 4, 3))
}

func TestFindRowReturnsFirstMatch(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", [][]string{
		{"a@x.com"},
		{"b@x.com"},
		{"a@x.com"},
	})

	row, err := ws.FindRow(context.Background(), 1, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, row)
}

func TestReplaceCellsClearsPreviousContent(t *testing.T) {
	s := testutil.NewTestStore(t)
	ws := testutil.SeedWorksheet(t, s, "Recipients", recipients)
	ctx := context.Background()

	require.NoError(t, s.ReplaceCells(ctx, "Recipients", 0, [][]string{{"x", "only@x.com"}}))

	col, err := ws.Column(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"only@x.com"}, col)
}

func TestDeleteSpreadsheet(t *testing.T) {
	s := testutil.NewTestStore(t)
	testutil.SeedWorksheet(t, s, "Recipients", recipients)
	ctx := context.Background()

	require.NoError(t, s.DeleteSpreadsheet(ctx, "Recipients"))

	_, err := s.Open(ctx, "Recipients", 0)
	assert.ErrorIs(t, err, sheet.ErrSpreadsheetNotFound)

	assert.ErrorIs(t, s.DeleteSpreadsheet(ctx, "Recipients"), sheet.ErrSpreadsheetNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheets.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.CreateSpreadsheet(ctx, "Recipients")
	require.NoError(t, err)
	require.NoError(t, s.ReplaceCells(ctx, "Recipients", 0, recipients))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ws, err := s.Open(ctx, "Recipients", 0)
	require.NoError(t, err)
	row, err := ws.FindRow(ctx, 2, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, 4, row)
}
