package testutil

import (
	"context"
	"testing"

	"github.com/nhle/sheet-mailer/internal/sheet"
	"github.com/nhle/sheet-mailer/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// SeedWorksheet creates spreadsheet name in s with a single worksheet
// holding rows (rows[0] is row 1) and returns that worksheet.
func SeedWorksheet(t *testing.T, s *store.SQLiteStore, name string, rows [][]string) sheet.Worksheet {
	t.Helper()

	ctx := context.Background()
	if _, err := s.CreateSpreadsheet(ctx, name); err != nil {
		t.Fatalf("creating spreadsheet %q: %v", name, err)
	}
	if err := s.ReplaceCells(ctx, name, 0, rows); err != nil {
		t.Fatalf("seeding spreadsheet %q: %v", name, err)
	}

	ws, err := s.Open(ctx, name, 0)
	if err != nil {
		t.Fatalf("opening spreadsheet %q: %v", name, err)
	}
	return ws
}

// Cell reads a single cell, failing the test on error. Empty cells read
// as "".
func Cell(t *testing.T, ws sheet.Worksheet, row, col int) string {
	t.Helper()

	values, err := ws.Column(context.Background(), col)
	if err != nil {
		t.Fatalf("reading column %d: %v", col, err)
	}
	if row > len(values) {
		return ""
	}
	return values[row-1]
}
