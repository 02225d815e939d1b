package store

import (
	"context"

	"github.com/nhle/sheet-mailer/internal/sheet"
)

// Workbook is a local stand-in for a hosted spreadsheet service:
// named spreadsheets holding ordered worksheets of text cells.
type Workbook interface {
	sheet.Opener

	// CreateSpreadsheet creates a spreadsheet with one worksheet per
	// title, in order. It returns the spreadsheet ID.
	CreateSpreadsheet(ctx context.Context, name string, titles ...string) (string, error)

	// DeleteSpreadsheet removes a spreadsheet and all of its cells.
	DeleteSpreadsheet(ctx context.Context, name string) error

	// ReplaceCells overwrites the worksheet at index with rows, where
	// rows[0] is row 1 and rows[i][0] is column A.
	ReplaceCells(ctx context.Context, name string, index int, rows [][]string) error

	Close() error
}

var _ Workbook = (*SQLiteStore)(nil)
