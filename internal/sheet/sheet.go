// Package sheet defines the spreadsheet gateway consumed by the
// mail-merge pipeline. Rows and columns are 1-indexed throughout.
package sheet

import (
	"context"
	"errors"
	"strings"

	"github.com/nhle/sheet-mailer/internal/model"
)

var (
	// ErrSpreadsheetNotFound is returned by Open when no spreadsheet has
	// the requested name.
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

	// ErrWorksheetNotFound is returned by Open when the spreadsheet has no
	// worksheet at the requested index.
	ErrWorksheetNotFound = errors.New("worksheet not found")

	// ErrCellNotFound is returned by FindRow when no cell matches.
	ErrCellNotFound = errors.New("cell not found")
)

// Opener opens a worksheet of a named spreadsheet.
type Opener interface {
	// Open locates the spreadsheet by name and returns the worksheet at
	// the 0-based index.
	Open(ctx context.Context, name string, index int) (Worksheet, error)
}

// Worksheet is a tabular store addressable by row and column.
type Worksheet interface {
	// Title returns the worksheet's display name.
	Title() string

	// Column returns every cell of col from row 1 down to the last
	// non-empty cell.
	Column(ctx context.Context, col int) ([]string, error)

	// Rows reads the address and status columns in a single request so
	// that both describe the same moment.
	Rows(ctx context.Context, addressCol, statusCol int) ([]model.Row, error)

	// FindRow returns the first row whose cell in col equals value
	// exactly, or ErrCellNotFound.
	FindRow(ctx context.Context, col int, value string) (int, error)

	// UpdateCell overwrites a single cell.
	UpdateCell(ctx context.Context, row, col int, value string) error
}

// ZipRows pairs two column reads into rows. Spreadsheet APIs trim
// trailing empty cells, so the shorter column is padded with blanks.
func ZipRows(addresses, statuses []string) []model.Row {
	n := max(len(addresses), len(statuses))
	rows := make([]model.Row, 0, n)
	for i := 0; i < n; i++ {
		row := model.Row{Number: i + 1}
		if i < len(addresses) {
			row.Address = addresses[i]
		}
		if i < len(statuses) {
			row.Status = statuses[i]
		}
		rows = append(rows, row)
	}
	return rows
}

// ColumnName converts a 1-indexed column number to A1 letters
// (1 → A, 27 → AA).
func ColumnName(col int) string {
	if col < 1 {
		return ""
	}
	var b strings.Builder
	var letters []byte
	for col > 0 {
		col--
		letters = append(letters, byte('A'+col%26))
		col /= 26
	}
	for i := len(letters) - 1; i >= 0; i-- {
		b.WriteByte(letters[i])
	}
	return b.String()
}
