// Package gsheets implements the sheet gateway on Google Sheets, using a
// service account. Spreadsheets are located by name through Drive.
package gsheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
)

const spreadsheetMIME = "application/vnd.google-apps.spreadsheet"

// Opener finds spreadsheets by name and opens their worksheets.
type Opener struct {
	sheets *sheets.Service
	drive  *drive.Service
}

// NewOpener authenticates with the service-account JSON key at
// credentialsFile.
func NewOpener(ctx context.Context, credentialsFile string) (*Opener, error) {
	key, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading service account key %s: %w", credentialsFile, err)
	}

	jwtCfg, err := googleoauth.JWTConfigFromJSON(key, sheets.SpreadsheetsScope, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account key: %w", err)
	}

	return NewOpenerWithOptions(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
}

// NewOpenerWithOptions builds the Sheets and Drive clients from the
// given client options.
func NewOpenerWithOptions(ctx context.Context, opts ...option.ClientOption) (*Opener, error) {
	sheetsSrv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return &Opener{sheets: sheetsSrv, drive: driveSrv}, nil
}

// Open implements sheet.Opener.
func (o *Opener) Open(ctx context.Context, name string, index int) (sheet.Worksheet, error) {
	q := fmt.Sprintf(
		"name = '%s' and mimeType = '%s' and trashed = false",
		escapeQuery(name), spreadsheetMIME,
	)

	list, err := o.drive.Files.List().
		Q(q).
		Fields("files(id, name)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("searching for spreadsheet %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("%w: %q", sheet.ErrSpreadsheetNotFound, name)
	}

	id := list.Files[0].Id

	ss, err := o.sheets.Spreadsheets.Get(id).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading spreadsheet %q: %w", name, err)
	}
	if index < 0 || index >= len(ss.Sheets) || ss.Sheets[index].Properties == nil {
		return nil, fmt.Errorf("%w: %q has no worksheet %d", sheet.ErrWorksheetNotFound, name, index)
	}

	return &Worksheet{
		srv:           o.sheets,
		spreadsheetID: id,
		title:         ss.Sheets[index].Properties.Title,
	}, nil
}

// Worksheet is one tab of a Google spreadsheet.
type Worksheet struct {
	srv           *sheets.Service
	spreadsheetID string
	title         string
}

// Title implements sheet.Worksheet.
func (w *Worksheet) Title() string {
	return w.title
}

// Column implements sheet.Worksheet.
func (w *Worksheet) Column(ctx context.Context, col int) ([]string, error) {
	resp, err := w.srv.Spreadsheets.Values.Get(w.spreadsheetID, w.columnRange(col, col)).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("reading column %s: %w", sheet.ColumnName(col), err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	cells := make([]string, 0, len(resp.Values[0]))
	for _, v := range resp.Values[0] {
		cells = append(cells, cellString(v))
	}
	return cells, nil
}

// Rows implements sheet.Worksheet. Both columns come from one
// values.get over the span between them.
func (w *Worksheet) Rows(ctx context.Context, addressCol, statusCol int) ([]model.Row, error) {
	first, last := min(addressCol, statusCol), max(addressCol, statusCol)

	resp, err := w.srv.Spreadsheets.Values.Get(w.spreadsheetID, w.columnRange(first, last)).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf(
			"reading columns %s:%s: %w",
			sheet.ColumnName(first), sheet.ColumnName(last), err,
		)
	}

	rows := make([]model.Row, 0, len(resp.Values))
	for i, values := range resp.Values {
		rows = append(rows, model.Row{
			Number:  i + 1,
			Address: cellAt(values, addressCol-first),
			Status:  cellAt(values, statusCol-first),
		})
	}
	return rows, nil
}

// FindRow implements sheet.Worksheet.
func (w *Worksheet) FindRow(ctx context.Context, col int, value string) (int, error) {
	cells, err := w.Column(ctx, col)
	if err != nil {
		return 0, err
	}
	for i, cell := range cells {
		if cell == value {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %q in column %s", sheet.ErrCellNotFound, value, sheet.ColumnName(col))
}

// UpdateCell implements sheet.Worksheet. Values are written RAW so
// markers are stored exactly as configured.
func (w *Worksheet) UpdateCell(ctx context.Context, row, col int, value string) error {
	cell := fmt.Sprintf("%s!%s%d", quoteTitle(w.title), sheet.ColumnName(col), row)

	_, err := w.srv.Spreadsheets.Values.Update(w.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating cell %s%d: %w", sheet.ColumnName(col), row, err)
	}
	return nil
}

func (w *Worksheet) columnRange(first, last int) string {
	return fmt.Sprintf("%s!%s:%s", quoteTitle(w.title), sheet.ColumnName(first), sheet.ColumnName(last))
}

// quoteTitle quotes a worksheet title for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// escapeQuery escapes a string literal for a Drive query.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func cellAt(values []interface{}, i int) string {
	if i < 0 || i >= len(values) {
		return ""
	}
	return cellString(values[i])
}

func cellString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
