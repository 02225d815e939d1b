package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/sheet-mailer/internal/model"
	"github.com/nhle/sheet-mailer/internal/sheet"
)

// SQLiteStore implements Workbook using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// CreateSpreadsheet implements Workbook. With no titles a single
// "Sheet1" worksheet is created.
func (s *SQLiteStore) CreateSpreadsheet(
	ctx context.Context,
	name string,
	titles ...string,
) (string, error) {
	if len(titles) == 0 {
		titles = []string{"Sheet1"}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO spreadsheets (id, name, created_at) VALUES (?, ?, ?)",
		id, name, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("creating spreadsheet %q: %w", name, err)
	}

	for i, title := range titles {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO worksheets (id, spreadsheet_id, position, title, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), id, i, title, time.Now().UTC(),
		)
		if err != nil {
			return "", fmt.Errorf("creating worksheet %q: %w", title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing spreadsheet %q: %w", name, err)
	}
	return id, nil
}

// DeleteSpreadsheet implements Workbook.
func (s *SQLiteStore) DeleteSpreadsheet(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM spreadsheets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting spreadsheet %q: %w", name, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %q", sheet.ErrSpreadsheetNotFound, name)
	}
	return nil
}

// ReplaceCells implements Workbook. Empty strings are not stored.
func (s *SQLiteStore) ReplaceCells(
	ctx context.Context,
	name string,
	index int,
	rows [][]string,
) error {
	ws, err := s.worksheet(ctx, name, index)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cells WHERE worksheet_id = ?", ws.id); err != nil {
		return fmt.Errorf("clearing worksheet %q: %w", ws.title, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO cells (worksheet_id, row_num, col_num, value, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing cell insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for r, values := range rows {
		for c, value := range values {
			if value == "" {
				continue
			}
			if _, err := stmt.ExecContext(ctx, ws.id, r+1, c+1, value, now); err != nil {
				return fmt.Errorf("writing cell %s%d: %w", sheet.ColumnName(c+1), r+1, err)
			}
		}
	}

	return tx.Commit()
}

// Open implements sheet.Opener.
func (s *SQLiteStore) Open(ctx context.Context, name string, index int) (sheet.Worksheet, error) {
	return s.worksheet(ctx, name, index)
}

func (s *SQLiteStore) worksheet(ctx context.Context, name string, index int) (*Worksheet, error) {
	var spreadsheetID string
	err := s.db.GetContext(ctx, &spreadsheetID, "SELECT id FROM spreadsheets WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", sheet.ErrSpreadsheetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up spreadsheet %q: %w", name, err)
	}

	ws := &Worksheet{db: s.db}
	err = s.db.QueryRowxContext(ctx,
		"SELECT id, title FROM worksheets WHERE spreadsheet_id = ? AND position = ?",
		spreadsheetID, index,
	).Scan(&ws.id, &ws.title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q has no worksheet %d", sheet.ErrWorksheetNotFound, name, index)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up worksheet %d of %q: %w", index, name, err)
	}

	return ws, nil
}

// Worksheet is one worksheet of a SQLite-backed spreadsheet.
type Worksheet struct {
	db    *sqlx.DB
	id    string
	title string
}

// cell is a stored non-empty cell.
type cell struct {
	Row   int    `db:"row_num"`
	Col   int    `db:"col_num"`
	Value string `db:"value"`
}

// Title implements sheet.Worksheet.
func (w *Worksheet) Title() string {
	return w.title
}

// Column implements sheet.Worksheet.
func (w *Worksheet) Column(ctx context.Context, col int) ([]string, error) {
	var cells []cell
	err := w.db.SelectContext(ctx, &cells, `
		SELECT row_num, col_num, value FROM cells
		WHERE worksheet_id = ? AND col_num = ?
		ORDER BY row_num`,
		w.id, col,
	)
	if err != nil {
		return nil, fmt.Errorf("reading column %s: %w", sheet.ColumnName(col), err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	values := make([]string, cells[len(cells)-1].Row)
	for _, c := range cells {
		values[c.Row-1] = c.Value
	}
	return values, nil
}

// Rows implements sheet.Worksheet with a single query over both columns.
func (w *Worksheet) Rows(ctx context.Context, addressCol, statusCol int) ([]model.Row, error) {
	var cells []cell
	err := w.db.SelectContext(ctx, &cells, `
		SELECT row_num, col_num, value FROM cells
		WHERE worksheet_id = ? AND col_num IN (?, ?)
		ORDER BY row_num, col_num`,
		w.id, addressCol, statusCol,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"reading columns %s and %s: %w",
			sheet.ColumnName(addressCol), sheet.ColumnName(statusCol), err,
		)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	rows := make([]model.Row, cells[len(cells)-1].Row)
	for i := range rows {
		rows[i].Number = i + 1
	}
	for _, c := range cells {
		switch c.Col {
		case addressCol:
			rows[c.Row-1].Address = c.Value
		case statusCol:
			rows[c.Row-1].Status = c.Value
		}
	}
	return rows, nil
}

// FindRow implements sheet.Worksheet.
func (w *Worksheet) FindRow(ctx context.Context, col int, value string) (int, error) {
	var row sql.NullInt64
	err := w.db.GetContext(ctx, &row, `
		SELECT MIN(row_num) FROM cells
		WHERE worksheet_id = ? AND col_num = ? AND value = ?`,
		w.id, col, value,
	)
	if err != nil {
		return 0, fmt.Errorf("searching column %s: %w", sheet.ColumnName(col), err)
	}
	if !row.Valid {
		return 0, fmt.Errorf("%w: %q in column %s", sheet.ErrCellNotFound, value, sheet.ColumnName(col))
	}
	return int(row.Int64), nil
}

// UpdateCell implements sheet.Worksheet. Writing "" clears the cell.
func (w *Worksheet) UpdateCell(ctx context.Context, row, col int, value string) error {
	var err error
	if value == "" {
		_, err = w.db.ExecContext(ctx,
			"DELETE FROM cells WHERE worksheet_id = ? AND row_num = ? AND col_num = ?",
			w.id, row, col,
		)
	} else {
		_, err = w.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO cells (worksheet_id, row_num, col_num, value, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			w.id, row, col, value, time.Now().UTC(),
		)
	}
	if err != nil {
		return fmt.Errorf("updating cell %s%d: %w", sheet.ColumnName(col), row, err)
	}
	return nil
}
