package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS spreadsheets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS worksheets (
	id             TEXT PRIMARY KEY,
	spreadsheet_id TEXT NOT NULL REFERENCES spreadsheets(id) ON DELETE CASCADE,
	position       INTEGER NOT NULL CHECK(position >= 0),
	title          TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(spreadsheet_id, position)
);

CREATE TABLE IF NOT EXISTS cells (
	worksheet_id TEXT NOT NULL REFERENCES worksheets(id) ON DELETE CASCADE,
	row_num      INTEGER NOT NULL CHECK(row_num >= 1),
	col_num      INTEGER NOT NULL CHECK(col_num >= 1),
	value        TEXT NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (worksheet_id, row_num, col_num)
);

CREATE INDEX IF NOT EXISTS idx_cells_col_value ON cells(worksheet_id, col_num, value);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
