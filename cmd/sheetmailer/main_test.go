package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/sheet-mailer/internal/store"
)

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.NotEqual(t, 0, run([]string{"unknown-command"}, &stdout, &stderr))
}

func TestRunMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"run", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestSheetImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "recipients.csv")
	dbPath := filepath.Join(dir, "sheets.db")
	require.NoError(t, os.WriteFile(csvPath, []byte("Email,Status\na@x.com,\nb@x.com,Sent\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"sheet", "import", "--db", dbPath, "--name", "Recipients", "--file", csvPath}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), `Imported 3 rows into "Recipients"`)

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ws, err := s.Open(context.Background(), "Recipients", 0)
	require.NoError(t, err)

	statuses, err := ws.Column(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Status", "", "Sent"}, statuses)
}

func TestRunDryRun(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "recipients.csv")
	dbPath := filepath.Join(dir, "sheets.db")
	logPath := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(csvPath, []byte("Email,Status\na@x.com,\n,\nb@x.com,Sent\n"), 0o600))

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"sheet", "import", "--db", dbPath, "--name", "Recipients", "--file", csvPath}, &stdout, &stderr))

	config := strings.Join([]string{
		"smtp:",
		"  host: smtp.example.com",
		"  username: me@example.com",
		"imap:",
		"  enabled: false",
		"sheet:",
		"  backend: sqlite",
		"  name: Recipients",
		"  database_path: " + dbPath,
		"  email_column: 1",
		"  status_column: 2",
		"email:",
		"  subject: Hello",
		"  body: Hi there",
		"log:",
		"  path: " + logPath,
		"",
	}, "\n")
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	stdout.Reset()
	code := run([]string{"run", "--config", configPath, "--dry-run"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Contains(t, stdout.String(), "Would send to a@x.com (Row 2)")
	assert.NotContains(t, stdout.String(), "b@x.com")

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Regexp(t, `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - INFO: Found 1 recipients to email`, string(logged))
}
