package runlog

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = 7 * 24 * time.Hour

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "log.txt")
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func stamp(ts time.Time) string {
	return ts.Format(TimeLayout)
}

func TestPrune(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.Local)

	old := stamp(now.AddDate(0, 0, -10)) + " - INFO: Email sent to old@x.com (Row 2)"
	recent := stamp(now.AddDate(0, 0, -2)) + " - INFO: Email sent to new@x.com (Row 3)"
	malformed := "15/10/2026 - ERROR: weird"
	noSeparator := "continuation of a multi-line message"

	path := writeLog(t, old, recent, malformed, noSeparator)

	removed, err := Prune(path, week, now)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, recent+"\n", string(data))
}

func TestPruneKeepsEverythingRecent(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.Local)
	line := stamp(now.Add(-time.Hour)) + " - INFO: hello"
	path := writeLog(t, line)

	removed, err := Prune(path, week, now)
	require.NoError(t, err)
	assert.Zero(t, removed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, line+"\n", string(data))
}

func TestPruneMissingFile(t *testing.T) {
	removed, err := Prune(filepath.Join(t.TempDir(), "nope.txt"), week, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewWritesFormattedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	var console bytes.Buffer

	log, closeFn, err := New(path, false, &console)
	require.NoError(t, err)

	log.Infof("Email sent to %s (Row %d)", "a@x.com", 2)
	log.Errorf("Error checking mailbox: %s", "boom")
	log.Debugf("hidden at info level")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - (INFO|ERROR): (.*)$`).
		FindAllStringSubmatch(string(data), -1)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0][1])
	assert.Equal(t, "Email sent to a@x.com (Row 2)", lines[0][2])
	assert.Equal(t, "ERROR", lines[1][1])
	assert.Equal(t, "Error checking mailbox: boom", lines[1][2])

	assert.Equal(t, "Email sent to a@x.com (Row 2)\nError checking mailbox: boom\n", console.String())
}

func TestNewLinesSurvivePrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")

	log, closeFn, err := New(path, true, nil)
	require.NoError(t, err)
	log.Debugf("debug line")
	require.NoError(t, closeFn())

	removed, err := Prune(path, week, time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
