// Package runlog owns the append-only run log: one human-readable line
// per event, pruned to a retention window at startup.
package runlog

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the leading timestamp of every log line.
const TimeLayout = "2006-01-02 15:04:05"

// entrySeparator sits between the timestamp and the level.
const entrySeparator = " - "

// Prune rewrites the log at path keeping only lines whose leading
// timestamp is within retention of now. Lines whose timestamp cannot be
// parsed are dropped. A missing file is not an error. It returns the
// number of lines removed.
func Prune(path string, retention time.Duration, now time.Time) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading log %s: %w", path, err)
	}

	cutoff := now.Add(-retention)

	var kept strings.Builder
	removed := 0
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if line == "" {
			continue
		}
		ts, ok := parseEntryTime(line, now.Location())
		if !ok || ts.Before(cutoff) {
			removed++
			continue
		}
		kept.WriteString(line)
	}

	if removed == 0 {
		return 0, nil
	}

	if err := os.WriteFile(path, []byte(kept.String()), 0o644); err != nil {
		return 0, fmt.Errorf("rewriting log %s: %w", path, err)
	}
	return removed, nil
}

// parseEntryTime reads the timestamp in front of the first " - ".
func parseEntryTime(line string, loc *time.Location) (time.Time, bool) {
	head, _, found := strings.Cut(line, entrySeparator)
	if !found {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimeLayout, head, loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// encodeLevel renders "- INFO:" so that, joined by spaces, a line reads
// "2006-01-02 15:04:05 - INFO: message".
func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(strings.TrimSpace(entrySeparator) + " " + l.CapitalString() + ":")
}

func fileEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeLevel:      encodeLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
}

// consoleEncoder prints the bare message, as an operator watching the
// run expects.
func consoleEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
}

// New opens (or creates) the log file at path for appending and returns
// a logger writing to it and to console. The returned close function
// flushes the logger and closes the file.
func New(path string, debug bool, console io.Writer) (*zap.SugaredLogger, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log %s: %w", path, err)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(fileEncoder(), zapcore.AddSync(f), level),
	}
	if console != nil {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.Lock(zapcore.AddSync(console)), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	closeFn := func() error {
		_ = logger.Sync()
		return f.Close()
	}

	return logger.Sugar(), closeFn, nil
}
