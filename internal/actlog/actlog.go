// Package actlog appends activity snapshots to a plain-text CSV log.
//
// The format is fixed by the external interface: UTF-8, one record per line,
// a single header line written when the file is created, append-only
// afterwards. Records are never rewritten.
package actlog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"activityd/internal/state"
)

// Header is the column line written once when a log file is created.
const Header = "timestamp,keyboard_count,mouse_count,idle_time_seconds"

// ErrInvalidPath is returned for paths that cannot name a log file. The
// caller's counters must be left untouched in that case.
var ErrInvalidPath = errors.New("invalid activity log path")

// Append writes one snapshot record to the log at path, creating the file
// with the header line first if it does not exist yet. The write is a single
// buffered call so a record is either fully present or absent.
func Append(path string, snap state.Snapshot) error {
	if err := checkPath(path); err != nil {
		return err
	}

	// Stat before opening so we know whether the header is needed.
	_, statErr := os.Stat(path)
	needHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open activity log: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if needHeader {
		b.WriteString(Header)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d,%d,%d,%d\n",
		snap.Timestamp, snap.KeyboardCount, snap.MouseCount, snap.IdleSeconds)

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write activity log: %w", err)
	}
	return nil
}

// checkPath rejects paths that cannot be valid file names before any file
// system side effect happens.
func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: embedded NUL", ErrInvalidPath)
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidPath)
	}
	return nil
}
