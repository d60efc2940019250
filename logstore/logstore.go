// Package logstore persists per-execution output logs as append-only
// text files on local disk, independent of in-memory execution state.
//
// Log files survive process restart for inspection, but no index of
// them does: files left behind by a previous process are inert data
// with no corresponding execution record. Retention is an external
// concern (OS temp eviction or an operator sweep); this package never
// deletes.
package logstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/seetharamtessell/opsexec/errors"
)

// Store maps execution identifiers to append-only log files under a
// configured directory.
type Store struct {
	dir string
}

// New creates a log store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "opsexec-logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the configured log directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor deterministically maps an execution identifier to its log file.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.dir, sanitize(id)+".log")
}

// Append writes one line (a trailing newline is added) to the
// execution's log, creating the file on first write.
func (s *Store) Append(id, line string) error {
	w, err := s.Open(id)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.WriteLine(line)
}

// ReadAll returns the full accumulated log text for one execution.
func (s *Store) ReadAll(id string) (string, error) {
	data, err := os.ReadFile(s.PathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("no log for execution %s", id)
		}
		return "", errors.Wrapf(err, "failed to read log for execution %s", id)
	}
	return string(data), nil
}

// Exists reports whether a log file exists for the execution.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.PathFor(id))
	return err == nil
}

// Writer is a pooled append handle for one execution's log. The process
// runner holds one open for the execution's lifetime so per-line appends
// avoid reopening the file.
type Writer struct {
	f *os.File
}

// Open returns an append handle for the execution's log file.
func (s *Store) Open(id string) (*Writer, error) {
	f, err := os.OpenFile(s.PathFor(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log for execution %s", id)
	}
	return &Writer{f: f}, nil
}

// WriteLine appends one line plus a newline.
func (w *Writer) WriteLine(line string) error {
	if _, err := w.f.WriteString(line + "\n"); err != nil {
		return errors.Wrap(errors.ErrIOFailure, err.Error())
	}
	return nil
}

// Close releases the file handle.
func (w *Writer) Close() error {
	return w.f.Close()
}

// sanitize keeps identifiers filesystem-safe. Engine identifiers are
// UUIDs, so this only matters for adversarial input through the API.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
