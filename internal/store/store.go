// Package store implements the persisted-state document (spec.md §4.1, §6):
// atomic read/replace of a single JSON document under a file lock. Grounded
// on the teacher's atomic-write discipline (temp file + rename), using
// google/renameio for the write half and golang.org/x/sys/unix.Flock for the
// cross-process exclusion the teacher's in-process mutexes don't need to
// provide, since this file can be read by a freshly restarted process.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"

	"github.com/mronstro/rondb-tools/internal/session"
)

// Document is exactly the persisted-state schema of spec.md §6.
type Document struct {
	NextLoadgenPortOffset int                         `json:"next_loadgen_port_offset"`
	UserSessions          map[string]*session.Session `json:"user_sessions"`
}

// NewDocument returns the default (empty) document used when no file exists yet.
func NewDocument() *Document {
	return &Document{UserSessions: map[string]*session.Session{}}
}

// Store mediates all reads/writes of the canonical state file.
type Store struct {
	path     string
	lockPath string
}

// New returns a Store for the canonical path (<DURABLE_DIR>/demo_state.json).
func New(path string) *Store {
	return &Store{path: path, lockPath: path + ".lock"}
}

// Load reads the current document, returning the default document if the
// file does not yet exist. Load takes a shared lock so it never observes a
// partially written file.
func (s *Store) Load() (*Document, error) {
	lockFD, err := s.acquireLock(unix.LOCK_SH)
	if err != nil {
		return nil, err
	}
	defer s.releaseLock(lockFD)

	return s.readLocked()
}

// Update applies f to the current document and atomically installs the
// result, holding an exclusive lock across the whole read-modify-write
// section (spec.md §4.1 steps a-f).
func (s *Store) Update(f func(*Document) (*Document, error)) error {
	lockFD, err := s.acquireLock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer s.releaseLock(lockFD)

	doc, err := s.readLocked()
	if err != nil {
		return err
	}

	next, err := f(doc)
	if err != nil {
		return err
	}

	return s.writeLocked(next)
}

func (s *Store) readLocked() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: unmarshal %s: %w", s.path, err)
	}
	if doc.UserSessions == nil {
		doc.UserSessions = map[string]*session.Session{}
	}
	return &doc, nil
}

func (s *Store) writeLocked(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("store: atomic write %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) acquireLock(how int) (int, error) {
	fd, err := unix.Open(s.lockPath, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return -1, fmt.Errorf("store: open lock file %s: %w", s.lockPath, err)
	}
	if err := unix.Flock(fd, how); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("store: flock %s: %w", s.lockPath, err)
	}
	return fd, nil
}

func (s *Store) releaseLock(fd int) {
	_ = unix.Flock(fd, unix.LOCK_UN)
	_ = unix.Close(fd)
}
