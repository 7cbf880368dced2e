// Package admission implements the global capacity gate and port offset
// allocator (spec.md §4.7). Both operate purely on the in-memory session map
// a caller already holds the global state lock for; neither does any I/O.
package admission

import (
	"errors"

	"github.com/mronstro/rondb-tools/internal/session"
)

// PortOffsetRange bounds loadgen_port_offset to [0, 10000) (spec.md §3).
const PortOffsetRange = 10000

// Base ports the allocator derives master/http_ui ports from (spec.md §4.7).
const (
	MasterPortBase = 33000
	HTTPUIPortBase = 44000
)

// ErrCapacityExceeded is returned when the 6-database cap is already reached.
var ErrCapacityExceeded = errors.New("maximum number of databases reached, please try again later")

// ErrNoFreePortOffset is returned if, somehow, every offset in the range is
// taken (never expected given PortOffsetRange's size versus realistic
// tenant counts, but checked so the allocator cannot loop forever).
var ErrNoFreePortOffset = errors.New("no free loadgen port offset available")

// CountActiveDatabases counts sessions whose db is set or whose status is
// CREATING_DATABASE (spec.md §3 invariant 6, "active database" in the glossary).
func CountActiveDatabases(sessions map[string]*session.Session) int {
	count := 0
	for _, s := range sessions {
		if s.DB != nil || s.Status == session.StatusCreatingDatabase {
			count++
		}
	}
	return count
}

// CheckAdmission rejects with ErrCapacityExceeded once the active-database
// count has reached max.
func CheckAdmission(sessions map[string]*session.Session, max int) error {
	if CountActiveDatabases(sessions) >= max {
		return ErrCapacityExceeded
	}
	return nil
}

// AllocatePortOffset finds the next free offset starting at next (inclusive),
// advancing modulo PortOffsetRange. It returns the allocated offset and the
// value the caller should persist as the new "next" hint.
func AllocatePortOffset(sessions map[string]*session.Session, next int) (offset int, newNext int, err error) {
	used := make(map[int]struct{}, len(sessions))
	for _, s := range sessions {
		if s.LoadgenPortOffset != nil {
			used[*s.LoadgenPortOffset] = struct{}{}
		}
	}

	candidate := ((next % PortOffsetRange) + PortOffsetRange) % PortOffsetRange
	for i := 0; i < PortOffsetRange; i++ {
		if _, taken := used[candidate]; !taken {
			return candidate, (candidate + 1) % PortOffsetRange, nil
		}
		candidate = (candidate + 1) % PortOffsetRange
	}
	return 0, next, ErrNoFreePortOffset
}

// MasterPort derives the load-gen master port from an offset.
func MasterPort(offset int) int { return MasterPortBase + offset }

// HTTPUIPort derives the load-gen web UI port from an offset.
func HTTPUIPort(offset int) int { return HTTPUIPortBase + offset }
