package coordinator

import "github.com/mronstro/rondb-tools/internal/session"

// WithSession implements the lock hierarchy of spec.md §4.8 steps 2-5: it
// acquires the global lock, looks up or creates+persists the session for
// token, acquires that session's lock, then calls fn with the session and a
// release closure that drops the global lock early (idempotently) whenever
// fn is done needing the whole session map. Both locks are held when fn is
// called; only the session lock survives past a call to the release
// closure. WithSession itself releases whatever the closure didn't, once fn
// returns.
func (c *Coordinator) WithSession(token string, fn func(s *session.Session, releaseGlobal func())) error {
	c.lockGlobal()
	s, err := c.getOrCreateSessionLocked(token)
	if err != nil {
		c.unlockGlobal()
		return err
	}
	s.Lock()
	defer s.Unlock()

	release := c.releaseGlobalOnce()
	fn(s, release)
	release()
	return nil
}
