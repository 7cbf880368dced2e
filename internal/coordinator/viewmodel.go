package coordinator

import "github.com/mronstro/rondb-tools/internal/session"

// EnsureSession implements spec.md §4.8 steps 2-4 on their own: acquire the
// global lock, create-and-persist the session if token is unknown, then
// release everything immediately. Used by routes that need a session to
// exist (so the cookie persists across requests) but have no further
// business logic of their own (favicon, index, try).
func (c *Coordinator) EnsureSession(token string) error {
	return c.WithSession(token, func(_ *session.Session, release func()) {
		release()
	})
}

// ViewModel returns the session's current view-model projection (spec.md
// §4.8 "GET /viewmodel"), releasing the global lock immediately since it
// only reads the one session.
func (c *Coordinator) ViewModel(token string) (session.ViewModel, error) {
	var vm session.ViewModel
	err := c.WithSession(token, func(s *session.Session, release func()) {
		release()
		vm = s.ViewModel()
	})
	if err != nil {
		return session.ViewModel{}, err
	}
	return vm, nil
}
