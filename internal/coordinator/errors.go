package coordinator

import "errors"

// ErrBusy is returned when a handler's preconditions on session status/fields
// are not met (spec.md §7 "busy" error kind): the caller maps this to 409.
var ErrBusy = errors.New("session is not in a state that allows this operation")

// ErrInvalidToken describes a malformed session token. No code path in this
// module returns it: WithSession does not validate token shape, and the HTTP
// middleware replaces a malformed cookie with a freshly generated token.
var ErrInvalidToken = errors.New("malformed session token")

// ErrReservedToken is returned when a caller's token equals the cluster
// operator's GUI_SECRET (spec.md §9 glossary "static tokens vs dynamic
// tokens"): that value is always present in the proxy mapping directly and
// must never also become a key in user_sessions, or the rendered nginx map
// block would carry a duplicate key.
var ErrReservedToken = errors.New("this token is reserved for the cluster operator")
