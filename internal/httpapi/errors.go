package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/coordinator"
)

// statusFor maps a business error to the HTTP status spec.md §7 assigns its
// error kind: busy/capacity/no-free-port → 409, the reserved operator token
// → 403, anything else (infrastructure failures that propagate rather than
// being absorbed into a user_message) → 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrBusy),
		errors.Is(err, admission.ErrCapacityExceeded),
		errors.Is(err, admission.ErrNoFreePortOffset):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrReservedToken):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
