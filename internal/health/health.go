// Package health serves the liveness, readiness and status endpoints of the
// murmur daemon.
//
//   - /healthz answers 200 while the process can serve HTTP.
//   - /readyz answers 200 only when every [Checker] passes, typically "the
//     background listener is capturing".
//   - /statusz reports the dispatcher state from a [StatusFunc].
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// ErrNotListening is reported by [Listening] when capture is not running.
var ErrNotListening = errors.New("health: listener is not capturing")

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// CaptureState is the part of a background listener readiness looks at.
type CaptureState interface {
	IsListening() bool
	Err() error
}

// Listening returns a [Checker] that fails unless l is capturing. A listener
// that stopped on an error reports that error.
func Listening(name string, l func() CaptureState) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			cur := l()
			if cur == nil {
				return ErrNotListening
			}
			if cur.IsListening() {
				return nil
			}
			if err := cur.Err(); err != nil {
				return err
			}
			return ErrNotListening
		},
	}
}

// Status is the /statusz body.
type Status struct {
	Focus     string         `json:"focus"`
	Listening bool           `json:"listening"`
	Queued    int            `json:"queued"`
	Asleep    bool           `json:"asleep"`
	Recording bool           `json:"recording"`
	Actions   []ActionStatus `json:"actions"`
}

// ActionStatus is one registered action in priority order.
type ActionStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// StatusFunc snapshots the current [Status].
type StatusFunc func() Status

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	status   StatusFunc
}

// New creates a [Handler]. status may be nil, in which case /statusz is not
// registered.
func New(status StatusFunc, checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...), status: status}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs the checkers in order, each under a [checkTimeout] deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	res := result{Status: "ok", Checks: checks}

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	writeJSON(w, status, res)
}

// Statusz writes the current dispatcher snapshot.
func (h *Handler) Statusz(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if h.status != nil {
		mux.HandleFunc("GET /statusz", h.Statusz)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
