// Package health serves the liveness and readiness probes shared by the
// engine and the reference backend.
//
// GET /healthz answers 200 whenever the process can serve HTTP. GET /readyz
// runs every [Checker] and answers 503 when a required one fails or the
// process is draining. Both bodies look like
//
//	{"status":"ok","checks":{"audio":"ok","history":"fail: dial tcp ..."}}
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds one probe.
const CheckTimeout = 5 * time.Second

// Status values of the response body.
const (
	StatusOK       = "ok"
	StatusFail     = "fail"
	StatusDraining = "draining"
)

// Checker probes one dependency; Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional failures are reported but do not fail readiness.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the two probes for a fixed set of checkers.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Drain makes /readyz fail from now on, so load balancers stop routing new
// interviews here while running ones finish.
func (h *Handler) Drain() {
	if !h.draining.Swap(true) {
		slog.Info("health: draining, readiness now fails")
	}
}

// Check runs all probes in parallel. It returns one line per checker ("ok"
// or "fail: <reason>") and whether every required probe passed.
func (h *Handler) Check(ctx context.Context) (map[string]string, bool) {
	lines := make(map[string]string, len(h.checkers))
	var (
		mu    sync.Mutex
		ready = true
		g     errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, CheckTimeout)
			err := c.Check(cctx)
			cancel()

			line := StatusOK
			if err != nil {
				line = StatusFail + ": " + err.Error()
				slog.Debug("health: probe failed", "check", c.Name, "optional", c.Optional, "err", err)
			}
			mu.Lock()
			lines[c.Name] = line
			if err != nil && !c.Optional {
				ready = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return lines, ready
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: StatusDraining})
		return
	}
	lines, ready := h.Check(r.Context())
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: StatusFail, Checks: lines})
		return
	}
	writeJSON(w, http.StatusOK, result{Status: StatusOK, Checks: lines})
}

// Register mounts GET /healthz and GET /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: write response", "err", err)
	}
}
