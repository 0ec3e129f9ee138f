// Package statusapi is a read-only HTTP surface exposing the current
// topology snapshot of every registered HA Manager. It is additive
// observability: it reads internal/ha's Topology Store through the
// Manager's existing shared lock (Manager.Status) and never mutates
// anything, so it cannot affect any Selector or Health Loop invariant.
//
// Adapted directly from the teacher's internal/handlers/ha_handler.go
// (HAHandler): same gorilla/mux wiring and JSON envelope shape, rebuilt
// around this module's read-only Manager.Status() instead of the
// teacher's mutable peer-registration API (that API has no equivalent
// here — this router does not peer with other router instances, spec.md
// §1 Non-goals: "distributed coordination between manager instances").
package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/polardbx/xcluster-ha/internal/ha"
)

// Handler serves the status endpoints backed by a Registry.
type Handler struct {
	registry *ha.Registry
}

// New creates a Handler backed by registry.
func New(registry *ha.Registry) *Handler {
	return &Handler{registry: registry}
}

// Register wires GET /status and GET /healthz onto r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.GetHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status/{tag}", h.GetClusterStatus).Methods(http.MethodGet)
}

// GetStatus returns every registered cluster's topology snapshot.
// GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	managers := h.registry.All()
	out := make([]ha.Status, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.Status())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"clusters": out,
	})
}

// GetClusterStatus returns one cluster's snapshot by tag.
// GET /status/{tag}
func (h *Handler) GetClusterStatus(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	for _, m := range h.registry.All() {
		if m.Tag() == tag {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"cluster": m.Status(),
			})
			return
		}
	}
	respondJSON(w, http.StatusNotFound, map[string]interface{}{
		"success": false,
		"error":   "unknown cluster tag: " + tag,
	})
}

// GetHealthz is a liveness probe: ok only when every registered cluster
// has a usable DN leader or a non-empty CN list, or when there are no
// clusters registered yet; a single unusable cluster makes it 503.
// GET /healthz
func (h *Handler) GetHealthz(w http.ResponseWriter, r *http.Request) {
	managers := h.registry.All()
	healthy := true
	for _, m := range managers {
		st := m.Status()
		if st.IsCN {
			if len(st.CNNodes) == 0 {
				healthy = false
			}
		} else if st.Leader == "" {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{"success": healthy})
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
