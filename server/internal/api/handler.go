package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/logrelay/logrelay/pkg/types"
	"github.com/logrelay/logrelay/server/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads messages from the store and returns JSON responses.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given message store and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/messages", h.messages)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health: liveness plus per-route counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	routes := h.store.Routes()
	resp := HealthResponse{
		Status:     "ok",
		RouteCount: len(routes),
		Routes:     make([]RouteResponse, 0, len(routes)),
	}
	for _, rs := range routes {
		resp.MessageCount += rs.Count
		resp.Routes = append(resp.Routes, RouteResponse{
			Hostname: rs.Route.Hostname,
			Key:      rs.Route.Key,
			Count:    rs.Count,
			LastSeen: rs.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// messages returns GET /api/v1/messages?hostname=&key= : live messages for
// one route, oldest first.
func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	route := types.Route{Hostname: q.Get("hostname"), Key: q.Get("key")}
	if route.Hostname == "" || route.Key == "" {
		jsonErr(w, http.StatusBadRequest, "hostname and key are required")
		return
	}

	msgs := h.store.List(route)
	resp := MessagesResponse{
		Hostname: route.Hostname,
		Key:      route.Key,
		Messages: make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, MessageResponse{
			Body:       m.Body,
			ReceivedAt: m.ReceivedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
