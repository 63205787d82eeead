package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"arena/internal/matchmaking"
	"arena/internal/registry"
)

type handlers struct {
	registry   *registry.Registry
	matchmaker *matchmaking.Matchmaker
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

// handleHealth reports liveness plus coarse load numbers.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"matches": h.registry.Count(),
		"queued":  h.matchmaker.Depth(),
		"ts":      time.Now().UnixMilli(),
	})
}

// matchSummary is the list-view shape for one live match.
type matchSummary struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
	Players    int    `json:"players"`
	Spectators int    `json:"spectators"`
	CreatedAt  int64  `json:"createdAt"`
}

func (h *handlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]matchSummary, 0, len(list))
	for _, m := range list {
		out = append(out, matchSummary{
			ID:         m.ID,
			Mode:       m.Mode,
			Status:     string(m.Match.Status()),
			Players:    m.Match.PlayerCount(),
			Spectators: m.Room.Count(),
			CreatedAt:  m.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func (h *handlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "match_not_found")
		return
	}
	snap, live := m.Match.SnapshotNow()
	if !live {
		writeError(w, http.StatusGone, "match_finished")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleReplay serves the in-memory recording. ?at=<relMs> returns the
// nearest retained snapshot at or before that offset, ?from=<relMs>
// returns the retained tail, and no parameter returns ring stats.
func (h *handlers) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := h.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "match_not_found")
		return
	}
	ring := m.Room.Ring()

	if at := r.URL.Query().Get("at"); at != "" {
		relMs, err := strconv.ParseInt(at, 10, 64)
		if err != nil || relMs < 0 {
			writeError(w, http.StatusBadRequest, "invalid_at")
			return
		}
		entry, found := ring.SnapshotAt(relMs)
		if !found {
			writeError(w, http.StatusNotFound, "snapshot_not_found")
			return
		}
		writeJSON(w, http.StatusOK, entry)
		return
	}

	if from := r.URL.Query().Get("from"); from != "" {
		relMs, err := strconv.ParseInt(from, 10, 64)
		if err != nil || relMs < 0 {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": ring.Events(relMs)})
		return
	}

	writeJSON(w, http.StatusOK, ring.Stats(time.Now().UnixMilli()))
}

func (h *handlers) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player")
	st, err := h.matchmaker.Status(playerID)
	if err != nil {
		if errors.Is(err, matchmaking.ErrNotInQueue) {
			writeError(w, http.StatusNotFound, "not_in_queue")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
