package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/uxtrace/uxtrace/app"
)

// ListSessionsHandler lists stored sessions, most recently active first
func ListSessionsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		page, err := deps.Ingest.ListSessions(r.Context(), limit, offset)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, page)
	}
}

// GetSessionHandler returns one session with its full event log.
// Session ids are opaque strings chosen by the client; an unknown id
// is a 404, never a format error.
func GetSessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		detail, err := deps.Ingest.GetSession(r.Context(), sessionID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, detail)
	}
}

// DeleteSessionHandler removes a session and its events
func DeleteSessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		if err := deps.Ingest.DeleteSession(r.Context(), sessionID); err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		respondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// queryInt reads an integer query parameter, falling back on def
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
