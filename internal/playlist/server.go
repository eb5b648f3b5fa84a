package playlist

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"karaoke-service/internal/auth"
	"karaoke-service/internal/logging"
)

type Server struct {
	coord *Coordinator
	gate  *auth.Gate
	// createLimit is the number of sessions one client IP may create per
	// minute. Zero disables the limit.
	createLimit int
}

func NewServer(coord *Coordinator, gate *auth.Gate, createLimit int) *Server {
	return &Server{coord: coord, gate: gate, createLimit: createLimit}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.createLimit > 0 {
			r.Use(httprate.LimitByIP(s.createLimit, time.Minute))
		}
		r.Post("/sessions", s.handleCreateSession)
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Get("/playlist", s.handleGetPlaylist)

		r.Group(func(r chi.Router) {
			r.Use(s.requireLinkToken)

			r.Post("/heartbeat", s.handleHeartbeat)
			r.Patch("/settings", s.handleUpdateSettings)
			r.Delete("/", s.handleEndSession)

			r.Post("/playlists/{playlistID}/items", s.handleAddItem)
			r.Delete("/playlists/{playlistID}/items/{itemID}", s.handleRemoveItem)
			r.Post("/playlists/{playlistID}/reorder", s.handleReorder)
		})
	})

	return r
}

// requireLinkToken rejects the request unless it carries a valid link token
// for the {sessionID} in its path.
func (s *Server) requireLinkToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// An unparsable id stays uuid.Nil, which the gate reports as malformed.
		id, _ := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err := s.gate.Check(auth.TokenFromRequest(r), auth.SessionRef(id)); err != nil {
			writeAppError(w, r, err)
			return
		}
		ctx := logging.ContextWithSessionID(r.Context(), id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "karaoke-service",
	})
}
