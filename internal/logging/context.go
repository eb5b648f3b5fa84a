package logging

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// ContextWithSessionID tags ctx so Ctx adds a session_id field.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Ctx returns the global logger enriched with the chi request id and the
// session id carried by ctx, when present.
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		lc = lc.Str("request_id", reqID)
	}
	if sid, ok := ctx.Value(sessionIDKey).(string); ok && sid != "" {
		lc = lc.Str("session_id", sid)
	}
	l := lc.Logger()
	return &l
}
