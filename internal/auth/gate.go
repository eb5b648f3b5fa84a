package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
)

const (
	// TokenHeader carries the link token on HTTP requests and on the
	// WebSocket upgrade request.
	TokenHeader = "X-Link-Token"
	// TokenQueryParam is consulted when TokenHeader is absent. Browsers
	// cannot set headers on a WebSocket upgrade.
	TokenQueryParam = "linkToken"
)

var (
	ErrMissingToken  = apperr.New(apperr.KindUnauthorized, "missing link token")
	ErrInvalidToken  = apperr.New(apperr.KindUnauthorized, "invalid link token")
	ErrMalformedCall = apperr.New(apperr.KindInvalidArgument, "call must name a session id")
)

// SessionScoped is implemented by every command that targets a session.
// The gate reads the session id through it instead of inspecting arguments.
type SessionScoped interface {
	SessionKey() uuid.UUID
}

// Verifier checks a link token against a session id.
type Verifier interface {
	Verify(sessionID uuid.UUID, token string) bool
}

// Gate rejects session-scoped calls that do not carry a valid link token for
// that session.
type Gate struct {
	verifier Verifier
}

func NewGate(v Verifier) *Gate {
	return &Gate{verifier: v}
}

// Check returns nil when token authorizes call. The checks run in a fixed
// order so callers can tell a missing token from a bad one.
func (g *Gate) Check(token string, call SessionScoped) error {
	if token == "" {
		return ErrMissingToken
	}
	if call == nil {
		return ErrMalformedCall
	}
	id := call.SessionKey()
	if id == uuid.Nil {
		return ErrMalformedCall
	}
	if !g.verifier.Verify(id, token) {
		return ErrInvalidToken
	}
	return nil
}

// Guard wraps op so that it only runs after Check succeeds.
func Guard[C SessionScoped, R any](g *Gate, op func(context.Context, C) (R, error)) func(context.Context, string, C) (R, error) {
	return func(ctx context.Context, token string, cmd C) (R, error) {
		if err := g.Check(token, cmd); err != nil {
			var zero R
			return zero, err
		}
		return op(ctx, cmd)
	}
}

// TokenFromRequest reads the ambient link token from the header, falling
// back to the query parameter.
func TokenFromRequest(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(TokenHeader)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}

// SessionRef is the minimal SessionScoped value, used where only the id is
// known (for example a URL parameter).
type SessionRef uuid.UUID

func (s SessionRef) SessionKey() uuid.UUID {
	return uuid.UUID(s)
}
