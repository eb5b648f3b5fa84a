package playlist

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karaoke-service/internal/auth"
	"karaoke-service/internal/store"
)

func newTestServer(t *testing.T) (*testEnv, http.Handler) {
	t.Helper()
	env := newTestEnv(t)
	srv := NewServer(env.coord, auth.NewGate(env.auth), 0)
	return env, srv.Router()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createViaHTTP(t *testing.T, h http.Handler, body any) CreatedSession {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/sessions", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreatedSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func itemsPath(s CreatedSession) string {
	return "/sessions/" + s.ID.String() + "/playlists/" + s.PlaylistID.String()
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleCreateAndGetSession(t *testing.T) {
	env, h := newTestServer(t)

	created := createViaHTTP(t, h, map[string]any{"requireSingerName": true, "pauseSeconds": 20})
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, env.auth.Verify(created.ID, created.Token))
	assert.NotNil(t, created.ExpiresAt)

	rec := doJSON(t, h, http.MethodGet, "/sessions/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Token)

	var sess store.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.True(t, sess.RequireSingerName)
	assert.Equal(t, 20, sess.PauseSeconds)

	rec = doJSON(t, h, http.MethodGet, "/sessions/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")

	rec = doJSON(t, h, http.MethodPost, "/sessions", "", map[string]any{"pauseSeconds": 9000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAddItem_Unauthorized(t *testing.T) {
	env, h := newTestServer(t)
	s := createViaHTTP(t, h, nil)
	other := createViaHTTP(t, h, nil)
	body := map[string]any{"artist": "Toto", "title": "Africa"}

	tests := []struct {
		name  string
		token string
		code  string
	}{
		{"missing token", "", "UNAUTHORIZED"},
		{"token of another session", other.Token, "UNAUTHORIZED"},
		{"garbage token", "not-a-token", "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, itemsPath(s)+"/items", tt.token, body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}

	p, err := env.store.GetPlaylist(context.Background(), s.PlaylistID)
	require.NoError(t, err)
	assert.Empty(t, p.Items)
	assert.Empty(t, env.pub.all())
}

func TestHandleMutations(t *testing.T) {
	env, h := newTestServer(t)
	s := createViaHTTP(t, h, nil)

	var snap Snapshot
	for _, title := range []string{"A", "B", "C"} {
		rec := doJSON(t, h, http.MethodPost, itemsPath(s)+"/items", s.Token, map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	}
	assert.Equal(t, []string{"A", "B", "C"}, titles(&snap))

	rec := doJSON(t, h, http.MethodPost, itemsPath(s)+"/reorder", s.Token, map[string]any{"fromIndex": 0, "toIndex": 2})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []string{"B", "C", "A"}, titles(&snap))

	rec = doJSON(t, h, http.MethodPost, itemsPath(s)+"/reorder", s.Token, map[string]any{"fromIndex": 0, "toIndex": 7})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, itemsPath(s)+"/items/"+snap.Items[1].ID.String(), s.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []string{"B", "A"}, titles(&snap))
	requireDense(t, &snap)

	rec = doJSON(t, h, http.MethodGet, "/sessions/"+s.ID.String()+"/playlist", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []string{"B", "A"}, titles(&snap))

	// 3 adds, 1 reorder, 1 remove.
	assert.Len(t, env.pub.all(), 5)
}

func TestHandleAddItem_BroadcastFailed(t *testing.T) {
	env, h := newTestServer(t)
	s := createViaHTTP(t, h, nil)
	env.pub.setErr(errors.New("fanout down"))

	rec := doJSON(t, h, http.MethodPost, itemsPath(s)+"/items", s.Token, map[string]any{"title": "A"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(HeaderBroadcastFailed))

	var snap Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Items, 1)
}

func TestHandleSessionLifecycle(t *testing.T) {
	env, h := newTestServer(t)
	s := createViaHTTP(t, h, nil)
	base := "/sessions/" + s.ID.String()

	rec := doJSON(t, h, http.MethodPost, base+"/heartbeat", s.Token, map[string]any{"extendMinutes": 15})
	require.Equal(t, http.StatusOK, rec.Code)
	var sess store.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.True(t, sess.ExpiresAt.After(*s.ExpiresAt))

	rec = doJSON(t, h, http.MethodPatch, base+"/settings", s.Token, map[string]any{"pauseSeconds": 45})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, 45, sess.PauseSeconds)

	rec = doJSON(t, h, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, base, s.Token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, base+"/playlist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	msgs := env.pub.all()
	require.NotEmpty(t, msgs)
	assert.Equal(t, EventSessionEnded, msgs[len(msgs)-1].msg.Type)
}

func TestRequireLinkToken_QueryFallbackAndMalformedID(t *testing.T) {
	_, h := newTestServer(t)
	s := createViaHTTP(t, h, nil)

	rec := doJSON(t, h, http.MethodPost, itemsPath(s)+"/items?linkToken="+s.Token, "", map[string]any{"title": "A"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/sessions/not-a-uuid/heartbeat", s.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
}

func TestHandleCreateSession_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	h := NewServer(env.coord, auth.NewGate(env.auth), 2).Router()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/sessions", "", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := doJSON(t, h, http.MethodPost, "/sessions", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec = doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
