package playlist

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
	"karaoke-service/internal/logging"
)

// HeaderBroadcastFailed marks a committed mutation whose snapshot did not
// reach the session group.
const HeaderBroadcastFailed = "X-Broadcast-Failed"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("playlist: request failed")
	}
	writeError(w, kind.HTTPStatus(), kind.Code(), apperr.Message(err))
}

// writeResult writes v with status, or the error. A *BroadcastError still
// carries a committed result, so it is written as a success with
// HeaderBroadcastFailed set.
func writeResult(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	var berr *BroadcastError
	if errors.As(err, &berr) {
		w.Header().Set(HeaderBroadcastFailed, "true")
		err = nil
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if v == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, v)
}

// decodeBody reads a JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.KindInvalidArgument, "invalid JSON body", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.KindInvalidArgument, "invalid "+name)
	}
	return id, nil
}
