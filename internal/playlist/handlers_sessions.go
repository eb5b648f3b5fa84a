package playlist

import (
	"net/http"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var cmd CreateSessionCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeAppError(w, r, err)
		return
	}

	created, err := s.coord.CreateSession(r.Context(), cmd)
	writeResult(w, r, http.StatusCreated, created, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	sess, err := s.coord.Session(r.Context(), id)
	writeResult(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	snap, err := s.coord.Playlist(r.Context(), id)
	writeResult(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var cmd HeartbeatCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeAppError(w, r, err)
		return
	}
	cmd.SessionID = id

	sess, err := s.coord.Heartbeat(r.Context(), cmd)
	writeResult(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var cmd UpdateSettingsCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeAppError(w, r, err)
		return
	}
	cmd.SessionID = id

	sess, err := s.coord.UpdateSettings(r.Context(), cmd)
	writeResult(w, r, http.StatusOK, sess, err)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	_, err = s.coord.EndSession(r.Context(), EndSessionCommand{SessionID: id})
	writeResult(w, r, http.StatusNoContent, nil, err)
}
