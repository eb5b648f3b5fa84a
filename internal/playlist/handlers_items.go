package playlist

import (
	"net/http"
)

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	playlistID, err := uuidParam(r, "playlistID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var cmd AddItemCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeAppError(w, r, err)
		return
	}
	cmd.SessionID = sessionID
	cmd.PlaylistID = playlistID

	snap, err := s.coord.AddItem(r.Context(), cmd)
	writeResult(w, r, http.StatusCreated, snap, err)
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	playlistID, err := uuidParam(r, "playlistID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	itemID, err := uuidParam(r, "itemID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	snap, err := s.coord.RemoveItem(r.Context(), RemoveItemCommand{
		SessionID:  sessionID,
		PlaylistID: playlistID,
		ItemID:     itemID,
	})
	writeResult(w, r, http.StatusOK, snap, err)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuidParam(r, "sessionID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	playlistID, err := uuidParam(r, "playlistID")
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var cmd ReorderCommand
	if err := decodeBody(r, &cmd); err != nil {
		writeAppError(w, r, err)
		return
	}
	cmd.SessionID = sessionID
	cmd.PlaylistID = playlistID

	snap, err := s.coord.Reorder(r.Context(), cmd)
	writeResult(w, r, http.StatusOK, snap, err)
}
