package realtime

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"karaoke-service/internal/apperr"
	"karaoke-service/internal/playlist"
)

// Frame types on the socket besides the playlist events.
const (
	TypeInvoke  = "invoke"
	TypeResult  = "result"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeWelcome = "welcome"
)

// Inbound is a frame sent by a device.
type Inbound struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Op   string          `json:"op,omitempty"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Result answers one invoke. Data and Error are both set when a mutation
// committed but its broadcast failed.
type Result struct {
	Type  string     `json:"type"`
	ID    string     `json:"id,omitempty"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newResult(id string, data any, err error) Result {
	res := Result{Type: TypeResult, ID: id}
	var berr *playlist.BroadcastError
	if err == nil || errors.As(err, &berr) {
		res.Data = data
	}
	if err != nil {
		res.Error = &ErrorBody{
			Code:    apperr.KindOf(err).Code(),
			Message: apperr.Message(err),
		}
	}
	return res
}

func welcomeFrame(clientID uint64) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":     TypeWelcome,
		"clientId": clientID,
		"now":      time.Now().UTC().Format(time.RFC3339Nano),
	})
}
