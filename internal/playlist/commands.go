package playlist

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"karaoke-service/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type AddItemCommand struct {
	SessionID  uuid.UUID `json:"sessionId" validate:"required"`
	PlaylistID uuid.UUID `json:"playlistId" validate:"required"`
	Artist     string    `json:"artist" validate:"max=200"`
	Title      string    `json:"title" validate:"required,max=300"`
	SingerName *string   `json:"singerName,omitempty" validate:"omitempty,max=100"`
	AddedBy    string    `json:"addedBy,omitempty" validate:"max=100"`
}

func (c AddItemCommand) SessionKey() uuid.UUID { return c.SessionID }

func (c *AddItemCommand) normalize() {
	c.Artist = strings.TrimSpace(c.Artist)
	c.Title = strings.TrimSpace(c.Title)
	c.AddedBy = strings.TrimSpace(c.AddedBy)
	if c.AddedBy == "" {
		c.AddedBy = "guest"
	}
	if c.SingerName != nil {
		name := strings.TrimSpace(*c.SingerName)
		if name == "" {
			c.SingerName = nil
		} else {
			c.SingerName = &name
		}
	}
}

type RemoveItemCommand struct {
	SessionID  uuid.UUID `json:"sessionId" validate:"required"`
	PlaylistID uuid.UUID `json:"playlistId" validate:"required"`
	ItemID     uuid.UUID `json:"itemId" validate:"required"`
}

func (c RemoveItemCommand) SessionKey() uuid.UUID { return c.SessionID }

// ReorderCommand moves the item at FromIndex so it ends up at ToIndex.
// Index bounds are checked against the live playlist, not here.
type ReorderCommand struct {
	SessionID  uuid.UUID `json:"sessionId" validate:"required"`
	PlaylistID uuid.UUID `json:"playlistId" validate:"required"`
	FromIndex  int       `json:"fromIndex"`
	ToIndex    int       `json:"toIndex"`
}

func (c ReorderCommand) SessionKey() uuid.UUID { return c.SessionID }

type CreateSessionCommand struct {
	RequireSingerName bool `json:"requireSingerName"`
	PauseSeconds      int  `json:"pauseSeconds" validate:"min=0,max=600"`
}

type HeartbeatCommand struct {
	SessionID     uuid.UUID `json:"sessionId" validate:"required"`
	ExtendMinutes int       `json:"extendMinutes"`
}

func (c HeartbeatCommand) SessionKey() uuid.UUID { return c.SessionID }

// UpdateSettingsCommand changes only the fields that are set.
type UpdateSettingsCommand struct {
	SessionID         uuid.UUID `json:"sessionId" validate:"required"`
	RequireSingerName *bool     `json:"requireSingerName,omitempty"`
	PauseSeconds      *int      `json:"pauseSeconds,omitempty" validate:"omitempty,min=0,max=600"`
}

func (c UpdateSettingsCommand) SessionKey() uuid.UUID { return c.SessionID }

type EndSessionCommand struct {
	SessionID uuid.UUID `json:"sessionId" validate:"required"`
}

func (c EndSessionCommand) SessionKey() uuid.UUID { return c.SessionID }

// validateCommand runs the struct tags and turns the first violation into
// an InvalidArgument error naming the field.
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.New(apperr.KindInvalidArgument, invalidFieldMessage(fe))
	}
	return apperr.Wrap(apperr.KindInvalidArgument, "invalid command", err)
}

func invalidFieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid"
	}
}
