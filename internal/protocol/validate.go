package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Error codes carried in error{code} and join-rejected{reason}.
const (
	CodeRoomNotFound    = "room-not-found"
	CodeRoomFull        = "room-full"
	CodeInvalidIdentity = "invalid-identity"
	CodeInvalidRoomID   = "invalid-room-id"
	CodeBadPayload      = "bad-payload"
	CodeUnauthorized    = "unauthorized"
	CodeNotInRoom       = "not-in-room"
	CodeRateLimited     = "rate-limited"
	CodeInternal        = "internal"
)

var ErrBadPayload = errors.New("bad payload")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("identity", func(fl validator.FieldLevel) bool {
		_, err := domain.NormalizeIdentity(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("roomid", func(fl validator.FieldLevel) bool {
		return domain.ValidRoomID(fl.Field().String())
	})
	_ = v.RegisterValidation("mediactx", func(fl validator.FieldLevel) bool {
		return MediaContext(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("jsonvalue", func(fl validator.FieldLevel) bool {
		raw := bytes.TrimSpace(fl.Field().Bytes())
		return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
	})
	return v
}

type identityReq struct {
	Identity string `validate:"identity"`
}

type joinReq struct {
	RoomID   string `validate:"roomid"`
	Identity string `validate:"identity"`
}

type roomReq struct {
	RoomID string `validate:"roomid"`
}

type kickReq struct {
	Target string `validate:"required,max=64"`
}

type negotiationReq struct {
	Target       string          `validate:"required,max=64"`
	MediaContext string          `validate:"omitempty,mediactx"`
	Payload      json.RawMessage `validate:"jsonvalue"`
}

// Decode parses and validates one client frame. Room IDs are upper-cased
// and identities trimmed before validation.
func Decode(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Message
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("%w: unexpected trailing data", ErrBadPayload)
	}
	m.RoomID = domain.RoomID(strings.ToUpper(strings.TrimSpace(string(m.RoomID))))
	m.Identity = strings.TrimSpace(m.Identity)
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the fields a client may send for m.Type.
func (m Message) Validate() error {
	var err error
	switch m.Type {
	case TypeCreateRoom:
		err = validate.Struct(identityReq{Identity: m.Identity})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
		}
	case TypeJoinRoom:
		if !domain.ValidRoomID(string(m.RoomID)) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRoomID, m.RoomID)
		}
		err = validate.Struct(joinReq{RoomID: string(m.RoomID), Identity: m.Identity})
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidIdentity, err)
		}
	case TypeRoomExists:
		err = validate.Struct(roomReq{RoomID: string(m.RoomID)})
		if err != nil {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRoomID, m.RoomID)
		}
	case TypeKick:
		err = validate.Struct(kickReq{Target: string(m.Target)})
	case TypeOffer, TypeAnswer:
		if m.MediaContext == "" {
			return fmt.Errorf("%w: %s missing mediaContext", ErrBadPayload, m.Type)
		}
		fallthrough
	case TypeICECandidate:
		err = validate.Struct(negotiationReq{
			Target:       string(m.Target),
			MediaContext: string(m.MediaContext),
			Payload:      m.Payload,
		})
		if err == nil && m.Sender != "" {
			err = errors.New("sender is assigned by the server")
		}
	case TypeLeaveRoom, TypeWhoAmI, TypePing:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadPayload, m.Type)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// CodeOf maps an error to its wire code.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, domain.ErrRoomFull):
		return CodeRoomFull
	case errors.Is(err, domain.ErrInvalidIdentity):
		return CodeInvalidIdentity
	case errors.Is(err, domain.ErrInvalidRoomID):
		return CodeInvalidRoomID
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrNotInRoom):
		return CodeNotInRoom
	case errors.Is(err, ErrBadPayload):
		return CodeBadPayload
	default:
		return CodeInternal
	}
}
