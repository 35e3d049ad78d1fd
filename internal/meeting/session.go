// Package meeting is the client-side session: it speaks the admission
// protocol and keeps the mesh in step with room membership.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/media"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined = errors.New("not in a room")
	ErrBusy      = errors.New("another request is in flight")
	ErrClosed    = errors.New("session closed")

	// ErrDisconnected is returned by Run when the signaling connection
	// drops. Room state and links survive until Reconnect and Rejoin.
	ErrDisconnected = errors.New("signaling connection lost")
)

// RemoteError is an error{} frame returned for a request.
type RemoteError struct {
	Code string
	Text string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Text) }

// Conn is the signaling transport, satisfied by *signalclient.Client.
type Conn interface {
	Send(msg protocol.Message) error
	Incoming() <-chan protocol.Message
}

// Hooks report room-level changes. All are optional. They run on the Run
// goroutine and must not wait on a request.
type Hooks struct {
	OnParticipants func(list []domain.ParticipantView)
	OnHostChanged  func(host domain.ConnID)
	// OnRoomClosed fires when the server ends our membership: kicked, or
	// the seat was taken over by a newer connection.
	OnRoomClosed func(reason string)
}

type Config struct {
	Factory mesh.Factory
	Mesh    mesh.Hooks
	Options mesh.Options
	Hooks   Hooks
}

type Session struct {
	mesh  *mesh.Controller
	hooks Hooks

	reqMu sync.Mutex // one request/response exchange at a time

	mu           sync.Mutex
	conn         Conn
	waiter       *waiter
	roomID       domain.RoomID
	self         domain.ConnID
	identity     string
	host         domain.ConnID
	participants []domain.ParticipantView
	closed       bool
}

type waiter struct {
	types []protocol.Type
	ch    chan protocol.Message
}

// signalFunc adapts a send function to mesh.Signaler.
type signalFunc func(protocol.Message) error

func (f signalFunc) Send(msg protocol.Message) error { return f(msg) }

func New(conn Conn, cfg Config) *Session {
	s := &Session{conn: conn, hooks: cfg.Hooks}
	s.mesh = mesh.NewController(cfg.Factory, signalFunc(s.send), cfg.Mesh, cfg.Options)
	return s
}

func (s *Session) transport() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Session) send(msg protocol.Message) error {
	return s.transport().Send(msg)
}

// Reconnect swaps in a fresh signaling connection after Run returned
// ErrDisconnected. Links and published tracks are kept; call Run again,
// then Rejoin to take the seat back.
func (s *Session) Reconnect(conn Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.conn = conn
	return nil
}

func (s *Session) Mesh() *mesh.Controller { return s.mesh }

func (s *Session) RoomID() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *Session) Self() domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

func (s *Session) Host() domain.ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self != "" && s.self == s.host
}

func (s *Session) Participants() []domain.ParticipantView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.participants)
}

// Run dispatches server frames until the connection ends or ctx is done.
// When ctx ends every link is closed and the session is finished. When the
// connection drops, Run returns ErrDisconnected and leaves the mesh alone.
func (s *Session) Run(ctx context.Context) error {
	in := s.transport().Incoming()
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				s.failWaiter()
				log.Info().Str("module", "meeting").Str("room", string(s.RoomID())).Msg("signaling connection lost")
				return ErrDisconnected
			}
			s.dispatch(msg)
		}
	}
}

// failWaiter releases a request that can no longer be answered.
func (s *Session) failWaiter() {
	s.mu.Lock()
	w := s.waiter
	s.waiter = nil
	s.mu.Unlock()
	if w != nil {
		close(w.ch)
	}
}

func (s *Session) shutdown() {
	s.mesh.Leave()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.failWaiter()
}

func (s *Session) dispatch(msg protocol.Message) {
	if msg.Type.IsNegotiation() {
		if err := s.mesh.HandleNegotiation(msg); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("negotiation")
		}
		return
	}

	switch msg.Type {
	case protocol.TypeRoomCreated:
		s.enter(msg.RoomID, msg.SelfID, msg.Host, nil)
		// Creating a room implicitly leaves the previous one.
		if err := s.mesh.Rebind(msg.SelfID, nil); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("mesh join")
		}

	case protocol.TypeJoinAccepted:
		moved := s.enter(msg.RoomID, msg.SelfID, msg.Host, msg.Participants)
		join := s.mesh.Join
		if msg.Rebound || moved {
			join = s.mesh.Rebind
		}
		if err := join(msg.SelfID, msg.Participants); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("mesh join")
		}

	case protocol.TypeParticipantsUpdated:
		s.mu.Lock()
		s.participants = slices.Clone(msg.Participants)
		s.mu.Unlock()
		if s.hooks.OnParticipants != nil {
			s.hooks.OnParticipants(msg.Participants)
		}

	case protocol.TypeParticipantJoined:
		if err := s.mesh.PeerJoined(msg.ConnectionID); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Str("peer", string(msg.ConnectionID)).Msg("peer joined")
		}

	case protocol.TypeParticipantLeft:
		s.mesh.PeerLeft(msg.ConnectionID, closeReason(msg.Reason))

	case protocol.TypeHostChanged:
		s.mu.Lock()
		s.host = msg.Host
		s.mu.Unlock()
		if s.hooks.OnHostChanged != nil {
			s.hooks.OnHostChanged(msg.Host)
		}

	case protocol.TypeIdentityRebound:
		if err := s.mesh.PeerRebound(msg.OldConnectionID, msg.ConnectionID); err != nil {
			log.Warn().Err(err).Str("module", "meeting").Msg("peer rebound")
		}

	case protocol.TypeParticipantKicked:
		s.exit("kicked")

	case protocol.TypeLeft:
		// An unsolicited left means another connection took our seat.
		if msg.Reason != "" {
			s.exit(msg.Reason)
		}
	}
	s.wake(msg)
}

func closeReason(reason string) mesh.CloseReason {
	switch reason {
	case "kicked":
		return mesh.ClosePeerKicked
	case "disconnect":
		return mesh.ClosePeerGone
	default:
		return mesh.ClosePeerLeft
	}
}

// enter records the new membership and reports whether we were already
// in a room.
func (s *Session) enter(room domain.RoomID, self, host domain.ConnID, existing []domain.ParticipantView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := s.roomID != ""
	s.roomID, s.self, s.host = room, self, host
	s.participants = slices.Clone(existing)
	log.Info().Str("module", "meeting").Str("room", string(room)).Str("self", string(self)).Msg("in room")
	return moved
}

func (s *Session) exit(reason string) {
	s.mu.Lock()
	was := s.roomID
	s.roomID, s.self, s.host, s.participants = "", "", "", nil
	s.mu.Unlock()
	s.mesh.Leave()
	if was == "" {
		return
	}
	log.Info().Str("module", "meeting").Str("room", string(was)).Str("reason", reason).Msg("left room")
	if s.hooks.OnRoomClosed != nil {
		s.hooks.OnRoomClosed(reason)
	}
}

// wake hands msg to a pending request that expects its type.
func (s *Session) wake(msg protocol.Message) {
	s.mu.Lock()
	w := s.waiter
	if w == nil || !slices.Contains(w.types, msg.Type) {
		s.mu.Unlock()
		return
	}
	s.waiter = nil
	s.mu.Unlock()
	w.ch <- msg
}

// request sends msg and waits for the first reply of one of types. An
// error{} frame always counts as a reply.
func (s *Session) request(ctx context.Context, msg protocol.Message, types ...protocol.Type) (protocol.Message, error) {
	if !s.reqMu.TryLock() {
		return protocol.Message{}, ErrBusy
	}
	defer s.reqMu.Unlock()

	w := &waiter{types: append(types, protocol.TypeError), ch: make(chan protocol.Message, 1)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return protocol.Message{}, ErrClosed
	}
	s.waiter = w
	s.mu.Unlock()

	drop := func() {
		s.mu.Lock()
		if s.waiter == w {
			s.waiter = nil
		}
		s.mu.Unlock()
	}
	if err := s.send(msg); err != nil {
		drop()
		return protocol.Message{}, err
	}
	select {
	case <-ctx.Done():
		drop()
		return protocol.Message{}, ctx.Err()
	case reply, ok := <-w.ch:
		if !ok {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return protocol.Message{}, ErrClosed
			}
			return protocol.Message{}, ErrDisconnected
		}
		if reply.Type == protocol.TypeError {
			return reply, &RemoteError{Code: reply.Code, Text: reply.Error}
		}
		return reply, nil
	}
}

// Create opens a new room with this client as host.
func (s *Session) Create(ctx context.Context, identity string) (domain.RoomID, error) {
	reply, err := s.request(ctx, protocol.Message{Type: protocol.TypeCreateRoom, Identity: identity}, protocol.TypeRoomCreated)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return reply.RoomID, nil
}

// Join asks for admission. A rejection comes back as *domain.AdmissionError.
func (s *Session) Join(ctx context.Context, roomID domain.RoomID, identity string) (protocol.Message, error) {
	reply, err := s.request(ctx, protocol.Message{Type: protocol.TypeJoinRoom, RoomID: roomID, Identity: identity},
		protocol.TypeJoinAccepted, protocol.TypeJoinRejected)
	if err != nil {
		return reply, err
	}
	if reply.Type == protocol.TypeJoinRejected {
		return reply, &domain.AdmissionError{RoomID: roomID, Err: reasonError(reply.Reason)}
	}
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return reply, nil
}

func reasonError(code string) error {
	switch code {
	case protocol.CodeRoomNotFound:
		return domain.ErrRoomNotFound
	case protocol.CodeRoomFull:
		return domain.ErrRoomFull
	case protocol.CodeInvalidIdentity:
		return domain.ErrInvalidIdentity
	case protocol.CodeInvalidRoomID:
		return domain.ErrInvalidRoomID
	default:
		return errors.New(code)
	}
}

// Rejoin re-runs admission under the last identity, after the signaling
// connection was replaced. Inside the server's grace window the seat is
// rebound; the mesh is rebuilt either way and published tracks re-attach.
func (s *Session) Rejoin(ctx context.Context, roomID domain.RoomID) (protocol.Message, error) {
	s.mu.Lock()
	identity := s.identity
	s.mu.Unlock()
	if identity == "" {
		return protocol.Message{}, ErrNotJoined
	}
	return s.Join(ctx, roomID, identity)
}

// Exists asks whether a room exists and is full.
func (s *Session) Exists(ctx context.Context, roomID domain.RoomID) (exists, full bool, err error) {
	reply, err := s.request(ctx, protocol.Message{Type: protocol.TypeRoomExists, RoomID: roomID}, protocol.TypeRoomExists)
	if err != nil {
		return false, false, err
	}
	return reply.Exists != nil && *reply.Exists, reply.Full != nil && *reply.Full, nil
}

// Leave releases every link and tells the server. Leaving twice is a no-op.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	room := s.roomID
	s.roomID, s.self, s.host, s.participants = "", "", "", nil
	s.mu.Unlock()
	s.mesh.Leave()
	if room == "" {
		return nil
	}
	_, err := s.request(ctx, protocol.Message{Type: protocol.TypeLeaveRoom}, protocol.TypeLeft)
	return err
}

// Kick removes target from the room. The server answers unauthorized
// attempts with an error frame and tells nobody else.
func (s *Session) Kick(ctx context.Context, target domain.ConnID) error {
	if s.RoomID() == "" {
		return ErrNotJoined
	}
	return s.send(protocol.Message{Type: protocol.TypeKick, Target: target})
}

func (s *Session) Publish(ctx context.Context, kind media.Kind, track webrtc.TrackLocal) error {
	return s.mesh.Publisher().Publish(ctx, kind, track)
}

func (s *Session) Unpublish(ctx context.Context, kind media.Kind) error {
	return s.mesh.Publisher().Unpublish(ctx, kind)
}

// PublishFrom publishes every kind src can supply.
func (s *Session) PublishFrom(ctx context.Context, src media.Source) error {
	var errs []error
	for _, kind := range media.Kinds {
		track, ok := src.Track(kind)
		if !ok {
			continue
		}
		if err := s.Publish(ctx, kind, track); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
