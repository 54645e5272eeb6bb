package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"console-chat/internal/auth"
	"console-chat/internal/roles"
	"console-chat/internal/types"
)

// Transport is the push-connection surface the session drives. *Conn
// implements it; tests substitute a fake.
type Transport interface {
	Connect()
	Disconnect()
	JoinRoom(roomID string)
	LeaveRoom(roomID string)
	SendTyping(roomID string)
	SendStopTyping(roomID string)
	TrySendMessage(roomID, content, clientID string) bool
	SetCallbacks(cb Callbacks)
	State() ConnState
}

// RestClient is the fallback-path surface. *api.Client implements it.
type RestClient interface {
	Fallback
	FetchHistory(ctx context.Context, roomID string) ([]types.APIMessage, error)
}

// UIEvents surface session changes to the hosting view. Nil members are
// skipped.
type UIEvents struct {
	OnUpdate      func()
	OnNotice      func(text string)
	OnAuthExpired func()
}

type SessionOptions struct {
	Self      string
	Role      roles.Role
	TypingTTL time.Duration
}

// Session is the authoritative state container for the active conversation
// view: one room at a time, one message store, one typing tracker, one
// pending-send set. Every asynchronous continuation captures the room it was
// dispatched for and re-checks it before applying its effect; stale results
// are discarded. Sessions are self-contained, so independent views can each
// own one.
type Session struct {
	mu   sync.Mutex
	room string

	conn   Transport
	rest   RestClient
	store  *Store
	typing *Tracker
	disp   *Dispatcher
	events UIEvents
}

func NewSession(conn Transport, rest RestClient, opts SessionOptions, events UIEvents) *Session {
	s := &Session{
		conn:   conn,
		rest:   rest,
		store:  NewStore(),
		events: events,
	}

	s.typing = NewTracker(opts.TypingTTL,
		func() {
			if room := s.Room(); room != "" {
				conn.SendTyping(room)
			}
		},
		func() {
			if room := s.Room(); room != "" {
				conn.SendStopTyping(room)
			}
		},
		s.notifyUpdate,
	)

	router := NewRouter(conn, rest)
	s.disp = NewDispatcher(s.store, router, opts.Self, opts.Role, DispatcherHooks{
		Guard:          s.isActive,
		OnUpdate:       s.notifyUpdate,
		OnSendFailed:   s.sendFailed,
		RequestRefetch: s.refetch,
	})

	conn.SetCallbacks(Callbacks{
		OnConnect:    s.handleConnect,
		OnDisconnect: s.handleDisconnect,
		OnMessage:    s.handleMessage,
		OnTyping:     s.handleTyping,
		OnStopTyping: s.handleStopTyping,
		OnStatus:     s.handleStatus,
		OnError:      s.handleError,
	})
	return s
}

func (s *Session) Start() {
	s.conn.Connect()
}

// Close tears the session down: all timers cancelled, pending set cleared,
// transport released.
func (s *Session) Close() {
	s.mu.Lock()
	s.room = ""
	s.mu.Unlock()

	s.typing.RoomExit()
	s.disp.RoomExit()
	s.conn.Disconnect()
}

// SelectRoom switches the active conversation. The old room's typing signals
// and pending sends are dropped synchronously; its message history stays
// visible until the new room's history load replaces it, so a transient
// switch never flickers the view empty.
func (s *Session) SelectRoom(ctx context.Context, roomID string) {
	s.mu.Lock()
	if roomID == s.room {
		s.mu.Unlock()
		return
	}
	old := s.room
	s.room = roomID
	s.mu.Unlock()

	s.typing.RoomExit()
	s.disp.RoomExit()
	if old != "" {
		s.conn.LeaveRoom(old)
	}
	if roomID == "" {
		s.notifyUpdate()
		return
	}
	s.conn.JoinRoom(roomID)

	go s.loadHistory(ctx, roomID)
}

func (s *Session) loadHistory(ctx context.Context, roomID string) {
	records, err := s.rest.FetchHistory(ctx, roomID)

	if err != nil {
		if !s.isActive(roomID) {
			log.Debug().Str("room", roomID).Msg("[session] stale history result discarded")
			return
		}
		if errors.Is(err, auth.ErrExpired) || errors.Is(err, auth.ErrMissing) {
			s.authExpired()
			return
		}
		log.Warn().Err(err).Str("room", roomID).Msg("[session] history load failed")
		if s.applyHistory(roomID, nil) {
			s.notice("could not load message history")
			s.notifyUpdate()
		}
		return
	}

	if !s.applyHistory(roomID, records) {
		log.Debug().Str("room", roomID).Msg("[session] stale history result discarded")
		return
	}
	s.notifyUpdate()
}

// applyHistory replaces the store contents only if roomID is still the active
// room, with the check and the swap under one lock so a concurrent switch
// cannot slip between them.
func (s *Session) applyHistory(roomID string, records []types.APIMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room != roomID {
		return false
	}
	s.store.ReplaceHistory(roomID, records)
	return true
}

// Send dispatches a text message to the active room and returns the
// placeholder id, or "" when no room is selected.
func (s *Session) Send(ctx context.Context, content string) string {
	room := s.Room()
	if room == "" || content == "" {
		return ""
	}
	return s.disp.Send(ctx, room, content)
}

// SendAttachment uploads a file to the active room via the fallback path.
func (s *Session) SendAttachment(ctx context.Context, filename string, data []byte) string {
	room := s.Room()
	if room == "" {
		return ""
	}
	return s.disp.SendAttachment(ctx, room, filename, data)
}

// Retry re-dispatches a failed send.
func (s *Session) Retry(ctx context.Context, placeholderID string) error {
	return s.disp.Retry(ctx, placeholderID)
}

// Discard drops a failed send the user gave up on.
func (s *Session) Discard(placeholderID string) error {
	return s.disp.Discard(placeholderID)
}

// InputChanged drives the local typing emitter from the compose box.
func (s *Session) InputChanged(hasContent bool) {
	s.typing.LocalInputChanged(hasContent)
}

func (s *Session) Messages() []Message {
	return s.store.Messages()
}

func (s *Session) TypingLabel() string {
	return TypingLabel(s.typing.Users())
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) ConnState() ConnState {
	return s.conn.State()
}

func (s *Session) isActive(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != "" && s.room == roomID
}

// forActiveRoom also accepts frames without a room id, which some backends
// emit on single-room streams.
func (s *Session) forActiveRoom(roomID string) bool {
	if roomID == "" {
		return s.Room() != ""
	}
	return s.isActive(roomID)
}

func (s *Session) handleConnect() {
	s.notifyUpdate()
}

func (s *Session) handleDisconnect(err error) {
	// Transient; the connection retries on its own and room state is kept.
	log.Debug().Err(err).Msg("[session] transport drop absorbed")
	s.notifyUpdate()
}

func (s *Session) handleMessage(roomID string, rec types.APIMessage) {
	if !s.forActiveRoom(roomID) {
		return
	}
	room := roomID
	if room == "" {
		room = s.Room()
	}
	s.disp.Reconcile(room, rec)
	s.notifyUpdate()
}

func (s *Session) handleTyping(roomID, user string) {
	if !s.forActiveRoom(roomID) || user == "" {
		return
	}
	s.typing.RemoteTyping(user)
}

func (s *Session) handleStopTyping(roomID, user string) {
	if !s.forActiveRoom(roomID) {
		return
	}
	s.typing.RemoteStopTyping(user)
}

func (s *Session) handleStatus(ev types.StatusEvent) {
	if !s.forActiveRoom(ev.RoomID) {
		return
	}
	if ev.RoomID == "" {
		ev.RoomID = s.Room()
	}
	s.store.IngestStatus(ev)
	s.notifyUpdate()
}

func (s *Session) handleError(err error) {
	if errors.Is(err, auth.ErrExpired) || errors.Is(err, auth.ErrMissing) {
		s.authExpired()
		return
	}
	if errors.Is(err, ErrRetriesExhausted) {
		s.notice("connection to chat lost")
	}
}

func (s *Session) sendFailed(placeholderID string, err error) {
	if errors.Is(err, auth.ErrExpired) || errors.Is(err, auth.ErrMissing) {
		s.authExpired()
		return
	}
	s.notice("message could not be sent")
}

func (s *Session) refetch(roomID string) {
	go s.loadHistory(context.Background(), roomID)
}

func (s *Session) notifyUpdate() {
	if s.events.OnUpdate != nil {
		s.events.OnUpdate()
	}
}

func (s *Session) notice(text string) {
	if s.events.OnNotice != nil {
		s.events.OnNotice(text)
	}
}

func (s *Session) authExpired() {
	if s.events.OnAuthExpired != nil {
		s.events.OnAuthExpired()
	}
}
