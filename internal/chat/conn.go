package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"console-chat/internal/auth"
	"console-chat/internal/types"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 30 * time.Second
	readLimit         = 1 << 16
	sendBufferSize    = 64
	defaultRetryDelay = 2 * time.Second
)

// ErrRetriesExhausted reports that the reconnect budget ran out. The retry
// cap is host configuration; by default the manager retries until an
// explicit Disconnect.
var ErrRetriesExhausted = errors.New("push transport retries exhausted")

type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Callbacks deliver transport lifecycle and room events to the session.
// Nil members are skipped.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnMessage    func(roomID string, rec types.APIMessage)
	OnTyping     func(roomID, user string)
	OnStopTyping func(roomID, user string)
	OnStatus     func(ev types.StatusEvent)
	OnError      func(err error)
}

type ConnOptions struct {
	RetryDelay time.Duration
	// MaxRetries caps consecutive failed dial attempts. 0 retries until an
	// explicit Disconnect.
	MaxRetries int
	Dialer     *websocket.Dialer
}

// Conn owns one persistent push-transport connection and the room
// membership declared over it. Transport drops reconnect automatically with
// a fixed delay; room and message state live elsewhere and survive drops.
type Conn struct {
	url  string
	cred *auth.Credential
	opts ConnOptions
	cb   Callbacks

	mu    sync.Mutex
	state ConnState
	ws    *websocket.Conn
	send  chan types.PushEvent
	rooms map[string]struct{}
	quit  chan struct{}
}

func NewConn(socketURL string, cred *auth.Credential, opts ConnOptions) *Conn {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		url:   socketURL,
		cred:  cred,
		opts:  opts,
		rooms: make(map[string]struct{}),
	}
}

// SetCallbacks must be called before Connect.
func (c *Conn) SetCallbacks(cb Callbacks) {
	c.cb = cb
}

// Connect is idempotent: calling it while connecting or connected is a
// no-op. An invalid credential is surfaced once, not retried.
func (c *Conn) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.quit = make(chan struct{})
	quit := c.quit
	c.mu.Unlock()

	go c.run(quit)
}

// Disconnect is the only transition into terminal Disconnected.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	if c.quit == nil {
		c.mu.Unlock()
		return
	}
	close(c.quit)
	c.quit = nil
	ws := c.ws
	c.ws = nil
	c.send = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	log.Info().Msg("[conn] disconnected")
}

func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// JoinRoom declares membership in a room's event stream. Membership is
// replayed after every reconnect.
func (c *Conn) JoinRoom(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
	c.enqueue(types.PushEvent{Type: types.EventJoin, RoomID: roomID})
}

func (c *Conn) LeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
	c.enqueue(types.PushEvent{Type: types.EventLeave, RoomID: roomID})
}

// TrySendMessage queues a message frame for push delivery. False means the
// channel is unavailable (not connected, or the outbound buffer is full) and
// the caller should fall back.
func (c *Conn) TrySendMessage(roomID, content, clientID string) bool {
	return c.enqueue(types.PushEvent{
		Type:     types.EventMessage,
		RoomID:   roomID,
		Content:  content,
		ClientID: clientID,
	})
}

// SendTyping and SendStopTyping are best-effort presence intents; typing
// signals are meaningless without a live push channel.
func (c *Conn) SendTyping(roomID string) {
	c.enqueue(types.PushEvent{Type: types.EventTyping, RoomID: roomID})
}

func (c *Conn) SendStopTyping(roomID string) {
	c.enqueue(types.PushEvent{Type: types.EventStopTyping, RoomID: roomID})
}

func (c *Conn) enqueue(ev types.PushEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.send == nil {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Conn) run(quit chan struct{}) {
	if err := c.cred.Check(time.Now()); err != nil {
		c.emitError(fmt.Errorf("push handshake: %w", err))
		c.park(quit)
		return
	}

	header := http.Header{}
	if token := c.cred.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	attempts := 0
	for {
		ws, resp, err := c.opts.Dialer.Dial(c.url, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			attempts++
			c.emitError(fmt.Errorf("dial push transport: %w", err))
			if c.opts.MaxRetries > 0 && attempts >= c.opts.MaxRetries {
				c.emitError(ErrRetriesExhausted)
				c.park(quit)
				return
			}
			select {
			case <-quit:
				return
			case <-time.After(c.opts.RetryDelay):
				continue
			}
		}
		attempts = 0

		send := make(chan types.PushEvent, sendBufferSize)
		c.mu.Lock()
		select {
		case <-quit:
			c.mu.Unlock()
			_ = ws.Close()
			return
		default:
		}
		c.ws = ws
		c.send = send
		c.state = StateConnected
		rooms := make([]string, 0, len(c.rooms))
		for r := range c.rooms {
			rooms = append(rooms, r)
		}
		c.mu.Unlock()

		log.Info().Str("url", c.url).Msg("[conn] push transport connected")
		if c.cb.OnConnect != nil {
			c.cb.OnConnect()
		}
		for _, r := range rooms {
			send <- types.PushEvent{Type: types.EventJoin, RoomID: r}
		}

		done := make(chan struct{})
		go c.writePump(ws, send, done)
		readErr := c.readLoop(ws)
		close(done)

		c.mu.Lock()
		c.ws = nil
		c.send = nil
		select {
		case <-quit:
			c.state = StateDisconnected
			c.mu.Unlock()
			return
		default:
			c.state = StateConnecting
		}
		c.mu.Unlock()

		log.Warn().Err(readErr).Msg("[conn] push transport dropped, reconnecting")
		if c.cb.OnDisconnect != nil {
			c.cb.OnDisconnect(readErr)
		}

		select {
		case <-quit:
			return
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

// park settles into Disconnected after an unrecoverable failure.
func (c *Conn) park(quit chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-quit:
	default:
		if c.quit != nil {
			close(c.quit)
			c.quit = nil
		}
	}
	c.state = StateDisconnected
}

func (c *Conn) writePump(ws *websocket.Conn, send chan types.PushEvent, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("[conn] write frame")
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("[conn] unexpected close")
			}
			return err
		}

		var ev types.PushEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Debug().Err(err).Msg("[conn] malformed frame dropped")
			continue
		}
		c.dispatchEvent(ev)
	}
}

func (c *Conn) dispatchEvent(ev types.PushEvent) {
	switch ev.Type {
	case types.EventMessage:
		if ev.Message != nil && c.cb.OnMessage != nil {
			c.cb.OnMessage(ev.RoomID, *ev.Message)
		}
	case types.EventTyping:
		if c.cb.OnTyping != nil {
			c.cb.OnTyping(ev.RoomID, ev.User)
		}
	case types.EventStopTyping:
		if c.cb.OnStopTyping != nil {
			c.cb.OnStopTyping(ev.RoomID, ev.User)
		}
	case types.EventStatus:
		if c.cb.OnStatus != nil {
			c.cb.OnStatus(types.StatusEvent{
				RoomID:    ev.RoomID,
				User:      ev.User,
				Message:   ev.Content,
				Timestamp: ev.Timestamp,
			})
		}
	default:
		log.Debug().Str("type", string(ev.Type)).Msg("[conn] unknown event type ignored")
	}
}

func (c *Conn) emitError(err error) {
	log.Warn().Err(err).Msg("[conn] transport error")
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}
