package chat

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"console-chat/internal/roles"
	"console-chat/internal/types"
)

// ErrUnknownSend is returned when retrying or discarding a placeholder the
// dispatcher no longer tracks.
var ErrUnknownSend = errors.New("unknown send")

// heuristicWindow bounds how far a confirmed message's timestamp may drift
// from the local send time and still correlate without an echoed client_id.
const heuristicWindow = 5 * time.Second

// pendingSend tracks one optimistic placeholder awaiting confirmation.
// Attachment bytes are retained so a failed upload can be retried.
type pendingSend struct {
	id       string
	roomID   string
	content  string
	filename string
	data     []byte
	isFile   bool
	sentAt   time.Time
}

// DispatcherHooks are supplied by the owning session.
type DispatcherHooks struct {
	// Guard reports whether the given room is still the active one. Stale
	// continuations are discarded, never applied.
	Guard func(roomID string) bool
	// OnUpdate fires after any visible state change.
	OnUpdate func()
	// OnSendFailed surfaces a user-visible send failure.
	OnSendFailed func(placeholderID string, err error)
	// RequestRefetch asks the session to refresh the room history after a
	// fallback send succeeded without returning the finalized message.
	RequestRefetch func(roomID string)
}

// Dispatcher creates locally-visible provisional messages on send and
// reconciles them against server confirmation, or marks them failed.
type Dispatcher struct {
	store  *Store
	router *Router
	self   string
	role   roles.Role
	hooks  DispatcherHooks

	mu      sync.Mutex
	pending map[string]*pendingSend
	order   []string
}

func NewDispatcher(store *Store, router *Router, self string, role roles.Role, hooks DispatcherHooks) *Dispatcher {
	return &Dispatcher{
		store:   store,
		router:  router,
		self:    self,
		role:    role,
		hooks:   hooks,
		pending: make(map[string]*pendingSend),
	}
}

// Send makes the message visible immediately with a sending marker, then
// delivers it: push first, REST fallback when the push channel is down.
// Returns the placeholder id.
func (d *Dispatcher) Send(ctx context.Context, roomID, content string) string {
	p := &pendingSend{
		id:      "local-" + uuid.NewString(),
		roomID:  roomID,
		content: content,
		sentAt:  time.Now(),
	}
	d.track(p)
	d.dispatch(ctx, *p)
	d.update()
	return p.id
}

// SendAttachment behaves like Send but always routes through the multipart
// fallback; attachments never travel over the push channel.
func (d *Dispatcher) SendAttachment(ctx context.Context, roomID, filename string, data []byte) string {
	p := &pendingSend{
		id:       "local-" + uuid.NewString(),
		roomID:   roomID,
		content:  filename,
		filename: filename,
		data:     data,
		isFile:   true,
		sentAt:   time.Now(),
	}
	d.track(p)
	d.dispatch(ctx, *p)
	d.update()
	return p.id
}

func (d *Dispatcher) track(p *pendingSend) {
	d.store.AppendLocal(Message{
		ID:        p.id,
		Sender:    d.self,
		Role:      d.role,
		Content:   p.content,
		IsFile:    p.isFile,
		FilePath:  p.filename,
		Timestamp: p.sentAt,
		Origin:    OriginLocal,
		Delivery:  DeliverySending,
		RoomID:    p.roomID,
	})

	d.mu.Lock()
	d.pending[p.id] = p
	d.order = append(d.order, p.id)
	d.mu.Unlock()
}

func (d *Dispatcher) dispatch(ctx context.Context, p pendingSend) {
	if !p.isFile && d.router.TrySend(p.roomID, p.content, p.id) {
		log.Debug().Str("placeholder", p.id).Msg("[dispatch] sent over push, awaiting echo")
		return
	}

	go func() {
		var out Outcome
		if p.isFile {
			out = d.router.UploadAttachment(ctx, p.roomID, p.filename, bytes.NewReader(p.data))
		} else {
			out = d.router.SendViaFallback(ctx, p.roomID, p.content, p.id)
		}
		d.finish(p, out)
	}()
}

// finish applies a fallback outcome. The pending check and the store change
// run under one hold of d.mu, so a concurrent echo, discard or room exit
// either lands wholly before this result or suppresses it wholly.
func (d *Dispatcher) finish(p pendingSend, out Outcome) {
	if d.hooks.Guard != nil && !d.hooks.Guard(p.roomID) {
		log.Debug().Str("room", p.roomID).Str("placeholder", p.id).Msg("[dispatch] room no longer active, result discarded")
		return
	}

	d.mu.Lock()
	if _, live := d.pending[p.id]; !live {
		// Already reconciled by a push echo, or discarded by the user.
		d.mu.Unlock()
		return
	}

	if out.Err != nil {
		d.store.SetDelivery(p.id, DeliveryError)
		d.mu.Unlock()
		log.Warn().Err(out.Err).Str("placeholder", p.id).Msg("[dispatch] fallback send failed")
		if d.hooks.OnSendFailed != nil {
			d.hooks.OnSendFailed(p.id, out.Err)
		}
		d.update()
		return
	}

	if out.Message != nil {
		d.untrackLocked(p.id)
		d.store.IngestLive(fromAPI(p.roomID, *out.Message), p.id)
		d.mu.Unlock()
		d.update()
		return
	}

	// Accepted without a body: drop the placeholder and let a history
	// refetch bring in the finalized record.
	d.untrackLocked(p.id)
	d.store.Remove(p.id)
	d.mu.Unlock()
	if d.hooks.RequestRefetch != nil {
		d.hooks.RequestRefetch(p.roomID)
	}
	d.update()
}

// Reconcile applies a live-delivered message, replacing a pending optimistic
// entry in place when it correlates with one.
func (d *Dispatcher) Reconcile(roomID string, rec types.APIMessage) {
	msg := fromAPI(roomID, rec)
	pid := d.correlate(rec, msg)
	if pid != "" {
		d.untrack(pid)
	}
	d.store.IngestLive(msg, pid)
}

// correlate prefers the echoed client_id. The sender-plus-timestamp
// proximity match below is a best-effort fallback for backends that do not
// echo it, and can misfire when two near-simultaneous sends look alike.
func (d *Dispatcher) correlate(rec types.APIMessage, msg Message) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec.ClientID != "" {
		if _, ok := d.pending[rec.ClientID]; ok {
			return rec.ClientID
		}
		return ""
	}

	if msg.Sender != d.self {
		return ""
	}
	for _, id := range d.order {
		p, ok := d.pending[id]
		if !ok {
			continue
		}
		if p.roomID != msg.RoomID || p.isFile != msg.IsFile {
			continue
		}
		if absDuration(msg.Timestamp.Sub(p.sentAt)) <= heuristicWindow {
			return id
		}
	}
	return ""
}

// Retry re-dispatches a failed send. The placeholder flips back to the
// sending state; the entry itself never moves.
func (d *Dispatcher) Retry(ctx context.Context, placeholderID string) error {
	d.mu.Lock()
	p, ok := d.pending[placeholderID]
	if ok {
		p.sentAt = time.Now()
	}
	d.mu.Unlock()
	if !ok {
		return ErrUnknownSend
	}

	d.store.SetDelivery(placeholderID, DeliverySending)
	d.dispatch(ctx, *p)
	d.update()
	return nil
}

// Discard removes a failed placeholder the user gave up on.
func (d *Dispatcher) Discard(placeholderID string) error {
	d.mu.Lock()
	_, ok := d.pending[placeholderID]
	d.mu.Unlock()
	if !ok {
		return ErrUnknownSend
	}

	d.untrack(placeholderID)
	d.store.Remove(placeholderID)
	d.update()
	return nil
}

// RoomExit clears the pending set. Placeholders left in the store are
// superseded by the next history load.
func (d *Dispatcher) RoomExit() {
	d.mu.Lock()
	d.pending = make(map[string]*pendingSend)
	d.order = nil
	d.mu.Unlock()
}

func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	d.untrackLocked(id)
	d.mu.Unlock()
}

func (d *Dispatcher) untrackLocked(id string) {
	delete(d.pending, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *Dispatcher) update() {
	if d.hooks.OnUpdate != nil {
		d.hooks.OnUpdate()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
