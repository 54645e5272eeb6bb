package chat

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTypingTTL bounds how long a typing signal lives without a refresh,
// and how long local input may idle before a stop signal goes out.
const DefaultTypingTTL = 3 * time.Second

// signal is one remote user's live typing marker. seq invalidates timer
// callbacks that lost the race against a refresh or cancel.
type signal struct {
	user  string
	seq   uint64
	timer *time.Timer
}

// Tracker owns both directions of typing presence for one room session:
// remote signals with per-user TTL expiry, and the local idle emitter.
type Tracker struct {
	mu  sync.Mutex
	ttl time.Duration

	signals []*signal
	byUser  map[string]*signal

	localActive bool
	localSeq    uint64
	localTimer  *time.Timer

	sendStart func()
	sendStop  func()
	onChange  func()
}

// NewTracker wires a tracker. sendStart/sendStop carry local typing intents
// to the transport; onChange fires whenever the remote signal set changes.
// Any callback may be nil.
func NewTracker(ttl time.Duration, sendStart, sendStop, onChange func()) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Tracker{
		ttl:       ttl,
		byUser:    make(map[string]*signal),
		sendStart: sendStart,
		sendStop:  sendStop,
		onChange:  onChange,
	}
}

// RemoteTyping inserts or refreshes a user's signal. A refresh bumps the
// sequence before rescheduling, so a stale timer that already fired can
// never remove the refreshed signal.
func (t *Tracker) RemoteTyping(user string) {
	t.mu.Lock()
	changed := false

	sig, ok := t.byUser[user]
	if ok {
		sig.timer.Stop()
	} else {
		sig = &signal{user: user}
		t.byUser[user] = sig
		t.signals = append(t.signals, sig)
		changed = true
	}

	sig.seq++
	seq := sig.seq
	sig.timer = time.AfterFunc(t.ttl, func() { t.expire(user, seq) })
	t.mu.Unlock()

	if changed {
		t.notify()
	}
}

// RemoteStopTyping removes the user's signal immediately.
func (t *Tracker) RemoteStopTyping(user string) {
	t.mu.Lock()
	removed := t.removeLocked(user)
	t.mu.Unlock()

	if removed {
		t.notify()
	}
}

func (t *Tracker) expire(user string, seq uint64) {
	t.mu.Lock()
	sig, ok := t.byUser[user]
	if !ok || sig.seq != seq {
		t.mu.Unlock()
		return
	}
	t.removeLocked(user)
	t.mu.Unlock()

	t.notify()
}

func (t *Tracker) removeLocked(user string) bool {
	sig, ok := t.byUser[user]
	if !ok {
		return false
	}
	sig.seq++
	sig.timer.Stop()
	delete(t.byUser, user)
	for i, s := range t.signals {
		if s == sig {
			t.signals = append(t.signals[:i], t.signals[i+1:]...)
			break
		}
	}
	return true
}

// RoomExit cancels every pending timer and clears all signals synchronously.
// No stop intent is emitted; the old room's context is already gone.
func (t *Tracker) RoomExit() {
	t.mu.Lock()
	had := len(t.signals) > 0
	for _, sig := range t.signals {
		sig.seq++
		sig.timer.Stop()
	}
	t.signals = nil
	t.byUser = make(map[string]*signal)

	t.localSeq++
	t.localActive = false
	if t.localTimer != nil {
		t.localTimer.Stop()
		t.localTimer = nil
	}
	t.mu.Unlock()

	if had {
		t.notify()
	}
}

// LocalInputChanged drives the outbound typing emitter. The empty→non-empty
// transition emits a start intent; every further change restarts the idle
// timer; idling out (or clearing the input) emits a stop intent.
func (t *Tracker) LocalInputChanged(hasContent bool) {
	t.mu.Lock()
	emitStart, emitStop := false, false

	if !hasContent {
		if t.localActive {
			t.localActive = false
			t.localSeq++
			if t.localTimer != nil {
				t.localTimer.Stop()
				t.localTimer = nil
			}
			emitStop = true
		}
		t.mu.Unlock()
		if emitStop {
			t.emitStop()
		}
		return
	}

	if !t.localActive {
		t.localActive = true
		emitStart = true
	}
	t.localSeq++
	seq := t.localSeq
	if t.localTimer != nil {
		t.localTimer.Stop()
	}
	t.localTimer = time.AfterFunc(t.ttl, func() { t.localIdle(seq) })
	t.mu.Unlock()

	if emitStart {
		t.emitStart()
	}
}

func (t *Tracker) localIdle(seq uint64) {
	t.mu.Lock()
	if !t.localActive || t.localSeq != seq {
		t.mu.Unlock()
		return
	}
	t.localActive = false
	t.localTimer = nil
	t.mu.Unlock()

	t.emitStop()
}

// Users returns the typing users in the order their signals appeared.
func (t *Tracker) Users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.signals))
	for i, sig := range t.signals {
		out[i] = sig.user
	}
	return out
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}

func (t *Tracker) emitStart() {
	if t.sendStart != nil {
		t.sendStart()
	}
}

func (t *Tracker) emitStop() {
	if t.sendStop != nil {
		t.sendStop()
	}
}

// TypingLabel renders the indicator text for the given users. Pure function
// of its input.
func TypingLabel(users []string) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is typing...", users[0])
	case 2:
		return fmt.Sprintf("%s and %s are typing...", users[0], users[1])
	default:
		return fmt.Sprintf("%s and %d others are typing...", users[0], len(users)-1)
	}
}
