package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"console-chat/internal/types"
)

// Store is the ordered, deduplicated message collection for the active room.
// Entries keep their insertion slots; Messages() applies the display order
// (ascending timestamp, stable so same-second entries keep arrival order).
// Status notices are exempt from identity dedup.
type Store struct {
	mu   sync.Mutex
	msgs []Message
	ids  map[string]struct{} // identity ids of confirmed + optimistic entries
}

func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// ReplaceHistory swaps in a freshly fetched message list. Local-optimistic
// entries for the same room that are still unresolved survive the swap so a
// refetch can never silently discard a user-authored failure; a survivor whose
// placeholder id was echoed back in the fetched records is superseded instead.
// Local entries left behind by another room do not follow the view across a
// switch.
func (s *Store) ReplaceHistory(roomID string, records []types.APIMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	echoed := make(map[string]struct{})
	for _, rec := range records {
		if rec.ClientID != "" {
			echoed[rec.ClientID] = struct{}{}
		}
	}

	var survivors []Message
	for _, m := range s.msgs {
		if m.Origin != OriginLocal || m.RoomID != roomID {
			continue
		}
		if _, ok := echoed[m.ID]; ok {
			continue
		}
		survivors = append(survivors, m)
	}

	s.msgs = s.msgs[:0]
	s.ids = make(map[string]struct{})

	for _, rec := range records {
		m := fromAPI(roomID, rec)
		if _, dup := s.ids[m.ID]; dup {
			continue
		}
		s.ids[m.ID] = struct{}{}
		s.msgs = append(s.msgs, m)
	}
	for _, m := range survivors {
		s.ids[m.ID] = struct{}{}
		s.msgs = append(s.msgs, m)
	}

	log.Debug().Str("room", roomID).Int("count", len(s.msgs)).Msg("[store] history replaced")
}

// IngestLive applies one live-delivered message. If placeholderID names a
// stored optimistic entry, the confirmed message takes over its slot so the
// UI never sees a remove-then-add flicker. Redeliveries of a known identity
// id are dropped.
func (s *Store) IngestLive(msg Message, placeholderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[msg.ID]; dup {
		log.Debug().Str("id", msg.ID).Msg("[store] duplicate live message dropped")
		return false
	}

	if placeholderID != "" {
		for i := range s.msgs {
			if s.msgs[i].ID == placeholderID && s.msgs[i].Origin == OriginLocal {
				delete(s.ids, placeholderID)
				s.ids[msg.ID] = struct{}{}
				s.msgs[i] = msg
				return true
			}
		}
	}

	s.ids[msg.ID] = struct{}{}
	s.msgs = append(s.msgs, msg)
	return true
}

// IngestStatus always appends; notices never dedup against real messages.
func (s *Store) IngestStatus(ev types.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, statusMessage(ev))
}

// AppendLocal inserts an optimistic placeholder.
func (s *Store) AppendLocal(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[msg.ID] = struct{}{}
	s.msgs = append(s.msgs, msg)
}

// SetDelivery updates an optimistic entry's delivery state.
func (s *Store) SetDelivery(id string, d Delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id && s.msgs[i].Origin == OriginLocal {
			s.msgs[i].Delivery = d
			return true
		}
	}
	return false
}

// Remove deletes an entry by id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			delete(s.ids, id)
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Messages returns the display-ordered list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}
