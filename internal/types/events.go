package types

import "time"

type EventType string

const (
	EventMessage    EventType = "message"
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stop_typing"
	EventStatus     EventType = "status"
	EventJoin       EventType = "join"
	EventLeave      EventType = "leave"
)

// APIMessage is the record shape shared by the history endpoint and the
// push-path message payload. Older backends populate message_id instead of
// id, and only backends that echo the submitted correlation id set client_id.
type APIMessage struct {
	ID         string `json:"id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	SenderName string `json:"sender_name"`
	SenderRole string `json:"sender_role,omitempty"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	IsFile     bool   `json:"is_file,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// Identity returns whichever identifier the backend filled in.
func (m APIMessage) Identity() string {
	if m.ID != "" {
		return m.ID
	}
	return m.MessageID
}

func (m APIMessage) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// PushEvent is the JSON envelope for every frame on the push channel, both
// directions. Outbound frames fill Type, RoomID and, for sends, Content and
// ClientID.
type PushEvent struct {
	Type      EventType   `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	User      string      `json:"user,omitempty"`
	Content   string      `json:"content,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Message   *APIMessage `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

// StatusEvent is a join/leave system notice.
type StatusEvent struct {
	RoomID    string
	User      string
	Message   string
	Timestamp int64
}
