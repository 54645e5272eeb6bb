package chat

import (
	"time"

	"github.com/google/uuid"

	"console-chat/internal/roles"
	"console-chat/internal/types"
)

// Origin says where a message entry came from.
type Origin int

const (
	// OriginConfirmed entries were delivered or acknowledged by the server.
	OriginConfirmed Origin = iota
	// OriginLocal entries are optimistic placeholders awaiting confirmation.
	OriginLocal
	// OriginStatus entries are join/leave system notices.
	OriginStatus
)

// Delivery is only meaningful for OriginLocal entries.
type Delivery int

const (
	DeliveryNone Delivery = iota
	DeliverySending
	DeliveryError
)

// Message is one displayable chat entry.
type Message struct {
	ID        string
	Sender    string
	Role      roles.Role
	Content   string
	IsFile    bool
	FilePath  string
	Timestamp time.Time
	Origin    Origin
	Delivery  Delivery
	RoomID    string
}

const unknownSender = "Unknown"

// fromAPI maps an external record onto the internal shape. Missing fields
// degrade to safe defaults rather than dropping the record.
func fromAPI(roomID string, rec types.APIMessage) Message {
	sender := rec.SenderName
	if sender == "" {
		sender = unknownSender
	}

	ts := rec.Time()
	if rec.Timestamp == 0 {
		ts = time.Now()
	}

	id := rec.Identity()
	if id == "" {
		id = "msg-" + uuid.NewString()
	}

	return Message{
		ID:        id,
		Sender:    sender,
		Role:      roles.Parse(rec.SenderRole),
		Content:   rec.Content,
		IsFile:    rec.IsFile,
		FilePath:  rec.FilePath,
		Timestamp: ts,
		Origin:    OriginConfirmed,
		RoomID:    roomID,
	}
}

func statusMessage(ev types.StatusEvent) Message {
	ts := time.Unix(ev.Timestamp, 0)
	if ev.Timestamp == 0 {
		ts = time.Now()
	}
	return Message{
		ID:        "status-" + uuid.NewString(),
		Sender:    ev.User,
		Content:   ev.Message,
		Timestamp: ts,
		Origin:    OriginStatus,
		RoomID:    ev.RoomID,
	}
}
