package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"console-chat/internal/types"
)

func TestReplaceHistoryThenLiveNeverDuplicates(t *testing.T) {
	s := NewStore()
	s.ReplaceHistory("room-1", []types.APIMessage{
		{ID: "41", SenderName: "Alice", Content: "hi", Timestamp: 100},
		{ID: "42", SenderName: "Bob", Content: "yo", Timestamp: 101},
	})

	// A live push redelivers a message the refetch already brought in.
	applied := s.IngestLive(fromAPI("room-1", types.APIMessage{ID: "42", SenderName: "Bob", Content: "yo", Timestamp: 101}), "")
	assert.False(t, applied)

	seen := map[string]int{}
	for _, m := range s.Messages() {
		seen[m.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s stored %d times", id, n)
	}
	assert.Equal(t, 2, s.Len())
}

func TestReplaceHistorySafeDefaults(t *testing.T) {
	s := NewStore()
	s.ReplaceHistory("room-1", []types.APIMessage{
		{MessageID: "legacy-7", Content: "no sender"},
	})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "legacy-7", msgs[0].ID)
	assert.Equal(t, "Unknown", msgs[0].Sender)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestIngestLiveReplacesPlaceholderInPlace(t *testing.T) {
	base := time.Now()
	s2 := NewStore()
	s2.ReplaceHistory("room-1", []types.APIMessage{
		{ID: "1", SenderName: "Alice", Content: "first", Timestamp: base.Add(-2 * time.Second).Unix()},
		{ID: "2", SenderName: "Alice", Content: "third", Timestamp: base.Add(2 * time.Second).Unix()},
	})
	s2.AppendLocal(Message{
		ID: "local-abc", Sender: "me", Content: "mine",
		Timestamp: base, Origin: OriginLocal, Delivery: DeliverySending, RoomID: "room-1",
	})

	confirmed := fromAPI("room-1", types.APIMessage{ID: "77", SenderName: "me", Content: "mine", Timestamp: base.Unix()})
	require.True(t, s2.IngestLive(confirmed, "local-abc"))

	msgs := s2.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "77", msgs[1].ID, "confirmed entry should occupy the placeholder's slot")
	assert.Equal(t, "2", msgs[2].ID)
	assert.False(t, s2.Contains("local-abc"))

	// The optimistic entry and its confirmed counterpart never coexist.
	for _, m := range msgs {
		assert.NotEqual(t, "local-abc", m.ID)
	}
}

func TestIngestStatusExemptFromDedup(t *testing.T) {
	s := NewStore()
	ev := types.StatusEvent{RoomID: "room-1", User: "alice", Message: "alice joined"}
	s.IngestStatus(ev)
	s.IngestStatus(ev)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, OriginStatus, m.Origin)
	}
}

func TestStableOrderOnEqualTimestamps(t *testing.T) {
	s := NewStore()
	s.ReplaceHistory("room-1", []types.APIMessage{
		{ID: "a", SenderName: "x", Content: "1", Timestamp: 500},
		{ID: "b", SenderName: "x", Content: "2", Timestamp: 500},
		{ID: "c", SenderName: "x", Content: "3", Timestamp: 500},
	})

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)
	assert.Equal(t, "c", msgs[2].ID)
}

func TestReplaceHistoryKeepsUnresolvedLocalEntries(t *testing.T) {
	s := NewStore()
	s.AppendLocal(Message{ID: "local-err", Sender: "me", Content: "lost", Timestamp: time.Now(), Origin: OriginLocal, Delivery: DeliveryError, RoomID: "room-1"})
	s.AppendLocal(Message{ID: "local-echoed", Sender: "me", Content: "made it", Timestamp: time.Now(), Origin: OriginLocal, Delivery: DeliverySending, RoomID: "room-1"})

	s.ReplaceHistory("room-1", []types.APIMessage{
		{ID: "10", ClientID: "local-echoed", SenderName: "me", Content: "made it", Timestamp: time.Now().Unix()},
	})

	assert.True(t, s.Contains("local-err"), "a visible failure must survive a refetch")
	assert.False(t, s.Contains("local-echoed"), "an echoed placeholder is superseded by its confirmed record")
	assert.True(t, s.Contains("10"))
	assert.Equal(t, 2, s.Len())
}

func TestReplaceHistoryDropsOtherRoomLocals(t *testing.T) {
	s := NewStore()
	s.AppendLocal(Message{ID: "local-a", Sender: "me", Content: "from room a", Timestamp: time.Now(), Origin: OriginLocal, Delivery: DeliveryError, RoomID: "room-a"})

	s.ReplaceHistory("room-b", []types.APIMessage{
		{ID: "b-1", SenderName: "Alice", Content: "hi", Timestamp: time.Now().Unix()},
	})

	assert.False(t, s.Contains("local-a"), "another room's placeholder must not follow the view")
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "b-1", s.Messages()[0].ID)
}
