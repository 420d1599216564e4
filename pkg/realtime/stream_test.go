package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(sec int) time.Time {
	return time.Date(2024, 6, 1, 12, 0, sec, 0, time.UTC)
}

func streamIDs(s *MessageStream) []string {
	entries := s.Messages()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func TestStreamDuplicateIDAppendedOnce(t *testing.T) {
	s := NewMessageStream()
	msg := Message{ID: "m1", RoomID: "r1", Content: "hello", CreatedAt: at(1)}
	require.True(t, s.Append(msg))
	require.False(t, s.Append(msg))
	require.Equal(t, 1, s.Len())
}

func TestStreamHistoryMergeDoesNotDuplicateLiveArrivals(t *testing.T) {
	s := NewMessageStream()
	// A push raced in before the history fetch resolved.
	require.True(t, s.Append(Message{ID: "m3", CreatedAt: at(3)}))

	s.MergeHistory([]Message{
		{ID: "m1", CreatedAt: at(1)},
		{ID: "m2", CreatedAt: at(2)},
		{ID: "m3", CreatedAt: at(3)},
	})
	require.Equal(t, []string{"m1", "m2", "m3"}, streamIDs(s))
}

func TestStreamHistoryMergeTieBreaksByID(t *testing.T) {
	s := NewMessageStream()
	s.MergeHistory([]Message{
		{ID: "b", CreatedAt: at(1)},
		{ID: "a", CreatedAt: at(1)},
		{ID: "c", CreatedAt: at(0)},
	})
	require.Equal(t, []string{"c", "a", "b"}, streamIDs(s))
}

func TestStreamOptimisticResolveByAck(t *testing.T) {
	s := NewMessageStream()
	s.AppendLocal(Message{ID: "local-tok", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})

	entries := s.Messages()
	require.Len(t, entries, 1)
	require.Equal(t, MessageSending, entries[0].Status)

	s.Resolve("tok", Message{ID: "srv-9", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})
	entries = s.Messages()
	require.Len(t, entries, 1)
	require.Equal(t, "srv-9", entries[0].ID)
	require.Equal(t, MessageDelivered, entries[0].Status)
}

func TestStreamOptimisticPushArrivesBeforeAck(t *testing.T) {
	s := NewMessageStream()
	s.AppendLocal(Message{ID: "local-tok", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})

	// The broadcast echo carries the correlation token and wins the race.
	require.True(t, s.Append(Message{ID: "srv-9", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)}))
	require.Equal(t, []string{"srv-9"}, streamIDs(s))

	// The ack lands afterwards; still exactly one srv-9 entry.
	s.Resolve("tok", Message{ID: "srv-9", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})
	require.Equal(t, []string{"srv-9"}, streamIDs(s))
	require.Equal(t, MessageDelivered, s.Messages()[0].Status)
}

func TestStreamOptimisticUncorrelatedPushBeforeAck(t *testing.T) {
	s := NewMessageStream()
	s.AppendLocal(Message{ID: "local-tok", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})

	// The push arrived without the correlation token, under the
	// authoritative id only.
	require.True(t, s.Append(Message{ID: "srv-9", Content: "hello", CreatedAt: at(1)}))
	require.Equal(t, 2, s.Len())

	// Resolving the ack collapses the placeholder instead of duplicating.
	s.Resolve("tok", Message{ID: "srv-9", Content: "hello", CreatedAt: at(1)})
	require.Equal(t, []string{"srv-9"}, streamIDs(s))
}

func TestStreamFailKeepsEntryForRetry(t *testing.T) {
	s := NewMessageStream()
	s.AppendLocal(Message{ID: "local-tok", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)})
	s.Fail("tok")

	entries := s.Messages()
	require.Len(t, entries, 1)
	require.Equal(t, MessageFailed, entries[0].Status)
	require.Equal(t, "hello", entries[0].Content)

	// A late authoritative arrival still reconciles rather than duplicates.
	require.True(t, s.Append(Message{ID: "srv-9", CorrelationID: "tok", Content: "hello", CreatedAt: at(1)}))
	entries = s.Messages()
	require.Len(t, entries, 1)
	require.Equal(t, "srv-9", entries[0].ID)
	require.Equal(t, MessageDelivered, entries[0].Status)
}

func TestStreamLiveArrivalsKeepTransportOrder(t *testing.T) {
	s := NewMessageStream()
	// Out-of-order timestamps are preserved for live pushes; only the
	// history merge re-sorts.
	s.Append(Message{ID: "m2", CreatedAt: at(2)})
	s.Append(Message{ID: "m1", CreatedAt: at(1)})
	require.Equal(t, []string{"m2", "m1"}, streamIDs(s))
}

func TestStreamClear(t *testing.T) {
	s := NewMessageStream()
	s.Append(Message{ID: "m1", CreatedAt: at(1)})
	s.AppendLocal(Message{ID: "local-tok", CorrelationID: "tok", CreatedAt: at(2)})
	s.Clear()
	require.Zero(t, s.Len())

	// Cleared correlations are forgotten.
	s.Resolve("tok", Message{ID: "srv-1", CreatedAt: at(3)})
	require.Equal(t, []string{"srv-1"}, streamIDs(s))
}
