package realtime

import (
	"sort"
	"sync"
)

// MessageStatus tracks an entry through the optimistic send path.
type MessageStatus int

const (
	// MessageDelivered entries are authoritative server messages.
	MessageDelivered MessageStatus = iota
	// MessageSending entries are optimistic local placeholders awaiting an
	// acknowledgement.
	MessageSending
	// MessageFailed entries were rejected or timed out. They stay in the
	// stream so the typed content survives for a retry.
	MessageFailed
)

// StreamEntry is one message in a room's stream plus its delivery state.
type StreamEntry struct {
	Message
	Status MessageStatus
}

// MessageStream is the ordered, deduplicated message sequence for one room.
// It merges a one-time history fetch with the live push feed: live arrivals
// keep transport order, the history merge re-sorts by createdAt with id as
// tie-break. Within a room an id appears exactly once.
type MessageStream struct {
	mu      sync.Mutex
	entries []*StreamEntry
	byID    map[string]*StreamEntry
	pending map[string]*StreamEntry // correlation token -> optimistic entry
}

// NewMessageStream creates an empty stream.
func NewMessageStream() *MessageStream {
	return &MessageStream{
		byID:    make(map[string]*StreamEntry),
		pending: make(map[string]*StreamEntry),
	}
}

// Append adds a live message. Duplicates by id are silently dropped. A
// message carrying a known correlation token reconciles the optimistic
// placeholder in place instead of appending. Returns whether the stream
// changed.
func (s *MessageStream) Append(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg)
}

func (s *MessageStream) appendLocked(msg Message) bool {
	if msg.CorrelationID != "" {
		if entry, ok := s.pending[msg.CorrelationID]; ok {
			s.reconcileLocked(entry, msg)
			return true
		}
	}
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	entry := &StreamEntry{Message: msg, Status: MessageDelivered}
	s.entries = append(s.entries, entry)
	s.byID[msg.ID] = entry
	return true
}

// AppendLocal records an optimistic placeholder for a sent-but-unacknowledged
// message. msg.CorrelationID must be set; msg.ID is a local placeholder id.
func (s *MessageStream) AppendLocal(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := &StreamEntry{Message: msg, Status: MessageSending}
	s.entries = append(s.entries, entry)
	s.byID[msg.ID] = entry
	s.pending[msg.CorrelationID] = entry
}

// Resolve replaces the placeholder for correlationID with the authoritative
// server message from the send acknowledgement. If a correlated push already
// reconciled the placeholder, or the authoritative id arrived first via an
// uncorrelated push, the result is still exactly one entry for that id.
func (s *MessageStream) Resolve(correlationID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pending[correlationID]
	if !ok {
		s.appendLocked(msg)
		return
	}
	if existing, seen := s.byID[msg.ID]; seen && existing != entry {
		// The push won the race under its authoritative id; drop the
		// placeholder rather than duplicating.
		s.removeLocked(entry)
		delete(s.pending, correlationID)
		return
	}
	s.reconcileLocked(entry, msg)
}

// Fail marks the optimistic entry for correlationID as failed. The
// correlation stays registered so a late-arriving authoritative message can
// still reconcile rather than duplicate.
func (s *MessageStream) Fail(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.pending[correlationID]; ok {
		entry.Status = MessageFailed
	}
}

// MergeHistory folds the one-time history fetch into the stream. Messages the
// live feed already delivered are not duplicated or overwritten; afterwards
// the stream is re-sorted by createdAt ascending, id as tie-break, for
// deterministic ordering.
func (s *MessageStream) MergeHistory(history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range history {
		s.appendLocked(msg)
	}
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Messages returns a snapshot of the stream in order.
func (s *MessageStream) Messages() []StreamEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StreamEntry, len(s.entries))
	for i, entry := range s.entries {
		out[i] = *entry
	}
	return out
}

// Len returns the number of entries, optimistic placeholders included.
func (s *MessageStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear empties the stream. Called on leave and transport loss.
func (s *MessageStream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byID = make(map[string]*StreamEntry)
	s.pending = make(map[string]*StreamEntry)
}

func (s *MessageStream) reconcileLocked(entry *StreamEntry, msg Message) {
	delete(s.byID, entry.ID)
	delete(s.pending, entry.CorrelationID)
	entry.Message = msg
	entry.Status = MessageDelivered
	s.byID[msg.ID] = entry
}

func (s *MessageStream) removeLocked(entry *StreamEntry) {
	delete(s.byID, entry.ID)
	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}
