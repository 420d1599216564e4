package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JoinState is the membership lifecycle of one (connection, room) pair.
type JoinState int32

const (
	JoinIdle JoinState = iota
	JoinJoining
	JoinJoined
	JoinFailed
)

func (s JoinState) String() string {
	switch s {
	case JoinJoining:
		return "joining"
	case JoinJoined:
		return "joined"
	case JoinFailed:
		return "failed"
	default:
		return "idle"
	}
}

// joinAttempts bounds transparent retries of the join handshake on
// acknowledgement timeouts. Rejections are never retried.
const joinAttempts = 3

// Session is the per-room subscription: join handshake, presence roster,
// typing set and message stream for one room. Obtained from Client.Join.
type Session struct {
	client *Client
	conn   *Conn
	roomID string
	log    zerolog.Logger

	roster  *Roster
	typing  *TypingTracker
	stream  *MessageStream
	emitter *typingEmitter

	mu           sync.Mutex
	state        JoinState
	joinDone     chan struct{}
	lastJoinErr  error
	self         User
	participants map[string]Participant
	unsubs       []func()
	fallback     *time.Timer
	snapshotSeen bool
	wantRejoin   bool

	onMessage func(StreamEntry)
	onRoster  func([]User)
	onTyping  func([]string)
}

func newSession(client *Client, roomID string) *Session {
	s := &Session{
		client:       client,
		conn:         client.conn,
		roomID:       roomID,
		log:          client.log.With().Str("component", "room_session").Str("room_id", roomID).Logger(),
		typing:       NewTypingTracker(client.opts.TypingTTL),
		stream:       NewMessageStream(),
		self:         client.opts.Identity,
		participants: make(map[string]Participant),
	}
	s.roster = NewRoster(s.lookupUsername)
	s.emitter = newTypingEmitter(client.opts.TypingTTL,
		func() { s.emitTyping(EventTypingStart) },
		func() { s.emitTyping(EventTypingStop) },
	)
	return s
}

// RoomID returns the room this session is bound to.
func (s *Session) RoomID() string {
	return s.roomID
}

// State returns the current join state.
func (s *Session) State() JoinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastJoinError returns the error from the most recent failed join.
func (s *Session) LastJoinError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastJoinErr
}

func (s *Session) join(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case JoinJoined:
		s.mu.Unlock()
		return nil
	case JoinJoining:
		// Another goroutine is mid-handshake for this room. Wait for its
		// outcome rather than reporting success before the ack arrives.
		done := s.joinDone
		s.mu.Unlock()
		s.log.Debug().Msg("join already in progress, awaiting outcome")
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == JoinJoined {
			return nil
		}
		return s.lastJoinErr
	}
	s.state = JoinJoining
	s.joinDone = make(chan struct{})
	s.mu.Unlock()

	if err := s.conn.WaitReady(ctx, s.client.opts.JoinTimeout, s.client.opts.ReadyPollInterval); err != nil {
		s.failJoin(err)
		return err
	}

	s.mu.Lock()
	s.unregisterLocked()
	s.registerLocked()
	s.mu.Unlock()

	var ack Frame
	var err error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		ack, err = s.conn.Request(ctx, EventJoinRoom, JoinRequest{RoomID: s.roomID}, s.client.opts.AckTimeout)
		if err == nil || !errors.Is(err, ErrTimeout) {
			break
		}
		s.log.Warn().Int("attempt", attempt).Msg("join acknowledgement timed out")
	}
	if err != nil {
		s.teardownHandlers()
		s.failJoin(err)
		return err
	}

	var ja JoinAck
	if uerr := json.Unmarshal(ack.Data, &ja); uerr != nil {
		s.teardownHandlers()
		s.failJoin(uerr)
		return uerr
	}
	if !ja.OK {
		s.teardownHandlers()
		rejection := joinRejected(ja.Error)
		s.failJoin(rejection)
		return rejection
	}

	s.mu.Lock()
	s.state = JoinJoined
	s.lastJoinErr = nil
	s.closeJoinDoneLocked()
	s.wantRejoin = true
	s.snapshotSeen = len(ja.OnlineUsers) > 0
	if s.snapshotSeen {
		s.roster.Apply(PresenceEvent{Kind: PresenceReplaceAll, Users: ja.OnlineUsers})
	} else {
		// No snapshot in the ack: request the roster explicitly after a
		// short grace period instead of leaving it empty indefinitely.
		delay := s.client.opts.PresenceFallbackDelay
		s.fallback = time.AfterFunc(delay, s.requestRosterFallback)
	}
	s.mu.Unlock()

	s.stream.MergeHistory(ja.Messages)
	s.notifyRoster()
	s.log.Info().Int("online", len(ja.OnlineUsers)).Int("history", len(ja.Messages)).Msg("joined room")
	return nil
}

func (s *Session) failJoin(err error) {
	s.mu.Lock()
	s.state = JoinFailed
	s.lastJoinErr = err
	s.closeJoinDoneLocked()
	s.mu.Unlock()
}

// closeJoinDoneLocked releases goroutines waiting on a concurrent join.
func (s *Session) closeJoinDoneLocked() {
	if s.joinDone != nil {
		close(s.joinDone)
		s.joinDone = nil
	}
}

func (s *Session) requestRosterFallback() {
	s.mu.Lock()
	seen := s.snapshotSeen
	s.mu.Unlock()
	if seen {
		return
	}
	if err := s.conn.Emit(EventGetOnlineUsers, RosterRequest{RoomID: s.roomID}); err != nil {
		s.log.Warn().Err(err).Msg("roster fallback request failed")
	}
}

// Send delivers a text message, returning the authoritative server message.
// Requires Joined state. The optimistic local placeholder is reconciled by
// correlation token; on rejection or timeout it is marked failed, not
// removed.
func (s *Session) Send(ctx context.Context, content string) (Message, error) {
	return s.send(ctx, content, "text", "")
}

// SendAttachment delivers an image or gif message referencing an uploaded
// attachment URL.
func (s *Session) SendAttachment(ctx context.Context, content, messageType, attachmentURL string) (Message, error) {
	return s.send(ctx, content, messageType, attachmentURL)
}

func (s *Session) send(ctx context.Context, content, messageType, attachmentURL string) (Message, error) {
	s.mu.Lock()
	if s.state != JoinJoined {
		s.mu.Unlock()
		return Message{}, ErrNotJoined
	}
	self := s.self
	s.mu.Unlock()

	if p, known := s.participantRecord(self.UserID); known && !CanSend(p) {
		return Message{}, sendRejected("participant is muted or banned")
	}

	correlation := uuid.NewString()
	local := Message{
		ID:            "local-" + correlation,
		RoomID:        s.roomID,
		SenderID:      self.UserID,
		Content:       content,
		Type:          messageType,
		AttachmentURL: attachmentURL,
		CorrelationID: correlation,
		CreatedAt:     time.Now().UTC(),
	}
	s.stream.AppendLocal(local)
	s.emitter.Flush()

	ack, err := s.conn.Request(ctx, EventSendMessage, SendRequest{
		RoomID:        s.roomID,
		Content:       content,
		Type:          messageType,
		AttachmentURL: attachmentURL,
		CorrelationID: correlation,
	}, s.client.opts.AckTimeout)
	if err != nil {
		s.stream.Fail(correlation)
		return Message{}, err
	}

	var sa SendAck
	if uerr := json.Unmarshal(ack.Data, &sa); uerr != nil {
		s.stream.Fail(correlation)
		return Message{}, uerr
	}
	if !sa.OK {
		s.stream.Fail(correlation)
		return Message{}, sendRejected(sa.Error)
	}

	authoritative := local
	if sa.Message != nil {
		authoritative = *sa.Message
	} else {
		authoritative.ID = sa.MessageID
	}
	s.stream.Resolve(correlation, authoritative)
	return authoritative, nil
}

// Typing records local keystroke activity: typing_start is emitted at most
// once per burst and typing_stop follows after the inactivity window.
func (s *Session) Typing() {
	s.mu.Lock()
	joined := s.state == JoinJoined
	s.mu.Unlock()
	if joined {
		s.emitter.Keystroke()
	}
}

func (s *Session) emitTyping(event string) {
	payload := TypingPayload{RoomID: s.roomID, UserID: s.self.UserID, Username: s.self.Username}
	if err := s.conn.Emit(event, payload); err != nil && !errors.Is(err, ErrNotConnected) {
		s.log.Warn().Err(err).Str("event", event).Msg("typing emit failed")
	}
}

// Leave notifies the server and releases all per-room listeners and timers.
// Always safe, including on a room that was never joined.
func (s *Session) Leave() {
	if err := s.conn.Emit(EventLeaveRoom, LeaveRequest{RoomID: s.roomID}); err != nil && !errors.Is(err, ErrNotConnected) {
		s.log.Warn().Err(err).Msg("leave notification failed")
	}
	s.teardown(false)
	s.client.removeSession(s.roomID)
}

// reset clears all per-room state after a transport loss, keeping the
// session registered so the next ready transition can rejoin.
func (s *Session) reset() {
	s.teardown(true)
}

func (s *Session) teardown(keepRejoin bool) {
	s.mu.Lock()
	s.unregisterLocked()
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
	wasJoined := s.state == JoinJoined
	s.state = JoinIdle
	s.snapshotSeen = false
	if keepRejoin {
		s.wantRejoin = s.wantRejoin || wasJoined
	} else {
		s.wantRejoin = false
	}
	s.roster.Clear()
	s.mu.Unlock()

	s.typing.Clear()
	s.emitter.Cancel()
	s.stream.Clear()
}

func (s *Session) wantsRejoin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wantRejoin
}

func (s *Session) rejoin() {
	if err := s.join(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("automatic rejoin failed")
	}
}

// Roster returns the current presence roster.
func (s *Session) Roster() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Users()
}

// TypingUsers returns who is currently typing, subject to the room's
// typing-indicator flag.
func (s *Session) TypingUsers() []string {
	return s.typing.Active()
}

// Messages returns the current message stream snapshot.
func (s *Session) Messages() []StreamEntry {
	return s.stream.Messages()
}

// SetTypingEnabled applies the room configuration's typing-indicator flag.
func (s *Session) SetTypingEnabled(enabled bool) {
	s.typing.SetEnabled(enabled)
}

// TypingEnabled reports the room's typing-indicator flag.
func (s *Session) TypingEnabled() bool {
	return s.typing.Enabled()
}

// CanSend reports whether the local user may currently send in this room,
// from the freshest known participant record. True when no directory is
// configured and no authoritative push arrived.
func (s *Session) CanSend() bool {
	p, known := s.participantRecord(s.self.UserID)
	if !known {
		return true
	}
	return CanSend(p)
}

// CanModerate reports whether the local user may moderate target right now.
func (s *Session) CanModerate(targetUserID string) bool {
	self, selfKnown := s.participantRecord(s.self.UserID)
	target, targetKnown := s.participantRecord(targetUserID)
	if !selfKnown || !targetKnown {
		return false
	}
	return CanModerate(self, target)
}

// OnMessage registers the message callback. Invoked from the transport read
// loop for live arrivals.
func (s *Session) OnMessage(cb func(StreamEntry)) {
	s.mu.Lock()
	s.onMessage = cb
	s.mu.Unlock()
}

// OnRosterChange registers the roster callback.
func (s *Session) OnRosterChange(cb func([]User)) {
	s.mu.Lock()
	s.onRoster = cb
	s.mu.Unlock()
}

// OnTypingChange registers the typing-set callback.
func (s *Session) OnTypingChange(cb func([]string)) {
	s.mu.Lock()
	s.onTyping = cb
	s.mu.Unlock()
}

// participantRecord layers authoritative status pushes over the externally
// supplied directory. known is false when neither source has a record.
func (s *Session) participantRecord(userID string) (*Participant, bool) {
	s.mu.Lock()
	if p, ok := s.participants[userID]; ok {
		s.mu.Unlock()
		return &p, true
	}
	s.mu.Unlock()
	if s.client.dir != nil {
		if p, ok := s.client.dir.Participant(s.roomID, userID); ok {
			return p, true
		}
		return nil, true
	}
	return nil, false
}

func (s *Session) lookupUsername(userID string) (string, bool) {
	if p, ok := s.participantRecord(userID); ok && p != nil && p.Username != "" {
		return p.Username, true
	}
	return "", false
}

func (s *Session) registerLocked() {
	s.unsubs = append(s.unsubs,
		s.conn.On(EventReceiveMessage, s.handleReceiveMessage),
		s.conn.On(EventUserJoined, s.handleUserJoined),
		s.conn.On(EventUserLeft, s.handleUserLeft),
		s.conn.On(EventOnlineUsers, s.handleOnlineUsers),
		s.conn.On(EventTypingStart, s.handleTypingStart),
		s.conn.On(EventTypingStop, s.handleTypingStop),
		s.conn.On(EventParticipantUpdated, s.handleParticipantUpdated),
	)
}

func (s *Session) unregisterLocked() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

func (s *Session) teardownHandlers() {
	s.mu.Lock()
	s.unregisterLocked()
	s.mu.Unlock()
}

func (s *Session) handleReceiveMessage(data json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn().Err(err).Msg("malformed receive_message payload")
		return
	}
	if msg.RoomID != s.roomID {
		return
	}
	if s.stream.Append(msg) {
		s.notifyMessage(StreamEntry{Message: msg, Status: MessageDelivered})
	}
}

func (s *Session) handleUserJoined(data json.RawMessage) {
	var p PresencePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	s.roster.Apply(PresenceEvent{Kind: PresenceJoined, User: User{
		UserID:   p.UserID,
		Username: p.Username,
		SocketID: p.SocketID,
	}})
	s.mu.Unlock()
	s.notifyRoster()
}

func (s *Session) handleUserLeft(data json.RawMessage) {
	var p PresencePayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	var leftUsername string
	for _, u := range s.roster.Users() {
		if u.UserID == p.UserID {
			leftUsername = u.Username
			break
		}
	}
	s.roster.Apply(PresenceEvent{Kind: PresenceLeft, User: User{UserID: p.UserID}})
	s.mu.Unlock()

	if leftUsername != "" {
		s.typing.Stop(leftUsername)
	}
	s.notifyRoster()
}

func (s *Session) handleOnlineUsers(data json.RawMessage) {
	var payload RosterPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	s.snapshotSeen = true
	s.roster.Apply(PresenceEvent{Kind: PresenceReplaceAll, Users: payload.Users})
	s.mu.Unlock()
	s.notifyRoster()
}

func (s *Session) handleTypingStart(data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID != s.roomID {
		return
	}
	if payload.UserID == s.self.UserID {
		return
	}
	username := payload.Username
	if username == "" {
		if resolved, ok := s.lookupUsername(payload.UserID); ok {
			username = resolved
		}
	}
	if username == "" {
		return
	}
	s.typing.Start(username)
	s.notifyTyping()
}

func (s *Session) handleTypingStop(data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID != s.roomID {
		return
	}
	username := payload.Username
	if username == "" {
		if resolved, ok := s.lookupUsername(payload.UserID); ok {
			username = resolved
		}
	}
	s.typing.Stop(username)
	s.notifyTyping()
}

func (s *Session) handleParticipantUpdated(data json.RawMessage) {
	var update ParticipantUpdate
	if err := json.Unmarshal(data, &update); err != nil || update.RoomID != s.roomID {
		return
	}
	s.mu.Lock()
	s.participants[update.UserID] = Participant{
		UserID:   update.UserID,
		Username: update.Username,
		Role:     update.Role,
		Status:   update.Status,
	}
	if update.Username != "" {
		s.roster.Patch(update.UserID, update.Username)
	}
	s.mu.Unlock()

	if update.UserID == s.self.UserID {
		s.log.Info().Str("status", string(update.Status)).Str("role", string(update.Role)).Msg("own participant record updated")
	}
	s.notifyRoster()
}

func (s *Session) notifyMessage(entry StreamEntry) {
	s.mu.Lock()
	cb := s.onMessage
	s.mu.Unlock()
	if cb != nil {
		cb(entry)
	}
}

func (s *Session) notifyRoster() {
	s.mu.Lock()
	cb := s.onRoster
	users := s.roster.Users()
	s.mu.Unlock()
	if cb != nil {
		cb(users)
	}
}

func (s *Session) notifyTyping() {
	s.mu.Lock()
	cb := s.onTyping
	s.mu.Unlock()
	if cb != nil {
		cb(s.typing.Active())
	}
}
