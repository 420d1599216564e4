package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Instaken/realtimechat-app/internal/dto"
	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/observability"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/pkg/realtime"
)

const (
	lastMessageTTL      = 30 * time.Minute
	sendBufferSize      = 64
	pingInterval        = 30 * time.Second
	defaultHistoryLimit = 50
)

// ConnectionOptions wraps identity metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	UserID        string
	Username      string
	CorrelationID string
	Context       context.Context
}

// RoomService manages websocket room channels: join handshakes, presence,
// typing relay, message delivery and cross-instance fanout.
type RoomService interface {
	ServeConnection(conn *websocket.Conn, opts ConnectionOptions)
	History(ctx context.Context, query dto.HistoryQuery) ([]dto.MessageResponse, error)
	LastMessage(ctx context.Context, roomID string) *dto.MessageResponse
	PushParticipantUpdate(update realtime.ParticipantUpdate)
	OnlineCount(roomID string) int
	Start(ctx context.Context)
}

type roomService struct {
	rooms        repository.RoomRepository
	messages     repository.MessageRepository
	redis        *redis.Client
	redisStream  string
	redisCache   string
	nats         *nats.Conn
	natsSubject  string
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	hub          *roomHub
	nodeID       string
	historyLimit int
}

// roomHub tracks which clients are present in which rooms.
type roomHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*roomClient]struct{}
	log   zerolog.Logger
}

type roomClient struct {
	conn    *websocket.Conn
	send    chan []byte
	options ConnectionOptions
	service *roomService
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context

	mu     sync.Mutex
	joined map[string]*joinedRoom
}

// joinedRoom caches per-room configuration resolved at join time.
type joinedRoom struct {
	typingEnabled bool
}

// fanoutEvent crosses instances over redis pubsub and NATS.
type fanoutEvent struct {
	Source string          `json:"source"`
	RoomID string          `json:"roomId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sentAt"`
}

// NewRoomService creates the websocket room service. historyLimit caps how
// many recent messages a join ack and the history endpoint return by default.
func NewRoomService(rooms repository.RoomRepository, messages repository.MessageRepository, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, validate *validator.Validate, historyLimit int, logger zerolog.Logger) RoomService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	hub := &roomHub{
		rooms: make(map[string]map[*roomClient]struct{}),
		log:   logger.With().Str("component", "room_hub").Logger(),
	}

	streamChannel := ""
	cachePrefix := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":rooms"
		cachePrefix = channelBase + ":rooms:last"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".rooms"
	}

	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &roomService{
		rooms:        rooms,
		messages:     messages,
		redis:        redisClient,
		redisStream:  streamChannel,
		redisCache:   cachePrefix,
		nats:         natsConn,
		natsSubject:  natsSubject,
		validator:    validate,
		logger:       logger.With().Str("component", "room_service").Logger(),
		tracer:       otel.Tracer("github.com/Instaken/realtimechat-app/internal/service/rooms"),
		sanitizer:    sanitizer,
		hub:          hub,
		nodeID:       uuid.NewString(),
		historyLimit: historyLimit,
	}
}

func (s *roomService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *roomService) ServeConnection(conn *websocket.Conn, opts ConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &roomClient{
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
		joined:  make(map[string]*joinedRoom),
	}

	observability.WSConnections().Inc()
	defer observability.WSConnections().Dec()

	go client.writer()
	client.reader()
}

func (s *roomService) History(ctx context.Context, query dto.HistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	limit := query.Limit
	if limit <= 0 {
		limit = s.historyLimit
	}

	messages, err := s.messages.ListByRoom(ctx, query.RoomID, before, limit)
	if err != nil {
		return nil, err
	}

	return dto.NewMessageResponseSlice(messages), nil
}

// LastMessage returns the most recent message for a room, preferring the
// redis cache and falling back to the message store on a miss.
func (s *roomService) LastMessage(ctx context.Context, roomID string) *dto.MessageResponse {
	if s.redis != nil && s.redisCache != "" {
		key := fmt.Sprintf("%s:%s", s.redisCache, roomID)
		if result, err := s.redis.Get(ctx, key).Result(); err == nil {
			var message dto.MessageResponse
			if err := json.Unmarshal([]byte(result), &message); err == nil {
				return &message
			}
			s.logger.Warn().Str("room_id", roomID).Msg("discarding malformed cached message")
		}
	}

	latest, err := s.messages.LatestByRoom(ctx, roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn().Err(err).Str("room_id", roomID).Msg("last message lookup failed")
		}
		return nil
	}

	message := dto.NewMessageResponse(latest)
	s.cacheLastMessage(ctx, message)
	return &message
}

// PushParticipantUpdate broadcasts a role or status change to everyone in the
// room and fans it out to other instances.
func (s *roomService) PushParticipantUpdate(update realtime.ParticipantUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal participant update")
		return
	}
	s.broadcastFrame(update.RoomID, realtime.EventParticipantUpdated, payload, nil)
	if err := s.publish(context.Background(), update.RoomID, realtime.EventParticipantUpdated, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish participant update")
	}
}

// OnlineCount reports how many clients are present in a room on this node.
func (s *roomService) OnlineCount(roomID string) int {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return len(s.hub.rooms[roomID])
}

func (s *roomService) handleJoin(ctx context.Context, client *roomClient, seq uint64, data json.RawMessage) {
	var req realtime.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.RoomID) == "" {
		client.ack(seq, realtime.JoinAck{OK: false, Error: "invalid join payload"})
		return
	}
	roomID := strings.TrimSpace(req.RoomID)

	room, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			client.ack(seq, realtime.JoinAck{OK: false, RoomID: roomID, Error: "room not found"})
			return
		}
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("room lookup failed")
		client.ack(seq, realtime.JoinAck{OK: false, RoomID: roomID, Error: "internal error"})
		return
	}

	participant, err := s.ensureParticipant(ctx, room, client.options)
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Msg("participant upsert failed")
		client.ack(seq, realtime.JoinAck{OK: false, RoomID: roomID, Error: "internal error"})
		return
	}
	if participant.Status == models.StatusBanned {
		client.ack(seq, realtime.JoinAck{OK: false, RoomID: roomID, Error: "participant is banned"})
		return
	}

	if room.Capacity > 0 && !client.isJoined(roomID) && s.OnlineCount(roomID) >= room.Capacity {
		client.ack(seq, realtime.JoinAck{OK: false, RoomID: roomID, Error: "room is full"})
		return
	}

	// Rejoining an already joined room just replays the snapshot.
	first := client.markJoined(roomID, &joinedRoom{typingEnabled: room.TypingIndicators})
	if first {
		s.hub.add(roomID, client)
		s.broadcastPresence(roomID, realtime.EventUserJoined, client)
	}

	snapshot := s.onlineUsers(roomID)
	history, err := s.messages.ListByRoom(ctx, roomID, time.Time{}, s.historyLimit)
	if err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("history load failed, joining with empty history")
		history = nil
	}

	client.ack(seq, realtime.JoinAck{
		OK:          true,
		RoomID:      roomID,
		OnlineUsers: snapshot,
		Messages:    historyToWire(history),
	})
	s.logger.Info().Str("room_id", roomID).Str("user_id", client.options.UserID).Int("online", len(snapshot)).Msg("client joined room")
}

func (s *roomService) handleLeave(client *roomClient, data json.RawMessage) {
	var req realtime.LeaveRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		return
	}
	if client.markLeft(req.RoomID) {
		s.hub.remove(req.RoomID, client)
		s.broadcastPresence(req.RoomID, realtime.EventUserLeft, client)
	}
}

func (s *roomService) handleSend(ctx context.Context, client *roomClient, seq uint64, data json.RawMessage) {
	var req realtime.SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		client.ack(seq, realtime.SendAck{OK: false, Error: "invalid send payload"})
		return
	}
	if !client.isJoined(req.RoomID) {
		client.ack(seq, realtime.SendAck{OK: false, Error: "not joined to room"})
		return
	}

	if err := s.validator.Struct(sendPayload{
		RoomID:  req.RoomID,
		Content: req.Content,
		Type:    req.Type,
	}); err != nil {
		client.ack(seq, realtime.SendAck{OK: false, Error: "invalid message"})
		return
	}

	participant, err := s.rooms.Participant(ctx, req.RoomID, client.options.UserID)
	if err != nil {
		client.ack(seq, realtime.SendAck{OK: false, Error: "participant unknown"})
		return
	}
	if participant.Status != models.StatusActive {
		client.ack(seq, realtime.SendAck{OK: false, Error: "participant is muted or banned"})
		return
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if clean == "" && req.AttachmentURL == "" {
		client.ack(seq, realtime.SendAck{OK: false, Error: "message content empty after sanitization"})
		return
	}

	messageType := req.Type
	if messageType == "" {
		messageType = "text"
	}

	attrs := []attribute.KeyValue{
		attribute.String("room.id", req.RoomID),
		attribute.String("message.sender_id", client.options.UserID),
		attribute.String("message.type", messageType),
	}
	if client.options.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", client.options.CorrelationID))
	}

	spanCtx, span := s.tracer.Start(ctx, "rooms.send", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.ChatMessage{
		ID:            uuid.NewString(),
		RoomID:        req.RoomID,
		SenderID:      client.options.UserID,
		Content:       clean,
		Type:          messageType,
		AttachmentURL: req.AttachmentURL,
		CorrelationID: req.CorrelationID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		client.ack(seq, realtime.SendAck{OK: false, Error: "failed to persist message"})
		return
	}

	wire := messageToWire(model)
	payload, err := json.Marshal(wire)
	if err != nil {
		span.RecordError(err)
		client.ack(seq, realtime.SendAck{OK: false, Error: "internal error"})
		return
	}

	s.cacheLastMessage(spanCtx, dto.NewMessageResponse(model))
	client.ack(seq, realtime.SendAck{OK: true, MessageID: model.ID, Message: &wire})
	s.broadcastFrame(req.RoomID, realtime.EventReceiveMessage, payload, nil)
	if err := s.publish(spanCtx, req.RoomID, realtime.EventReceiveMessage, payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish message event")
	}

	observability.MessagesSent().WithLabelValues(messageType).Inc()
}

func (s *roomService) handleTyping(client *roomClient, event string, data json.RawMessage) {
	var payload realtime.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		return
	}
	state, joined := client.joinedRoom(payload.RoomID)
	if !joined || !state.typingEnabled {
		return
	}

	payload.UserID = client.options.UserID
	payload.Username = client.options.Username
	relay, err := json.Marshal(payload)
	if err != nil {
		return
	}
	s.broadcastFrame(payload.RoomID, event, relay, client)
	if err := s.publish(context.Background(), payload.RoomID, event, relay); err != nil {
		s.logger.Debug().Err(err).Msg("typing fanout failed")
	}
}

func (s *roomService) handleRosterRequest(client *roomClient, data json.RawMessage) {
	var req realtime.RosterRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomID == "" {
		return
	}
	if !client.isJoined(req.RoomID) {
		return
	}
	payload, err := json.Marshal(realtime.RosterPayload{
		RoomID: req.RoomID,
		Users:  s.onlineUsers(req.RoomID),
	})
	if err != nil {
		return
	}
	client.deliver(realtime.Frame{Event: realtime.EventOnlineUsers, Data: payload})
}

// ensureParticipant creates the membership row on first join. New rooms with
// no members yet get their first joiner as owner.
func (s *roomService) ensureParticipant(ctx context.Context, room models.Room, opts ConnectionOptions) (models.RoomParticipant, error) {
	existing, err := s.rooms.Participant(ctx, room.ID, opts.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return models.RoomParticipant{}, err
	}

	role := models.RoleMember
	others, err := s.rooms.Participants(ctx, room.ID)
	if err == nil && len(others) == 0 {
		role = models.RoleOwner
	}

	participant := models.RoomParticipant{
		RoomID:   room.ID,
		UserID:   opts.UserID,
		Username: opts.Username,
		Role:     role,
		Status:   models.StatusActive,
	}
	if err := s.rooms.UpsertParticipant(ctx, &participant); err != nil {
		return models.RoomParticipant{}, err
	}
	return participant, nil
}

func (s *roomService) onlineUsers(roomID string) []realtime.User {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()

	clients := s.hub.rooms[roomID]
	users := make([]realtime.User, 0, len(clients))
	seen := make(map[string]struct{}, len(clients))
	for client := range clients {
		if _, dup := seen[client.options.UserID]; dup {
			continue
		}
		seen[client.options.UserID] = struct{}{}
		users = append(users, realtime.User{
			UserID:   client.options.UserID,
			Username: client.options.Username,
		})
	}
	return users
}

func (s *roomService) broadcastPresence(roomID, event string, subject *roomClient) {
	payload, err := json.Marshal(realtime.PresencePayload{
		RoomID:   roomID,
		UserID:   subject.options.UserID,
		Username: subject.options.Username,
	})
	if err != nil {
		return
	}
	s.broadcastFrame(roomID, event, payload, subject)
	if err := s.publish(context.Background(), roomID, event, payload); err != nil {
		s.logger.Debug().Err(err).Msg("presence fanout failed")
	}

	kind := "joined"
	if event == realtime.EventUserLeft {
		kind = "left"
	}
	observability.PresenceEvents().WithLabelValues(kind).Inc()
}

// broadcastFrame delivers an event to every client in the room except skip.
func (s *roomService) broadcastFrame(roomID, event string, data json.RawMessage, skip *roomClient) {
	frame := realtime.Frame{Event: event, Data: data}

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	for client := range s.hub.rooms[roomID] {
		if client == skip {
			continue
		}
		client.deliver(frame)
	}
}

func (s *roomService) cacheLastMessage(ctx context.Context, message dto.MessageResponse) {
	if s.redis == nil || s.redisCache == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.redisCache, message.RoomID)
	if err := s.redis.Set(ctx, key, payload, lastMessageTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache message")
	}
}

func (s *roomService) publish(ctx context.Context, roomID, event string, data json.RawMessage) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(fanoutEvent{
		Source: s.nodeID,
		RoomID: roomID,
		Event:  event,
		Data:   data,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *roomService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("room redis subscription closed")
			return
		}
		s.handleFanout([]byte(msg.Payload))
	}
}

func (s *roomService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "chat-rooms", func(msg *nats.Msg) {
		s.handleFanout(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats room subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain room nats subscription")
		}
	}()
}

func (s *roomService) handleFanout(data []byte) {
	var event fanoutEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid room fanout event")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.broadcastFrame(event.RoomID, event.Event, event.Data, nil)
}

func (h *roomHub) add(roomID string, client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rooms[roomID]; !exists {
		h.rooms[roomID] = make(map[*roomClient]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
	h.log.Debug().Str("room_id", roomID).Str("user_id", client.options.UserID).Msg("client entered room")
}

func (h *roomHub) remove(roomID string, client *roomClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[roomID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.log.Debug().Str("room_id", roomID).Str("user_id", client.options.UserID).Msg("client left room")
}

func (c *roomClient) reader() {
	defer c.close()

	ctx := c.baseCtx
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.service.logger.Debug().Err(err).Msg("room read loop ended")
			return
		}

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.service.logger.Debug().Err(err).Msg("dropping malformed frame")
			continue
		}

		switch frame.Event {
		case realtime.EventJoinRoom:
			c.service.handleJoin(ctx, c, frame.Seq, frame.Data)
		case realtime.EventLeaveRoom:
			c.service.handleLeave(c, frame.Data)
		case realtime.EventSendMessage:
			c.service.handleSend(ctx, c, frame.Seq, frame.Data)
		case realtime.EventTypingStart, realtime.EventTypingStop:
			c.service.handleTyping(c, frame.Event, frame.Data)
		case realtime.EventGetOnlineUsers:
			c.service.handleRosterRequest(c, frame.Data)
		default:
			c.service.logger.Debug().Str("event", frame.Event).Msg("ignoring unknown event")
		}
	}
}

func (c *roomClient) writer() {
	defer c.close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.service.logger.Debug().Err(err).Msg("room write loop terminated")
				return
			}
		case <-time.After(pingInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("room ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

// ack answers a request frame, echoing its sequence number.
func (c *roomClient) ack(seq uint64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.service.logger.Warn().Err(err).Msg("failed to marshal ack")
		return
	}
	c.deliver(realtime.Frame{Event: realtime.EventAck, Seq: seq, Data: data})
}

func (c *roomClient) deliver(frame realtime.Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.service.logger.Warn().Str("user_id", c.options.UserID).Str("event", frame.Event).Msg("dropping frame for slow client")
	}
}

func (c *roomClient) markJoined(roomID string, state *joinedRoom) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.joined[roomID]; ok {
		c.joined[roomID] = state
		return false
	}
	c.joined[roomID] = state
	return true
}

func (c *roomClient) markLeft(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.joined[roomID]; !ok {
		return false
	}
	delete(c.joined, roomID)
	return true
}

func (c *roomClient) isJoined(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[roomID]
	return ok
}

func (c *roomClient) joinedRoom(roomID string) (*joinedRoom, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.joined[roomID]
	return state, ok
}

func (c *roomClient) close() {
	c.once.Do(func() {
		close(c.closed)

		c.mu.Lock()
		rooms := make([]string, 0, len(c.joined))
		for roomID := range c.joined {
			rooms = append(rooms, roomID)
		}
		c.joined = make(map[string]*joinedRoom)
		c.mu.Unlock()

		for _, roomID := range rooms {
			c.service.hub.remove(roomID, c)
			c.service.broadcastPresence(roomID, realtime.EventUserLeft, c)
		}
		_ = c.conn.Close()
	})
}

// sendPayload carries validation tags for inbound send_message frames.
type sendPayload struct {
	RoomID  string `validate:"required,min=1,max=64"`
	Content string `validate:"max=4000"`
	Type    string `validate:"omitempty,oneof=text image gif system"`
}

func messageToWire(m models.ChatMessage) realtime.Message {
	return realtime.Message{
		ID:            m.ID,
		RoomID:        m.RoomID,
		SenderID:      m.SenderID,
		Content:       m.Content,
		Type:          m.Type,
		AttachmentURL: m.AttachmentURL,
		CorrelationID: m.CorrelationID,
		CreatedAt:     m.CreatedAt,
	}
}

func historyToWire(messages []models.ChatMessage) []realtime.Message {
	out := make([]realtime.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageToWire(m))
	}
	return out
}
