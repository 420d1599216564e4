package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Instaken/realtimechat-app/internal/dto"
	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/pkg/realtime"
)

type stubMessageRepo struct {
	saved     []models.ChatMessage
	byRoom    map[string][]models.ChatMessage
	saveErr   error
	listErr   error
	deleteBy  map[string]time.Time
	lastLimit int
}

func newStubMessageRepo() *stubMessageRepo {
	return &stubMessageRepo{
		byRoom:   make(map[string][]models.ChatMessage),
		deleteBy: make(map[string]time.Time),
	}
}

func (s *stubMessageRepo) Save(_ context.Context, message *models.ChatMessage) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, *message)
	s.byRoom[message.RoomID] = append(s.byRoom[message.RoomID], *message)
	return nil
}

func (s *stubMessageRepo) ListByRoom(_ context.Context, roomID string, _ time.Time, limit int) ([]models.ChatMessage, error) {
	s.lastLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.byRoom[roomID], nil
}

func (s *stubMessageRepo) LatestByRoom(_ context.Context, roomID string) (models.ChatMessage, error) {
	messages := s.byRoom[roomID]
	if len(messages) == 0 {
		return models.ChatMessage{}, repository.ErrNotFound
	}
	return messages[len(messages)-1], nil
}

func (s *stubMessageRepo) DeleteOlderThan(_ context.Context, roomID string, cutoff time.Time) (int64, error) {
	s.deleteBy[roomID] = cutoff
	return 0, nil
}

func newTestRoomService(t *testing.T, rooms repository.RoomRepository, messages repository.MessageRepository, redisClient *redis.Client, channelBase string) *roomService {
	t.Helper()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewRoomService(rooms, messages, redisClient, channelBase, nil, validate, 0, zerolog.Nop())
	return svc.(*roomService)
}

func newHubClient(userID, username string) *roomClient {
	return &roomClient{
		send:    make(chan []byte, 16),
		options: ConnectionOptions{UserID: userID, Username: username},
		closed:  make(chan struct{}),
		joined:  make(map[string]*joinedRoom),
	}
}

func readFrame(t *testing.T, client *roomClient) realtime.Frame {
	t.Helper()
	select {
	case payload := <-client.send:
		var frame realtime.Frame
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return realtime.Frame{}
	}
}

func TestHistoryValidatesQuery(t *testing.T) {
	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), nil, "")

	_, err := svc.History(context.Background(), dto.HistoryQuery{})
	require.Error(t, err)

	_, err = svc.History(context.Background(), dto.HistoryQuery{RoomID: "r1", Limit: 500})
	require.Error(t, err)
}

func TestHistoryReturnsRoomMessages(t *testing.T) {
	messages := newStubMessageRepo()
	messages.byRoom["r1"] = []models.ChatMessage{
		{ID: "m1", RoomID: "r1", Content: "hello", Type: "text"},
	}
	svc := newTestRoomService(t, newStubRoomRepo(), messages, nil, "")

	out, err := svc.History(context.Background(), dto.HistoryQuery{RoomID: "r1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "m1", out[0].ID)
}

func TestHistoryAppliesConfiguredDefaultLimit(t *testing.T) {
	messages := newStubMessageRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewRoomService(newStubRoomRepo(), messages, nil, "", nil, validate, 25, zerolog.Nop()).(*roomService)

	_, err := svc.History(context.Background(), dto.HistoryQuery{RoomID: "r1"})
	require.NoError(t, err)
	require.Equal(t, 25, messages.lastLimit)

	// An explicit limit wins over the configured default.
	_, err = svc.History(context.Background(), dto.HistoryQuery{RoomID: "r1", Limit: 5})
	require.NoError(t, err)
	require.Equal(t, 5, messages.lastLimit)
}

func TestJoinSnapshotHistoryUsesConfiguredLimit(t *testing.T) {
	rooms := newStubRoomRepo()
	rooms.rooms["r1"] = models.Room{ID: "r1", Name: "General", Slug: "general", TypingIndicators: true}
	messages := newStubMessageRepo()
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewRoomService(rooms, messages, nil, "", nil, validate, 25, zerolog.Nop()).(*roomService)

	client := newHubClient("u1", "Alice")
	client.service = svc

	data, err := json.Marshal(realtime.JoinRequest{RoomID: "r1"})
	require.NoError(t, err)
	svc.handleJoin(context.Background(), client, 1, data)

	frame := readFrame(t, client)
	require.Equal(t, realtime.EventAck, frame.Event)
	require.Equal(t, 25, messages.lastLimit)
}

func TestEnsureParticipantFirstJoinerOwnsRoom(t *testing.T) {
	rooms := newStubRoomRepo()
	rooms.rooms["r1"] = models.Room{ID: "r1", Name: "General", Slug: "general"}
	svc := newTestRoomService(t, rooms, newStubMessageRepo(), nil, "")

	first, err := svc.ensureParticipant(context.Background(), rooms.rooms["r1"], ConnectionOptions{UserID: "u1", Username: "Alice"})
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, first.Role)

	second, err := svc.ensureParticipant(context.Background(), rooms.rooms["r1"], ConnectionOptions{UserID: "u2", Username: "Bob"})
	require.NoError(t, err)
	require.Equal(t, models.RoleMember, second.Role)

	// Returning users keep their stored record.
	repeat, err := svc.ensureParticipant(context.Background(), rooms.rooms["r1"], ConnectionOptions{UserID: "u1", Username: "Alice Again"})
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, repeat.Role)
	require.Equal(t, "Alice", repeat.Username)
}

func TestOnlineUsersDeduplicatesConnections(t *testing.T) {
	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), nil, "")

	a1 := newHubClient("u1", "Alice")
	a2 := newHubClient("u1", "Alice")
	b := newHubClient("u2", "Bob")
	svc.hub.add("r1", a1)
	svc.hub.add("r1", a2)
	svc.hub.add("r1", b)

	users := svc.onlineUsers("r1")
	require.Len(t, users, 2)
	require.Equal(t, 3, svc.OnlineCount("r1"))
}

func TestBroadcastFrameSkipsSender(t *testing.T) {
	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), nil, "")

	sender := newHubClient("u1", "Alice")
	receiver := newHubClient("u2", "Bob")
	svc.hub.add("r1", sender)
	svc.hub.add("r1", receiver)

	payload, _ := json.Marshal(realtime.TypingPayload{RoomID: "r1", UserID: "u1", Username: "Alice"})
	svc.broadcastFrame("r1", realtime.EventTypingStart, payload, sender)

	frame := readFrame(t, receiver)
	require.Equal(t, realtime.EventTypingStart, frame.Event)
	require.Empty(t, sender.send)
}

func TestParticipantUpdateReachesRoom(t *testing.T) {
	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), nil, "")

	client := newHubClient("u2", "Bob")
	svc.hub.add("r1", client)

	svc.PushParticipantUpdate(realtime.ParticipantUpdate{
		RoomID: "r1", UserID: "u2", Role: realtime.RoleMember, Status: realtime.StatusMuted,
	})

	frame := readFrame(t, client)
	require.Equal(t, realtime.EventParticipantUpdated, frame.Event)

	var update realtime.ParticipantUpdate
	require.NoError(t, json.Unmarshal(frame.Data, &update))
	require.Equal(t, realtime.StatusMuted, update.Status)
}

func TestLastMessageRoundTripsThroughRedis(t *testing.T) {
	mini := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), redisClient, "chat")

	message := dto.MessageResponse{ID: "m1", RoomID: "r1", SenderID: "u1", Content: "hello", Type: "text", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	svc.cacheLastMessage(context.Background(), message)

	cached := svc.LastMessage(context.Background(), "r1")
	require.NotNil(t, cached)
	require.Equal(t, "m1", cached.ID)
	require.Equal(t, "hello", cached.Content)

	require.Nil(t, svc.LastMessage(context.Background(), "empty"))
}

func TestLastMessageFallsBackToStore(t *testing.T) {
	mini := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	messages := newStubMessageRepo()
	messages.byRoom["r1"] = []models.ChatMessage{
		{ID: "m1", RoomID: "r1", Content: "older", Type: "text"},
		{ID: "m2", RoomID: "r1", Content: "newest", Type: "text"},
	}
	svc := newTestRoomService(t, newStubRoomRepo(), messages, redisClient, "chat")

	// Nothing cached yet: the store answers and the result is cached.
	last := svc.LastMessage(context.Background(), "r1")
	require.NotNil(t, last)
	require.Equal(t, "m2", last.ID)
	require.True(t, mini.Exists("chat:rooms:last:r1"))

	require.Nil(t, svc.LastMessage(context.Background(), "silent"))
}

func TestFanoutIgnoresOwnEvents(t *testing.T) {
	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), nil, "")

	client := newHubClient("u2", "Bob")
	svc.hub.add("r1", client)

	data, _ := json.Marshal(realtime.PresencePayload{RoomID: "r1", UserID: "u3", Username: "Carol"})

	own, _ := json.Marshal(fanoutEvent{Source: svc.nodeID, RoomID: "r1", Event: realtime.EventUserJoined, Data: data})
	svc.handleFanout(own)
	require.Empty(t, client.send)

	remote, _ := json.Marshal(fanoutEvent{Source: "other-node", RoomID: "r1", Event: realtime.EventUserJoined, Data: data})
	svc.handleFanout(remote)
	frame := readFrame(t, client)
	require.Equal(t, realtime.EventUserJoined, frame.Event)
}

func TestFanoutPublishesToRedisChannel(t *testing.T) {
	mini := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	svc := newTestRoomService(t, newStubRoomRepo(), newStubMessageRepo(), redisClient, "chat")

	sub := redisClient.Subscribe(context.Background(), "chat:rooms")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	payload, _ := json.Marshal(realtime.PresencePayload{RoomID: "r1", UserID: "u1"})
	require.NoError(t, svc.publish(context.Background(), "r1", realtime.EventUserJoined, payload))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event fanoutEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, svc.nodeID, event.Source)
	require.Equal(t, realtime.EventUserJoined, event.Event)
	require.Equal(t, "r1", event.RoomID)
}
