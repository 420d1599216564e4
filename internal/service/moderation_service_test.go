package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/pkg/realtime"
)

type stubRoomRepo struct {
	rooms        map[string]models.Room
	participants map[string]models.RoomParticipant // roomID|userID
	statusCalls  []string
	roleCalls    []string
}

func newStubRoomRepo() *stubRoomRepo {
	return &stubRoomRepo{
		rooms:        make(map[string]models.Room),
		participants: make(map[string]models.RoomParticipant),
	}
}

func key(roomID, userID string) string { return roomID + "|" + userID }

func (s *stubRoomRepo) Create(_ context.Context, room *models.Room) error {
	s.rooms[room.ID] = *room
	return nil
}

func (s *stubRoomRepo) Get(_ context.Context, roomID string) (models.Room, error) {
	room, ok := s.rooms[roomID]
	if !ok {
		return models.Room{}, repository.ErrNotFound
	}
	return room, nil
}

func (s *stubRoomRepo) GetBySlug(_ context.Context, slug string) (models.Room, error) {
	for _, room := range s.rooms {
		if room.Slug == slug {
			return room, nil
		}
	}
	return models.Room{}, repository.ErrNotFound
}

func (s *stubRoomRepo) List(_ context.Context) ([]models.Room, error) {
	out := make([]models.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (s *stubRoomRepo) Participants(_ context.Context, roomID string) ([]models.RoomParticipant, error) {
	var out []models.RoomParticipant
	for _, p := range s.participants {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubRoomRepo) Participant(_ context.Context, roomID, userID string) (models.RoomParticipant, error) {
	p, ok := s.participants[key(roomID, userID)]
	if !ok {
		return models.RoomParticipant{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *stubRoomRepo) UpsertParticipant(_ context.Context, participant *models.RoomParticipant) error {
	s.participants[key(participant.RoomID, participant.UserID)] = *participant
	return nil
}

func (s *stubRoomRepo) SetParticipantStatus(_ context.Context, roomID, userID, status string) error {
	p, ok := s.participants[key(roomID, userID)]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	s.participants[key(roomID, userID)] = p
	s.statusCalls = append(s.statusCalls, userID+":"+status)
	return nil
}

func (s *stubRoomRepo) SetParticipantRole(_ context.Context, roomID, userID, role string) error {
	p, ok := s.participants[key(roomID, userID)]
	if !ok {
		return repository.ErrNotFound
	}
	p.Role = role
	s.participants[key(roomID, userID)] = p
	s.roleCalls = append(s.roleCalls, userID+":"+role)
	return nil
}

type recordingPusher struct {
	updates []realtime.ParticipantUpdate
}

func (r *recordingPusher) PushParticipantUpdate(update realtime.ParticipantUpdate) {
	r.updates = append(r.updates, update)
}

func moderationFixture(t *testing.T) (*stubRoomRepo, *recordingPusher, ModerationService) {
	t.Helper()
	repo := newStubRoomRepo()
	repo.rooms["r1"] = models.Room{ID: "r1", Name: "General", Slug: "general"}
	repo.participants[key("r1", "owner")] = models.RoomParticipant{RoomID: "r1", UserID: "owner", Username: "Olive", Role: models.RoleOwner, Status: models.StatusActive}
	repo.participants[key("r1", "mod")] = models.RoomParticipant{RoomID: "r1", UserID: "mod", Username: "Max", Role: models.RoleModerator, Status: models.StatusActive}
	repo.participants[key("r1", "member")] = models.RoomParticipant{RoomID: "r1", UserID: "member", Username: "Bob", Role: models.RoleMember, Status: models.StatusActive}

	pusher := &recordingPusher{}
	return repo, pusher, NewModerationService(repo, pusher, zerolog.Nop())
}

func TestModeratorCanMuteMember(t *testing.T) {
	repo, pusher, svc := moderationFixture(t)

	require.NoError(t, svc.Mute(context.Background(), "r1", "mod", "member"))
	require.Equal(t, []string{"member:MUTED"}, repo.statusCalls)
	require.Len(t, pusher.updates, 1)
	require.Equal(t, realtime.StatusMuted, pusher.updates[0].Status)
	require.Equal(t, "member", pusher.updates[0].UserID)
}

func TestMemberCannotModerate(t *testing.T) {
	_, pusher, svc := moderationFixture(t)

	err := svc.Mute(context.Background(), "r1", "member", "mod")
	require.ErrorIs(t, err, ErrNotModerator)
	require.Empty(t, pusher.updates)
}

func TestOwnerCannotBeModerated(t *testing.T) {
	_, pusher, svc := moderationFixture(t)

	err := svc.Ban(context.Background(), "r1", "mod", "owner")
	require.ErrorIs(t, err, ErrOwnerImmune)
	require.Empty(t, pusher.updates)
}

func TestSelfModerationRejected(t *testing.T) {
	_, _, svc := moderationFixture(t)

	err := svc.Mute(context.Background(), "r1", "mod", "mod")
	require.ErrorIs(t, err, ErrSelfTarget)
}

func TestUnbanRestoresActiveStatus(t *testing.T) {
	repo, pusher, svc := moderationFixture(t)
	p := repo.participants[key("r1", "member")]
	p.Status = models.StatusBanned
	repo.participants[key("r1", "member")] = p

	require.NoError(t, svc.Unban(context.Background(), "r1", "owner", "member"))
	require.Equal(t, models.StatusActive, repo.participants[key("r1", "member")].Status)
	require.Equal(t, realtime.StatusActive, pusher.updates[0].Status)
}

func TestOnlyOwnerGrantsModerator(t *testing.T) {
	repo, pusher, svc := moderationFixture(t)

	err := svc.SetModerator(context.Background(), "r1", "mod", "member", true)
	require.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, svc.SetModerator(context.Background(), "r1", "owner", "member", true))
	require.Equal(t, models.RoleModerator, repo.participants[key("r1", "member")].Role)
	require.Equal(t, realtime.RoleModerator, pusher.updates[0].Role)

	require.NoError(t, svc.SetModerator(context.Background(), "r1", "owner", "member", false))
	require.Equal(t, models.RoleMember, repo.participants[key("r1", "member")].Role)
}

func TestModerateUnknownTarget(t *testing.T) {
	_, _, svc := moderationFixture(t)

	err := svc.Mute(context.Background(), "r1", "owner", "ghost")
	require.ErrorIs(t, err, ErrTargetUnknown)
}
