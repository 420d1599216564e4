package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/Instaken/realtimechat-app/internal/models"
	"github.com/Instaken/realtimechat-app/internal/observability"
	"github.com/Instaken/realtimechat-app/internal/repository"
	"github.com/Instaken/realtimechat-app/pkg/realtime"
)

// Moderation errors surfaced to the REST layer.
var (
	ErrNotModerator  = errors.New("caller is not a moderator of this room")
	ErrNotOwner      = errors.New("caller is not the owner of this room")
	ErrSelfTarget    = errors.New("cannot moderate yourself")
	ErrOwnerImmune   = errors.New("the room owner cannot be moderated")
	ErrTargetUnknown = errors.New("target is not a participant of this room")
)

// ModerationService applies mute, ban and role commands, persisting the
// change and pushing it to connected clients.
type ModerationService interface {
	Mute(ctx context.Context, roomID, actorID, targetID string) error
	Unmute(ctx context.Context, roomID, actorID, targetID string) error
	Ban(ctx context.Context, roomID, actorID, targetID string) error
	Unban(ctx context.Context, roomID, actorID, targetID string) error
	SetModerator(ctx context.Context, roomID, actorID, targetID string, moderator bool) error
}

type moderationService struct {
	rooms  repository.RoomRepository
	pusher ParticipantPusher
	logger zerolog.Logger
}

// ParticipantPusher delivers participant changes to connected room members.
type ParticipantPusher interface {
	PushParticipantUpdate(update realtime.ParticipantUpdate)
}

// NewModerationService creates the moderation command service.
func NewModerationService(rooms repository.RoomRepository, pusher ParticipantPusher, logger zerolog.Logger) ModerationService {
	return &moderationService{
		rooms:  rooms,
		pusher: pusher,
		logger: logger.With().Str("component", "moderation_service").Logger(),
	}
}

func (s *moderationService) Mute(ctx context.Context, roomID, actorID, targetID string) error {
	return s.setStatus(ctx, roomID, actorID, targetID, models.StatusMuted, "mute")
}

func (s *moderationService) Unmute(ctx context.Context, roomID, actorID, targetID string) error {
	return s.setStatus(ctx, roomID, actorID, targetID, models.StatusActive, "unmute")
}

func (s *moderationService) Ban(ctx context.Context, roomID, actorID, targetID string) error {
	return s.setStatus(ctx, roomID, actorID, targetID, models.StatusBanned, "ban")
}

func (s *moderationService) Unban(ctx context.Context, roomID, actorID, targetID string) error {
	return s.setStatus(ctx, roomID, actorID, targetID, models.StatusActive, "unban")
}

// SetModerator grants or revokes the moderator role. Owner only; the owner's
// own role never changes.
func (s *moderationService) SetModerator(ctx context.Context, roomID, actorID, targetID string, moderator bool) error {
	actor, err := s.rooms.Participant(ctx, roomID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotOwner
		}
		return err
	}
	if actor.Role != models.RoleOwner {
		return ErrNotOwner
	}
	if targetID == actorID {
		return ErrSelfTarget
	}

	target, err := s.rooms.Participant(ctx, roomID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetUnknown
		}
		return err
	}
	if target.Role == models.RoleOwner {
		return ErrOwnerImmune
	}

	role := models.RoleMember
	if moderator {
		role = models.RoleModerator
	}
	if err := s.rooms.SetParticipantRole(ctx, roomID, targetID, role); err != nil {
		return err
	}

	s.push(roomID, target, role, target.Status)
	observability.ModerationActions().WithLabelValues("set_moderator").Inc()
	s.logger.Info().Str("room_id", roomID).Str("actor_id", actorID).Str("target_id", targetID).Str("role", role).Msg("moderator role updated")
	return nil
}

func (s *moderationService) setStatus(ctx context.Context, roomID, actorID, targetID, status, action string) error {
	actor, err := s.rooms.Participant(ctx, roomID, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotModerator
		}
		return err
	}
	if actor.Role != models.RoleOwner && actor.Role != models.RoleModerator {
		return ErrNotModerator
	}
	if targetID == actorID {
		return ErrSelfTarget
	}

	target, err := s.rooms.Participant(ctx, roomID, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTargetUnknown
		}
		return err
	}
	if target.Role == models.RoleOwner {
		return ErrOwnerImmune
	}

	if err := s.rooms.SetParticipantStatus(ctx, roomID, targetID, status); err != nil {
		return err
	}

	s.push(roomID, target, target.Role, status)
	observability.ModerationActions().WithLabelValues(action).Inc()
	s.logger.Info().Str("room_id", roomID).Str("actor_id", actorID).Str("target_id", targetID).Str("status", status).Msg("participant status updated")
	return nil
}

func (s *moderationService) push(roomID string, target models.RoomParticipant, role, status string) {
	if s.pusher == nil {
		return
	}
	s.pusher.PushParticipantUpdate(realtime.ParticipantUpdate{
		RoomID:   roomID,
		UserID:   target.UserID,
		Username: target.Username,
		Role:     realtime.Role(role),
		Status:   realtime.Status(status),
	})
}
