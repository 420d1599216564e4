package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Instaken/realtimechat-app/internal/repository"
)

const retentionSweepInterval = time.Hour

// RetentionService periodically deletes messages older than each room's
// retention window.
type RetentionService interface {
	Start(ctx context.Context)
	SweepOnce(ctx context.Context) error
}

type retentionService struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	interval time.Duration
	logger   zerolog.Logger
}

// NewRetentionService creates the retention sweeper.
func NewRetentionService(rooms repository.RoomRepository, messages repository.MessageRepository, logger zerolog.Logger) RetentionService {
	return &retentionService{
		rooms:    rooms,
		messages: messages,
		interval: retentionSweepInterval,
		logger:   logger.With().Str("component", "retention_service").Logger(),
	}
}

func (s *retentionService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.SweepOnce(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("retention sweep failed")
				}
			}
		}
	}()
}

// SweepOnce applies every room's retention window once.
func (s *retentionService) SweepOnce(ctx context.Context) error {
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, room := range rooms {
		if room.RetentionDays <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -room.RetentionDays)
		deleted, err := s.messages.DeleteOlderThan(ctx, room.ID, cutoff)
		if err != nil {
			s.logger.Warn().Err(err).Str("room_id", room.ID).Msg("retention delete failed")
			continue
		}
		if deleted > 0 {
			s.logger.Info().Str("room_id", room.ID).Int64("deleted", deleted).Msg("expired messages removed")
		}
	}
	return nil
}
