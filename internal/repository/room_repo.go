package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Instaken/realtimechat-app/internal/models"
)

// ErrNotFound indicates a missing room or participant record.
var ErrNotFound = errors.New("record not found")

// RoomRepository persists rooms and their membership records.
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, roomID string) (models.Room, error)
	GetBySlug(ctx context.Context, slug string) (models.Room, error)
	List(ctx context.Context) ([]models.Room, error)

	Participants(ctx context.Context, roomID string) ([]models.RoomParticipant, error)
	Participant(ctx context.Context, roomID, userID string) (models.RoomParticipant, error)
	UpsertParticipant(ctx context.Context, participant *models.RoomParticipant) error
	SetParticipantStatus(ctx context.Context, roomID, userID, status string) error
	SetParticipantRole(ctx context.Context, roomID, userID, role string) error
}

type roomRepository struct {
	db *gorm.DB
}

// NewRoomRepository constructs a room repository backed by GORM.
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &roomRepository{db: db}
}

func (r *roomRepository) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *roomRepository) Get(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Where("id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Room{}, ErrNotFound
	}
	return room, err
}

func (r *roomRepository) GetBySlug(ctx context.Context, slug string) (models.Room, error) {
	var room models.Room
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Room{}, ErrNotFound
	}
	return room, err
}

func (r *roomRepository) List(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rooms).Error
	return rooms, err
}

func (r *roomRepository) Participants(ctx context.Context, roomID string) ([]models.RoomParticipant, error) {
	var participants []models.RoomParticipant
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC").Find(&participants).Error
	return participants, err
}

func (r *roomRepository) Participant(ctx context.Context, roomID, userID string) (models.RoomParticipant, error) {
	var participant models.RoomParticipant
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoomParticipant{}, ErrNotFound
	}
	return participant, err
}

func (r *roomRepository) UpsertParticipant(ctx context.Context, participant *models.RoomParticipant) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
	}).Create(participant).Error
}

func (r *roomRepository) SetParticipantStatus(ctx context.Context, roomID, userID, status string) error {
	result := r.db.WithContext(ctx).Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *roomRepository) SetParticipantRole(ctx context.Context, roomID, userID, role string) error {
	result := r.db.WithContext(ctx).Model(&models.RoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
