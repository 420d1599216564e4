package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Instaken/realtimechat-app/internal/models"
)

func TestRoomRepositoryCreateAndLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	room := models.Room{ID: "r1", Name: "General", Slug: "general", Capacity: 50, RetentionDays: 30, TypingIndicators: true}
	require.NoError(t, repo.Create(ctx, &room))

	byID, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, "General", byID.Name)

	bySlug, err := repo.GetBySlug(ctx, "general")
	require.NoError(t, err)
	require.Equal(t, "r1", bySlug.ID)

	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRoomRepositoryParticipantLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Room{ID: "r1", Name: "General", Slug: "general"}))

	owner := models.RoomParticipant{RoomID: "r1", UserID: "u1", Username: "Alice", Role: models.RoleOwner, Status: models.StatusActive}
	require.NoError(t, repo.UpsertParticipant(ctx, &owner))

	member := models.RoomParticipant{RoomID: "r1", UserID: "u2", Username: "Bob", Role: models.RoleMember, Status: models.StatusActive}
	require.NoError(t, repo.UpsertParticipant(ctx, &member))

	// Upserting the same membership refreshes the username, not the role.
	again := models.RoomParticipant{RoomID: "r1", UserID: "u1", Username: "Alice K", Role: models.RoleMember, Status: models.StatusActive}
	require.NoError(t, repo.UpsertParticipant(ctx, &again))

	stored, err := repo.Participant(ctx, "r1", "u1")
	require.NoError(t, err)
	require.Equal(t, "Alice K", stored.Username)
	require.Equal(t, models.RoleOwner, stored.Role)

	participants, err := repo.Participants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, participants, 2)

	require.NoError(t, repo.SetParticipantStatus(ctx, "r1", "u2", models.StatusMuted))
	muted, err := repo.Participant(ctx, "r1", "u2")
	require.NoError(t, err)
	require.Equal(t, models.StatusMuted, muted.Status)

	require.NoError(t, repo.SetParticipantRole(ctx, "r1", "u2", models.RoleModerator))
	promoted, err := repo.Participant(ctx, "r1", "u2")
	require.NoError(t, err)
	require.Equal(t, models.RoleModerator, promoted.Role)

	require.ErrorIs(t, repo.SetParticipantStatus(ctx, "r1", "ghost", models.StatusMuted), ErrNotFound)
	require.ErrorIs(t, repo.SetParticipantRole(ctx, "r1", "ghost", models.RoleModerator), ErrNotFound)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Room{}, &models.RoomParticipant{}, &models.ChatMessage{}))
	return db
}
