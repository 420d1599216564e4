package models

import (
	"time"

	"gorm.io/datatypes"
)

// Participant roles and statuses stored on room membership rows.
const (
	RoleOwner     = "OWNER"
	RoleModerator = "MODERATOR"
	RoleMember    = "MEMBER"

	StatusActive = "ACTIVE"
	StatusMuted  = "MUTED"
	StatusBanned = "BANNED"
)

// Room represents a chat room and its configuration.
type Room struct {
	ID               string            `gorm:"primaryKey;size:64" json:"id"`
	Name             string            `gorm:"size:255;not null" json:"name"`
	Slug             string            `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Capacity         int               `gorm:"not null;default:100" json:"capacity"`
	RetentionDays    int               `gorm:"not null;default:30" json:"retentionDays"`
	TypingIndicators bool              `gorm:"not null;default:true" json:"typingIndicators"`
	Theme            datatypes.JSONMap `gorm:"type:json" json:"theme"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// RoomParticipant is a user's membership in a room, carrying the role and
// moderation status the send and moderation gates evaluate.
type RoomParticipant struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RoomID    string    `gorm:"size:64;uniqueIndex:idx_room_user;not null" json:"roomId"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_room_user;not null" json:"userId"`
	Username  string    `gorm:"size:255" json:"username"`
	Role      string    `gorm:"size:32;not null;default:MEMBER" json:"role"`
	Status    string    `gorm:"size:32;not null;default:ACTIVE" json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatMessage represents a persisted room message.
type ChatMessage struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	RoomID        string    `gorm:"size:64;index:idx_room_created" json:"roomId"`
	SenderID      string    `gorm:"size:64;index" json:"senderId"`
	Content       string    `gorm:"type:text" json:"content"`
	Type          string    `gorm:"size:32;default:text" json:"type"`
	AttachmentURL string    `gorm:"size:1024" json:"attachmentUrl,omitempty"`
	CorrelationID string    `gorm:"size:64" json:"correlationId,omitempty"`
	CreatedAt     time.Time `gorm:"index:idx_room_created" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
