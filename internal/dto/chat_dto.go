package dto

import (
	"time"

	"github.com/Instaken/realtimechat-app/internal/models"
)

// RoomCreateRequest is the payload to create a chat room.
type RoomCreateRequest struct {
	Name             string            `json:"name" validate:"required,min=3,max=255"`
	Slug             string            `json:"slug" validate:"required,min=3,max=255,lowercase"`
	Capacity         int               `json:"capacity" validate:"omitempty,min=2,max=10000"`
	RetentionDays    int               `json:"retentionDays" validate:"omitempty,min=1,max=365"`
	TypingIndicators *bool             `json:"typingIndicators"`
	Theme            map[string]string `json:"theme" validate:"omitempty,max=16"`
}

// RoomResponse is the serialized room configuration.
type RoomResponse struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Slug             string            `json:"slug"`
	Capacity         int               `json:"capacity"`
	RetentionDays    int               `json:"retentionDays"`
	TypingIndicators bool              `json:"typingIndicators"`
	Theme            map[string]string `json:"theme,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// NewRoomResponse converts a room model into a DTO.
func NewRoomResponse(room models.Room) RoomResponse {
	response := RoomResponse{
		ID:               room.ID,
		Name:             room.Name,
		Slug:             room.Slug,
		Capacity:         room.Capacity,
		RetentionDays:    room.RetentionDays,
		TypingIndicators: room.TypingIndicators,
		CreatedAt:        room.CreatedAt,
	}
	if room.Theme != nil {
		response.Theme = make(map[string]string)
		for key, value := range room.Theme {
			if str, ok := value.(string); ok {
				response.Theme[key] = str
			}
		}
	}
	return response
}

// RoomListItem is a room plus its most recent message, for sidebar listings.
type RoomListItem struct {
	RoomResponse
	LastMessage *MessageResponse `json:"lastMessage,omitempty"`
}

// ParticipantResponse is the serialized room membership record.
type ParticipantResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// NewParticipantResponse converts a membership model into a DTO.
func NewParticipantResponse(p models.RoomParticipant) ParticipantResponse {
	return ParticipantResponse{
		UserID:   p.UserID,
		Username: p.Username,
		Role:     p.Role,
		Status:   p.Status,
	}
}

// NewParticipantResponseSlice converts memberships into DTOs.
func NewParticipantResponseSlice(items []models.RoomParticipant) []ParticipantResponse {
	out := make([]ParticipantResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewParticipantResponse(item))
	}
	return out
}

// HistoryQuery represents query filters for retrieving room history.
type HistoryQuery struct {
	RoomID string     `query:"room_id" validate:"required,min=1,max=64"`
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MessageResponse is the serialized representation of a room message.
type MessageResponse struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content"`
	Type          string    `json:"type"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:            message.ID,
		RoomID:        message.RoomID,
		SenderID:      message.SenderID,
		Content:       message.Content,
		Type:          message.Type,
		AttachmentURL: message.AttachmentURL,
		CorrelationID: message.CorrelationID,
		CreatedAt:     message.CreatedAt,
	}
}

// NewMessageResponseSlice converts a slice of messages into DTOs.
func NewMessageResponseSlice(messages []models.ChatMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// ModeratorUpdateRequest grants or revokes the moderator role on a member.
type ModeratorUpdateRequest struct {
	UserID      string `json:"userId" validate:"required,max=64"`
	IsModerator bool   `json:"isModerator"`
}
