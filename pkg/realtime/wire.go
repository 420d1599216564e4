package realtime

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the room channel.
const (
	EventJoinRoom           = "join_room"
	EventLeaveRoom          = "leave_room"
	EventSendMessage        = "send_message"
	EventReceiveMessage     = "receive_message"
	EventUserJoined         = "user_joined"
	EventUserLeft           = "user_left"
	EventOnlineUsers        = "online_users"
	EventTypingStart        = "typing_start"
	EventTypingStop         = "typing_stop"
	EventGetOnlineUsers     = "get_online_users"
	EventParticipantUpdated = "participant_updated"
	EventAck                = "ack"
)

// Frame is the JSON envelope carried on the room channel. Requests assign a
// client-side Seq; the server answers with an EventAck frame echoing it.
// Fire-and-forget events leave Seq zero.
type Frame struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// User identifies a chat participant as seen on the wire.
type User struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	SocketID string `json:"socketId,omitempty"`
}

// Message is a chat message as delivered on the wire. Immutable once created;
// ID is unique within a room.
type Message struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	SenderID      string    `json:"senderId"`
	Content       string    `json:"content"`
	Type          string    `json:"type"`
	AttachmentURL string    `json:"attachmentUrl,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// JoinRequest asks the server to subscribe this connection to a room.
type JoinRequest struct {
	RoomID string `json:"roomId"`
}

// JoinAck acknowledges a join request. OnlineUsers and Messages are optional
// snapshots of the roster and recent history at join time.
type JoinAck struct {
	OK          bool      `json:"ok"`
	RoomID      string    `json:"roomId"`
	OnlineUsers []User    `json:"onlineUsers,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// LeaveRequest notifies the server the client is leaving a room. No ack.
type LeaveRequest struct {
	RoomID string `json:"roomId"`
}

// SendRequest carries an outbound chat message. CorrelationID is a
// client-generated token used to reconcile the optimistic local entry with
// the server-assigned message.
type SendRequest struct {
	RoomID        string `json:"roomId"`
	Content       string `json:"content"`
	Type          string `json:"type,omitempty"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// SendAck acknowledges a send request with the authoritative message.
type SendAck struct {
	OK        bool     `json:"ok"`
	MessageID string   `json:"messageId,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// PresencePayload is the body of user_joined and user_left events.
type PresencePayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	SocketID string `json:"socketId,omitempty"`
}

// RosterPayload is the body of an online_users replace-all broadcast.
type RosterPayload struct {
	RoomID string `json:"roomId"`
	Users  []User `json:"users"`
}

// TypingPayload is the body of typing_start and typing_stop events.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RosterRequest is the body of the on-demand get_online_users fallback.
type RosterRequest struct {
	RoomID string `json:"roomId"`
}

// ParticipantUpdate announces an authoritative role or status change for a
// participant who may be connected right now. Gating updates in place; the
// connection is not interrupted.
type ParticipantUpdate struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}
