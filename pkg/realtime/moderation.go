package realtime

// Role is a participant's role within a room.
type Role string

// Roles, highest privilege first.
const (
	RoleOwner     Role = "OWNER"
	RoleModerator Role = "MODERATOR"
	RoleMember    Role = "MEMBER"
)

// Status is a participant's moderation status within a room.
type Status string

// Statuses. Muted participants stay in the roster and read messages but may
// not send; banned participants may not send and are rejected on join.
const (
	StatusActive Status = "ACTIVE"
	StatusMuted  Status = "MUTED"
	StatusBanned Status = "BANNED"
)

// Participant is the externally supplied participant record consumed by the
// moderation gate. It is refreshed by the REST layer, never owned here.
type Participant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}

// CanSend reports whether the participant may currently send messages. A nil
// participant is not yet recognized and may not send. Role never affects the
// result.
func CanSend(p *Participant) bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case StatusMuted, StatusBanned:
		return false
	}
	return true
}

// CanModerate reports whether self may issue mute/unmute/ban/unban commands
// against target. Owners are never valid targets, and nobody moderates
// themselves.
func CanModerate(self, target *Participant) bool {
	if self == nil || target == nil {
		return false
	}
	if self.Role != RoleOwner && self.Role != RoleModerator {
		return false
	}
	if self.UserID == target.UserID {
		return false
	}
	return target.Role != RoleOwner
}

// CanManageModerators reports whether self may grant or revoke the moderator
// role. Restricted to the room owner.
func CanManageModerators(self *Participant) bool {
	return self != nil && self.Role == RoleOwner
}
