package realtime

import "sort"

// AnonymousUsername is the placeholder shown when no source can resolve a
// participant's username.
const AnonymousUsername = "Anonymous"

// PresenceEventKind discriminates the three channels presence information
// arrives on.
type PresenceEventKind int

const (
	// PresenceReplaceAll carries an authoritative full roster: the join
	// snapshot or an online_users broadcast. The current roster is discarded,
	// never merged, so stale entries from a previous connection cannot
	// accumulate.
	PresenceReplaceAll PresenceEventKind = iota
	// PresenceJoined adds a single identity if absent.
	PresenceJoined
	// PresenceLeft removes a single identity if present.
	PresenceLeft
)

// PresenceEvent is one reconciliation input for a room roster.
type PresenceEvent struct {
	Kind  PresenceEventKind
	Users []User // replace-all
	User  User   // incremental
}

// UsernameLookup resolves a userId to a username from the externally supplied
// participant directory. It returns false when the directory has no record.
type UsernameLookup func(userID string) (string, bool)

// Roster is the authoritative local view of which identities are in a room,
// keyed by userId. It is a plain state machine: events are applied strictly
// in arrival order, last write wins. A stale replace-all can transiently drop
// a very recently joined user until the next event; that is accepted.
//
// Roster is not safe for concurrent use; the engine applies events from the
// connection's read loop under the session lock.
type Roster struct {
	entries map[string]User
	lookup  UsernameLookup
}

// NewRoster creates an empty roster. lookup may be nil.
func NewRoster(lookup UsernameLookup) *Roster {
	return &Roster{
		entries: make(map[string]User),
		lookup:  lookup,
	}
}

// Apply reconciles one presence event into the roster. Duplicate joined
// events and leaves for absent users are tolerated silently. The local
// client's own entry is a real roster member and is never filtered.
func (r *Roster) Apply(ev PresenceEvent) {
	switch ev.Kind {
	case PresenceReplaceAll:
		r.entries = make(map[string]User, len(ev.Users))
		for _, u := range ev.Users {
			if u.UserID == "" {
				continue
			}
			r.entries[u.UserID] = r.resolve(u)
		}
	case PresenceJoined:
		if ev.User.UserID == "" {
			return
		}
		if _, ok := r.entries[ev.User.UserID]; ok {
			return
		}
		r.entries[ev.User.UserID] = r.resolve(ev.User)
	case PresenceLeft:
		delete(r.entries, ev.User.UserID)
	}
}

// Patch corrects a username in place without removing or recreating the
// entry. No-op when the user is absent or the username is empty.
func (r *Roster) Patch(userID, username string) {
	if username == "" {
		return
	}
	entry, ok := r.entries[userID]
	if !ok {
		return
	}
	entry.Username = username
	r.entries[userID] = entry
}

// Contains reports whether the user is currently in the roster.
func (r *Roster) Contains(userID string) bool {
	_, ok := r.entries[userID]
	return ok
}

// Len returns the number of distinct identities present.
func (r *Roster) Len() int {
	return len(r.entries)
}

// Users returns the roster ordered by username then userId for deterministic
// display.
func (r *Roster) Users() []User {
	out := make([]User, 0, len(r.entries))
	for _, u := range r.entries {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Clear empties the roster. Called on room leave and transport loss;
// reconnection rehydrates from a fresh join.
func (r *Roster) Clear() {
	r.entries = make(map[string]User)
}

// resolve applies the username fallback chain: the value carried in the
// event, then the participant directory, then the placeholder. Display
// nicety only.
func (r *Roster) resolve(u User) User {
	if u.Username != "" && u.Username != AnonymousUsername {
		return u
	}
	if r.lookup != nil {
		if name, ok := r.lookup(u.UserID); ok && name != "" {
			u.Username = name
			return u
		}
	}
	if u.Username == "" {
		u.Username = AnonymousUsername
	}
	return u
}
