package realtime

import (
	"sort"
	"sync"
	"time"
)

// DefaultTypingTTL bounds how long a typing entry survives without a refresh
// or an explicit stop. Matches the inactivity window the browser client uses.
const DefaultTypingTTL = 3 * time.Second

// TypingTracker is the short-lived set of currently typing usernames in one
// room. Entries self-expire so a lost typing_stop (tab closed without a clean
// disconnect) cannot leave a user typing forever.
//
// The tracker always updates internally even when the room configuration
// disables typing indicators; Enabled is a pass-through flag for the
// presentation boundary.
type TypingTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	enabled bool
	timers  map[string]*time.Timer
}

// NewTypingTracker creates a tracker whose entries expire after ttl.
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		ttl:     ttl,
		enabled: true,
		timers:  make(map[string]*time.Timer),
	}
}

// Start records that username is typing, restarting the expiry timer on
// repeated signals.
func (t *TypingTracker) Start(username string) {
	if username == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[username]; ok {
		timer.Reset(t.ttl)
		return
	}
	t.timers[username] = time.AfterFunc(t.ttl, func() {
		t.Stop(username)
	})
}

// Stop removes username from the typing set immediately. Safe when absent.
func (t *TypingTracker) Stop(username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[username]; ok {
		timer.Stop()
		delete(t.timers, username)
	}
}

// Active returns the usernames currently typing, sorted. When the feature is
// disabled at the room level the projection is empty regardless of internal
// state.
func (t *TypingTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return nil
	}
	out := make([]string, 0, len(t.timers))
	for name := range t.timers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetEnabled toggles the presentation flag without touching internal state.
func (t *TypingTracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Enabled reports the presentation flag.
func (t *TypingTracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Clear drops all entries and their timers. Called on leave and transport
// loss so no callback fires against a room the client has left.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}

// typingEmitter debounces the local user's outbound typing activity:
// typing_start is emitted at most once per burst and typing_stop is emitted
// after the inactivity window or on an explicit flush.
type typingEmitter struct {
	mu        sync.Mutex
	window    time.Duration
	active    bool
	stop      *time.Timer
	emitStart func()
	emitStop  func()
}

func newTypingEmitter(window time.Duration, emitStart, emitStop func()) *typingEmitter {
	if window <= 0 {
		window = DefaultTypingTTL
	}
	return &typingEmitter{
		window:    window,
		emitStart: emitStart,
		emitStop:  emitStop,
	}
}

// Keystroke records local typing activity. Continuous typing keeps resetting
// the scheduled stop without re-emitting typing_start.
func (e *typingEmitter) Keystroke() {
	e.mu.Lock()
	fireStart := !e.active
	e.active = true
	if e.stop == nil {
		e.stop = time.AfterFunc(e.window, e.expire)
	} else {
		e.stop.Reset(e.window)
	}
	e.mu.Unlock()

	if fireStart {
		e.emitStart()
	}
}

func (e *typingEmitter) expire() {
	e.mu.Lock()
	fireStop := e.active
	e.active = false
	e.mu.Unlock()

	if fireStop {
		e.emitStop()
	}
}

// Flush emits typing_stop immediately if a burst is active. Called when the
// local user sends a message.
func (e *typingEmitter) Flush() {
	e.mu.Lock()
	if e.stop != nil {
		e.stop.Stop()
	}
	fireStop := e.active
	e.active = false
	e.mu.Unlock()

	if fireStop {
		e.emitStop()
	}
}

// Cancel drops any scheduled emission without sending anything. Called on
// leave and transport loss.
func (e *typingEmitter) Cancel() {
	e.mu.Lock()
	if e.stop != nil {
		e.stop.Stop()
	}
	e.active = false
	e.mu.Unlock()
}
