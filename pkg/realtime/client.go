package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options configures an engine client. Zero values fall back to the defaults
// noted per field.
type Options struct {
	// URL is the websocket endpoint of the room channel.
	URL string `validate:"required,url"`
	// Token authenticates the transport session.
	Token string `validate:"-"`
	// Identity is the local user as supplied by the auth layer.
	Identity User `validate:"-"`

	// RetryAttempts bounds automatic dial retries (default 5).
	RetryAttempts int `validate:"omitempty,min=0,max=100"`
	// RetryDelay is the initial reconnect delay, doubled per attempt up to a
	// cap (default 2s).
	RetryDelay time.Duration `validate:"-"`
	// JoinTimeout bounds how long a join waits for transport readiness
	// (default 10s).
	JoinTimeout time.Duration `validate:"-"`
	// ReadyPollInterval is the readiness polling step (default 100ms).
	ReadyPollInterval time.Duration `validate:"-"`
	// AckTimeout bounds how long a request waits for its acknowledgement
	// (default 10s).
	AckTimeout time.Duration `validate:"-"`
	// TypingTTL is the typing inactivity window (default 3s).
	TypingTTL time.Duration `validate:"-"`
	// PresenceFallbackDelay is the grace period before requesting the roster
	// explicitly when the join ack carried no snapshot (default 2s).
	PresenceFallbackDelay time.Duration `validate:"-"`

	// Directory supplies participant records for username resolution and
	// moderation gating. Optional; without it sends are ungated locally.
	Directory Directory `validate:"-"`
	// Dialer overrides the websocket dialer, for tests.
	Dialer Dialer `validate:"-"`
	Logger zerolog.Logger `validate:"-"`
}

func (o *Options) setDefaults() {
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 5
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 2 * time.Second
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 10 * time.Second
	}
	if o.ReadyPollInterval <= 0 {
		o.ReadyPollInterval = 100 * time.Millisecond
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.TypingTTL <= 0 {
		o.TypingTTL = DefaultTypingTTL
	}
	if o.PresenceFallbackDelay <= 0 {
		o.PresenceFallbackDelay = 2 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = DialWebsocket
	}
}

// Client is the room presence and message synchronization engine: one
// transport session plus one Session per joined room. Construct one per
// authenticated identity and inject it where needed; there is no package
// singleton.
type Client struct {
	opts Options
	conn *Conn
	dir  Directory
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewClient validates options and builds an engine client. The transport is
// not opened until Connect.
func NewClient(opts Options) (*Client, error) {
	opts.setDefaults()
	if err := validate.Struct(&opts); err != nil {
		return nil, err
	}

	c := &Client{
		opts:     opts,
		conn:     NewConn(opts),
		dir:      opts.Directory,
		log:      opts.Logger.With().Str("component", "realtime_client").Logger(),
		sessions: make(map[string]*Session),
	}
	c.conn.OnLost(c.handleLost)
	c.conn.OnReady(c.handleReady)
	return c, nil
}

// Connect opens the transport session. Idempotent.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Conn exposes the underlying connection manager.
func (c *Client) Conn() *Conn {
	return c.conn
}

// Join enters a room, performing the join handshake once the transport is
// ready. Joining an already joined room is a no-op returning the existing
// session.
func (c *Client) Join(ctx context.Context, roomID string) (*Session, error) {
	c.mu.Lock()
	s, ok := c.sessions[roomID]
	if !ok {
		s = newSession(c, roomID)
		c.sessions[roomID] = s
	}
	c.mu.Unlock()

	if err := s.join(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Session returns the session for roomID, if one exists.
func (c *Client) Session(roomID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[roomID]
	return s, ok
}

// Close leaves all rooms and tears down the transport permanently.
func (c *Client) Close() error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Leave()
	}
	return c.conn.Close()
}

func (c *Client) removeSession(roomID string) {
	c.mu.Lock()
	delete(c.sessions, roomID)
	c.mu.Unlock()
}

// handleLost clears every room's presence, typing and message state.
// Reconnection starts from empty state and rehydrates through fresh joins.
func (c *Client) handleLost() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		s.reset()
	}
}

// handleReady rejoins rooms that were joined before the transport dropped.
func (c *Client) handleReady() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		if s.wantsRejoin() {
			go s.rejoin()
		}
	}
}
