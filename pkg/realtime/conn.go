package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnState is the lifecycle state of the transport session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateReady
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

const maxRetryDelay = 30 * time.Second

// Transport is a single bidirectional session to the chat server. The
// production implementation wraps a gorilla websocket connection; tests
// substitute scripted transports.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a Transport authenticated with the supplied token.
type Dialer func(ctx context.Context, url, token string) (Transport, error)

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

// DialWebsocket is the default Dialer.
func DialWebsocket(ctx context.Context, rawURL, token string) (Transport, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

type ackResult struct {
	frame Frame
	err   error
}

// Conn owns the single transport session for one client identity. Connect is
// idempotent, transport loss triggers bounded automatic reconnection, and all
// inbound events are dispatched from one read loop.
type Conn struct {
	url           string
	token         string
	retryAttempts int
	retryDelay    time.Duration
	dial          Dialer
	log           zerolog.Logger

	seq atomic.Uint64

	mu         sync.Mutex
	state      ConnState
	tr         Transport
	closed     bool
	pending    map[uint64]chan ackResult
	handlers   map[string]map[int]func(json.RawMessage)
	handlerSeq int
	readyCbs   []func()
	lostCbs    []func()

	writeMu sync.Mutex
}

// NewConn builds a connection manager from engine options. The session is not
// opened until Connect.
func NewConn(opts Options) *Conn {
	opts.setDefaults()
	return &Conn{
		url:           opts.URL,
		token:         opts.Token,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		dial:          opts.Dialer,
		log:           opts.Logger.With().Str("component", "realtime_conn").Logger(),
		pending:       make(map[uint64]chan ackResult),
		handlers:      make(map[string]map[int]func(json.RawMessage)),
	}
}

// Connect opens the transport session, retrying with backoff up to the
// configured attempt bound. Calling Connect on an already ready or connecting
// session is a no-op. Exhausting retries leaves the session disconnected and
// returns an error; it never panics the process.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateReady || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.setDisconnected()
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay < maxRetryDelay {
				delay *= 2
			}
		}

		tr, err := c.dial(ctx, c.url, c.token)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("transport dial failed")
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = tr.Close()
			return ErrClosed
		}
		c.tr = tr
		c.state = StateReady
		ready := append([]func(){}, c.readyCbs...)
		c.mu.Unlock()

		go c.readLoop(tr)
		for _, cb := range ready {
			cb()
		}
		c.log.Info().Int("attempt", attempt+1).Msg("transport ready")
		return nil
	}

	c.setDisconnected()
	return fmt.Errorf("%w: retries exhausted: %v", ErrNotConnected, lastErr)
}

func (c *Conn) setDisconnected() {
	c.mu.Lock()
	c.state = StateDisconnected
	c.mu.Unlock()
}

// IsReady reports current readiness.
func (c *Conn) IsReady() bool {
	return c.State() == StateReady
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitReady polls readiness at the given interval until the timeout elapses.
// Bounded polling, not an unbounded spin.
func (c *Conn) WaitReady(ctx context.Context, timeout, poll time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if c.IsReady() {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrNotConnected
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// OnReady registers a callback invoked on every transition into Ready.
func (c *Conn) OnReady(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readyCbs = append(c.readyCbs, cb)
}

// OnLost registers a callback invoked on every transition out of Ready.
func (c *Conn) OnLost(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lostCbs = append(c.lostCbs, cb)
}

// On registers an event handler and returns its unsubscribe func. Handlers
// run on the read loop goroutine.
func (c *Conn) On(event string, handler func(json.RawMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func(json.RawMessage))
	}
	c.handlerSeq++
	id := c.handlerSeq
	c.handlers[event][id] = handler
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// Request sends a frame carrying a fresh seq and blocks until the matching
// ack, the timeout, or context cancellation.
func (c *Conn) Request(ctx context.Context, event string, payload any, timeout time.Duration) (Frame, error) {
	c.mu.Lock()
	if c.state != StateReady || c.tr == nil {
		c.mu.Unlock()
		return Frame{}, ErrNotConnected
	}
	tr := c.tr
	seq := c.seq.Add(1)
	ch := make(chan ackResult, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		c.dropPending(seq)
		return Frame{}, err
	}
	if err := c.write(tr, Frame{Event: event, Seq: seq, Data: data}); err != nil {
		c.dropPending(seq)
		return Frame{}, fmt.Errorf("%w: %v", ErrTransportLost, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return Frame{}, res.err
		}
		return res.frame, nil
	case <-timer.C:
		c.dropPending(seq)
		return Frame{}, ErrTimeout
	case <-ctx.Done():
		c.dropPending(seq)
		return Frame{}, ctx.Err()
	}
}

// Emit sends a fire-and-forget frame. Rejected with ErrNotConnected while the
// session is down; nothing is queued.
func (c *Conn) Emit(event string, payload any) error {
	c.mu.Lock()
	tr := c.tr
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready || tr == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(tr, Frame{Event: event, Data: data})
}

// Close tears the session down permanently. No reconnection follows.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	tr := c.tr
	c.tr = nil
	c.state = StateDisconnected
	pending := c.pending
	c.pending = make(map[uint64]chan ackResult)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- ackResult{err: ErrClosed}
	}
	if tr != nil {
		return tr.Close()
	}
	return nil
}

func (c *Conn) write(tr Transport, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return tr.WriteMessage(data)
}

func (c *Conn) dropPending(seq uint64) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func (c *Conn) readLoop(tr Transport) {
	for {
		data, err := tr.ReadMessage()
		if err != nil {
			c.handleLost(tr, err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if f.Event == EventAck {
			c.mu.Lock()
			ch, ok := c.pending[f.Seq]
			if ok {
				delete(c.pending, f.Seq)
			}
			c.mu.Unlock()
			if ok {
				ch <- ackResult{frame: f}
			} else {
				c.log.Debug().Uint64("seq", f.Seq).Msg("dropping unmatched ack")
			}
			continue
		}
		c.dispatch(f)
	}
}

func (c *Conn) dispatch(f Frame) {
	c.mu.Lock()
	hs := make([]func(json.RawMessage), 0, 4)
	for _, h := range c.handlers[f.Event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(f.Data)
	}
}

func (c *Conn) handleLost(tr Transport, cause error) {
	c.mu.Lock()
	if c.tr != tr {
		// A newer session already replaced this one.
		c.mu.Unlock()
		return
	}
	c.tr = nil
	c.state = StateDisconnected
	pending := c.pending
	c.pending = make(map[uint64]chan ackResult)
	lost := append([]func(){}, c.lostCbs...)
	closed := c.closed
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- ackResult{err: ErrTransportLost}
	}
	if closed {
		return
	}
	c.log.Warn().Err(cause).Msg("transport lost")
	for _, cb := range lost {
		cb()
	}
	go func() {
		if err := c.Connect(context.Background()); err != nil {
			c.log.Error().Err(err).Msg("automatic reconnect failed")
		}
	}()
}
