package realtime

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeTransport is an in-memory Transport scripted from the server side.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	select {
	case t.out <- data:
		return nil
	case <-t.closed:
		return io.EOF
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// fakeServer plays the service end of the room channel. Every dial hands the
// client a fresh transport whose frames are fed to onFrame.
type fakeServer struct {
	t *testing.T

	mu      sync.Mutex
	onFrame func(tr *fakeTransport, f Frame)
	tr      *fakeTransport
	dials   atomic.Int32
}

func (s *fakeServer) setOnFrame(fn func(tr *fakeTransport, f Frame)) {
	s.mu.Lock()
	s.onFrame = fn
	s.mu.Unlock()
}

func newFakeServer(t *testing.T) *fakeServer {
	return &fakeServer{t: t}
}

func (s *fakeServer) dialer() Dialer {
	return func(ctx context.Context, url, token string) (Transport, error) {
		tr := newFakeTransport()
		s.mu.Lock()
		s.tr = tr
		s.mu.Unlock()
		s.dials.Add(1)
		go s.serve(tr)
		return tr, nil
	}
}

func (s *fakeServer) serve(tr *fakeTransport) {
	for {
		select {
		case data := <-tr.out:
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			s.mu.Lock()
			fn := s.onFrame
			s.mu.Unlock()
			if fn != nil {
				fn(tr, f)
			}
		case <-tr.closed:
			return
		}
	}
}

// push delivers a server-initiated event to the current transport.
func (s *fakeServer) push(event string, payload any) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		s.t.Fatalf("push %s before any dial", event)
	}
	deliver(s.t, tr, Frame{Event: event, Data: mustMarshal(s.t, payload)})
}

// dropTransport severs the current session from the server side.
func (s *fakeServer) dropTransport() {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr != nil {
		_ = tr.Close()
	}
}

// ack answers a request frame on its transport.
func ack(t *testing.T, tr *fakeTransport, seq uint64, payload any) {
	t.Helper()
	deliver(t, tr, Frame{Event: EventAck, Seq: seq, Data: mustMarshal(t, payload)})
}

func deliver(t *testing.T, tr *fakeTransport, f Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	select {
	case tr.in <- data:
	case <-tr.closed:
	}
}

func mustMarshal(t *testing.T, payload any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustUnmarshal[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}
