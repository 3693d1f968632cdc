package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/testhelpers"
)

func newTestHub(t *testing.T, mutate ...func(*HubConfig)) *Hub {
	t.Helper()
	cfg := HubConfig{SendQueueSize: 64, MaxFrameSize: 1024}
	for _, m := range mutate {
		m(&cfg)
	}
	h := NewHub(cfg)
	t.Cleanup(func() { _ = h.Shutdown(100 * time.Millisecond) })
	return h
}

// attachPipe attaches one end of an in-memory pipe and returns the other end
// as a line client.
func attachPipe(t *testing.T, h *Hub) (*Conn, *testhelpers.LineClient) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	c, err := h.Attach(NewTCPTransport(serverSide, 0))
	require.NoError(t, err)
	return c, testhelpers.NewLineClient(t, clientSide)
}

func joinAs(t *testing.T, c *Conn, client *testhelpers.LineClient, username string) {
	t.Helper()
	client.Send(`{"type":"join","username":"` + username + `"}`)
	require.Eventually(t, func() bool { return c.State() == StateJoined }, time.Second, 5*time.Millisecond)
}

// stubTransport is a Transport whose reads block until Close.
type stubTransport struct {
	writeErr       error
	ignoreGraceful bool

	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newStubTransport() *stubTransport {
	return &stubTransport{closed: make(chan struct{})}
}

func (s *stubTransport) Read(_ []byte) (int, error) {
	<-s.closed
	return 0, net.ErrClosed
}

func (s *stubTransport) WriteFrame(frame []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, append([]byte(nil), frame...))
	return nil
}

func (s *stubTransport) CloseGracefully() error {
	if s.ignoreGraceful {
		return nil
	}
	return s.Close()
}

func (s *stubTransport) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *stubTransport) RemoteAddr() string { return "stub" }

func (s *stubTransport) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *stubTransport) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.writes))
	for i, w := range s.writes {
		out[i] = string(w)
	}
	return out
}
