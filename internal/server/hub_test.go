package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// TestNewHub tests that a new hub starts empty.
func TestNewHub(t *testing.T) {
	hub := NewHub(HubConfig{})
	require.NotNil(t, hub)
	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.Registry().Size())
}

// TestAttachRegistersUnjoinedConnection verifies that attaching registers the
// connection before any join and broadcasts nothing.
func TestAttachRegistersUnjoinedConnection(t *testing.T) {
	hub := newTestHub(t)
	_, observer := attachPipe(t, hub)
	c, _ := attachPipe(t, hub)

	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, StateUnjoined, c.State())
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "pipe", c.RemoteAddr())
	observer.ExpectSilence(quiet)
}

// TestBroadcastExcludesExactlySender verifies N-1 deliveries for N clients.
func TestBroadcastExcludesExactlySender(t *testing.T) {
	hub := newTestHub(t)

	const n = 5
	stubs := make([]*stubTransport, n)
	conns := make([]*Conn, n)
	for i := range stubs {
		stubs[i] = newStubTransport()
		c, err := hub.Attach(stubs[i])
		require.NoError(t, err)
		conns[i] = c
	}

	delivered := hub.Broadcast(protocol.ChatPosted{Username: "a", Message: "hi"}, conns[0].ID())
	assert.Equal(t, n-1, delivered)

	want := `{"type":"chat","username":"a","message":"hi"}` + "\n"
	for i := 1; i < n; i++ {
		stub := stubs[i]
		require.Eventually(t, func() bool { return len(stub.written()) == 1 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{want}, stub.written())
	}
	assert.Empty(t, stubs[0].written())
}

// TestBroadcastWithoutExclusionReachesEveryone verifies that an empty
// exclusion delivers to all registered connections.
func TestBroadcastWithoutExclusionReachesEveryone(t *testing.T) {
	hub := newTestHub(t)
	for range 3 {
		_, err := hub.Attach(newStubTransport())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, hub.Broadcast(protocol.UserLeft{Username: "gone"}, ""))
}

// TestBroadcastIsolatesWriteFailures verifies that one dead recipient does
// not prevent delivery to the others, and that its failed write ends that
// connection through the disconnect path.
func TestBroadcastIsolatesWriteFailures(t *testing.T) {
	hub := newTestHub(t)

	broken := newStubTransport()
	broken.writeErr = errors.New("write: broken pipe")
	brokenConn, err := hub.Attach(broken)
	require.NoError(t, err)

	_, healthy := attachPipe(t, hub)

	failuresBefore := testutil.ToFloat64(DeliveryFailures)
	hub.Broadcast(protocol.UserJoined{Username: "dora"}, "")

	healthy.ExpectLine(`{"type":"user_joined","username":"dora"}`)
	select {
	case <-brokenConn.Done():
	case <-time.After(time.Second):
		t.Fatal("connection with failed write was not disconnected")
	}
	assert.True(t, broken.isClosed())
	assert.Equal(t, 1, hub.ClientCount())
	assert.GreaterOrEqual(t, testutil.ToFloat64(DeliveryFailures)-failuresBefore, 1.0)
}

// TestEnqueueReportsFullQueue verifies the outbound queue never blocks.
func TestEnqueueReportsFullQueue(t *testing.T) {
	c := newConn(newStubTransport(), HubConfig{SendQueueSize: 1})

	require.NoError(t, c.enqueue([]byte("one\n")))
	assert.ErrorIs(t, c.enqueue([]byte("two\n")), ErrQueueFull)

	c.requestClose()
	assert.ErrorIs(t, c.enqueue([]byte("three\n")), ErrConnClosed)
}

// TestAttachAfterShutdownIsRejected verifies the hub refuses new connections
// once shutdown has begun and closes the offered transport.
func TestAttachAfterShutdownIsRejected(t *testing.T) {
	hub := NewHub(HubConfig{})
	require.NoError(t, hub.Shutdown(time.Second))

	stub := newStubTransport()
	c, err := hub.Attach(stub)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.True(t, stub.isClosed())
}

// TestShutdownFlushesQueuedFrames verifies queued frames are written before
// the graceful close.
func TestShutdownFlushesQueuedFrames(t *testing.T) {
	hub := NewHub(HubConfig{SendQueueSize: 8})
	stub := newStubTransport()
	c, err := hub.Attach(stub)
	require.NoError(t, err)

	hub.Broadcast(protocol.UserJoined{Username: "x"}, "")
	hub.Broadcast(protocol.UserLeft{Username: "x"}, "")
	require.NoError(t, hub.Shutdown(time.Second))

	<-c.Done()
	assert.Equal(t, []string{
		`{"type":"user_joined","username":"x"}` + "\n",
		`{"type":"user_left","username":"x"}` + "\n",
	}, stub.written())
	assert.Equal(t, 0, hub.ClientCount())
}

// TestShutdownForcesStuckConnections verifies a connection that ignores the
// graceful close is terminated once the grace period elapses.
func TestShutdownForcesStuckConnections(t *testing.T) {
	hub := NewHub(HubConfig{})
	stuck := newStubTransport()
	stuck.ignoreGraceful = true
	c, err := hub.Attach(stuck)
	require.NoError(t, err)

	forcedBefore := testutil.ToFloat64(ForcedCloses)
	start := time.Now()
	require.NoError(t, hub.Shutdown(50*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.True(t, stuck.isClosed())
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(ForcedCloses)-forcedBefore)
}

// TestShutdownWithoutClients verifies shutdown of an idle hub returns
// immediately and can be repeated.
func TestShutdownWithoutClients(t *testing.T) {
	hub := NewHub(HubConfig{})
	require.NoError(t, hub.Shutdown(time.Second))
	require.NoError(t, hub.Shutdown(time.Second))
}

// TestShutdownRacingAttachClosesEveryConnection verifies that a connection
// attached while Shutdown is starting is either rejected or drained, so
// Shutdown still returns within its grace period.
func TestShutdownRacingAttachClosesEveryConnection(t *testing.T) {
	const attachers = 8
	for range 50 {
		hub := NewHub(HubConfig{})

		transports := make([]*stubTransport, attachers)
		for i := range transports {
			transports[i] = newStubTransport()
			transports[i].ignoreGraceful = true
		}

		var attached sync.WaitGroup
		start := make(chan struct{})
		for _, tr := range transports {
			attached.Add(1)
			go func() {
				defer attached.Done()
				<-start
				_, err := hub.Attach(tr)
				if err != nil && !errors.Is(err, ErrHubClosed) {
					t.Errorf("unexpected attach error: %v", err)
				}
			}()
		}

		done := make(chan error, 1)
		close(start)
		go func() { done <- hub.Shutdown(10 * time.Millisecond) }()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("shutdown blocked on a connection attached during shutdown")
		}
		attached.Wait()

		for i, tr := range transports {
			assert.True(t, tr.isClosed(), "transport %d left open", i)
		}
		assert.Equal(t, 0, hub.ClientCount())
	}
}
