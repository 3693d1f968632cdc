package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/protocol"
	"github.com/Tyrowin/linechat/internal/server"
	"github.com/Tyrowin/linechat/internal/testhelpers"
)

// fakeRelay accepts exactly one connection and hands it to the test as a
// LineClient so the test can script the server side.
func fakeRelay(t *testing.T) (addr string, accepted <-chan *testhelpers.LineClient) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan *testhelpers.LineClient, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ch <- testhelpers.NewLineClient(t, conn)
	}()
	return ln.Addr().String(), ch
}

func dialFake(t *testing.T, opts ...Option) (*Client, *testhelpers.LineClient) {
	t.Helper()
	addr, accepted := fakeRelay(t)
	c, err := Dial(context.Background(), addr, "alice", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	select {
	case peer := <-accepted:
		return c, peer
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("fake relay never accepted")
		return nil, nil
	}
}

func nextEvent(t *testing.T, c *Client) protocol.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return msg
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// TestDialSendsJoinFirst verifies the join frame is the first thing written.
func TestDialSendsJoinFirst(t *testing.T) {
	c, peer := dialFake(t)
	assert.Equal(t, "alice", c.Username())
	peer.ExpectLine(`{"type":"join","username":"alice"}`)
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), addr, "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to")
}

// TestEventsDecodedInOrder verifies server frames arrive as typed events in
// receipt order and undecodable lines are skipped.
func TestEventsDecodedInOrder(t *testing.T) {
	c, peer := dialFake(t)
	peer.ExpectLine(`{"type":"join","username":"alice"}`)

	peer.SendRaw([]byte(`{"type":"user_joined","username":"bob"}` + "\n" + `not json` + "\n"))
	peer.Send(`{"type":"mystery"}`)
	peer.Send(`{"type":"typing","username":"bob","isTyping":true}`)
	peer.Send(`{"type":"chat","username":"bob","message":"hi"}`)
	peer.Send(`{"type":"user_left","username":"bob"}`)

	assert.Equal(t, protocol.UserJoined{Username: "bob"}, nextEvent(t, c))
	assert.Equal(t, protocol.Typing{Username: "bob", IsTyping: true}, nextEvent(t, c))
	assert.Equal(t, protocol.ChatPosted{Username: "bob", Message: "hi"}, nextEvent(t, c))
	assert.Equal(t, protocol.UserLeft{Username: "bob"}, nextEvent(t, c))
}

// TestSendChatTrimsAndSkipsBlank verifies input is trimmed and blank lines are
// never sent.
func TestSendChatTrimsAndSkipsBlank(t *testing.T) {
	c, peer := dialFake(t)
	peer.ExpectLine(`{"type":"join","username":"alice"}`)

	sent, err := c.SendChat("   \t ")
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = c.SendChat("  hello there  ")
	require.NoError(t, err)
	assert.True(t, sent)

	peer.ExpectLine(`{"type":"chat","message":"hello there"}`)
	peer.ExpectSilence(50 * time.Millisecond)
}

// TestServerCloseEndsStreamCleanly verifies an orderly server close ends the
// event stream with no error.
func TestServerCloseEndsStreamCleanly(t *testing.T) {
	c, peer := dialFake(t)
	peer.ExpectLine(`{"type":"join","username":"alice"}`)
	peer.Close()

	select {
	case <-c.Done():
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("client did not observe close")
	}
	assert.NoError(t, c.Err())
	_, open := <-c.Events()
	assert.False(t, open)
}

// TestCloseHalfClosesFirst verifies Close shuts the write side so the server
// sees EOF, then completes once the server hangs up.
func TestCloseHalfClosesFirst(t *testing.T) {
	c, peer := dialFake(t)
	peer.ExpectLine(`{"type":"join","username":"alice"}`)

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	peer.ExpectEOF(testhelpers.DefaultTimeout)
	peer.Close()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("Close did not return")
	}
	assert.ErrorIs(t, c.Send(protocol.Chat{Message: "late"}), ErrClosed)
	assert.NoError(t, c.Close())
}

// TestCloseGivesUpOnSilentServer verifies Close does not wait forever for a
// server that never closes its side.
func TestCloseGivesUpOnSilentServer(t *testing.T) {
	c, peer := dialFake(t)
	peer.ExpectLine(`{"type":"join","username":"alice"}`)

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-c.Done():
	case <-time.After(testhelpers.DefaultTimeout):
		t.Fatal("reader did not stop")
	}
	assert.NoError(t, c.Err())
}

// TestClientAgainstRelay runs two clients through the real relay.
func TestClientAgainstRelay(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Server.Port = 0
	hub := server.NewHub(server.NewHubConfig(cfg))
	srv := server.NewServer(cfg.Server, hub)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-served
	})
	addr := srv.Addr().String()

	alice, err := Dial(context.Background(), addr, "alice")
	require.NoError(t, err)
	t.Cleanup(func() { _ = alice.Close() })
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	bob, err := Dial(context.Background(), addr, "bob", WithTypingIdle(30*time.Millisecond))
	require.NoError(t, err)

	assert.Equal(t, protocol.UserJoined{Username: "bob"}, nextEvent(t, alice))

	bob.Keystroke()
	assert.Equal(t, protocol.Typing{Username: "bob", IsTyping: true}, nextEvent(t, alice))
	assert.Equal(t, protocol.Typing{Username: "bob", IsTyping: false}, nextEvent(t, alice))

	_, err = bob.SendChat("hi alice")
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatPosted{Username: "bob", Message: "hi alice"}, nextEvent(t, alice))

	require.NoError(t, bob.Close())
	assert.Equal(t, protocol.UserLeft{Username: "bob"}, nextEvent(t, alice))
}
