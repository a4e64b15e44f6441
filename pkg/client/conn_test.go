package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

func TestServerConnRegisterAndReceive(t *testing.T) {
	relay := startRelay(t)
	ctx := context.Background()

	alice, err := Dial(ctx, relay.Addr().String())
	require.NoError(t, err)
	defer alice.Close()

	assert.ErrorIs(t, alice.Msg("bob", "too early"), ErrNotRegistered)
	require.Error(t, alice.Register(ctx, "bad name", "5001"))
	require.Error(t, alice.Register(ctx, "alice", ""))
	require.NoError(t, alice.Register(ctx, "alice", "5001"))
	assert.Equal(t, "alice", alice.Username())

	lines := make(chan string, 4)
	alice.StartReceiving(func(line string) { lines <- line })

	require.NoError(t, alice.List())
	require.NoError(t, alice.Addr("alice"))

	assert.Equal(t, "USERS alice", recv(t, lines))
	assert.Equal(t, "ADDR 127.0.0.1 5001", recv(t, lines))

	require.NoError(t, alice.Quit())
	select {
	case <-alice.Done():
	case <-time.After(waitFor):
		t.Fatal("Done not closed after QUIT")
	}
}

func recv(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case l := <-lines:
		return l
	case <-time.After(waitFor):
		t.Fatal("no line received")
		return ""
	}
}

// fakeRelay accepts one connection and answers REGISTER with reply ("" = never).
func fakeRelay(t *testing.T, reply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := protocol.NewScanner(conn)
		if !sc.Scan() {
			return
		}
		if reply != "" {
			_ = protocol.WriteLine(conn, reply)
		}
		for sc.Scan() {
		}
	}()
	return ln.Addr().String()
}

func TestServerConnRegisterRejected(t *testing.T) {
	c, err := Dial(context.Background(), fakeRelay(t, "ERR"))
	require.NoError(t, err)
	defer c.Close()

	err = c.Register(context.Background(), "alice", "5001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected reply")
	assert.Empty(t, c.Username())
}

func TestServerConnRegisterHonoursContext(t *testing.T) {
	c, err := Dial(context.Background(), fakeRelay(t, ""))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Register(ctx, "alice", "5001")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
