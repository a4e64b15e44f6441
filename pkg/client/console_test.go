package client

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer records console-issued commands.
type fakeServer struct {
	calls []string
	err   error
}

func (f *fakeServer) List() error {
	f.calls = append(f.calls, "LIST")
	return f.err
}

func (f *fakeServer) Addr(name string) error {
	f.calls = append(f.calls, "GETADDR "+name)
	return f.err
}

func (f *fakeServer) Msg(name, text string) error {
	f.calls = append(f.calls, "MSG "+name+" "+text)
	return f.err
}

func (f *fakeServer) Quit() error {
	f.calls = append(f.calls, "QUIT")
	return f.err
}

func newTestConsole() (*Console, *fakeServer, *syncBuffer) {
	out := &syncBuffer{}
	srv := &fakeServer{}
	p := NewPrinter(out)
	return NewConsole("alice", srv, NewPeers(p), NewAddressBook(), p), srv, out
}

func TestConsoleServerCommands(t *testing.T) {
	c, srv, _ := newTestConsole()
	ctx := context.Background()

	for _, line := range []string{
		"/list",
		"  /addr bob  ",
		"/msg bob hello  there",
		"",
		"/help",
	} {
		assert.False(t, c.Handle(ctx, line), line)
	}
	assert.True(t, c.Handle(ctx, "/quit"))

	want := []string{"LIST", "GETADDR bob", "MSG bob hello  there", "QUIT"}
	if diff := cmp.Diff(want, srv.calls); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestConsoleUsageErrorsSendNothing(t *testing.T) {
	c, srv, out := newTestConsole()
	ctx := context.Background()

	for _, line := range []string{"/addr", "/addr a b", "/msg bob", "/msg", "/connect", "/connect 1 2 3"} {
		c.Handle(ctx, line)
	}
	assert.Empty(t, srv.calls)
	assert.Contains(t, out.String(), "[INFO] Usage: /addr <username>")
	assert.Contains(t, out.String(), "[INFO] Usage: /msg <username> <message>")
	assert.Contains(t, out.String(), "[INFO] Usage: /connect")
}

func TestConsoleFreeTextWithoutPeer(t *testing.T) {
	c, srv, out := newTestConsole()

	c.Handle(context.Background(), "hello anyone")
	assert.Empty(t, srv.calls)
	assert.Contains(t, out.String(), "[INFO] Use /msg <user> <text> to chat via server.")
}

func TestConsoleDisconnectWithoutPeer(t *testing.T) {
	c, _, out := newTestConsole()

	c.Handle(context.Background(), "/disconnect")
	assert.Contains(t, out.String(), "[INFO] No P2P connection.")
}

func TestConsoleConnectByUnknownName(t *testing.T) {
	c, _, out := newTestConsole()

	c.Handle(context.Background(), "/connect bob")
	assert.Contains(t, out.String(), "[INFO] No address for bob. Use /addr bob first.")
}

func TestConsoleReportsTransportErrors(t *testing.T) {
	c, srv, out := newTestConsole()
	srv.err = errors.New("broken pipe")

	assert.False(t, c.Handle(context.Background(), "/list"))
	assert.Contains(t, out.String(), "[INFO] Error: broken pipe")

	// A failed GETADDR leaves no outstanding lookup behind.
	c.Handle(context.Background(), "/addr bob")
	_, ok := c.book.Observe(protocolErr())
	assert.False(t, ok)
}

func TestConsoleChatsOverPeerLink(t *testing.T) {
	bob := newPeerSide(t)
	c, srv, out := newTestConsole()
	t.Cleanup(func() { require.NoError(t, c.peers.Close()) })

	host, port := splitAddr(t, bob.ln.Addr().String())
	c.Handle(context.Background(), "/connect "+host+" "+port)
	waitForOutput(t, out, "[P2P] Connected to peer")

	c.Handle(context.Background(), "see you on the direct line")
	waitForOutput(t, bob.out, "[P2P] alice: see you on the direct line")

	c.Handle(context.Background(), "/disconnect")
	waitForOutput(t, out, "[P2P] Disconnected. Back to server chat.")
	assert.Empty(t, srv.calls)
}
