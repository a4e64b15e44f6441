// Package client implements the rendezvous chat client: the relay server
// connection, direct peer links and the interactive console.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/NicolasHaas/rendezvous/pkg/model"
	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

var (
	// ErrNotRegistered is returned when relaying before a successful Register.
	ErrNotRegistered = errors.New("client: not registered")
	// ErrNoPeer is returned when no peer link is active.
	ErrNoPeer = errors.New("client: no peer connection")
)

// LineHandler receives every line pushed by the server after registration.
type LineHandler func(line string)

// ServerConn manages the TCP connection to the relay server.
type ServerConn struct {
	conn net.Conn
	sc   *bufio.Scanner
	mu   sync.Mutex // serializes writes
	done chan struct{}

	username string
}

// Dial connects to the relay server.
func Dial(ctx context.Context, addr string) (*ServerConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect server: %w", err)
	}
	return &ServerConn{
		conn: conn,
		sc:   protocol.NewScanner(conn),
		done: make(chan struct{}),
	}, nil
}

// Register sends REGISTER and waits for the server's OK. It must be called
// before StartReceiving.
func (c *ServerConn) Register(ctx context.Context, username, peerPort string) error {
	if err := model.ValidateUsername(username); err != nil {
		return fmt.Errorf("client: register: %w", err)
	}
	if peerPort == "" || strings.ContainsAny(peerPort, " \t") {
		return fmt.Errorf("client: register: invalid peer port %q", peerPort)
	}

	// Unblock the read below if ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := c.send(protocol.Command{Verb: protocol.VerbRegister, Name: username, Port: peerPort}); err != nil {
		return err
	}

	line, err := c.readLine()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("client: register: %w", ctxErr)
		}
		return fmt.Errorf("client: register: read reply: %w", err)
	}
	resp, err := protocol.ParseResponse(line)
	if err != nil || resp.Kind != protocol.RespOK {
		return fmt.Errorf("client: register: unexpected reply %q", line)
	}

	if !stop() {
		return fmt.Errorf("client: register: %w", ctx.Err())
	}
	c.username = username
	return nil
}

// Username returns the registered name, or "" before Register.
func (c *ServerConn) Username() string {
	return c.username
}

// List asks for the online user list.
func (c *ServerConn) List() error {
	return c.send(protocol.Command{Verb: protocol.VerbList})
}

// Addr asks for a user's peer address.
func (c *ServerConn) Addr(name string) error {
	return c.send(protocol.Command{Verb: protocol.VerbGetAddr, Name: name})
}

// Msg relays text to another user through the server.
func (c *ServerConn) Msg(name, text string) error {
	if c.username == "" {
		return ErrNotRegistered
	}
	return c.send(protocol.Command{Verb: protocol.VerbMsg, Name: name, Text: text})
}

// Quit tells the server the session is ending.
func (c *ServerConn) Quit() error {
	return c.send(protocol.Command{Verb: protocol.VerbQuit})
}

// StartReceiving starts a goroutine that reads server lines and passes them
// to handler until the connection ends.
func (c *ServerConn) StartReceiving(handler LineHandler) {
	go func() {
		defer close(c.done)
		for c.sc.Scan() {
			handler(c.sc.Text())
		}
		if err := c.sc.Err(); err != nil && !isClosedErr(err) {
			slog.Debug("server read error", "err", err)
			return
		}
		slog.Debug("server connection closed")
	}()
}

// Done returns a channel that's closed when the connection is lost.
func (c *ServerConn) Done() <-chan struct{} {
	return c.done
}

// Close closes the server connection.
func (c *ServerConn) Close() error {
	return c.conn.Close()
}

func (c *ServerConn) send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := protocol.WriteLine(c.conn, cmd.String()); err != nil {
		return fmt.Errorf("client: send %s: %w", cmd.Verb, err)
	}
	return nil
}

func (c *ServerConn) readLine() (string, error) {
	if c.sc.Scan() {
		return c.sc.Text(), nil
	}
	if err := c.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func isClosedErr(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
