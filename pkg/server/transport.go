package server

import (
	"bufio"
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// lineConn is one client connection seen as a stream of protocol lines.
// ReadLine is only called from the session goroutine; WriteLine calls are
// serialized by the owning Session.
type lineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	RemoteIP() string
	Close() error
}

// tcpLineConn speaks newline-framed text over a raw TCP connection.
type tcpLineConn struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func newTCPLineConn(conn net.Conn) *tcpLineConn {
	return &tcpLineConn{conn: conn, sc: protocol.NewScanner(conn)}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	if c.sc.Scan() {
		return c.sc.Text(), nil
	}
	if err := c.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *tcpLineConn) WriteLine(line string) error {
	return protocol.WriteLine(c.conn, line)
}

func (c *tcpLineConn) RemoteIP() string {
	return hostOf(c.conn.RemoteAddr())
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

// hostOf returns the IP part of a network address, never client supplied.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	return hostOfString(addr.String())
}

func hostOfString(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// isClosedErr reports errors that just mean "the other side went away".
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
