package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/NicolasHaas/rendezvous/pkg/model"
	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// PeerLink is a direct connection to one other client.
type PeerLink struct {
	conn      net.Conn
	direction model.PeerDirection
	remote    string

	writeMu sync.Mutex
	closed  atomic.Bool // closed locally
}

// Direction reports who opened the link.
func (l *PeerLink) Direction() model.PeerDirection { return l.direction }

// RemoteAddr returns the peer's address.
func (l *PeerLink) RemoteAddr() string { return l.remote }

func (l *PeerLink) send(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return protocol.WriteLine(l.conn, line)
}

func (l *PeerLink) close() error {
	l.closed.Store(true)
	return l.conn.Close()
}

// Peers owns the client's single active peer link and its listener.
// A new link, inbound or outbound, supersedes and closes the previous one.
type Peers struct {
	out *Printer

	mu     sync.Mutex
	active *PeerLink
	closed bool

	wg sync.WaitGroup // receive loops
}

// NewPeers creates a peer manager printing to out.
func NewPeers(out *Printer) *Peers {
	return &Peers{out: out}
}

// Listen binds the peer listener. Port "0" picks a free port.
func Listen(host, port string) (net.Listener, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("client: listen peer: %w", err)
	}
	return ln, nil
}

// Serve accepts peer connections on ln until it is closed. Each accepted
// connection becomes the active link.
func (p *Peers) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("client: accept peer: %w", err)
		}
		if link := p.adopt(conn, model.PeerAccepted); link != nil {
			p.out.Peer("Incoming connection from %s", link.remote)
		}
	}
}

// Connect dials a peer and makes it the active link.
func (p *Peers) Connect(ctx context.Context, addr string) (*PeerLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect peer: %w", err)
	}
	link := p.adopt(conn, model.PeerInitiated)
	if link == nil {
		return nil, errPeersClosed
	}
	return link, nil
}

var errPeersClosed = errors.New("client: peer manager closed")

// adopt makes conn the active link. It returns nil once Close has run.
func (p *Peers) adopt(conn net.Conn, dir model.PeerDirection) *PeerLink {
	link := &PeerLink{
		conn:      conn,
		direction: dir,
		remote:    conn.RemoteAddr().String(),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	prev := p.active
	p.active = link
	p.wg.Add(1)
	p.mu.Unlock()

	if prev != nil {
		slog.Debug("peer link superseded", "old", prev.remote, "new", link.remote)
		_ = prev.close()
	}

	go func() {
		defer p.wg.Done()
		p.receive(link)
	}()
	return link
}

func (p *Peers) receive(link *PeerLink) {
	sc := protocol.NewScanner(link.conn)
	for sc.Scan() {
		p.out.Peer("%s", sc.Text())
	}
	if err := sc.Err(); err != nil && !isClosedErr(err) {
		slog.Debug("peer read error", "remote", link.remote, "err", err)
	}

	p.mu.Lock()
	wasActive := p.active == link
	if wasActive {
		p.active = nil
	}
	p.mu.Unlock()

	_ = link.conn.Close()
	if wasActive && !link.closed.Load() {
		p.out.Peer("Peer disconnected")
	}
}

// Active returns the current link, or nil.
func (p *Peers) Active() *PeerLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Send writes one line to the active link.
func (p *Peers) Send(line string) error {
	link := p.Active()
	if link == nil {
		return ErrNoPeer
	}
	if err := link.send(line); err != nil {
		return fmt.Errorf("client: peer send: %w", err)
	}
	return nil
}

// Disconnect closes the active link. The server registration is untouched.
func (p *Peers) Disconnect() error {
	p.mu.Lock()
	link := p.active
	p.active = nil
	p.mu.Unlock()

	if link == nil {
		return ErrNoPeer
	}
	return link.close()
}

// Close closes the active link and waits for every receive loop to end.
func (p *Peers) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	err := p.Disconnect()
	if errors.Is(err, ErrNoPeer) {
		err = nil
	}
	p.wg.Wait()
	return err
}

func joinHostPort(host, port string) string {
	return net.JoinHostPort(strings.Trim(host, "[]"), port)
}
