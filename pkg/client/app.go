package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/rendezvous/pkg/model"
	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// App is one interactive chat client: server connection, peer listener and
// console.
type App struct {
	cfg      Config
	username string
	peerPort string
	out      *Printer
}

// NewApp validates the username and prepares a client writing to out.
func NewApp(cfg Config, username, peerPort string, out io.Writer) (*App, error) {
	if err := model.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if _, err := strconv.ParseUint(peerPort, 10, 16); err != nil {
		return nil, fmt.Errorf("client: invalid peer port %q", peerPort)
	}
	return &App{
		cfg:      cfg,
		username: username,
		peerPort: peerPort,
		out:      NewPrinter(out),
	}, nil
}

// Run binds the peer listener, registers with the server and runs the
// console on input until /quit, EOF on input, or ctx is cancelled.
// Peer port "0" registers whichever port the listener got.
func (a *App) Run(ctx context.Context, input io.Reader) error {
	ln, err := Listen(a.cfg.PeerHost, a.peerPort)
	if err != nil {
		return err
	}
	port := a.peerPort
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = strconv.Itoa(tcp.Port)
	}

	server, err := Dial(ctx, a.cfg.ServerAddr)
	if err != nil {
		return multierr.Append(err, ln.Close())
	}
	if err := server.Register(ctx, a.username, port); err != nil {
		return multierr.Combine(err, server.Close(), ln.Close())
	}

	peers := NewPeers(a.out)
	book := NewAddressBook()
	console := NewConsole(a.username, server, peers, book, a.out)

	a.out.Info("Logged in as %s", a.username)
	a.out.Info("Listening on port: %s", port)
	console.Help()

	server.StartReceiving(func(line string) {
		if resp, err := protocol.ParseResponse(line); err == nil {
			book.Observe(resp)
		}
		a.out.Server(line)
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	var closing atomic.Bool

	g.Go(func() error {
		return peers.Serve(ln)
	})

	g.Go(func() error {
		select {
		case <-server.Done():
			if !closing.Load() {
				a.out.Info("Server connection lost.")
			}
		case <-gctx.Done():
		}
		return nil
	})

	lines := readLines(gctx, input)
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if console.Handle(gctx, line) {
					return nil
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		closing.Store(true)
		return multierr.Combine(
			ignoreClosed(ln.Close()),
			ignoreClosed(server.Close()),
			peers.Close(),
		)
	})

	return g.Wait()
}

// readLines feeds input lines to the returned channel until EOF or ctx ends.
func readLines(ctx context.Context, input io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := protocol.NewScanner(input)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
