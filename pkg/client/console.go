package client

import (
	"context"
	"errors"
	"strings"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// ServerCommands is the part of ServerConn the console drives.
type ServerCommands interface {
	List() error
	Addr(name string) error
	Msg(name, text string) error
	Quit() error
}

// Console interprets one line of user input at a time.
type Console struct {
	username string
	server   ServerCommands
	peers    *Peers
	book     *AddressBook
	out      *Printer
}

// NewConsole creates a console for a registered user.
func NewConsole(username string, server ServerCommands, peers *Peers, book *AddressBook, out *Printer) *Console {
	return &Console{
		username: username,
		server:   server,
		peers:    peers,
		book:     book,
		out:      out,
	}
}

// Help prints the command summary.
func (c *Console) Help() {
	c.out.Plain("Commands:")
	c.out.Plain(" /list")
	c.out.Plain(" /addr <username>")
	c.out.Plain(" /msg <username> <message>   (via server)")
	c.out.Plain(" /connect <ip> <port>        (P2P)")
	c.out.Plain(" /connect <username>         (P2P, after /addr)")
	c.out.Plain(" /disconnect")
	c.out.Plain(" /quit")
	c.out.Plain("Anything else is sent to the connected peer.")
}

// Handle executes one input line. It reports true when the user quit.
// Failures are printed; the console keeps going.
func (c *Console) Handle(ctx context.Context, line string) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/list":
		c.report(c.server.List())

	case "/addr":
		if len(fields) != 2 {
			c.out.Info("Usage: /addr <username>")
			return false
		}
		c.book.Expect(fields[1])
		if err := c.server.Addr(fields[1]); err != nil {
			c.book.Cancel(fields[1])
			c.report(err)
		}

	case "/msg":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 || parts[1] == "" || strings.TrimSpace(parts[2]) == "" {
			c.out.Info("Usage: /msg <username> <message>")
			return false
		}
		c.report(c.server.Msg(parts[1], parts[2]))

	case "/connect":
		c.connect(ctx, fields[1:])

	case "/disconnect":
		if err := c.peers.Disconnect(); errors.Is(err, ErrNoPeer) {
			c.out.Info("No P2P connection.")
		} else {
			c.out.Peer("Disconnected. Back to server chat.")
		}

	case "/quit":
		c.report(c.server.Quit())
		return true

	case "/help":
		c.Help()

	default:
		err := c.peers.Send(protocol.PeerLine(c.username, line))
		if errors.Is(err, ErrNoPeer) {
			c.out.Info("Use /msg <user> <text> to chat via server.")
			return false
		}
		c.report(err)
	}
	return false
}

func (c *Console) connect(ctx context.Context, args []string) {
	var addr string
	switch len(args) {
	case 1:
		known, ok := c.book.Lookup(args[0])
		if !ok {
			c.out.Info("No address for %s. Use /addr %s first.", args[0], args[0])
			return
		}
		addr = known
	case 2:
		addr = joinHostPort(args[0], args[1])
	default:
		c.out.Info("Usage: /connect <ip> <port> | /connect <username>")
		return
	}

	if _, err := c.peers.Connect(ctx, addr); err != nil {
		c.out.Peer("Connection to %s failed: %v", addr, err)
		return
	}
	c.out.Peer("Connected to peer %s", addr)
}

func (c *Console) report(err error) {
	if err != nil {
		c.out.Info("Error: %v", err)
	}
}
