package client

import (
	"fmt"
	"io"
	"sync"
)

// Output prefixes.
const (
	PrefixServer = "[SERVER]"
	PrefixPeer   = "[P2P]"
	PrefixInfo   = "[INFO]"
)

// Printer writes whole lines to the terminal. Server, peer and console
// goroutines share one Printer so their lines never interleave.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Server prints a line received from the relay server.
func (p *Printer) Server(line string) { p.println(PrefixServer, line) }

// Peer prints a line received from, or about, the peer link.
func (p *Printer) Peer(format string, args ...any) {
	p.println(PrefixPeer, fmt.Sprintf(format, args...))
}

// Info prints a local status line.
func (p *Printer) Info(format string, args ...any) {
	p.println(PrefixInfo, fmt.Sprintf(format, args...))
}

// Plain prints a line without prefix.
func (p *Printer) Plain(line string) { p.println("", line) }

func (p *Printer) println(prefix, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prefix == "" {
		_, _ = fmt.Fprintln(p.w, text)
		return
	}
	_, _ = fmt.Fprintln(p.w, prefix, text)
}
