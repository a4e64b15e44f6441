package client

import (
	"net"
	"sync"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// AddressBook remembers peer addresses learned from ADDR replies so that
// /connect accepts a username. The server answers GETADDR in order, so
// replies are matched to outstanding lookups first-in first-out.
type AddressBook struct {
	mu      sync.Mutex
	pending []string
	addrs   map[string]string // username -> host:port
}

// NewAddressBook creates an empty address book.
func NewAddressBook() *AddressBook {
	return &AddressBook{addrs: make(map[string]string)}
}

// Expect records an outstanding GETADDR for name.
func (b *AddressBook) Expect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, name)
}

// Cancel drops the most recent outstanding lookup for name, used when the
// GETADDR could not be sent.
func (b *AddressBook) Cancel(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.pending) - 1; i >= 0; i-- {
		if b.pending[i] == name {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			return
		}
	}
}

// Observe consumes an ADDR or ERR reply. It returns the username the reply
// belongs to, or false if the reply answers no outstanding lookup.
func (b *AddressBook) Observe(resp protocol.Response) (string, bool) {
	if resp.Kind != protocol.RespAddr && resp.Kind != protocol.RespErr {
		return "", false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return "", false
	}
	name := b.pending[0]
	b.pending = b.pending[1:]

	if resp.Kind == protocol.RespAddr {
		b.addrs[name] = net.JoinHostPort(resp.IP, resp.Port)
	} else {
		delete(b.addrs, name)
	}
	return name, true
}

// Lookup returns the last known address for name.
func (b *AddressBook) Lookup(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	addr, ok := b.addrs[name]
	return addr, ok
}
