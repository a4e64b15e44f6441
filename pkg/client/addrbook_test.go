package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

func TestAddressBookMatchesRepliesInOrder(t *testing.T) {
	b := NewAddressBook()
	b.Expect("bob")
	b.Expect("carol")

	name, ok := b.Observe(protocol.Response{Kind: protocol.RespAddr, IP: "10.0.0.2", Port: "5002"})
	assert.True(t, ok)
	assert.Equal(t, "bob", name)

	name, ok = b.Observe(protocol.Response{Kind: protocol.RespErr})
	assert.True(t, ok)
	assert.Equal(t, "carol", name)

	addr, ok := b.Lookup("bob")
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.2:5002", addr)

	_, ok = b.Lookup("carol")
	assert.False(t, ok)
}

func TestAddressBookIgnoresUnrelatedReplies(t *testing.T) {
	b := NewAddressBook()

	_, ok := b.Observe(protocol.Response{Kind: protocol.RespAddr, IP: "10.0.0.2", Port: "5002"})
	assert.False(t, ok)

	b.Expect("bob")
	_, ok = b.Observe(protocol.Response{Kind: protocol.RespUsers, Users: []string{"bob"}})
	assert.False(t, ok)
	_, ok = b.Observe(protocol.Response{Kind: protocol.RespFrom, From: "bob", Text: "hi"})
	assert.False(t, ok)

	name, ok := b.Observe(protocol.Response{Kind: protocol.RespAddr, IP: "::1", Port: "7000"})
	assert.True(t, ok)
	assert.Equal(t, "bob", name)
	addr, _ := b.Lookup("bob")
	assert.Equal(t, "[::1]:7000", addr)
}

func TestAddressBookErrForgetsKnownAddress(t *testing.T) {
	b := NewAddressBook()
	b.Expect("bob")
	b.Observe(protocol.Response{Kind: protocol.RespAddr, IP: "10.0.0.2", Port: "5002"})

	b.Expect("bob")
	b.Observe(protocol.Response{Kind: protocol.RespErr})

	_, ok := b.Lookup("bob")
	assert.False(t, ok)
}

func TestAddressBookCancel(t *testing.T) {
	b := NewAddressBook()
	b.Expect("bob")
	b.Expect("carol")
	b.Cancel("bob")

	name, ok := b.Observe(protocol.Response{Kind: protocol.RespErr})
	assert.True(t, ok)
	assert.Equal(t, "carol", name)
}
