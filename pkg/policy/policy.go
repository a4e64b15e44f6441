// Package policy decides which relay commands a session may issue in each
// lifecycle state.
package policy

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/rendezvous/pkg/model"
	"github.com/NicolasHaas/rendezvous/pkg/protocol"
)

// ErrDenied is returned by Require when the state does not permit the verb.
var ErrDenied = errors.New("policy: command not allowed")

// permissionMatrix maps session states to their allowed verbs.
var permissionMatrix = map[model.SessionState]map[protocol.Verb]bool{
	model.StateConnected: {
		protocol.VerbRegister: true,
		protocol.VerbList:     true,
		protocol.VerbGetAddr:  true,
		protocol.VerbQuit:     true,
	},
	model.StateRegistered: {
		protocol.VerbRegister: true,
		protocol.VerbList:     true,
		protocol.VerbGetAddr:  true,
		protocol.VerbMsg:      true,
		protocol.VerbQuit:     true,
	},
	model.StateClosed: {
		// Nothing runs after cleanup
	},
}

// Allowed reports whether a session in state may issue verb.
func Allowed(state model.SessionState, verb protocol.Verb) bool {
	verbs, ok := permissionMatrix[state]
	if !ok {
		return false
	}
	return verbs[verb]
}

// Require returns ErrDenied (wrapped with context) if verb is not allowed.
func Require(state model.SessionState, verb protocol.Verb) error {
	if Allowed(state, verb) {
		return nil
	}
	return fmt.Errorf("%w: %s while %s", ErrDenied, verb, state)
}
