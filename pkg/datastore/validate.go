package datastore

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/rendezvous/pkg/model"
)

var ErrInvalidEventKind = errors.New("invalid presence event kind")

func validateEvent(ev *model.PresenceEvent) error {
	if ev == nil {
		return errors.New("nil presence event")
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventKind, ev.Kind)
	}
	return model.ValidateUsername(ev.Username)
}

const defaultPageSize = 100
