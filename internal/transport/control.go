// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"

	"lumen/internal/params"
)

var ErrBadControl = errors.New("bad control message")

// ApplyControl routes a control message into the store. A tap raises the
// tap trigger; a set message writes one or several parameters.
func ApplyControl(store *params.Store, msg ControlMessage) error {
	switch msg.Type {
	case TypeTap:
		return store.Activate(params.TriggerTap)
	case TypeSet:
		if msg.Values != nil {
			return store.Apply(msg.Values)
		}
		if msg.Name == "" || msg.Value == nil {
			return fmt.Errorf("%w: set needs a name and a value", ErrBadControl)
		}
		_, err := store.Set(msg.Name, *msg.Value)
		return err
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadControl, msg.Type)
	}
}
