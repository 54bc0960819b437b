////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"strconv"

	"gitlab.com/elixxir/staffcomms/stoppable"
)

// Priority orders events by urgency. Lower is more urgent.
type Priority int

const (
	PriorityError   Priority = 1
	PriorityWarning Priority = 10
	PriorityInfo    Priority = 20
)

// String returns the name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityError:
		return "ERROR"
	case PriorityWarning:
		return "WARN"
	case PriorityInfo:
		return "INFO"
	default:
		return "Priority(" + strconv.Itoa(int(p)) + ")"
	}
}

// Category names the component an event came from.
type Category string

// CategoryDM is reported by the messaging core.
const CategoryDM Category = "DM"

// Type identifies what happened within a category.
type Type string

// Event types reported by the messaging core.
const (
	// PushFailed is a notification that could not be handed to the push
	// provider. The message itself was stored.
	PushFailed Type = "PushFailed"

	// TailPanic is a recovered panic in the post-send work.
	TailPanic Type = "TailPanic"

	// StreamError is a watch on the store that ended with an error.
	StreamError Type = "StreamError"

	// NotificationFailed is a local notification that could not be shown.
	NotificationFailed Type = "NotificationFailed"

	// OrphanMessage is a message whose conversation document is missing.
	OrphanMessage Type = "OrphanMessage"
)

// Callback receives delivered events.
type Callback func(Event)

// Reporter is the reporting api used internally by the messaging core.
type Reporter interface {
	Report(priority Priority, category Category, evtType Type, details string)
}

// Manager is a Reporter that fans events out to registered callbacks.
type Manager interface {
	Reporter

	// RegisterEventCallback adds a callback under name. It receives every
	// event at threshold or more urgent.
	RegisterEventCallback(name string, threshold Priority, cb Callback) error
	UnregisterEventCallback(name string)

	// EventService starts delivering queued events.
	EventService() (stoppable.Stoppable, error)

	// Dropped returns the number of events lost to a full queue.
	Dropped() uint64
}

// Nop is a Reporter that drops everything.
type Nop struct{}

// Report does nothing.
func (Nop) Report(Priority, Category, Type, string) {}
