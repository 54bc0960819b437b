////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Status represents the delivery state of a direct message.
type Status uint8

const (
	// Sending is the status of a message before the store accepted it. It is
	// never persisted.
	Sending Status = 0

	// Sent is the status of a message once the store accepted it.
	Sent Status = 1

	// Delivered is the status of a message once the recipient's device has
	// observed it.
	Delivered Status = 2

	// Read is the status of a message once the recipient opened the
	// conversation.
	Read Status = 3
)

// String returns a human-readable version of [Status], used for debugging,
// logging and storage. This function adheres to the [fmt.Stringer] interface.
func (s Status) String() string {
	switch s {
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	default:
		return "Invalid Status: " + strconv.Itoa(int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sending":
		return Sending, nil
	case "sent":
		return Sent, nil
	case "delivered":
		return Delivered, nil
	case "read":
		return Read, nil
	default:
		return 0, errors.Errorf("unknown message status %q", s)
	}
}

// Advance returns the status a message in state s has after a transition to
// next. Statuses only move forward, so an older status never overwrites a
// newer one.
func (s Status) Advance(next Status) Status {
	if next > s {
		return next
	}
	return s
}
