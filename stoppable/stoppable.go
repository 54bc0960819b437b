////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package stoppable controls the lifecycle of the long-running listeners
// (store watches, alert pollers, event reporting).
package stoppable

import "strconv"

// Stoppable is anything backed by a goroutine that can be told to quit.
type Stoppable interface {
	// Close signals the goroutine to quit. It is safe to call more than once.
	Close() error
	IsRunning() bool
	Name() string
}

// Status is the lifecycle state of a Stoppable.
type Status uint32

const (
	Running Status = iota
	Stopping
	Stopped
)

// String prints a human-readable version of the Status. This function adheres
// to the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "INVALID STATUS: " + strconv.Itoa(int(s))
	}
}
