////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package stoppable

import (
	"sync"
	"sync/atomic"

	jww "github.com/spf13/jwalterweatherman"
)

// Single stops exactly one goroutine. Unlike a plain channel it can be closed
// any number of times from any goroutine, which is what subscription
// unsubscribe functions need.
type Single struct {
	name   string
	quit   chan struct{}
	done   chan struct{}
	status uint32

	closeOnce   sync.Once
	stoppedOnce sync.Once
}

// NewSingle returns a new running Single.
func NewSingle(name string) *Single {
	return &Single{
		name:   name,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		status: uint32(Running),
	}
}

// Name returns the name of the Single.
func (s *Single) Name() string {
	return s.name
}

// GetStatus returns the current Status.
func (s *Single) GetStatus() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// IsRunning returns true until Close is called.
func (s *Single) IsRunning() bool {
	return s.GetStatus() == Running
}

// Quit returns a channel that is closed when Close is called.
func (s *Single) Quit() <-chan struct{} {
	return s.quit
}

// Done returns a channel that is closed when the goroutine calls ToStopped.
func (s *Single) Done() <-chan struct{} {
	return s.done
}

// Close signals the goroutine to quit. Only the first call has an effect;
// later calls return nil without logging anything.
func (s *Single) Close() error {
	s.closeOnce.Do(func() {
		atomic.CompareAndSwapUint32(
			&s.status, uint32(Running), uint32(Stopping))
		jww.TRACE.Printf("Closing quit channel of stoppable %q.", s.name)
		close(s.quit)
	})
	return nil
}

// ToStopped is called by the goroutine on its way out.
func (s *Single) ToStopped() {
	s.stoppedOnce.Do(func() {
		prev := Status(atomic.SwapUint32(&s.status, uint32(Stopped)))
		jww.DEBUG.Printf("Switched status of stoppable %q from %s to %s.",
			s.name, prev, Stopped)
		close(s.done)
	})
}
