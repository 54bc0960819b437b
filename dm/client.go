////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/staffcomms/directory"
	"gitlab.com/elixxir/staffcomms/event"
	"gitlab.com/elixxir/staffcomms/push"
	"gitlab.com/elixxir/staffcomms/storage/versioned"
)

// Params configures the timeouts of the messaging client.
type Params struct {
	// StoreTimeout bounds every store write.
	StoreTimeout time.Duration

	// LookupTimeout bounds every directory lookup.
	LookupTimeout time.Duration

	// PushTimeout bounds a whole push tail, from recipient lookup to dispatch.
	PushTimeout time.Duration
}

// GetDefaultParams returns the default timeouts.
func GetDefaultParams() Params {
	return Params{
		StoreTimeout:  10 * time.Second,
		LookupTimeout: 5 * time.Second,
		PushTimeout:   30 * time.Second,
	}
}

// client implements Client.
type client struct {
	store  Store
	dir    directory.Directory
	push   push.Dispatcher
	kv     *versioned.KV
	events event.Reporter
	params Params

	// tails tracks detached work; mux guards closed so no tail is added once
	// Close started waiting.
	tails  sync.WaitGroup
	mux    sync.RWMutex
	closed bool
}

// NewClient builds the messaging client.
//
// kv is the device-local store holding the notification ledger; nil uses an
// in-memory store. A nil dispatcher disables push and a nil reporter drops
// events.
func NewClient(store Store, dir directory.Directory,
	dispatcher push.Dispatcher, kv *versioned.KV, events event.Reporter,
	params Params) Client {
	return newClient(store, dir, dispatcher, kv, events, params)
}

func newClient(store Store, dir directory.Directory,
	dispatcher push.Dispatcher, kv *versioned.KV, events event.Reporter,
	params Params) *client {
	defaults := GetDefaultParams()
	if params.StoreTimeout <= 0 {
		params.StoreTimeout = defaults.StoreTimeout
	}
	if params.LookupTimeout <= 0 {
		params.LookupTimeout = defaults.LookupTimeout
	}
	if params.PushTimeout <= 0 {
		params.PushTimeout = defaults.PushTimeout
	}
	if dispatcher == nil {
		dispatcher = push.Nop{}
	}
	if kv == nil {
		jww.WARN.Printf("[DM] No device store given, notification " +
			"ledger will not survive restarts")
		kv = versioned.NewKV(ekv.MakeMemstore())
	}
	if events == nil {
		events = event.Nop{}
	}

	return &client{
		store:  store,
		dir:    dir,
		push:   dispatcher,
		kv:     kv,
		events: events,
		params: params,
	}
}

// Close waits for every queued tail to finish.
func (c *client) Close() error {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return nil
	}
	c.closed = true
	c.mux.Unlock()

	jww.DEBUG.Printf("[DM] Closing client, waiting for queued tails")
	c.tails.Wait()
	return nil
}

// goTail runs fn detached from the caller. fn gets its own context bounded
// by timeout, so neither the caller's cancellation nor an unsubscribe stops
// it. Panics are logged and reported. Returns false if the client is closed.
func (c *client) goTail(name string, timeout time.Duration,
	fn func(ctx context.Context)) bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	if c.closed {
		return false
	}

	c.tails.Add(1)
	go func() {
		defer c.tails.Done()
		defer func() {
			if r := recover(); r != nil {
				details := fmt.Sprintf("%s panicked: %v", name, r)
				jww.ERROR.Printf("[DM] %s\n%s", details, debug.Stack())
				c.events.Report(event.PriorityError, event.CategoryDM,
					event.TailPanic, details)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

func (c *client) isClosed() bool {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.closed
}

// storeContext bounds a store call by StoreTimeout.
func (c *client) storeContext(parent context.Context) (
	context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.params.StoreTimeout)
}

// lookupContext bounds a directory call by LookupTimeout.
func (c *client) lookupContext(parent context.Context) (
	context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.params.LookupTimeout)
}

// streamError logs and reports a failed live query.
func (c *client) streamError(op, key string, err error) {
	details := fmt.Sprintf("%s(%s) stream failed: %+v", op, key, err)
	jww.ERROR.Printf("[DM] %s", details)
	c.events.Report(event.PriorityWarning, event.CategoryDM,
		event.StreamError, details)
}
