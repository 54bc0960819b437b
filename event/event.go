////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package event

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/staffcomms/stoppable"
)

// eventQueueSize bounds the number of undelivered events. Report never blocks;
// events past this bound are counted and dropped.
const eventQueueSize = 1000

// Event is one reported occurrence.
type Event struct {
	Timestamp time.Time
	Priority  Priority
	Category  Category
	Type      Type
	Details   string
}

// String returns a one-line rendering of the event.
func (e Event) String() string {
	return fmt.Sprintf("Event(%s, %s, %s, %q)", e.Priority, e.Category,
		e.Type, e.Details)
}

// subscriber is a registered callback and the least urgent priority it
// accepts.
type subscriber struct {
	threshold Priority
	cb        Callback
}

type eventManager struct {
	eventCh chan Event
	subs    sync.Map
	dropped uint64
}

// NewEventManager returns a Manager. Events are only delivered once
// EventService has been started.
func NewEventManager() Manager {
	return newEventManager()
}

func newEventManager() *eventManager {
	return &eventManager{
		eventCh: make(chan Event, eventQueueSize),
	}
}

// Report queues an event for delivery.
func (e *eventManager) Report(priority Priority, category Category,
	evtType Type, details string) {
	evt := Event{
		Timestamp: netTime.Now(),
		Priority:  priority,
		Category:  category,
		Type:      evtType,
		Details:   details,
	}
	select {
	case e.eventCh <- evt:
		jww.TRACE.Printf("Event reported: %s", evt)
	default:
		n := atomic.AddUint64(&e.dropped, 1)
		jww.ERROR.Printf("Event queue full, dropped %s (%d dropped so far)",
			evt, n)
	}
}

// Dropped returns the number of events lost to a full queue.
func (e *eventManager) Dropped() uint64 {
	return atomic.LoadUint64(&e.dropped)
}

// RegisterEventCallback records cb under name. Names are unique.
func (e *eventManager) RegisterEventCallback(name string, threshold Priority,
	cb Callback) error {
	if cb == nil {
		return errors.Errorf("nil event callback %s", name)
	}
	sub := subscriber{threshold: threshold, cb: cb}
	if _, exists := e.subs.LoadOrStore(name, sub); exists {
		return errors.Errorf("Key %s already exists as event callback", name)
	}
	return nil
}

// UnregisterEventCallback deletes the callback identified by name.
func (e *eventManager) UnregisterEventCallback(name string) {
	e.subs.Delete(name)
}

// EventService starts the goroutine delivering events to the callbacks.
func (e *eventManager) EventService() (stoppable.Stoppable, error) {
	stop := stoppable.NewSingle("EventReporting")
	go e.reportEventsHandler(stop)
	return stop, nil
}

func (e *eventManager) reportEventsHandler(stop *stoppable.Single) {
	jww.DEBUG.Print("reportEventsHandler routine started")
	for {
		select {
		case <-stop.Quit():
			jww.DEBUG.Printf("Stopping reportEventsHandler")
			stop.ToStopped()
			return
		case evt := <-e.eventCh:
			e.deliver(evt)
		}
	}
}

// deliver runs every accepting callback inline. A slow callback backs up the
// queue.
func (e *eventManager) deliver(evt Event) {
	e.subs.Range(func(_, value interface{}) bool {
		sub := value.(subscriber)
		if evt.Priority <= sub.threshold {
			sub.cb(evt)
		}
		return true
	})
}
