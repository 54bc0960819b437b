////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package badge keeps the app badge equal to the viewer's unread direct
// messages plus the number of active alerts.
package badge

import (
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
)

// Sink displays the badge number.
type Sink interface {
	SetBadge(n int) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n int) error

// SetBadge calls f.
func (f SinkFunc) SetBadge(n int) error {
	return f(n)
}

// LogSink writes the badge to the log. It is used when no device is
// attached.
type LogSink struct{}

// SetBadge logs n.
func (LogSink) SetBadge(n int) error {
	jww.INFO.Printf("[BADGE] Badge is now %d", n)
	return nil
}

// AlertSource reports the number of active alerts. WatchActive calls cb with
// the current count and again on every change until the returned function is
// called.
type AlertSource interface {
	WatchActive(cb func(active int)) (stop func())
}

// Aggregator combines the unread count of every conversation with the active
// alert count. It clears the badge to zero when stopped, so a badge never
// outlives the session that produced it.
type Aggregator struct {
	client dm.Client
	alerts AlertSource
	sink   Sink

	mux        sync.Mutex
	running    bool
	unread     int
	active     int
	shown      int
	stopConvs  dm.Unsubscribe
	stopAlerts func()
}

// NewAggregator builds an Aggregator. alerts may be nil when there is no
// alert feed.
func NewAggregator(client dm.Client, alerts AlertSource, sink Sink) *Aggregator {
	return &Aggregator{client: client, alerts: alerts, sink: sink, shown: -1}
}

// Start subscribes to viewerID's conversations and to the alert source.
func (a *Aggregator) Start(viewerID string) error {
	a.mux.Lock()
	if a.running {
		a.mux.Unlock()
		return errors.New("badge aggregator already running")
	}
	a.running = true
	a.unread, a.active = 0, 0
	a.mux.Unlock()

	jww.DEBUG.Printf("[BADGE] Starting badge for %s", viewerID)
	stopConvs := a.client.GetConversationsRealtime(viewerID,
		func(views []dm.ConversationView) {
			unread := 0
			for _, v := range views {
				unread += v.UnreadCount
			}
			a.update(func() { a.unread = unread })
		})

	var stopAlerts func()
	if a.alerts != nil {
		stopAlerts = a.alerts.WatchActive(func(active int) {
			a.update(func() { a.active = active })
		})
	}

	a.mux.Lock()
	a.stopConvs, a.stopAlerts = stopConvs, stopAlerts
	a.mux.Unlock()
	return nil
}

// Stop unsubscribes from both inputs and sets the badge to zero. Calling it
// again, or before Start, only clears the badge.
func (a *Aggregator) Stop() {
	a.mux.Lock()
	stopConvs, stopAlerts := a.stopConvs, a.stopAlerts
	a.stopConvs, a.stopAlerts = nil, nil
	a.running = false
	a.unread, a.active = 0, 0
	a.mux.Unlock()

	if stopConvs != nil {
		stopConvs()
	}
	if stopAlerts != nil {
		stopAlerts()
	}

	a.mux.Lock()
	defer a.mux.Unlock()
	a.set(0)
}

// Count returns the badge number last set.
func (a *Aggregator) Count() int {
	a.mux.Lock()
	defer a.mux.Unlock()
	if a.shown < 0 {
		return 0
	}
	return a.shown
}

// update applies a change to one input and recomputes the badge. Changes
// arriving after Stop are dropped.
func (a *Aggregator) update(apply func()) {
	a.mux.Lock()
	defer a.mux.Unlock()
	if !a.running {
		return
	}
	apply()
	a.set(a.unread + a.active)
}

// set pushes n to the sink. Must be called with the lock held.
func (a *Aggregator) set(n int) {
	if err := a.sink.SetBadge(n); err != nil {
		jww.WARN.Printf("[BADGE] Failed to set badge to %d: %+v", n, err)
		return
	}
	if n != a.shown {
		jww.DEBUG.Printf("[BADGE] Badge %d -> %d", a.shown, n)
	}
	a.shown = n
}
