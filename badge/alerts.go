////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package badge

import (
	"context"
	"sync"
	"time"

	fs "cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gitlab.com/elixxir/staffcomms/stoppable"
)

// AlertsCollection holds one document per alert.
const AlertsCollection = "alerts"

// Static is an AlertSource whose count is set by hand.
type Static struct {
	mux      sync.Mutex
	count    int
	watchers map[int]func(int)
	next     int
}

// NewStatic returns a Static source starting at count.
func NewStatic(count int) *Static {
	return &Static{count: count, watchers: make(map[int]func(int))}
}

// Set changes the count and notifies every watcher.
func (s *Static) Set(count int) {
	s.mux.Lock()
	s.count = count
	cbs := make([]func(int), 0, len(s.watchers))
	for _, cb := range s.watchers {
		cbs = append(cbs, cb)
	}
	s.mux.Unlock()

	for _, cb := range cbs {
		cb(count)
	}
}

// WatchActive calls cb with the current count and on every Set.
func (s *Static) WatchActive(cb func(int)) func() {
	s.mux.Lock()
	id := s.next
	s.next++
	s.watchers[id] = cb
	count := s.count
	s.mux.Unlock()

	cb(count)
	return func() {
		s.mux.Lock()
		delete(s.watchers, id)
		s.mux.Unlock()
	}
}

// Poller is an AlertSource backed by a fetch function called on an interval.
type Poller struct {
	fetch    func(ctx context.Context) (int, error)
	interval time.Duration
	timeout  time.Duration
}

// NewPoller polls fetch every interval. Each call is bounded by the interval.
func NewPoller(fetch func(ctx context.Context) (int, error),
	interval time.Duration) *Poller {
	return &Poller{fetch: fetch, interval: interval, timeout: interval}
}

// WatchActive polls until stopped and calls cb whenever the count changes.
// Failed polls keep the previous count.
// The returned function cancels an in-flight poll and waits for the poller
// to exit, so it must not be called from cb.
func (p *Poller) WatchActive(cb func(int)) func() {
	stop := stoppable.NewSingle("AlertPoller")
	stopCtx, cancel := context.WithCancel(context.Background())
	go func() {
		defer stop.ToStopped()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		last := -1
		poll := func() {
			ctx, cancelPoll := context.WithTimeout(stopCtx, p.timeout)
			defer cancelPoll()
			n, err := p.fetch(ctx)
			if err != nil {
				if stopCtx.Err() == nil {
					jww.WARN.Printf("[BADGE] Alert poll failed: %+v", err)
				}
				return
			}
			if n != last && stop.IsRunning() {
				last = n
				cb(n)
			}
		}

		poll()
		for {
			select {
			case <-stop.Quit():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()
	return func() {
		_ = stop.Close()
		cancel()
		<-stop.Done()
	}
}

// FirestoreAlerts counts the unresolved documents of the alerts collection.
type FirestoreAlerts struct {
	query fs.Query
}

// NewFirestoreAlerts watches the alerts collection of client.
func NewFirestoreAlerts(client *fs.Client) *FirestoreAlerts {
	return &FirestoreAlerts{
		query: client.Collection(AlertsCollection).
			Where("resolved", "==", false),
	}
}

// WatchActive reports the size of every snapshot of unresolved alerts. The
// returned function waits for the listener to exit and must not be called
// from cb.
func (f *FirestoreAlerts) WatchActive(cb func(int)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	stop := stoppable.NewSingle("FirestoreAlerts")
	go func() {
		defer stop.ToStopped()
		it := f.query.Snapshots(ctx)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					jww.ERROR.Printf("[BADGE] Alert listener failed: %+v", err)
				}
				return
			}
			if stop.IsRunning() {
				cb(snap.Size)
			}
		}
	}()
	return func() {
		_ = stop.Close()
		cancel()
		<-stop.Done()
	}
}

// CountUnresolved returns a fetch function for NewPoller that counts the
// unresolved alerts with an aggregation query instead of a live listener.
func CountUnresolved(client *fs.Client) func(ctx context.Context) (int, error) {
	unresolved := client.Collection(AlertsCollection).
		Where("resolved", "==", false)
	q := unresolved.NewAggregationQuery().WithCount("active")
	return func(ctx context.Context) (int, error) {
		res, err := q.Get(ctx)
		if err != nil {
			return 0, errors.Errorf("failed to count alerts: %+v", err)
		}
		v, ok := res["active"].(*firestorepb.Value)
		if !ok {
			return 0, errors.Errorf("unexpected alert count %v", res["active"])
		}
		return int(v.GetIntegerValue()), nil
	}
}
