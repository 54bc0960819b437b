////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package storage is an in-process document store for direct messages with
// live queries. It backs the CLI demo and the tests, and is the default
// backend when no Firestore project is configured.
package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/staffcomms/dm"
)

// ErrClosed is returned by every operation on a closed Store.
var ErrClosed = errors.New("message store is closed")

// Clock returns the current time.
type Clock func() time.Time

// Store implements dm.Store in memory. A single lock serializes every
// mutation, which makes each one atomic; live queries are re-evaluated after
// the lock is released.
type Store struct {
	mux           sync.Mutex
	messages      map[string]*dm.Message
	conversations map[string]*dm.Conversation
	lastTimestamp time.Time
	closed        bool

	clock Clock
	newID func() string

	watchMux    sync.Mutex
	watchers    map[uint64]*watcher
	nextWatcher uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces netTime.Now as the source of message timestamps.
func WithClock(clock Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator replaces random UUIDs as message IDs.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		messages:      make(map[string]*dm.Message),
		conversations: make(map[string]*dm.Conversation),
		clock:         func() time.Time { return netTime.Now() },
		newID:         uuid.NewString,
		watchers:      make(map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	jww.DEBUG.Printf("[DM MEM] Created in-memory message store")
	return s
}

// Close stops every live query. Operations after Close return ErrClosed.
func (s *Store) Close() error {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return nil
	}
	s.closed = true
	s.mux.Unlock()

	s.watchMux.Lock()
	watchers := s.watchers
	s.watchers = make(map[uint64]*watcher)
	s.watchMux.Unlock()

	for _, w := range watchers {
		_ = w.stop.Close()
	}
	jww.DEBUG.Printf("[DM MEM] Closed message store, stopped %d watches",
		len(watchers))
	return nil
}

// nextTimestamp returns a timestamp strictly after every one handed out
// before. Must be called with the lock held.
func (s *Store) nextTimestamp() time.Time {
	ts := s.clock()
	if !ts.After(s.lastTimestamp) {
		ts = s.lastTimestamp.Add(time.Nanosecond)
	}
	s.lastTimestamp = ts
	return ts
}

var _ dm.Store = (*Store)(nil)
