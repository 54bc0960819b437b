////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"strconv"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
	"gitlab.com/elixxir/staffcomms/stoppable"
)

// watchKind selects which documents a live query covers.
type watchKind uint8

const (
	conversationMessages watchKind = iota
	participantConversations
	recipientInbox
)

func (k watchKind) String() string {
	switch k {
	case conversationMessages:
		return "conversation"
	case participantConversations:
		return "conversations"
	case recipientInbox:
		return "inbox"
	default:
		return "Invalid watchKind: " + strconv.Itoa(int(k))
	}
}

// change lists what a mutation touched.
type change struct {
	// conversations whose message set changed
	conversations []string

	// recipients whose inbound messages changed
	recipients []string

	// participants whose conversation documents changed
	participants []string
}

func (c change) touches(w *watcher) bool {
	var keys []string
	switch w.kind {
	case conversationMessages:
		keys = c.conversations
	case participantConversations:
		keys = c.participants
	case recipientInbox:
		keys = c.recipients
	}
	for _, k := range keys {
		if k == w.key {
			return true
		}
	}
	return false
}

// watcher is one live query. Changes only mark it dirty; its goroutine
// re-evaluates the query, so bursts of writes coalesce into one emission and
// callbacks for one watcher never run concurrently.
type watcher struct {
	kind  watchKind
	key   string
	dirty chan struct{}
	stop  *stoppable.Single
	emit  func()
}

func (w *watcher) markDirty() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	for {
		select {
		case <-w.stop.Quit():
			w.stop.ToStopped()
			return
		case <-w.dirty:
			// Unsubscribe may race the dirty signal
			if !w.stop.IsRunning() {
				continue
			}
			w.emit()
		}
	}
}

// WatchConversation emits every message of the conversation.
func (s *Store) WatchConversation(conversationID string,
	cb func([]dm.Message, error)) dm.Unsubscribe {
	return s.watch(conversationMessages, conversationID, func() {
		cb(s.selectMessages(func(m *dm.Message) bool {
			return m.ConversationID == conversationID
		}), nil)
	})
}

// WatchConversations emits every conversation viewerID participates in.
func (s *Store) WatchConversations(viewerID string,
	cb func([]dm.Conversation, error)) dm.Unsubscribe {
	return s.watch(participantConversations, viewerID, func() {
		cb(s.selectConversations(viewerID), nil)
	})
}

// WatchInbox emits every message addressed to viewerID.
func (s *Store) WatchInbox(viewerID string,
	cb func([]dm.Message, error)) dm.Unsubscribe {
	return s.watch(recipientInbox, viewerID, func() {
		cb(s.selectMessages(func(m *dm.Message) bool {
			return m.RecipientID == viewerID
		}), nil)
	})
}

// watch registers a live query and schedules its initial emission.
func (s *Store) watch(kind watchKind, key string, emit func()) dm.Unsubscribe {
	name := kind.String() + " " + key
	w := &watcher{
		kind:  kind,
		key:   key,
		dirty: make(chan struct{}, 1),
		stop:  stoppable.NewSingle(name),
		emit:  emit,
	}

	s.watchMux.Lock()
	s.mux.Lock()
	closed := s.closed
	s.mux.Unlock()
	if closed {
		s.watchMux.Unlock()
		jww.WARN.Printf("[DM MEM] Watch %s on closed store", name)
		return func() {}
	}
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = w
	s.watchMux.Unlock()

	jww.TRACE.Printf("[DM MEM] Watching %s", name)
	w.markDirty()
	go w.run()

	return func() {
		s.watchMux.Lock()
		delete(s.watchers, id)
		s.watchMux.Unlock()
		_ = w.stop.Close()
	}
}

// notify marks every watcher touched by c dirty.
func (s *Store) notify(c change) {
	s.watchMux.Lock()
	defer s.watchMux.Unlock()
	for _, w := range s.watchers {
		if c.touches(w) {
			w.markDirty()
		}
	}
}

func (s *Store) selectMessages(match func(*dm.Message) bool) []dm.Message {
	s.mux.Lock()
	defer s.mux.Unlock()
	out := make([]dm.Message, 0)
	for _, m := range s.messages {
		if match(m) {
			out = append(out, *m.Clone())
		}
	}
	return out
}

func (s *Store) selectConversations(viewerID string) []dm.Conversation {
	s.mux.Lock()
	defer s.mux.Unlock()
	out := make([]dm.Conversation, 0)
	for _, c := range s.conversations {
		if c.HasParticipant(viewerID) {
			out = append(out, *c.Clone())
		}
	}
	return out
}
