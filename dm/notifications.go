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
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/event"
)

// ViewingContext is what a viewer is looking at when a message arrives.
type ViewingContext struct {
	// ViewerID is the user the device belongs to.
	ViewerID string

	// ActivePeerID is the peer whose conversation is open, if any.
	ActivePeerID string

	// Foreground is true while the app is in the foreground.
	Foreground bool
}

// ShouldNotify decides whether msg raises a notification for vc. Only inbound,
// unread messages the viewer has not deleted qualify, and messages from the
// peer whose conversation is open in the foreground are suppressed.
func ShouldNotify(msg *Message, vc ViewingContext) bool {
	switch {
	case msg.RecipientID != vc.ViewerID || msg.SenderID == vc.ViewerID:
		return false
	case msg.Read || msg.Status >= Read:
		return false
	case msg.DeletedFor.Has(vc.ViewerID):
		return false
	case vc.Foreground && vc.ActivePeerID != "" &&
		vc.ActivePeerID == msg.SenderID:
		return false
	default:
		return true
	}
}

// Session holds the viewing state of one UI session. It replaces any notion
// of a process-wide "currently viewing" flag; every listener consults the
// session it was started with.
type Session struct {
	mux sync.RWMutex
	vc  ViewingContext
}

// NewSession returns a foreground session for viewerID with no open
// conversation.
func NewSession(viewerID string) *Session {
	return &Session{vc: ViewingContext{ViewerID: viewerID, Foreground: true}}
}

// SetViewing records that the conversation with peerID is open.
func (s *Session) SetViewing(peerID string) {
	s.mux.Lock()
	s.vc.ActivePeerID = peerID
	s.mux.Unlock()
}

// ClearViewing records that no conversation is open.
func (s *Session) ClearViewing() {
	s.SetViewing("")
}

// SetForeground records whether the app is in the foreground.
func (s *Session) SetForeground(foreground bool) {
	s.mux.Lock()
	s.vc.Foreground = foreground
	s.mux.Unlock()
}

// Context returns a copy of the current viewing state.
func (s *Session) Context() ViewingContext {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.vc
}

// notificationListener turns inbox snapshots into notifications.
type notificationListener struct {
	c        *client
	viewerID string
	session  *Session
	notifier Notifier
	ledger   *notificationLedger

	// primed is only touched from the watch callback, which the store never
	// runs concurrently with itself.
	primed bool
}

// ListenForNotifications starts the notification listener for viewerID.
func (c *client) ListenForNotifications(viewerID string, session *Session,
	n Notifier) Unsubscribe {
	if session == nil {
		session = NewSession(viewerID)
	}
	l := &notificationListener{
		c:        c,
		viewerID: viewerID,
		session:  session,
		notifier: n,
		ledger:   newNotificationLedger(c.kv, viewerID),
	}
	sub := newSubscription("notifications for " + viewerID)

	return sub.attach(c.store.WatchInbox(viewerID,
		func(msgs []Message, err error) {
			if !sub.active() {
				return
			}
			if err != nil {
				c.streamError("ListenForNotifications", viewerID, err)
				return
			}
			l.handle(msgs)
		}))
}

// handle processes one inbox snapshot. The first snapshot only primes the
// ledger, so history never raises notifications.
func (l *notificationListener) handle(msgs []Message) {
	var undelivered []string
	for i := range msgs {
		msg := &msgs[i]
		if msg.RecipientID != l.viewerID {
			continue
		}
		if msg.Status < Delivered && !msg.Read {
			undelivered = append(undelivered, msg.ID)
		}

		if !l.primed {
			if !l.ledger.handled(msg.ID) {
				l.ledger.record(msg.ID, false)
			}
			continue
		}

		if !l.ledger.claim(msg.ID) {
			continue
		}
		if !ShouldNotify(msg, l.session.Context()) {
			l.ledger.record(msg.ID, false)
			continue
		}
		l.dispatch(msg.Clone())
	}
	if !l.primed {
		jww.DEBUG.Printf("[DM] Notification ledger for %s primed with %d "+
			"messages", l.viewerID, len(msgs))
		l.primed = true
	}

	if len(undelivered) > 0 {
		l.markDelivered(undelivered)
	}
}

// dispatch raises the notification for msg as a detached tail. The ledger
// entry is written after the attempt, so a crash in between repeats the
// notification rather than losing it.
func (l *notificationListener) dispatch(msg *Message) {
	n := Notification{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Title:          msg.SenderName,
		Body:           Preview(msg.Content),
		Data:           pushData(msg),
	}
	queued := l.c.goTail("notify "+msg.ID, l.c.params.PushTimeout,
		func(ctx context.Context) {
			notified := true
			if l.notifier != nil {
				if err := l.notifier.Notify(ctx, n); err != nil {
					notified = false
					details := fmt.Sprintf("notification for %s failed: %+v",
						msg.ID, err)
					jww.WARN.Printf("[DM] %s", details)
					l.c.events.Report(event.PriorityWarning, event.CategoryDM,
						event.NotificationFailed, details)
				}
			}
			l.ledger.record(msg.ID, notified)
		})
	if !queued {
		l.ledger.release(msg.ID)
	}
}

// markDelivered advances observed inbound messages to Delivered.
func (l *notificationListener) markDelivered(ids []string) {
	l.c.goTail("deliver "+l.viewerID, l.c.params.StoreTimeout,
		func(ctx context.Context) {
			if err := l.c.store.MarkDelivered(ctx, l.viewerID, ids); err != nil {
				jww.WARN.Printf("[DM] Failed to mark %d messages delivered "+
					"for %s: %+v", len(ids), l.viewerID, err)
			}
		})
}
