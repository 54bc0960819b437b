////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/badge"
	"gitlab.com/elixxir/staffcomms/dm"
)

// MessagesFrame carries one snapshot of a thread.
type MessagesFrame struct {
	Type     string           `json:"type"`
	Messages []dm.MessageView `json:"messages"`
}

// ConversationsFrame carries one snapshot of the conversation list.
type ConversationsFrame struct {
	Type          string                `json:"type"`
	Conversations []dm.ConversationView `json:"conversations"`
}

// BadgeFrame carries the badge number.
type BadgeFrame struct {
	Type  string `json:"type"`
	Badge int    `json:"badge"`
}

// NotificationFrame carries one notification.
type NotificationFrame struct {
	Type         string          `json:"type"`
	Notification dm.Notification `json:"notification"`
}

// Frame types.
const (
	FrameMessages      = "messages"
	FrameConversations = "conversations"
	FrameBadge         = "badge"
	FrameNotification  = "notification"
)

// SessionFrame is sent by the app on the notifications socket to report what
// it is showing. Absent fields leave the session unchanged; an empty viewing
// string means no conversation is open.
type SessionFrame struct {
	Viewing    *string `json:"viewing"`
	Foreground *bool   `json:"foreground"`
}

// outbox serializes writes to one socket. Snapshot streams only keep the
// latest frame since each one replaces the previous.
type outbox struct {
	mux      sync.Mutex
	queue    []interface{}
	coalesce bool
	closed   bool
	signal   chan struct{}
}

func newOutbox(coalesce bool) *outbox {
	return &outbox{coalesce: coalesce, signal: make(chan struct{}, 1)}
}

func (o *outbox) push(f interface{}) {
	o.mux.Lock()
	if o.closed {
		o.mux.Unlock()
		return
	}
	if o.coalesce {
		o.queue = append(o.queue[:0], f)
	} else {
		o.queue = append(o.queue, f)
	}
	o.mux.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) take() []interface{} {
	o.mux.Lock()
	defer o.mux.Unlock()
	frames := o.queue
	o.queue = nil
	return frames
}

func (o *outbox) close() {
	o.mux.Lock()
	o.closed = true
	o.mux.Unlock()
}

// serve writes queued frames until the socket fails or the reader returns.
// read handles inbound frames and returns when the app disconnects.
func serve(conn *websocket.Conn, out *outbox, read func([]byte)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, data, err := conn.ReadMessage(); err != nil {
				return
			} else if read != nil {
				read(data)
			}
		}
	}()

	defer out.close()
	for {
		select {
		case <-done:
			return
		case <-out.signal:
			for _, f := range out.take() {
				if err := conn.WriteJSON(f); err != nil {
					jww.DEBUG.Printf("[API] Socket write failed: %+v", err)
					_ = conn.Close()
					<-done
					return
				}
			}
		}
	}
}

func (s *Server) streamMessages(conn *websocket.Conn) {
	v := asViewer(conn.Locals(viewerKey))
	peer := conn.Params("peer")
	out := newOutbox(true)
	unsub := s.client.GetMessages(v.ID, peer, func(views []dm.MessageView) {
		out.push(MessagesFrame{Type: FrameMessages, Messages: nonNil(views)})
	})
	defer unsub()
	serve(conn, out, nil)
}

func (s *Server) streamConversations(conn *websocket.Conn) {
	v := asViewer(conn.Locals(viewerKey))
	out := newOutbox(true)
	unsub := s.client.GetConversationsRealtime(v.ID,
		func(views []dm.ConversationView) {
			out.push(ConversationsFrame{Type: FrameConversations,
				Conversations: nonNil(views)})
		})
	defer unsub()
	serve(conn, out, nil)
}

func (s *Server) streamBadge(conn *websocket.Conn) {
	v := asViewer(conn.Locals(viewerKey))
	out := newOutbox(true)
	agg := badge.NewAggregator(s.client, s.alerts, badge.SinkFunc(
		func(n int) error {
			out.push(BadgeFrame{Type: FrameBadge, Badge: n})
			return nil
		}))
	if err := agg.Start(v.ID); err != nil {
		jww.ERROR.Printf("[API] Failed to start badge for %s: %+v", v.ID, err)
		return
	}
	defer agg.Stop()
	serve(conn, out, nil)
}

func (s *Server) streamNotifications(conn *websocket.Conn) {
	v := asViewer(conn.Locals(viewerKey))
	session := dm.NewSession(v.ID)
	out := newOutbox(false)
	unsub := s.client.ListenForNotifications(v.ID, session, dm.NotifierFunc(
		func(_ context.Context, n dm.Notification) error {
			out.push(NotificationFrame{Type: FrameNotification, Notification: n})
			return nil
		}))
	defer unsub()
	serve(conn, out, func(data []byte) {
		var f SessionFrame
		if err := json.Unmarshal(data, &f); err != nil {
			jww.DEBUG.Printf("[API] Ignoring malformed session frame "+
				"from %s: %+v", v.ID, err)
			return
		}
		applySession(session, f)
	})
}

func applySession(session *dm.Session, f SessionFrame) {
	if f.Viewing != nil {
		if *f.Viewing == "" {
			session.ClearViewing()
		} else {
			session.SetViewing(*f.Viewing)
		}
	}
	if f.Foreground != nil {
		session.SetForeground(*f.Foreground)
	}
}

// nonNil keeps empty lists as [] on the wire.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
