////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package firestore

import (
	"context"

	fs "cloud.google.com/go/firestore"
	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gitlab.com/elixxir/staffcomms/dm"
	"gitlab.com/elixxir/staffcomms/stoppable"
)

// WatchConversation listens to the messages of one conversation.
func (s *Store) WatchConversation(conversationID string,
	cb func([]dm.Message, error)) dm.Unsubscribe {
	q := s.messages.Where("conversationId", "==", conversationID)
	return s.watch("conversation "+conversationID, q, messageEmitter(cb))
}

// WatchConversations listens to the conversations viewerID participates in.
func (s *Store) WatchConversations(viewerID string,
	cb func([]dm.Conversation, error)) dm.Unsubscribe {
	q := s.conversations.Where("participants", "array-contains", viewerID)
	return s.watch("conversations "+viewerID, q,
		func(docs []*fs.DocumentSnapshot, err error) {
			if err != nil {
				cb(nil, err)
				return
			}
			out := make([]dm.Conversation, 0, len(docs))
			for _, d := range docs {
				conv, err := decodeConversation(d)
				if err != nil {
					jww.WARN.Printf("[DM FS] Skipping conversation: %+v", err)
					continue
				}
				out = append(out, conv)
			}
			cb(out, nil)
		})
}

// WatchInbox listens to every message addressed to viewerID.
func (s *Store) WatchInbox(viewerID string,
	cb func([]dm.Message, error)) dm.Unsubscribe {
	q := s.messages.Where("recipientId", "==", viewerID)
	return s.watch("inbox "+viewerID, q, messageEmitter(cb))
}

func messageEmitter(cb func([]dm.Message, error)) func(
	[]*fs.DocumentSnapshot, error) {
	return func(docs []*fs.DocumentSnapshot, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		out := make([]dm.Message, 0, len(docs))
		for _, d := range docs {
			msg, err := decodeMessage(d)
			if err != nil {
				jww.WARN.Printf("[DM FS] Skipping message: %+v", err)
				continue
			}
			out = append(out, msg)
		}
		cb(out, nil)
	}
}

// watch runs a snapshot listener for q until unsubscribed or the store
// closes. The listener is stopped by cancelling its context, since the
// iterator's Stop must not race Next.
func (s *Store) watch(name string, q fs.Query,
	emit func([]*fs.DocumentSnapshot, error)) dm.Unsubscribe {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		jww.WARN.Printf("[DM FS] Watch %s on closed store", name)
		return func() {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	id := s.nextID
	s.nextID++
	s.watches[id] = cancel
	s.mux.Unlock()

	stop := stoppable.NewSingle(name)
	go func() {
		defer stop.ToStopped()
		it := q.Snapshots(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					jww.DEBUG.Printf("[DM FS] Watch %s stopped", name)
					return
				}
				jww.ERROR.Printf("[DM FS] Watch %s failed: %+v", name, err)
				if stop.IsRunning() {
					emit(nil, err)
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if !stop.IsRunning() {
				return
			}
			emit(docs, err)
		}
	}()

	return func() {
		_ = stop.Close()
		cancel()
		s.mux.Lock()
		if s.watches != nil {
			delete(s.watches, id)
		}
		s.mux.Unlock()
	}
}
