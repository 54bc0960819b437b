////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package firestore implements the direct message store on Cloud Firestore.
// Messages and conversations live in two top-level collections; batches run
// as transactions and unread counters use server-side increments.
package firestore

import (
	"context"
	"sync"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gitlab.com/elixxir/staffcomms/dm"
)

// Store implements dm.Store on Firestore.
type Store struct {
	client        *fs.Client
	messages      *fs.CollectionRef
	conversations *fs.CollectionRef

	mux     sync.Mutex
	watches map[uint64]context.CancelFunc
	nextID  uint64
	closed  bool
}

// NewStore wraps an existing client. The caller keeps ownership of it.
func NewStore(client *fs.Client) *Store {
	return &Store{
		client:        client,
		messages:      client.Collection(MessagesCollection),
		conversations: client.Collection(ConversationsCollection),
		watches:       make(map[uint64]context.CancelFunc),
	}
}

// Close cancels every watch. The client stays open.
func (s *Store) Close() error {
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return nil
	}
	s.closed = true
	watches := s.watches
	s.watches = nil
	s.mux.Unlock()

	for _, cancel := range watches {
		cancel()
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// CreateMessage adds a message document. The returned timestamp is the
// commit time, which is what the server timestamp field resolves to.
func (s *Store) CreateMessage(ctx context.Context, msg *dm.Message) (
	string, time.Time, error) {
	if msg.SenderID == msg.RecipientID {
		return "", time.Time{}, dm.ErrSelfMessage
	}
	ref := s.messages.NewDoc()
	wr, err := ref.Create(ctx, newMessageDoc(msg))
	if err != nil {
		return "", time.Time{}, errors.Errorf(
			"failed to create message: %+v", err)
	}
	jww.TRACE.Printf("[DM FS] CreateMessage(%s)", ref.ID)
	return ref.ID, wr.UpdateTime, nil
}

// GetMessage reads one message.
func (s *Store) GetMessage(ctx context.Context, id string) (*dm.Message, error) {
	snap, err := s.messages.Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.WithMessagef(dm.ErrMessageNotFound,
				"message %s", id)
		}
		return nil, errors.Errorf("failed to get message %s: %+v", id, err)
	}
	msg, err := decodeMessage(snap)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpsertConversation merges the update with Set and MergeAll.
func (s *Store) UpsertConversation(ctx context.Context,
	u dm.ConversationUpdate) error {
	if u.ID == "" || u.Participants[0] == "" || u.Participants[1] == "" {
		return errors.Errorf("conversation update needs an ID and two "+
			"participants: %+v", u)
	}
	_, err := s.conversations.Doc(u.ID).Set(ctx, updateData(u), fs.MergeAll)
	if err != nil {
		return errors.Errorf("failed to upsert conversation %s: %+v", u.ID, err)
	}
	jww.TRACE.Printf("[DM FS] UpsertConversation(%s)", u.ID)
	return nil
}

// GetConversation reads one conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (
	*dm.Conversation, error) {
	snap, err := s.conversations.Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.WithMessagef(dm.ErrConversationNotFound,
				"conversation %s", id)
		}
		return nil, errors.Errorf("failed to get conversation %s: %+v", id, err)
	}
	conv, err := decodeConversation(snap)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// MarkRead flips the unread messages and resets the counter in one
// transaction.
func (s *Store) MarkRead(ctx context.Context, conversationID, peerID,
	viewerID string) (int, error) {
	q := s.messages.
		Where("conversationId", "==", conversationID).
		Where("senderId", "==", peerID).
		Where("recipientId", "==", viewerID).
		Where("read", "==", false)
	convRef := s.conversations.Doc(conversationID)

	var n int
	err := s.client.RunTransaction(ctx, func(ctx context.Context,
		tx *fs.Transaction) error {
		n = 0
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		conv, err := tx.Get(convRef)
		if err != nil && !isNotFound(err) {
			return err
		}

		for _, d := range docs {
			err = tx.Update(d.Ref, []fs.Update{
				{Path: "status", Value: dm.Read.String()},
				{Path: "read", Value: true},
			})
			if err != nil {
				return err
			}
		}
		n = len(docs)

		if conv != nil && conv.Exists() {
			return tx.Update(convRef, []fs.Update{{
				FieldPath: fs.FieldPath{"unreadCount", viewerID},
				Value:     0,
			}})
		}
		return nil
	})
	if err != nil {
		return 0, errors.Errorf("failed to mark %s read: %+v",
			conversationID, err)
	}
	return n, nil
}

// MarkDelivered advances the given messages addressed to viewerID from Sent
// to Delivered.
func (s *Store) MarkDelivered(ctx context.Context, viewerID string,
	ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]*fs.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.messages.Doc(id)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context,
		tx *fs.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			msg, err := decodeMessage(snap)
			if err != nil {
				return err
			}
			if msg.RecipientID != viewerID ||
				msg.Status.Advance(dm.Delivered) == msg.Status {
				continue
			}
			err = tx.Update(snap.Ref, []fs.Update{
				{Path: "status", Value: dm.Delivered.String()},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Errorf("failed to mark %d messages delivered: %+v",
			len(ids), err)
	}
	return nil
}

// TombstoneConversation marks the conversation and every message in it for
// viewerID in one transaction.
func (s *Store) TombstoneConversation(ctx context.Context, conversationID,
	viewerID string) (bool, error) {
	convRef := s.conversations.Doc(conversationID)
	q := s.messages.Where("conversationId", "==", conversationID)

	var changed bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context,
		tx *fs.Transaction) error {
		changed = false
		snap, err := tx.Get(convRef)
		if err != nil {
			if isNotFound(err) {
				return errors.WithMessagef(dm.ErrConversationNotFound,
					"conversation %s", conversationID)
			}
			return err
		}
		conv, err := decodeConversation(snap)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(viewerID) {
			return errors.WithMessagef(dm.ErrNotParticipant,
				"%s in conversation %s", viewerID, conversationID)
		}
		if conv.DeletedFor.Has(viewerID) {
			return nil
		}

		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}

		mark := fs.FieldPath{"deletedFor", viewerID}
		for _, d := range docs {
			msg, err := decodeMessage(d)
			if err != nil {
				return err
			}
			if msg.DeletedFor.Has(viewerID) {
				continue
			}
			err = tx.Update(d.Ref, []fs.Update{
				{FieldPath: mark, Value: fs.ServerTimestamp},
			})
			if err != nil {
				return err
			}
		}
		changed = true
		return tx.Update(convRef, []fs.Update{
			{FieldPath: mark, Value: fs.ServerTimestamp},
			{FieldPath: fs.FieldPath{"unreadCount", viewerID}, Value: 0},
		})
	})
	if err != nil {
		if errors.Is(err, dm.ErrConversationNotFound) ||
			errors.Is(err, dm.ErrNotParticipant) {
			return false, err
		}
		return false, errors.Errorf("failed to delete conversation %s: %+v",
			conversationID, err)
	}
	return changed, nil
}

// TombstoneMessage marks one message for viewerID.
func (s *Store) TombstoneMessage(ctx context.Context, messageID,
	viewerID string) (bool, error) {
	ref := s.messages.Doc(messageID)

	var changed bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context,
		tx *fs.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return errors.WithMessagef(dm.ErrMessageNotFound,
					"message %s", messageID)
			}
			return err
		}
		msg, err := decodeMessage(snap)
		if err != nil {
			return err
		}
		if msg.SenderID != viewerID && msg.RecipientID != viewerID {
			return errors.WithMessagef(dm.ErrNotParticipant,
				"%s on message %s", viewerID, messageID)
		}
		if msg.DeletedFor.Has(viewerID) {
			return nil
		}
		changed = true
		return tx.Update(ref, []fs.Update{{
			FieldPath: fs.FieldPath{"deletedFor", viewerID},
			Value:     fs.ServerTimestamp,
		}})
	})
	if err != nil {
		if errors.Is(err, dm.ErrMessageNotFound) ||
			errors.Is(err, dm.ErrNotParticipant) {
			return false, err
		}
		return false, errors.Errorf("failed to delete message %s: %+v",
			messageID, err)
	}
	return changed, nil
}

func decodeMessage(snap *fs.DocumentSnapshot) (dm.Message, error) {
	doc := &messageDoc{}
	if err := snap.DataTo(doc); err != nil {
		return dm.Message{}, errors.Errorf("failed to decode message %s: %+v",
			snap.Ref.ID, err)
	}
	return doc.toMessage(snap.Ref.ID), nil
}

func decodeConversation(snap *fs.DocumentSnapshot) (dm.Conversation, error) {
	doc := &conversationDoc{}
	if err := snap.DataTo(doc); err != nil {
		return dm.Conversation{}, errors.Errorf(
			"failed to decode conversation %s: %+v", snap.Ref.ID, err)
	}
	return doc.toConversation(snap.Ref.ID), nil
}

var _ dm.Store = (*Store)(nil)
