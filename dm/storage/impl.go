////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
)

// CreateMessage stores a copy of msg under a new ID and timestamp.
func (s *Store) CreateMessage(ctx context.Context, msg *dm.Message) (
	string, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	if msg.SenderID == msg.RecipientID {
		return "", time.Time{}, dm.ErrSelfMessage
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return "", time.Time{}, ErrClosed
	}
	stored := msg.Clone()
	stored.ID = s.newID()
	stored.Timestamp = s.nextTimestamp()
	if stored.ConversationID == "" {
		stored.ConversationID = dm.ConversationID(msg.SenderID, msg.RecipientID)
	}
	s.messages[stored.ID] = stored
	s.mux.Unlock()

	jww.TRACE.Printf("[DM MEM] CreateMessage(%s) in %s",
		stored.ID, stored.ConversationID)
	s.notify(change{
		conversations: []string{stored.ConversationID},
		recipients:    []string{stored.RecipientID},
	})
	return stored.ID, stored.Timestamp, nil
}

// GetMessage returns a copy of the message.
func (s *Store) GetMessage(ctx context.Context, id string) (*dm.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, errors.WithMessagef(dm.ErrMessageNotFound, "message %s", id)
	}
	return msg.Clone(), nil
}

// UpsertConversation creates the conversation on first use and merges the
// update into it.
func (s *Store) UpsertConversation(ctx context.Context,
	update dm.ConversationUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if update.ID == "" || update.Participants[0] == "" ||
		update.Participants[1] == "" {
		return errors.Errorf("conversation update needs an ID and two "+
			"participants: %+v", update)
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return ErrClosed
	}
	conv, ok := s.conversations[update.ID]
	if !ok {
		conv = &dm.Conversation{
			ID:           update.ID,
			Participants: update.Participants,
			UnreadCount: map[string]int{
				update.Participants[0]: 0,
				update.Participants[1]: 0,
			},
			DeletedFor: dm.Tombstones{},
			Snapshots:  make(map[string]dm.Snapshot),
		}
		s.conversations[update.ID] = conv
	}

	// Concurrent senders race on the summary; the newest message wins
	if !update.LastMessageTime.Before(conv.LastMessageTime) {
		conv.LastMessage = update.LastMessage
		conv.LastMessageTime = update.LastMessageTime
	}
	for id, snap := range update.Snapshots {
		conv.Snapshots[id] = snap
	}
	for _, id := range update.Revive {
		conv.DeletedFor.Clear(id)
	}
	if update.IncrementUnreadFor != "" {
		conv.UnreadCount[update.IncrementUnreadFor]++
	}
	participants := conv.Participants
	s.mux.Unlock()

	jww.TRACE.Printf("[DM MEM] UpsertConversation(%s)", update.ID)
	s.notify(change{participants: participants[:]})
	return nil
}

// GetConversation returns a copy of the conversation.
func (s *Store) GetConversation(ctx context.Context, id string) (
	*dm.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	conv, ok := s.conversations[id]
	if !ok {
		return nil, errors.WithMessagef(dm.ErrConversationNotFound,
			"conversation %s", id)
	}
	return conv.Clone(), nil
}

// MarkRead flips the unread messages from peerID to viewerID and resets the
// viewer's counter under one lock.
func (s *Store) MarkRead(ctx context.Context, conversationID, peerID,
	viewerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return 0, ErrClosed
	}
	n := 0
	for _, msg := range s.messages {
		if msg.ConversationID != conversationID ||
			msg.SenderID != peerID || msg.RecipientID != viewerID ||
			msg.Read {
			continue
		}
		msg.Status = msg.Status.Advance(dm.Read)
		msg.Read = true
		n++
	}
	var participants []string
	if conv, ok := s.conversations[conversationID]; ok {
		if conv.UnreadCount[viewerID] != 0 {
			conv.UnreadCount[viewerID] = 0
			participants = conv.Participants[:]
		}
	}
	s.mux.Unlock()

	if n > 0 || participants != nil {
		s.notify(change{
			conversations: []string{conversationID},
			recipients:    []string{viewerID},
			participants:  participants,
		})
	}
	return n, nil
}

// MarkDelivered advances the messages to Delivered.
func (s *Store) MarkDelivered(ctx context.Context, viewerID string,
	ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return ErrClosed
	}
	var touched []string
	for _, id := range ids {
		msg, ok := s.messages[id]
		if !ok || msg.RecipientID != viewerID {
			continue
		}
		if next := msg.Status.Advance(dm.Delivered); next != msg.Status {
			msg.Status = next
			touched = append(touched, msg.ConversationID)
		}
	}
	s.mux.Unlock()

	if len(touched) > 0 {
		s.notify(change{
			conversations: touched,
			recipients:    []string{viewerID},
		})
	}
	return nil
}

// TombstoneConversation hides the conversation and its messages from
// viewerID.
func (s *Store) TombstoneConversation(ctx context.Context, conversationID,
	viewerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return false, ErrClosed
	}
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mux.Unlock()
		return false, errors.WithMessagef(dm.ErrConversationNotFound,
			"conversation %s", conversationID)
	} else if !conv.HasParticipant(viewerID) {
		s.mux.Unlock()
		return false, errors.WithMessagef(dm.ErrNotParticipant,
			"%s in conversation %s", viewerID, conversationID)
	}

	now := s.clock()
	if !conv.DeletedFor.Mark(viewerID, now) {
		s.mux.Unlock()
		return false, nil
	}
	conv.UnreadCount[viewerID] = 0
	cascaded := 0
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID &&
			msg.DeletedFor.Mark(viewerID, now) {
			cascaded++
		}
	}
	participants := conv.Participants
	s.mux.Unlock()

	jww.DEBUG.Printf("[DM MEM] Tombstoned conversation %s for %s with %d "+
		"messages", conversationID, viewerID, cascaded)
	s.notify(change{
		conversations: []string{conversationID},
		recipients:    participants[:],
		participants:  participants[:],
	})
	return true, nil
}

// TombstoneMessage hides one message from viewerID.
func (s *Store) TombstoneMessage(ctx context.Context, messageID,
	viewerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return false, ErrClosed
	}
	msg, ok := s.messages[messageID]
	if !ok {
		s.mux.Unlock()
		return false, errors.WithMessagef(dm.ErrMessageNotFound,
			"message %s", messageID)
	} else if msg.SenderID != viewerID && msg.RecipientID != viewerID {
		s.mux.Unlock()
		return false, errors.WithMessagef(dm.ErrNotParticipant,
			"%s on message %s", viewerID, messageID)
	}
	changed := msg.DeletedFor.Mark(viewerID, s.clock())
	convID, recipient := msg.ConversationID, msg.RecipientID
	s.mux.Unlock()

	if changed {
		s.notify(change{
			conversations: []string{convID},
			recipients:    []string{recipient},
		})
	}
	return changed, nil
}
