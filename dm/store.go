////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
	"time"
)

// Store is the document store holding messages and conversations. It is
// implemented in memory by dm/storage and on Cloud Firestore by dm/firestore.
//
// Every mutation is a field-level merge or an atomic batch, so concurrent
// writers never clobber each other's unrelated fields. All methods are safe
// for concurrent use.
type Store interface {
	// CreateMessage persists a new message. The store assigns the ID and the
	// timestamp; timestamps are strictly monotonic per store. The passed
	// message is not modified.
	CreateMessage(ctx context.Context, msg *Message) (
		id string, timestamp time.Time, err error)

	// GetMessage returns the message or ErrMessageNotFound.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpsertConversation creates the conversation if needed and merges the
	// update into it. The unread counter of IncrementUnreadFor is incremented
	// atomically on the store side.
	UpsertConversation(ctx context.Context, update ConversationUpdate) error

	// GetConversation returns the conversation or ErrConversationNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// MarkRead flips every unread message from peerID to viewerID to Read and
	// resets viewerID's unread counter, in one atomic batch. It returns the
	// number of messages changed.
	MarkRead(ctx context.Context, conversationID, peerID, viewerID string) (int, error)

	// MarkDelivered advances the given messages addressed to viewerID to
	// Delivered. Messages already Delivered or Read are left alone.
	MarkDelivered(ctx context.Context, viewerID string, ids []string) error

	// TombstoneConversation hides the conversation and every message in it
	// from viewerID only, and zeroes viewerID's unread counter. It returns
	// false when the conversation was already tombstoned for viewerID.
	TombstoneConversation(ctx context.Context, conversationID, viewerID string) (bool, error)

	// TombstoneMessage hides one message from viewerID only. It returns false
	// when the message was already tombstoned for viewerID.
	TombstoneMessage(ctx context.Context, messageID, viewerID string) (bool, error)

	// WatchConversation emits every message of the conversation, unfiltered
	// and in no particular order, immediately and after every change.
	WatchConversation(conversationID string, cb func([]Message, error)) Unsubscribe

	// WatchConversations emits every conversation viewerID participates in,
	// unfiltered, immediately and after every change.
	WatchConversations(viewerID string, cb func([]Conversation, error)) Unsubscribe

	// WatchInbox emits every message addressed to viewerID, immediately and
	// after every change.
	WatchInbox(viewerID string, cb func([]Message, error)) Unsubscribe

	// Close stops all watches and releases the store.
	Close() error
}

// ConversationUpdate is the merge applied by Store.UpsertConversation.
type ConversationUpdate struct {
	ID              string
	Participants    [2]string
	LastMessage     string
	LastMessageTime time.Time

	// Snapshots are merged by participant ID; absent participants keep the
	// snapshot already stored.
	Snapshots map[string]Snapshot

	// Revive lists participants whose conversation tombstone is cleared.
	Revive []string

	// IncrementUnreadFor is the participant whose unread counter goes up by
	// one. Empty means no increment.
	IncrementUnreadFor string
}
