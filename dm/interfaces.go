////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package dm is the direct messaging core: sending messages, aggregating
// conversations with per-participant unread counts, per-viewer soft deletes,
// live subscriptions and the push and notification tails that follow a send.
package dm

import "context"

// Client is the direct messaging surface exposed to the UI layer and the
// badge aggregator.
type Client interface {
	// SendMessage persists a message from sender to recipient, updates their
	// conversation and queues the push notification to the recipient. It
	// returns the new message ID without waiting for the push.
	//
	// Returns ErrSelfMessage when sender and recipient are the same user and
	// ErrEmptyContent when content is blank; nothing is stored in either
	// case.
	SendMessage(ctx context.Context, sender, recipient Participant,
		content string) (string, error)

	// GetMessages subscribes to the messages between viewerID and peerID.
	// Every change emits the full list ordered by store timestamp, without
	// the messages viewerID deleted. A stream failure emits an empty list.
	GetMessages(viewerID, peerID string,
		onUpdate func([]MessageView)) Unsubscribe

	// GetConversationsRealtime subscribes to viewerID's conversations. Every
	// change emits the list newest first, without the conversations
	// viewerID deleted, with the other participant resolved. A stream
	// failure emits an empty list.
	GetConversationsRealtime(viewerID string,
		onUpdate func([]ConversationView)) Unsubscribe

	// MarkMessagesAsRead marks every unread message from peerID to viewerID
	// read and resets viewerID's unread counter, atomically.
	MarkMessagesAsRead(ctx context.Context, peerID, viewerID string) error

	// DeleteConversation hides the conversation and all of its messages from
	// viewerID. The peer's view is untouched. Deleting twice is a no-op.
	DeleteConversation(ctx context.Context, conversationID, viewerID string) error

	// DeleteMessage hides one message from viewerID. Deleting twice is a
	// no-op.
	DeleteMessage(ctx context.Context, messageID, viewerID string) error

	// ListenForNotifications watches viewerID's inbox and raises one
	// notification per new inbound message that the session is not
	// currently looking at.
	ListenForNotifications(viewerID string, session *Session,
		n Notifier) Unsubscribe

	// Close waits for queued push and notification tails to finish. Sends
	// after Close return ErrClientClosed.
	Close() error
}

// Notification is a locally raised alert for one inbound message.
type Notification struct {
	MessageID      string            `json:"messageId"`
	ConversationID string            `json:"conversationId"`
	SenderID       string            `json:"senderId"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data"`
}

// Notifier raises notifications on the viewer's device.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
