////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"sort"
	"strings"
	"time"
)

// conversationIDSeparator joins the sorted participant IDs.
const conversationIDSeparator = "_"

// UnknownUserName is the display name of a peer that could not be resolved.
const UnknownUserName = "Unknown User"

// Participant identifies a sender or recipient as the UI knows them.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Message is a single direct message. Content is immutable once created; only
// Status, Read and DeletedFor change afterwards.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`

	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`

	RecipientID    string `json:"recipientId"`
	RecipientName  string `json:"recipientName"`
	RecipientEmail string `json:"recipientEmail"`

	Content string `json:"content"`

	// Timestamp is assigned by the store and is strictly monotonic per store.
	Timestamp time.Time `json:"timestamp"`

	Status Status `json:"status"`
	Read   bool   `json:"read"`

	DeletedFor Tombstones `json:"deletedFor,omitempty"`
}

// Between reports whether the message was exchanged between a and b, in
// either direction.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) ||
		(m.SenderID == b && m.RecipientID == a)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.DeletedFor = m.DeletedFor.Clone()
	return &c
}

// MessageView is a Message as seen by one viewer.
type MessageView struct {
	Message
	IsFromCurrentUser bool `json:"isFromCurrentUser"`
}

// Snapshot is the denormalized display information of one participant,
// cached on the conversation so the list can render without a lookup.
type Snapshot struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// Conversation is the summary document shared by exactly two participants.
type Conversation struct {
	ID string `json:"id"`

	// Participants is sorted, matching the order used for the ID.
	Participants [2]string `json:"participants"`

	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`

	UnreadCount map[string]int      `json:"unreadCount"`
	DeletedFor  Tombstones          `json:"deletedFor,omitempty"`
	Snapshots   map[string]Snapshot `json:"snapshots"`
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id string) bool {
	return c.Participants[0] == id || c.Participants[1] == id
}

// Peer returns the participant that is not viewerID.
func (c *Conversation) Peer(viewerID string) string {
	if c.Participants[0] == viewerID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	cp.Snapshots = make(map[string]Snapshot, len(c.Snapshots))
	for k, v := range c.Snapshots {
		cp.Snapshots[k] = v
	}
	cp.DeletedFor = c.DeletedFor.Clone()
	return &cp
}

// ConversationView is a Conversation projected for one viewer. It is derived
// on every emission and never stored.
type ConversationView struct {
	ID              string    `json:"id"`
	Participants    [2]string `json:"participants"`
	Recipient       Snapshot  `json:"recipient"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
}

// Unsubscribe detaches a live subscription. It is safe to call any number of
// times from any goroutine.
type Unsubscribe func()

// ConversationID derives the ID of the conversation between a and b. The ID
// does not depend on argument order.
func ConversationID(a, b string) string {
	pair := SortedPair(a, b)
	return strings.Join(pair[:], conversationIDSeparator)
}

// SortedPair returns a and b in ascending order.
func SortedPair(a, b string) [2]string {
	pair := []string{a, b}
	sort.Strings(pair)
	return [2]string{pair[0], pair[1]}
}

// placeholderSnapshot is shown for a peer that cannot be resolved.
func placeholderSnapshot(id string) Snapshot {
	return Snapshot{ID: id, Name: UnknownUserName}
}
