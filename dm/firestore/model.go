////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package firestore

import (
	"time"

	fs "cloud.google.com/go/firestore"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
)

// Collection names.
const (
	MessagesCollection      = "messages"
	ConversationsCollection = "conversations"
)

// messageDoc is the stored shape of a message. Timestamp is filled in by the
// server on create.
type messageDoc struct {
	ConversationID string               `firestore:"conversationId"`
	SenderID       string               `firestore:"senderId"`
	SenderName     string               `firestore:"senderName"`
	SenderEmail    string               `firestore:"senderEmail"`
	RecipientID    string               `firestore:"recipientId"`
	RecipientName  string               `firestore:"recipientName"`
	RecipientEmail string               `firestore:"recipientEmail"`
	Content        string               `firestore:"content"`
	Timestamp      time.Time            `firestore:"timestamp,serverTimestamp"`
	Status         string               `firestore:"status"`
	Read           bool                 `firestore:"read"`
	DeletedFor     map[string]time.Time `firestore:"deletedFor"`
}

// snapshotDoc is the stored shape of a participant snapshot.
type snapshotDoc struct {
	Name    string `firestore:"name"`
	Email   string `firestore:"email"`
	Picture string `firestore:"picture"`
}

// conversationDoc is the stored shape of a conversation.
type conversationDoc struct {
	Participants    []string               `firestore:"participants"`
	LastMessage     string                 `firestore:"lastMessage"`
	LastMessageTime time.Time              `firestore:"lastMessageTime"`
	UnreadCount     map[string]int64       `firestore:"unreadCount"`
	DeletedFor      map[string]time.Time   `firestore:"deletedFor"`
	Snapshots       map[string]snapshotDoc `firestore:"snapshots"`
}

// newMessageDoc converts a message for creation. The deletedFor map is
// always written, empty, so later field updates have a parent.
func newMessageDoc(m *dm.Message) *messageDoc {
	convID := m.ConversationID
	if convID == "" {
		convID = dm.ConversationID(m.SenderID, m.RecipientID)
	}
	return &messageDoc{
		ConversationID: convID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderEmail:    m.SenderEmail,
		RecipientID:    m.RecipientID,
		RecipientName:  m.RecipientName,
		RecipientEmail: m.RecipientEmail,
		Content:        m.Content,
		Status:         m.Status.String(),
		Read:           m.Read,
		DeletedFor:     map[string]time.Time{},
	}
}

// toMessage converts a stored message. Unknown statuses are read as Sent.
func (d *messageDoc) toMessage(id string) dm.Message {
	status, err := dm.ParseStatus(d.Status)
	if err != nil {
		jww.WARN.Printf("[DM FS] Message %s: %+v", id, err)
		status = dm.Sent
	}
	deleted := make(dm.Tombstones, len(d.DeletedFor))
	for k, v := range d.DeletedFor {
		deleted[k] = v
	}
	return dm.Message{
		ID:             id,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderName:     d.SenderName,
		SenderEmail:    d.SenderEmail,
		RecipientID:    d.RecipientID,
		RecipientName:  d.RecipientName,
		RecipientEmail: d.RecipientEmail,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
		Status:         status,
		Read:           d.Read,
		DeletedFor:     deleted,
	}
}

// toConversation converts a stored conversation.
func (d *conversationDoc) toConversation(id string) dm.Conversation {
	c := dm.Conversation{
		ID:              id,
		LastMessage:     d.LastMessage,
		LastMessageTime: d.LastMessageTime,
		UnreadCount:     make(map[string]int, len(d.UnreadCount)),
		DeletedFor:      make(dm.Tombstones, len(d.DeletedFor)),
		Snapshots:       make(map[string]dm.Snapshot, len(d.Snapshots)),
	}
	if len(d.Participants) == 2 {
		c.Participants = dm.SortedPair(d.Participants[0], d.Participants[1])
	} else {
		jww.WARN.Printf("[DM FS] Conversation %s has %d participants",
			id, len(d.Participants))
	}
	for k, v := range d.UnreadCount {
		c.UnreadCount[k] = int(v)
	}
	for k, v := range d.DeletedFor {
		c.DeletedFor[k] = v
	}
	for k, v := range d.Snapshots {
		c.Snapshots[k] = dm.Snapshot{
			ID: k, Name: v.Name, Email: v.Email, Picture: v.Picture}
	}
	return c
}

// updateData builds the merge written by UpsertConversation. Nested maps are
// merged key by key under MergeAll, so only the listed snapshot, unread and
// tombstone entries are touched.
func updateData(u dm.ConversationUpdate) map[string]interface{} {
	data := map[string]interface{}{
		"participants":    []string{u.Participants[0], u.Participants[1]},
		"lastMessage":     u.LastMessage,
		"lastMessageTime": u.LastMessageTime,
	}

	if len(u.Snapshots) > 0 {
		snaps := make(map[string]interface{}, len(u.Snapshots))
		for id, s := range u.Snapshots {
			snaps[id] = map[string]interface{}{
				"name":    s.Name,
				"email":   s.Email,
				"picture": s.Picture,
			}
		}
		data["snapshots"] = snaps
	}

	if u.IncrementUnreadFor != "" {
		data["unreadCount"] = map[string]interface{}{
			u.IncrementUnreadFor: fs.Increment(1),
		}
	}

	if len(u.Revive) > 0 {
		revive := make(map[string]interface{}, len(u.Revive))
		for _, id := range u.Revive {
			revive[id] = fs.Delete
		}
		data["deletedFor"] = revive
	}
	return data
}
