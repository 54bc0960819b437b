////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package firestore

import (
	"testing"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/stretchr/testify/require"

	"gitlab.com/elixxir/staffcomms/dm"
)

func TestMessageDoc_RoundTrip(t *testing.T) {
	in := &dm.Message{
		SenderID:       "alice",
		SenderName:     "Alice",
		SenderEmail:    "alice@school.org",
		RecipientID:    "bob",
		RecipientName:  "Bob",
		RecipientEmail: "bob@school.org",
		Content:        "hi",
		Status:         dm.Sent,
	}
	doc := newMessageDoc(in)
	require.Equal(t, "alice_bob", doc.ConversationID)
	require.Equal(t, "sent", doc.Status)
	require.NotNil(t, doc.DeletedFor)
	require.True(t, doc.Timestamp.IsZero(), "server assigns the timestamp")

	ts := time.Unix(1700000000, 0)
	doc.Timestamp = ts
	doc.DeletedFor["bob"] = ts
	out := doc.toMessage("m1")
	require.Equal(t, "m1", out.ID)
	require.Equal(t, ts, out.Timestamp)
	require.Equal(t, dm.Sent, out.Status)
	require.False(t, out.DeletedFor.VisibleTo("bob"))
	require.Equal(t, in.Content, out.Content)
}

func TestMessageDoc_UnknownStatus(t *testing.T) {
	doc := &messageDoc{Status: "exploded"}
	require.Equal(t, dm.Sent, doc.toMessage("m").Status)
}

func TestConversationDoc_toConversation(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	doc := &conversationDoc{
		Participants:    []string{"bob", "alice"},
		LastMessage:     "hi",
		LastMessageTime: ts,
		UnreadCount:     map[string]int64{"bob": 3},
		DeletedFor:      map[string]time.Time{"alice": ts},
		Snapshots: map[string]snapshotDoc{
			"alice": {Name: "Alice", Picture: "a.png"},
		},
	}
	c := doc.toConversation("alice_bob")
	require.Equal(t, [2]string{"alice", "bob"}, c.Participants)
	require.Equal(t, 3, c.UnreadCount["bob"])
	require.True(t, c.DeletedFor.Has("alice"))
	require.Equal(t, dm.Snapshot{ID: "alice", Name: "Alice", Picture: "a.png"},
		c.Snapshots["alice"])
}

func TestUpdateData(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	data := updateData(dm.ConversationUpdate{
		ID:              "alice_bob",
		Participants:    [2]string{"alice", "bob"},
		LastMessage:     "hi",
		LastMessageTime: ts,
		Snapshots: map[string]dm.Snapshot{
			"alice": {ID: "alice", Name: "Alice"},
		},
		Revive:             []string{"alice", "bob"},
		IncrementUnreadFor: "bob",
	})

	require.Equal(t, []string{"alice", "bob"}, data["participants"])
	require.Equal(t, "hi", data["lastMessage"])
	require.Equal(t, ts, data["lastMessageTime"])

	unread := data["unreadCount"].(map[string]interface{})
	require.Len(t, unread, 1)
	require.Equal(t, fs.Increment(1), unread["bob"])

	revive := data["deletedFor"].(map[string]interface{})
	require.Equal(t, fs.Delete, revive["alice"])
	require.Equal(t, fs.Delete, revive["bob"])

	snaps := data["snapshots"].(map[string]interface{})
	require.Equal(t, "Alice", snaps["alice"].(map[string]interface{})["name"])

	// Nothing to increment or revive means those maps are not written
	data = updateData(dm.ConversationUpdate{
		ID: "alice_bob", Participants: [2]string{"alice", "bob"}})
	require.NotContains(t, data, "unreadCount")
	require.NotContains(t, data, "deletedFor")
	require.NotContains(t, data, "snapshots")
}
