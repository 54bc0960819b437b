////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/staffcomms/storage/versioned"
)

func TestShouldNotify(t *testing.T) {
	inbound := func() *Message {
		return &Message{ID: "m", SenderID: "bob", RecipientID: "alice",
			Status: Sent}
	}
	idle := ViewingContext{ViewerID: "alice", Foreground: true}

	tests := []struct {
		name string
		msg  func() *Message
		vc   ViewingContext
		want bool
	}{
		{"inbound unread", inbound, idle, true},
		{"delivered still notifies", func() *Message {
			m := inbound()
			m.Status = Delivered
			return m
		}, idle, true},
		{"own message", func() *Message {
			m := inbound()
			m.SenderID, m.RecipientID = "alice", "bob"
			return m
		}, idle, false},
		{"addressed to someone else", func() *Message {
			m := inbound()
			m.RecipientID = "carol"
			return m
		}, idle, false},
		{"already read", func() *Message {
			m := inbound()
			m.Read, m.Status = true, Read
			return m
		}, idle, false},
		{"deleted for viewer", func() *Message {
			m := inbound()
			m.DeletedFor = Tombstones{"alice": time.Now()}
			return m
		}, idle, false},
		{"viewing sender", inbound,
			ViewingContext{ViewerID: "alice", ActivePeerID: "bob", Foreground: true},
			false},
		{"viewing another peer", inbound,
			ViewingContext{ViewerID: "alice", ActivePeerID: "carol", Foreground: true},
			true},
		{"sender open but backgrounded", inbound,
			ViewingContext{ViewerID: "alice", ActivePeerID: "bob"},
			true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ShouldNotify(tt.msg(), tt.vc), tt.name)
	}
}

// Sessions are independent of each other.
func TestSession(t *testing.T) {
	a := NewSession("alice")
	b := NewSession("bob")

	require.Equal(t, ViewingContext{ViewerID: "alice", Foreground: true},
		a.Context())

	a.SetViewing("bob")
	require.Equal(t, "bob", a.Context().ActivePeerID)
	require.Empty(t, b.Context().ActivePeerID)

	a.SetForeground(false)
	require.False(t, a.Context().Foreground)
	require.True(t, b.Context().Foreground)

	a.ClearViewing()
	require.Empty(t, a.Context().ActivePeerID)
}

func TestNotificationLedger(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	l := newNotificationLedger(kv, "alice")

	require.False(t, l.handled("m1"))
	require.True(t, l.claim("m1"))
	require.False(t, l.claim("m1"), "in flight")
	require.Equal(t, 1, l.pending())

	l.record("m1", true)
	require.Zero(t, l.pending())
	require.True(t, l.handled("m1"))
	require.False(t, l.claim("m1"), "recorded")

	require.True(t, l.claim("m2"))
	l.release("m2")
	require.True(t, l.claim("m2"))

	// Ledgers are per viewer and persist in the shared KV
	require.False(t, newNotificationLedger(kv, "bob").handled("m1"))
	require.True(t, newNotificationLedger(kv, "alice").handled("m1"))
}

// Tests that recorded entries keep whether a notification was shown and that
// an unreadable entry counts as not handled.
func TestNotificationLedger_Lookup(t *testing.T) {
	kv := versioned.NewKV(ekv.MakeMemstore())
	l := newNotificationLedger(kv, "alice")

	require.True(t, l.claim("shown"))
	l.record("shown", true)
	require.True(t, l.claim("muted"))
	l.record("muted", false)

	entry, ok := l.lookup("shown")
	require.True(t, ok)
	require.True(t, entry.Notified)
	require.False(t, entry.Handled.IsZero())

	entry, ok = l.lookup("muted")
	require.True(t, ok)
	require.False(t, entry.Notified)

	_, ok = l.lookup("missing")
	require.False(t, ok)

	require.NoError(t, l.kv.Set("garbled", &versioned.Object{
		Version: ledgerVersion,
		Data:    []byte("{not json"),
	}))
	require.False(t, l.handled("garbled"))
	require.True(t, l.claim("garbled"))
}

func TestPreview(t *testing.T) {
	require.Equal(t, "hi", Preview("  hi \n"))

	long := Preview(strings.Repeat("x", 300))
	require.Len(t, long, PreviewLength)
	require.True(t, strings.HasSuffix(long, "..."))
}
