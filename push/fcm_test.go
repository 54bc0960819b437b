////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package push

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	fcm "google.golang.org/api/fcm/v1"
)

type fcmRecorder struct {
	mux  sync.Mutex
	sent []*fcm.Message
	fail map[string]bool
}

func (r *fcmRecorder) send(_ context.Context, msg *fcm.Message) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.sent = append(r.sent, msg)
	if r.fail[msg.Token] {
		return errors.New("UNREGISTERED")
	}
	return nil
}

func TestFCM_Send(t *testing.T) {
	r := &fcmRecorder{}
	f := newFCM(r.send, 1000)

	data := map[string]string{"conversationId": "a_b"}
	err := f.Send(context.Background(), []string{"t1", "t2", "t1", ""},
		"Ada", "hello", data)
	require.NoError(t, err)

	require.Len(t, r.sent, 2)
	var tokens []string
	for _, m := range r.sent {
		tokens = append(tokens, m.Token)
		require.Equal(t, "Ada", m.Notification.Title)
		require.Equal(t, "hello", m.Notification.Body)
		require.Equal(t, data, m.Data)
	}
	sort.Strings(tokens)
	require.Equal(t, []string{"t1", "t2"}, tokens)
}

// A failing token does not stop the others.
func TestFCM_Send_PartialFailure(t *testing.T) {
	r := &fcmRecorder{fail: map[string]bool{"bad": true}}
	f := newFCM(r.send, 1000)

	err := f.Send(context.Background(), []string{"good", "bad", "also-good"},
		"t", "b", nil)
	var ticketErr *TicketError
	require.ErrorAs(t, err, &ticketErr)
	require.Equal(t, map[string]string{"bad": "UNREGISTERED"}, ticketErr.Failed)
	require.Len(t, r.sent, 3)
}

func TestFCM_DefaultRate(t *testing.T) {
	f := newFCM((&fcmRecorder{}).send, 0)
	require.NotNil(t, f.limiter)
}
