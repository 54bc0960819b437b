////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestStatusString strings are stored, so lock them with a test.
func TestStatusString(t *testing.T) {
	require.Equal(t, "sending", Sending.String())
	require.Equal(t, "sent", Sent.String())
	require.Equal(t, "delivered", Delivered.String())
	require.Equal(t, "read", Read.String())
	require.Equal(t, "Invalid Status: 7", Status(7).String())
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{Sending, Sent, Delivered, Read} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		require.Equal(t, s, parsed)
	}
	parsed, err := ParseStatus(" READ ")
	require.NoError(t, err)
	require.Equal(t, Read, parsed)

	_, err = ParseStatus("seen")
	require.Error(t, err)
}

// Statuses only move forward.
func TestStatus_Advance(t *testing.T) {
	require.Equal(t, Delivered, Sent.Advance(Delivered))
	require.Equal(t, Read, Sent.Advance(Read))
	require.Equal(t, Read, Delivered.Advance(Read))
	require.Equal(t, Read, Read.Advance(Delivered))
	require.Equal(t, Delivered, Delivered.Advance(Sent))
}
