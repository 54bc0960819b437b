////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package push

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeTokens(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = "token-" + strconv.Itoa(i)
	}
	return tokens
}

func TestBatches(t *testing.T) {
	batches := Batches(makeTokens(250), MaxBatch)
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 100)
	require.Len(t, batches[1], 100)
	require.Len(t, batches[2], 50)
	require.Equal(t, "token-0", batches[0][0])
	require.Equal(t, "token-249", batches[2][49])
}

// Empty and repeated tokens are dropped before batching.
func TestBatches_Dedupe(t *testing.T) {
	batches := Batches([]string{"a", "", "b", "a", "  ", "c", "b"}, 2)
	require.Equal(t, [][]string{{"a", "b"}, {"c"}}, batches)

	require.Empty(t, Batches(nil, 10))
	require.Empty(t, Batches([]string{"", " "}, 10))
}

// Out of range sizes fall back to MaxBatch.
func TestBatches_Size(t *testing.T) {
	require.Len(t, Batches(makeTokens(150), 0), 2)
	require.Len(t, Batches(makeTokens(150), 1000), 2)
	require.Len(t, Batches(makeTokens(150), 50), 3)
}

func TestNop_Send(t *testing.T) {
	var d Dispatcher = Nop{}
	require.NoError(t, d.Send(context.Background(), []string{"a"}, "t", "b", nil))
}

func TestTicketError_Error(t *testing.T) {
	err := &TicketError{Failed: map[string]string{"tok": "DeviceNotRegistered"}}
	require.Equal(t, "1 push tickets failed: tok: DeviceNotRegistered", err.Error())
}
