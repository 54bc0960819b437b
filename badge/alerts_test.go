////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package badge

import (
	"context"
	"os"
	"testing"
	"time"

	fs "cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// The connection is dialled lazily, so no server is needed to build the
// query; a cancelled context makes the count fail before any request.
func TestCountUnresolved_Cancelled(t *testing.T) {
	client, err := fs.NewClient(context.Background(), "staffcomms-offline",
		option.WithoutAuthentication(), option.WithEndpoint("127.0.0.1:1"))
	require.NoError(t, err)
	defer client.Close()

	count := CountUnresolved(client)
	require.NotNil(t, count)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = count(ctx)
	require.Error(t, err)
}

func emulatorClient(t *testing.T) *fs.Client {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST is not set")
	}
	client, err := fs.NewClient(context.Background(),
		"staffcomms-"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func addAlert(t *testing.T, client *fs.Client, id string, resolved bool) {
	_, err := client.Collection(AlertsCollection).Doc(id).Set(
		context.Background(), map[string]interface{}{
			"title":    "alert " + id,
			"resolved": resolved,
		})
	require.NoError(t, err)
}

func TestCountUnresolved(t *testing.T) {
	client := emulatorClient(t)
	addAlert(t, client, "fire", false)
	addAlert(t, client, "flood", false)
	addAlert(t, client, "drill", true)

	n, err := CountUnresolved(client)(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestFirestoreAlerts(t *testing.T) {
	client := emulatorClient(t)
	addAlert(t, client, "fire", false)

	got := make(chan int, 16)
	stop := NewFirestoreAlerts(client).WatchActive(func(n int) { got <- n })
	defer stop()

	require.Equal(t, 1, receiveUntil(t, got, 1))

	addAlert(t, client, "lockdown", false)
	require.Equal(t, 2, receiveUntil(t, got, 2))

	addAlert(t, client, "fire", true)
	require.Equal(t, 1, receiveUntil(t, got, 1))
}

// receiveUntil drains ch until want arrives.
func receiveUntil(t *testing.T, ch <-chan int, want int) int {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case v := <-ch:
			if v == want {
				return v
			}
		case <-deadline:
			t.Fatalf("never saw %d active alerts", want)
			return 0
		}
	}
}
