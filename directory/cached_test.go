////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingDirectory counts calls that reach the wrapped Roster.
type countingDirectory struct {
	*Roster
	byID, byEmail, tokens int32
}

func (c *countingDirectory) GetUserByID(ctx context.Context, id string) (*UserRecord, error) {
	atomic.AddInt32(&c.byID, 1)
	return c.Roster.GetUserByID(ctx, id)
}

func (c *countingDirectory) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	atomic.AddInt32(&c.byEmail, 1)
	return c.Roster.GetUserByEmail(ctx, email)
}

func (c *countingDirectory) GetPushTokenByUID(ctx context.Context, uid string) (string, error) {
	atomic.AddInt32(&c.tokens, 1)
	return c.Roster.GetPushTokenByUID(ctx, uid)
}

func newCounting(t *testing.T) *countingDirectory {
	return &countingDirectory{Roster: newTestRoster(t)}
}

// Tests that the cache returns the same records as the backing directory.
func TestCached_Lookups(t *testing.T) {
	backing := newCounting(t)
	c, err := NewCached(backing, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		rec, err := c.GetUserByID(ctx, "rec1")
		require.NoError(t, err)
		require.Equal(t, "Ada Staff", rec.Name)

		rec, err = c.GetUserByEmail(ctx, "BEN@school.org")
		require.NoError(t, err)
		require.Equal(t, "rec2", rec.ID)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&backing.byID), int32(5))
}

// Tests that the cached record cannot be mutated through a returned pointer.
func TestCached_ReturnsCopies(t *testing.T) {
	c, err := NewCached(newCounting(t), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	rec, err := c.GetUserByID(context.Background(), "rec1")
	require.NoError(t, err)
	rec.Name = "changed"

	require.Eventually(t, func() bool {
		again, err := c.GetUserByID(context.Background(), "rec1")
		return err == nil && again.Name == "Ada Staff"
	}, time.Second, 10*time.Millisecond)
}

// Tests that misses propagate and push tokens always reach the backing store.
func TestCached_MissesAndTokens(t *testing.T) {
	backing := newCounting(t)
	c, err := NewCached(backing, 0)
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, DefaultCacheTTL, c.ttl)

	ctx := context.Background()
	_, err = c.GetUserByID(ctx, "nobody")
	require.True(t, IsNotFound(err))
	_, err = c.GetUserByEmail(ctx, "nobody@school.org")
	require.True(t, IsNotFound(err))

	for i := 0; i < 3; i++ {
		token, err := c.GetPushTokenByUID(ctx, "uid-ada")
		require.NoError(t, err)
		require.Equal(t, "ExponentPushToken[ada]", token)
	}
	require.Equal(t, int32(3), atomic.LoadInt32(&backing.tokens))
}

func TestCached_Invalidate(t *testing.T) {
	c, err := NewCached(newCounting(t), time.Minute)
	require.NoError(t, err)
	defer c.Close()

	rec, err := c.GetUserByID(context.Background(), "rec1")
	require.NoError(t, err)
	c.Invalidate(rec)

	rec, err = c.GetUserByID(context.Background(), "rec1")
	require.NoError(t, err)
	require.Equal(t, "rec1", rec.ID)
}
