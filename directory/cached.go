////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

const (
	// DefaultCacheTTL is how long a resolved record is served from cache.
	DefaultCacheTTL = 5 * time.Minute

	cacheCounters    = 10_000
	cacheMaxCost     = 1_000
	cacheBufferItems = 64

	idKeyPrefix    = "id:"
	emailKeyPrefix = "email:"
)

// Cached decorates a Directory with a TTL cache of user records. Records are
// cached under both their ID and their normalized email. Misses and push
// tokens are never cached, since tokens rotate with device registrations.
type Cached struct {
	Directory
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached wraps d. A non-positive ttl selects DefaultCacheTTL.
func NewCached(d Directory, ttl time.Duration) (*Cached, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, errors.Errorf("failed to create directory cache: %+v", err)
	}
	return &Cached{Directory: d, cache: cache, ttl: ttl}, nil
}

// GetUserByID serves from cache or falls through to the wrapped Directory.
func (c *Cached) GetUserByID(ctx context.Context, id string) (*UserRecord, error) {
	if rec, ok := c.get(idKeyPrefix + id); ok {
		return rec, nil
	}
	rec, err := c.Directory.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(rec)
	return rec, nil
}

// GetUserByEmail serves from cache or falls through to the wrapped
// Directory.
func (c *Cached) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	if rec, ok := c.get(emailKeyPrefix + normalizeEmail(email)); ok {
		return rec, nil
	}
	rec, err := c.Directory.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	c.store(rec)
	return rec, nil
}

// Invalidate drops any cached entries for the record.
func (c *Cached) Invalidate(rec *UserRecord) {
	c.cache.Del(idKeyPrefix + rec.ID)
	c.cache.Del(emailKeyPrefix + normalizeEmail(rec.Email))
}

// Close releases the cache's goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}

func (c *Cached) get(key string) (*UserRecord, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*UserRecord)
	if !ok {
		return nil, false
	}
	jww.TRACE.Printf("[DIR] Cache hit for %s", key)
	cp := *rec
	return &cp, true
}

func (c *Cached) store(rec *UserRecord) {
	cp := *rec
	c.cache.SetWithTTL(idKeyPrefix+rec.ID, &cp, 1, c.ttl)
	if rec.Email != "" {
		c.cache.SetWithTTL(emailKeyPrefix+normalizeEmail(rec.Email), &cp, 1, c.ttl)
	}
}
