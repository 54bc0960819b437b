////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package versioned is the device-local key value store. It holds state that
// belongs to one installation rather than to the shared document store, such
// as the ledger of messages a device already raised notifications for.
package versioned

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/xx_network/primitives/netTime"
)

// PrefixSeparator joins nested prefixes.
const PrefixSeparator = "/"

// KV stores versioned Objects under (optionally prefixed) keys.
type KV struct {
	data   ekv.KeyValue
	prefix string
}

// NewKV wraps an ekv.KeyValue. Tests use ekv.MakeMemstore, the CLI uses an
// ekv.Filestore.
func NewKV(data ekv.KeyValue) *KV {
	return &KV{data: data}
}

// Get loads the Object stored under key at the given version.
func (v *KV) Get(key string, version uint64) (*Object, error) {
	fullKey := v.makeKey(key, version)
	result := &Object{}
	if err := v.data.Get(fullKey, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Set upserts the Object under key at the Object's version.
func (v *KV) Set(key string, object *Object) error {
	fullKey := v.makeKey(key, object.Version)
	jww.TRACE.Printf("[KV] Set %s", fullKey)
	return v.data.Set(fullKey, object)
}

// SetJSON serializes value as JSON and stores it under key.
func (v *KV) SetJSON(key string, version uint64, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	return v.Set(key, &Object{
		Version:   version,
		Timestamp: netTime.Now(),
		Data:      data,
	})
}

// GetJSON loads key and deserializes it into value.
func (v *KV) GetJSON(key string, version uint64, value interface{}) error {
	obj, err := v.Get(key, version)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(obj.Data, value),
		"failed to unmarshal %s", key)
}

// Prefix returns a KV whose keys live below the given prefix. Both KVs share
// the same backing store.
func (v *KV) Prefix(prefix string) *KV {
	return &KV{
		data:   v.data,
		prefix: v.prefix + prefix + PrefixSeparator,
	}
}

// Exists returns false if the error indicates the element doesn't exist.
func (v *KV) Exists(err error) bool {
	return ekv.Exists(err)
}

func (v *KV) makeKey(key string, version uint64) string {
	return fmt.Sprintf("%s%s_%d", v.prefix, key, version)
}
