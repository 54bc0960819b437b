////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import "time"

// Tombstones is the set of viewers an entity is hidden from, mapped to when
// each viewer deleted it. A tombstone affects only its own viewer's queries
// and never the entity's data.
type Tombstones map[string]time.Time

// Has reports whether viewerID has a tombstone.
func (t Tombstones) Has(viewerID string) bool {
	_, ok := t[viewerID]
	return ok
}

// VisibleTo reports whether the entity should be shown to viewerID.
func (t Tombstones) VisibleTo(viewerID string) bool {
	return !t.Has(viewerID)
}

// Mark adds a tombstone for viewerID at the given time. It returns false and
// leaves the existing time untouched when the viewer already has one.
func (t *Tombstones) Mark(viewerID string, at time.Time) bool {
	if *t == nil {
		*t = make(Tombstones)
	}
	if t.Has(viewerID) {
		return false
	}
	(*t)[viewerID] = at
	return true
}

// Clear removes the tombstone of viewerID, if any.
func (t Tombstones) Clear(viewerID string) {
	delete(t, viewerID)
}

// Clone returns a deep copy. The copy of a nil set is an empty set.
func (t Tombstones) Clone() Tombstones {
	c := make(Tombstones, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}
