////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"sync"
	"sync/atomic"

	jww "github.com/spf13/jwalterweatherman"
)

// subscription gates the callbacks of one store watch. Once unsubscribed no
// further emission reaches the caller, even if the store delivers one that
// was already queued.
type subscription struct {
	name   string
	closed uint32
	once   sync.Once
	stop   Unsubscribe
}

func newSubscription(name string) *subscription {
	return &subscription{name: name}
}

// active reports whether emissions should still be delivered.
func (s *subscription) active() bool {
	return atomic.LoadUint32(&s.closed) == 0
}

// attach records the store watch to detach on unsubscribe.
func (s *subscription) attach(stop Unsubscribe) Unsubscribe {
	s.stop = stop
	return s.unsubscribe
}

// unsubscribe detaches the watch. Only the first call has an effect.
func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		atomic.StoreUint32(&s.closed, 1)
		jww.DEBUG.Printf("[DM] Unsubscribed %s", s.name)
		if s.stop != nil {
			s.stop()
		}
	})
}
