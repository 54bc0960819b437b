////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"sync"
	"time"

	"github.com/golang-collections/collections/set"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/staffcomms/storage/versioned"
)

const (
	ledgerPrefix  = "dmNotified"
	ledgerVersion = 0
)

// ledgerEntry is stored once a message has been handled by the notification
// listener.
type ledgerEntry struct {
	Handled  time.Time `json:"handled"`
	Notified bool      `json:"notified"`
}

// notificationLedger remembers which inbound messages a device already
// handled. Entries persist in the device KV; the in-flight set covers the
// window between starting a dispatch and recording it.
type notificationLedger struct {
	kv *versioned.KV

	mux      sync.Mutex
	inFlight *set.Set
}

func newNotificationLedger(kv *versioned.KV, viewerID string) *notificationLedger {
	return &notificationLedger{
		kv:       kv.Prefix(ledgerPrefix).Prefix(viewerID),
		inFlight: set.New(),
	}
}

// lookup loads the recorded entry of messageID. Read and decode failures
// count as not recorded, which may repeat a notification but never loses one.
func (l *notificationLedger) lookup(messageID string) (ledgerEntry, bool) {
	var entry ledgerEntry
	err := l.kv.GetJSON(messageID, ledgerVersion, &entry)
	if err == nil {
		return entry, true
	}
	if l.kv.Exists(err) {
		jww.WARN.Printf("[DM] Failed to read notification ledger for %s: %+v",
			messageID, err)
	}
	return ledgerEntry{}, false
}

// handled reports whether messageID was recorded.
func (l *notificationLedger) handled(messageID string) bool {
	_, ok := l.lookup(messageID)
	return ok
}

// claim marks messageID in flight. It returns false when the message is
// already in flight or recorded.
func (l *notificationLedger) claim(messageID string) bool {
	l.mux.Lock()
	defer l.mux.Unlock()
	if l.inFlight.Has(messageID) || l.handled(messageID) {
		return false
	}
	l.inFlight.Insert(messageID)
	return true
}

// record stores messageID as handled and releases its in-flight claim.
func (l *notificationLedger) record(messageID string, notified bool) {
	err := l.kv.SetJSON(messageID, ledgerVersion, ledgerEntry{
		Handled:  netTime.Now(),
		Notified: notified,
	})
	if err != nil {
		jww.ERROR.Printf("[DM] Failed to record notification for %s: %+v",
			messageID, err)
	}

	l.release(messageID)
}

// release drops the in-flight claim without recording the message.
func (l *notificationLedger) release(messageID string) {
	l.mux.Lock()
	l.inFlight.Remove(messageID)
	l.mux.Unlock()
}

// pending returns the number of in-flight claims.
func (l *notificationLedger) pending() int {
	l.mux.Lock()
	defer l.mux.Unlock()
	return l.inFlight.Len()
}
