////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// GetMessages subscribes to the conversation between viewerID and peerID.
func (c *client) GetMessages(viewerID, peerID string,
	onUpdate func([]MessageView)) Unsubscribe {
	convID := ConversationID(viewerID, peerID)
	sub := newSubscription("messages " + convID + " for " + viewerID)

	return sub.attach(c.store.WatchConversation(convID,
		func(msgs []Message, err error) {
			if !sub.active() {
				return
			}
			if err != nil {
				c.streamError("GetMessages", convID, err)
				onUpdate([]MessageView{})
				return
			}
			onUpdate(messageViews(msgs, viewerID, peerID))
		}))
}

// messageViews filters msgs to the pair, drops the ones viewerID deleted,
// orders them by store timestamp and tags the viewer's own messages.
func messageViews(msgs []Message, viewerID, peerID string) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if !m.Between(viewerID, peerID) || !m.DeletedFor.VisibleTo(viewerID) {
			continue
		}
		views = append(views, MessageView{
			Message:           m,
			IsFromCurrentUser: m.SenderID == viewerID,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		ti, tj := views[i].Timestamp, views[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// MarkMessagesAsRead flips the unread messages from peerID to viewerID to
// read in one atomic batch.
func (c *client) MarkMessagesAsRead(ctx context.Context, peerID,
	viewerID string) error {
	if peerID == viewerID {
		return ErrSelfMessage
	}
	convID := ConversationID(peerID, viewerID)

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()
	n, err := c.store.MarkRead(storeCtx, convID, peerID, viewerID)
	if err != nil {
		return errors.WithMessagef(err,
			"failed to mark messages from %s read", peerID)
	}
	jww.DEBUG.Printf("[DM] Marked %d messages in %s read for %s",
		n, convID, viewerID)
	return nil
}

// DeleteMessage tombstones one message for viewerID.
func (c *client) DeleteMessage(ctx context.Context, messageID,
	viewerID string) error {
	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	changed, err := c.store.TombstoneMessage(storeCtx, messageID, viewerID)
	if err != nil {
		return errors.WithMessagef(err, "failed to delete message %s",
			messageID)
	}
	if !changed {
		jww.DEBUG.Printf("[DM] Message %s already deleted for %s",
			messageID, viewerID)
	}
	return nil
}
