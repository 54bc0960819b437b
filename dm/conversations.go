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
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/directory"
)

// GetConversationsRealtime subscribes to viewerID's conversation list.
func (c *client) GetConversationsRealtime(viewerID string,
	onUpdate func([]ConversationView)) Unsubscribe {
	sub := newSubscription("conversations for " + viewerID)
	peers := newPeerResolver(c)

	return sub.attach(c.store.WatchConversations(viewerID,
		func(convs []Conversation, err error) {
			if !sub.active() {
				return
			}
			if err != nil {
				c.streamError("GetConversationsRealtime", viewerID, err)
				onUpdate([]ConversationView{})
				return
			}
			onUpdate(conversationViews(convs, viewerID, peers))
		}))
}

// conversationViews projects convs for viewerID: deleted ones are dropped,
// the rest are sorted newest first with the peer resolved.
func conversationViews(convs []Conversation, viewerID string,
	peers *peerResolver) []ConversationView {
	views := make([]ConversationView, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		if !conv.HasParticipant(viewerID) ||
			!conv.DeletedFor.VisibleTo(viewerID) {
			continue
		}
		views = append(views, ConversationView{
			ID:              conv.ID,
			Participants:    conv.Participants,
			Recipient:       peers.resolve(conv, viewerID),
			LastMessage:     conv.LastMessage,
			LastMessageTime: conv.LastMessageTime,
			UnreadCount:     conv.UnreadCount[viewerID],
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		ti, tj := views[i].LastMessageTime, views[j].LastMessageTime
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// peerResolver resolves the other participant of a conversation, falling
// back from the cached snapshot to the directory and then to a placeholder.
// Directory results are memoized for the life of one subscription.
type peerResolver struct {
	c    *client
	mux  sync.Mutex
	memo map[string]Snapshot
}

func newPeerResolver(c *client) *peerResolver {
	return &peerResolver{c: c, memo: make(map[string]Snapshot)}
}

func (p *peerResolver) resolve(conv *Conversation, viewerID string) Snapshot {
	peerID := conv.Peer(viewerID)
	if snap, ok := conv.Snapshots[peerID]; ok && snap.Name != "" {
		snap.ID = peerID
		return snap
	}

	p.mux.Lock()
	defer p.mux.Unlock()
	if snap, ok := p.memo[peerID]; ok {
		return snap
	}

	snap, err := p.lookup(peerID)
	if err != nil {
		jww.DEBUG.Printf("[DM] Could not resolve peer %s: %+v", peerID, err)
		// Transport failures are retried on the next emission
		if directory.IsNotFound(err) {
			p.memo[peerID] = snap
		}
		return snap
	}
	p.memo[peerID] = snap
	return snap
}

// lookup asks the directory for peerID. On failure it returns the
// placeholder along with the error.
func (p *peerResolver) lookup(peerID string) (Snapshot, error) {
	if p.c.dir == nil {
		return placeholderSnapshot(peerID), directory.ErrNotFound
	}
	ctx, cancel := p.c.lookupContext(context.Background())
	defer cancel()

	rec, err := p.c.dir.GetUserByID(ctx, peerID)
	if err != nil {
		return placeholderSnapshot(peerID), err
	}
	return Snapshot{
		ID:      peerID,
		Name:    rec.Name,
		Email:   rec.Email,
		Picture: rec.Picture,
	}, nil
}

// DeleteConversation tombstones the conversation and its messages for
// viewerID.
func (c *client) DeleteConversation(ctx context.Context, conversationID,
	viewerID string) error {
	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	changed, err := c.store.TombstoneConversation(storeCtx, conversationID,
		viewerID)
	if err != nil {
		return errors.WithMessagef(err, "failed to delete conversation %s",
			conversationID)
	}
	if !changed {
		jww.DEBUG.Printf("[DM] Conversation %s already deleted for %s",
			conversationID, viewerID)
	}
	return nil
}
