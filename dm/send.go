////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/directory"
	"gitlab.com/elixxir/staffcomms/emoji"
	"gitlab.com/elixxir/staffcomms/event"
)

const (
	// PreviewLength is the maximum length, in characters, of the message
	// preview used as a notification body.
	PreviewLength = 100

	// PushTypeMessage is the data type of direct message pushes.
	PushTypeMessage = "message"
)

// Preview returns the notification body for content.
func Preview(content string) string {
	return emoji.Truncate(strings.TrimSpace(content), PreviewLength)
}

// SendMessage persists the message, upserts the conversation and queues the
// push tail.
func (c *client) SendMessage(ctx context.Context, sender,
	recipient Participant, content string) (string, error) {
	if sender.ID == "" || recipient.ID == "" {
		return "", errors.New("sender and recipient IDs are required")
	} else if sender.ID == recipient.ID {
		return "", ErrSelfMessage
	} else if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	} else if c.isClosed() {
		return "", ErrClientClosed
	}

	convID := ConversationID(sender.ID, recipient.ID)
	jww.DEBUG.Printf("[DM] SendMessage(%s -> %s) in %s",
		sender.ID, recipient.ID, convID)

	snapshots := c.refreshSnapshots(ctx, convID, sender, recipient)

	msg := &Message{
		ConversationID: convID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderEmail:    sender.Email,
		RecipientID:    recipient.ID,
		RecipientName:  recipient.Name,
		RecipientEmail: recipient.Email,
		Content:        content,
		Status:         Sent,
		DeletedFor:     Tombstones{},
	}

	storeCtx, cancel := c.storeContext(ctx)
	defer cancel()

	id, ts, err := c.store.CreateMessage(storeCtx, msg)
	if err != nil {
		return "", errors.WithMessage(err, "failed to store message")
	}
	msg.ID, msg.Timestamp = id, ts

	err = c.store.UpsertConversation(storeCtx, ConversationUpdate{
		ID:                 convID,
		Participants:       SortedPair(sender.ID, recipient.ID),
		LastMessage:        content,
		LastMessageTime:    ts,
		Snapshots:          snapshots,
		Revive:             []string{sender.ID, recipient.ID},
		IncrementUnreadFor: recipient.ID,
	})
	if err != nil {
		details := fmt.Sprintf("message %s stored but conversation %s "+
			"not updated: %+v", id, convID, err)
		jww.ERROR.Printf("[DM] %s", details)
		c.events.Report(event.PriorityError, event.CategoryDM,
			event.OrphanMessage, details)
		return "", errors.WithMessagef(err,
			"failed to update conversation %s", convID)
	}

	c.queuePush(msg)
	return id, nil
}

// refreshSnapshots builds both participants' snapshots from the send
// arguments. Missing fields come from the snapshots already cached on the
// conversation and then from the directory. Lookup failures only leave the
// fields blank.
func (c *client) refreshSnapshots(ctx context.Context, convID string,
	participants ...Participant) map[string]Snapshot {
	var cached map[string]Snapshot
	lookupCtx, cancel := c.lookupContext(ctx)
	defer cancel()
	if conv, err := c.store.GetConversation(lookupCtx, convID); err == nil {
		cached = conv.Snapshots
	} else if !IsNotFound(err) {
		jww.WARN.Printf("[DM] Failed to read conversation %s for "+
			"snapshots: %+v", convID, err)
	}

	snapshots := make(map[string]Snapshot, len(participants))
	for _, p := range participants {
		snap := Snapshot{ID: p.ID, Name: p.Name, Email: p.Email}
		if old, ok := cached[p.ID]; ok {
			snap.Picture = old.Picture
			if snap.Name == "" {
				snap.Name = old.Name
			}
			if snap.Email == "" {
				snap.Email = old.Email
			}
		}

		if snap.Picture == "" || snap.Name == "" {
			if rec, err := c.lookupUser(ctx, p.ID, p.Email); err == nil {
				if snap.Picture == "" {
					snap.Picture = rec.Picture
				}
				if snap.Name == "" {
					snap.Name = rec.Name
				}
				if snap.Email == "" {
					snap.Email = rec.Email
				}
			} else {
				jww.DEBUG.Printf("[DM] No directory entry for %s: %+v",
					p.ID, err)
			}
		}
		snapshots[p.ID] = snap
	}
	return snapshots
}

// lookupUser resolves a user by ID and then by email, each lookup bounded by
// LookupTimeout.
func (c *client) lookupUser(ctx context.Context, id, email string) (
	*directory.UserRecord, error) {
	if c.dir == nil {
		return nil, directory.ErrNotFound
	}

	idCtx, cancel := c.lookupContext(ctx)
	rec, err := c.dir.GetUserByID(idCtx, id)
	cancel()
	if err == nil || email == "" {
		return rec, err
	}

	emailCtx, cancel := c.lookupContext(ctx)
	defer cancel()
	byEmail, emailErr := c.dir.GetUserByEmail(emailCtx, email)
	if emailErr != nil {
		return nil, errors.WithMessagef(emailErr,
			"lookup by id failed (%v)", err)
	}
	return byEmail, nil
}

// queuePush starts the push tail of a sent message.
func (c *client) queuePush(msg *Message) {
	queued := c.goTail("push "+msg.ID, c.params.PushTimeout,
		func(ctx context.Context) {
			if err := c.pushToRecipient(ctx, msg); err != nil {
				details := fmt.Sprintf("push for message %s failed: %+v",
					msg.ID, err)
				jww.WARN.Printf("[DM] %s", details)
				c.events.Report(event.PriorityWarning, event.CategoryDM,
					event.PushFailed, details)
			}
		})
	if !queued {
		jww.WARN.Printf("[DM] Client closed, push for message %s dropped",
			msg.ID)
	}
}

// pushToRecipient resolves the recipient's push token and dispatches the
// notification. A recipient without a token is not an error.
func (c *client) pushToRecipient(ctx context.Context, msg *Message) error {
	uid := msg.RecipientID
	rec, err := c.lookupUser(ctx, msg.RecipientID, msg.RecipientEmail)
	if err == nil {
		uid = rec.PushKey()
	} else if !directory.IsNotFound(err) {
		jww.DEBUG.Printf("[DM] Recipient lookup for %s failed, using "+
			"recipient ID for token: %+v", msg.RecipientID, err)
	}

	if c.dir == nil {
		return nil
	}
	tokenCtx, cancel := c.lookupContext(ctx)
	token, err := c.dir.GetPushTokenByUID(tokenCtx, uid)
	cancel()
	if err != nil {
		if directory.IsNotFound(err) {
			jww.DEBUG.Printf("[DM] No push token for %s, skipping push", uid)
			return nil
		}
		return errors.WithMessagef(err, "failed to get push token for %s", uid)
	}

	title := msg.SenderName
	if title == "" {
		title = "New message"
	}
	err = c.push.Send(ctx, []string{token}, title, Preview(msg.Content),
		pushData(msg))
	if err != nil {
		return errors.WithMessage(err, "dispatch failed")
	}
	jww.DEBUG.Printf("[DM] Push for message %s dispatched", msg.ID)
	return nil
}

// pushData is the data payload attached to a message push.
func pushData(msg *Message) map[string]string {
	return map[string]string{
		"type":           PushTypeMessage,
		"messageId":      msg.ID,
		"conversationId": msg.ConversationID,
		"senderId":       msg.SenderID,
	}
}
