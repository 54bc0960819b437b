////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UsersCollection holds one document per signed-in user, keyed by the
// platform-auth uid.
const UsersCollection = "users"

// userDoc is the stored shape of a users document.
type userDoc struct {
	RecordID  string `firestore:"recordId"`
	Name      string `firestore:"name"`
	Email     string `firestore:"email"`
	Picture   string `firestore:"picture"`
	Type      string `firestore:"type"`
	PushToken string `firestore:"pushToken"`
}

// toRecord converts a users document into a UserRecord. A document without a
// record ID uses its uid as the ID.
func (d *userDoc) toRecord(uid string) *UserRecord {
	rec := &UserRecord{
		ID:      d.RecordID,
		Name:    d.Name,
		Email:   d.Email,
		Picture: d.Picture,
		AuthUID: uid,
		Type:    ParseUserType(d.Type),
	}
	if rec.ID == "" {
		rec.ID = uid
	}
	return rec
}

// Firestore resolves users from the users collection of a Firestore project.
type Firestore struct {
	users *firestore.CollectionRef
}

// NewFirestore returns a Directory over the users collection of client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{users: client.Collection(UsersCollection)}
}

// GetUserByID matches the recordId field first and falls back to the
// document uid.
func (f *Firestore) GetUserByID(ctx context.Context, id string) (*UserRecord, error) {
	rec, err := f.first(ctx, f.users.Where("recordId", "==", id))
	if err == nil || !IsNotFound(err) {
		return rec, err
	}

	doc, err := f.users.Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.WithMessagef(ErrNotFound, "no user with id %s", id)
		}
		return nil, errors.Errorf("failed to get user %s: %+v", id, err)
	}
	return decodeUserDoc(doc)
}

// GetUserByEmail matches the normalized email, then the email as given.
// Firestore has no case-insensitive equality, so documents are expected to
// hold lowercased emails.
func (f *Firestore) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	normalized := normalizeEmail(email)
	rec, err := f.first(ctx, f.users.Where("email", "==", normalized))
	if err == nil || !IsNotFound(err) || normalized == strings.TrimSpace(email) {
		return rec, err
	}
	return f.first(ctx, f.users.Where("email", "==", strings.TrimSpace(email)))
}

// GetPushTokenByUID reads the pushToken field of the uid's document.
func (f *Firestore) GetPushTokenByUID(ctx context.Context, uid string) (string, error) {
	doc, err := f.users.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", errors.WithMessagef(ErrNotFound, "no user with uid %s", uid)
		}
		return "", errors.Errorf("failed to get push token for %s: %+v", uid, err)
	}
	u := &userDoc{}
	if err = doc.DataTo(u); err != nil {
		return "", errors.Errorf("failed to decode user %s: %+v", uid, err)
	}
	if u.PushToken == "" {
		return "", errors.WithMessagef(ErrNotFound, "no push token for %s", uid)
	}
	return u.PushToken, nil
}

// first returns the first document matched by q.
func (f *Firestore) first(ctx context.Context, q firestore.Query) (*UserRecord, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, errors.WithStack(ErrNotFound)
	} else if err != nil {
		return nil, errors.Errorf("failed to query users: %+v", err)
	}
	return decodeUserDoc(doc)
}

func decodeUserDoc(doc *firestore.DocumentSnapshot) (*UserRecord, error) {
	u := &userDoc{}
	if err := doc.DataTo(u); err != nil {
		return nil, errors.Errorf("failed to decode user %s: %+v", doc.Ref.ID, err)
	}
	jww.TRACE.Printf("[DIR] Resolved user %s from Firestore", doc.Ref.ID)
	return u.toRecord(doc.Ref.ID), nil
}
