////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package directory resolves staff and general users to normalized records.
// The messaging core consumes it to fill in display metadata and to find the
// push token of a message recipient.
package directory

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no record or push token matches the query.
var ErrNotFound = errors.New("user not found in directory")

// UserType distinguishes the two populations held by the directory.
type UserType string

const (
	// Staff users come from the staff table.
	Staff UserType = "staff"

	// General users are students, parents and other non-staff accounts.
	General UserType = "general"
)

// ParseUserType converts a stored discriminant into a UserType. Unknown
// values are treated as general users.
func ParseUserType(s string) UserType {
	if strings.EqualFold(strings.TrimSpace(s), string(Staff)) {
		return Staff
	}
	return General
}

// UserRecord is a normalized directory entry.
type UserRecord struct {
	// ID is the record identifier in the directory.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Email is the contact email.
	Email string `json:"email"`

	// Picture is a reference to the profile picture. It may be empty.
	Picture string `json:"picture,omitempty"`

	// AuthUID is the linked platform-auth identifier. It may be empty, in
	// which case push tokens are keyed by ID.
	AuthUID string `json:"authUid,omitempty"`

	// Type is staff or general.
	Type UserType `json:"type"`
}

// PushKey returns the identifier push tokens are registered under.
func (r *UserRecord) PushKey() string {
	if r.AuthUID != "" {
		return r.AuthUID
	}
	return r.ID
}

// Directory looks up users. Every method returns ErrNotFound (possibly
// wrapped) when nothing matches.
type Directory interface {
	// GetUserByID returns the record with the given ID.
	GetUserByID(ctx context.Context, id string) (*UserRecord, error)

	// GetUserByEmail returns the record with the given contact email. The
	// match is case-insensitive.
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)

	// GetPushTokenByUID returns the device push token registered for the
	// platform-auth uid.
	GetPushTokenByUID(ctx context.Context, uid string) (string, error)
}

// IsNotFound reports whether err means the directory had no match.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// normalizeEmail lowercases and trims an email for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
