////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package dm

import "github.com/pkg/errors"

// Errors returned to callers of the Client. Store implementations return the
// not-found and participant errors, possibly wrapped.
var (
	ErrSelfMessage          = errors.New("cannot send a message to yourself")
	ErrEmptyContent         = errors.New("message content is empty")
	ErrNotParticipant       = errors.New("viewer is not a participant")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// IsNotFound reports whether err is a missing conversation or message.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrMessageNotFound)
}

// ErrClientClosed is returned by sends issued after Client.Close.
var ErrClientClosed = errors.New("messaging client is closed")
