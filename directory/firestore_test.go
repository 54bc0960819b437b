////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserDoc_toRecord(t *testing.T) {
	d := &userDoc{
		RecordID:  "rec9",
		Name:      "Dee",
		Email:     "dee@school.org",
		Type:      "staff",
		PushToken: "tok",
	}
	rec := d.toRecord("uid-dee")
	require.Equal(t, &UserRecord{
		ID:      "rec9",
		Name:    "Dee",
		Email:   "dee@school.org",
		AuthUID: "uid-dee",
		Type:    Staff,
	}, rec)

	// Without a record ID the uid doubles as the ID
	d.RecordID = ""
	rec = d.toRecord("uid-dee")
	require.Equal(t, "uid-dee", rec.ID)
	require.Equal(t, "uid-dee", rec.PushKey())
}
