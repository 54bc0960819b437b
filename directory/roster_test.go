////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testRoster = `{
  "users": [
    {"id": "rec1", "name": "Ada Staff", "email": "Ada@School.org",
     "picture": "https://img/ada.png", "authUid": "uid-ada", "type": "Staff"},
    {"id": "rec2", "name": "Ben Student", "email": "ben@school.org",
     "type": "general"},
    {"id": "rec3", "name": "Cy Parent", "email": "cy@home.net"}
  ],
  "pushTokens": [
    {"uid": "uid-ada", "token": "ExponentPushToken[ada]"},
    {"uid": "rec2", "token": ""}
  ]
}`

func newTestRoster(t *testing.T) *Roster {
	r, err := NewRoster(testRoster)
	require.NoError(t, err)
	return r
}

func TestRoster_GetUserByID(t *testing.T) {
	r := newTestRoster(t)

	rec, err := r.GetUserByID(context.Background(), "rec1")
	require.NoError(t, err)
	require.Equal(t, &UserRecord{
		ID:      "rec1",
		Name:    "Ada Staff",
		Email:   "Ada@School.org",
		Picture: "https://img/ada.png",
		AuthUID: "uid-ada",
		Type:    Staff,
	}, rec)
	require.Equal(t, "uid-ada", rec.PushKey())

	rec, err = r.GetUserByID(context.Background(), "rec3")
	require.NoError(t, err)
	require.Equal(t, General, rec.Type)
	require.Equal(t, "rec3", rec.PushKey())

	_, err = r.GetUserByID(context.Background(), "nobody")
	require.True(t, IsNotFound(err))
}

// Email lookups ignore case and surrounding whitespace.
func TestRoster_GetUserByEmail(t *testing.T) {
	r := newTestRoster(t)

	for _, email := range []string{"ada@school.org", " ADA@SCHOOL.ORG ", "Ada@School.org"} {
		rec, err := r.GetUserByEmail(context.Background(), email)
		require.NoError(t, err, email)
		require.Equal(t, "rec1", rec.ID)
	}

	_, err := r.GetUserByEmail(context.Background(), "ada@school.com")
	require.True(t, IsNotFound(err))
}

func TestRoster_GetPushTokenByUID(t *testing.T) {
	r := newTestRoster(t)

	token, err := r.GetPushTokenByUID(context.Background(), "uid-ada")
	require.NoError(t, err)
	require.Equal(t, "ExponentPushToken[ada]", token)

	// An empty token is the same as no token
	_, err = r.GetPushTokenByUID(context.Background(), "rec2")
	require.True(t, IsNotFound(err))

	_, err = r.GetPushTokenByUID(context.Background(), "uid-none")
	require.True(t, IsNotFound(err))
}

// Tests that lookups on one Roster do not see each other's filters, whether
// they run one after another or concurrently.
func TestRoster_IndependentLookups(t *testing.T) {
	r := newTestRoster(t)
	ctx := context.Background()

	_, err := r.GetUserByID(ctx, "missing")
	require.True(t, IsNotFound(err))
	require.Equal(t, 3, r.Count())

	ids := []string{"rec1", "rec2", "rec3"}
	var wg sync.WaitGroup
	errs := make(chan error, 10*len(ids))
	for i := 0; i < 10; i++ {
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				rec, err := r.GetUserByID(ctx, id)
				if err == nil && rec.ID != id {
					err = errors.Errorf("looked up %s, got %s", id, rec.ID)
				}
				if err != nil {
					errs <- err
				}
			}(id)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 3, r.Count())
}

func TestEmailEquals(t *testing.T) {
	ok, err := emailEquals(" Ada@School.org", "ada@school.org")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = emailEquals(nil, "ada@school.org")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = emailEquals("ada@school.org", 7)
	require.Error(t, err)
}

func TestNewRoster_Invalid(t *testing.T) {
	_, err := NewRoster(`{"users": [`)
	require.Error(t, err)

	_, err = NewRoster(`{"staff": []}`)
	require.Error(t, err)
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(testRoster), 0o600))

	r, err := LoadRoster(path)
	require.NoError(t, err)
	require.Equal(t, 3, r.Count())

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestParseUserType(t *testing.T) {
	require.Equal(t, Staff, ParseUserType("staff"))
	require.Equal(t, Staff, ParseUserType(" STAFF"))
	require.Equal(t, General, ParseUserType("general"))
	require.Equal(t, General, ParseUserType(""))
	require.Equal(t, General, ParseUserType("custodian"))
}
