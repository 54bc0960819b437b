////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package directory

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/thedevsaddam/gojsonq"
)

const (
	usersNode      = "users"
	pushTokensNode = "pushTokens"

	// emailEqOp is the query operator registered for case-insensitive email
	// comparison.
	emailEqOp = "emailEq"
)

// Roster serves directory lookups out of a JSON export of the tabular
// database. The export has the form
//
//	{
//	  "users": [{"id", "name", "email", "picture", "authUid", "type"}],
//	  "pushTokens": [{"uid", "token"}]
//	}
//
// The export is decoded once. Roster is read-only and safe for concurrent
// use.
type Roster struct {
	jq *gojsonq.JSONQ
}

// NewRoster parses the JSON export and returns a Roster over it.
func NewRoster(export string) (*Roster, error) {
	jq := gojsonq.New().JSONString(export).Macro(emailEqOp, emailEquals)
	if err := jq.Error(); err != nil {
		return nil, errors.Errorf("failed to parse roster: %+v", err)
	}
	r := &Roster{jq: jq}
	if _, ok := r.query(usersNode).Get().([]interface{}); !ok {
		return nil, errors.Errorf("roster has no %q list", usersNode)
	}
	return r, nil
}

// LoadRoster reads the JSON export at path.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read roster %s", path)
	}
	r, err := NewRoster(string(data))
	if err != nil {
		return nil, err
	}
	jww.INFO.Printf("[DIR] Loaded roster from %s", path)
	return r, nil
}

// GetUserByID returns the roster entry with the given ID.
func (r *Roster) GetUserByID(_ context.Context, id string) (*UserRecord, error) {
	res := r.query(usersNode).Where("id", "=", id).First()
	return decodeRecord(res, "id "+id)
}

// GetUserByEmail returns the roster entry with the given email, ignoring
// case and surrounding whitespace.
func (r *Roster) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	res := r.query(usersNode).
		Where("email", emailEqOp, normalizeEmail(email)).First()
	return decodeRecord(res, "email "+email)
}

// GetPushTokenByUID returns the push token registered for uid.
func (r *Roster) GetPushTokenByUID(_ context.Context, uid string) (string, error) {
	res := r.query(pushTokensNode).Where("uid", "=", uid).First()
	entry, ok := res.(map[string]interface{})
	if !ok {
		return "", errors.WithMessagef(ErrNotFound, "no push token for %s", uid)
	}
	token, _ := entry["token"].(string)
	if token == "" {
		return "", errors.WithMessagef(ErrNotFound, "empty push token for %s", uid)
	}
	return token, nil
}

// Count returns the number of users in the roster.
func (r *Roster) Count() int {
	return r.query(usersNode).Count()
}

// query starts a fresh query at node. gojsonq queries are stateful, so every
// lookup works on its own copy of the decoded export.
func (r *Roster) query(node string) *gojsonq.JSONQ {
	return r.jq.Copy().From(node)
}

// emailEquals is the query function behind emailEqOp.
func emailEquals(x, y interface{}) (bool, error) {
	xs, ok := x.(string)
	if !ok {
		return false, nil
	}
	ys, ok := y.(string)
	if !ok {
		return false, errors.Errorf("%s expects a string, got %T", emailEqOp, y)
	}
	return strings.EqualFold(strings.TrimSpace(xs), ys), nil
}

// decodeRecord converts a gojsonq result into a UserRecord.
func decodeRecord(res interface{}, what string) (*UserRecord, error) {
	entry, ok := res.(map[string]interface{})
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "no user with %s", what)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, errors.Errorf("failed to encode roster entry: %+v", err)
	}
	rec := &UserRecord{}
	if err = json.Unmarshal(data, rec); err != nil {
		return nil, errors.Errorf("failed to decode roster entry: %+v", err)
	}
	rec.Type = ParseUserType(string(rec.Type))
	return rec, nil
}
