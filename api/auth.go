////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/elixxir/staffcomms/dm"
)

const viewerKey = "viewer"

// Claims are the identity claims issued by the identity provider. The subject
// is the user ID.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for p that expires after ttl. A zero ttl
// issues a token without expiry.
func IssueToken(secret []byte, p dm.Participant, ttl time.Duration) (string, error) {
	claims := Claims{
		Name:  p.Name,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(secret)
	if err != nil {
		return "", errors.Errorf("failed to sign token: %+v", err)
	}
	return token, nil
}

// ParseToken validates an HS256 token and returns the participant it names.
func ParseToken(secret []byte, token string) (dm.Participant, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return dm.Participant{}, err
	}
	if claims.Subject == "" {
		return dm.Participant{}, errors.New("token has no subject")
	}
	return dm.Participant{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// authenticate requires a valid bearer token and stores the viewer in the
// request locals. Browsers cannot set headers on websocket upgrades, so the
// token may also be passed as the "token" query parameter.
func authenticate(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(
			strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing token")
		}
		viewer, err := ParseToken(secret, token)
		if err != nil {
			jww.DEBUG.Printf("[API] Rejected token from %s: %+v", c.IP(), err)
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(viewerKey, viewer)
		return c.Next()
	}
}

// asViewer converts the value stored under viewerKey.
func asViewer(local interface{}) dm.Participant {
	p, _ := local.(dm.Participant)
	return p
}
