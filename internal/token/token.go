// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

// Package token issues and verifies the bearer tokens that every
// authenticated command after LOGIN or TOKEN_AUTH must present.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is returned by Verify for any token that is malformed,
// incorrectly signed, or expired.
var ErrInvalid = errors.New("token: invalid or expired")

// Service issues and verifies HS256-signed bearer tokens scoped to a
// single username.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// New returns a Service signing and verifying tokens with secret,
// stamping issuer into every token's "iss" claim, and expiring new
// tokens ttl after issuance.
func New(secret, issuer string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue mints a new bearer token for username.
func (s *Service) Issue(username string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	token, err := signed.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: signing: %w", err)
	}
	return token, nil
}

// Verify returns the subject (username) a token was issued for, or
// ErrInvalid if the token is malformed, incorrectly signed, or
// expired.
func (s *Service) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return "", ErrInvalid
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return "", ErrInvalid
	}
	return c.Subject, nil
}
