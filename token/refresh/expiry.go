package refresh

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// expiryOf resolves the access token expiry in order of preference: the
// response's expires_in measured against our clock, oauth2's own Expiry, the
// JWT exp claim of the access token, then the configured default.
func (c *Client) expiryOf(tok *oauth2.Token) time.Time {
	now := c.now()
	if secs, ok := expiresIn(tok); ok {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return exp
	}
	return now.Add(c.defaultTTL)
}

func expiresIn(tok *oauth2.Token) (int64, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), v > 0
	case json.Number:
		n, err := v.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil && n > 0
	default:
		return 0, false
	}
}

// jwtExpiry reads exp without verifying the signature. The value only schedules
// the next refresh; the provider remains the authority on validity.
func jwtExpiry(accessToken string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
