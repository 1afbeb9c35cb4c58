// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode"
)

const MaxUserIDLen = 64

var ErrInvalidIdentity = errors.New("invalid identity")

// UserID is the externally owned, authenticated identity of a user.
type UserID string

// ParseUserID trims raw and rejects empty, oversized or non-printable identities.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxUserIDLen {
		return "", ErrInvalidIdentity
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return "", ErrInvalidIdentity
		}
	}
	return UserID(s), nil
}

func (u UserID) Valid() bool {
	_, err := ParseUserID(string(u))
	return err == nil && string(u) == strings.TrimSpace(string(u))
}
