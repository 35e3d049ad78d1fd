// Package domain contains entities without transport logic, just meta-data
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxIdentityLen = 36
	RoomIDLen      = 9
	MaxRoomSize    = 4
)

// ConnID identifies one signaling transport session. It changes on reconnect.
type ConnID string

// NormalizeIdentity trims a caller-supplied display name and checks it.
func NormalizeIdentity(raw string) (string, error) {
	identity := strings.TrimSpace(raw)
	if identity == "" {
		return "", ErrIdentityEmpty
	}
	if utf8.RuneCountInString(identity) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	for _, r := range identity {
		if !unicode.IsPrint(r) {
			return "", ErrInvalidIdentity
		}
	}
	return identity, nil
}
