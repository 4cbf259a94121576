// Package domain contains the entities exchanged between the call session,
// the remote agent and the view layer.
package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	MaxHintLen        = 36
	DefaultUserPrefix = "user-"
)

var (
	ErrHintTooLong = errors.New("hint too long")
	ErrHintEmpty   = errors.New("hint empty")
)

// Identity is the local endpoint name inside a room.
type Identity string

// NewUserHint builds a throwaway participant name for the token endpoint.
func NewUserHint(prefix string) string {
	if prefix == "" {
		prefix = DefaultUserPrefix
	}
	return fmt.Sprintf("%s%d", prefix, rand.IntN(10000))
}

// ValidateHint checks a room or user hint before it is sent to the token endpoint.
func ValidateHint(hint string) error {
	if len(hint) == 0 {
		return ErrHintEmpty
	}
	if len(hint) > MaxHintLen {
		return ErrHintTooLong
	}
	return nil
}
