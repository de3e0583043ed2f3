package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// SessionID identifies one recording session. Sessions are the blocks
	// that constrain within-block permutation shuffles.
	SessionID ID
	// RunID identifies one full pipeline invocation.
	RunID ID
	// ChannelID identifies one signal channel within a session.
	ChannelID ID
)

func (id SessionID) String() string { return ID(id).String() }
func (id RunID) String() string     { return ID(id).String() }
func (id ChannelID) String() string { return ID(id).String() }

// ParseSessionID parses a string into SessionID, trimming whitespace
func ParseSessionID(s string) (SessionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}

// ParseChannelID parses a string into ChannelID, trimming whitespace
func ParseChannelID(s string) (ChannelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("channel ID cannot be empty")
	}
	return ChannelID(s), nil
}
