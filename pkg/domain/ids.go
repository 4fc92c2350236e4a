// Package domain holds typed identifiers shared across modules.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "gestionale/pkg/domain-errors"
)

// UserID identifies an account. The zero value means "no user".
type UserID uuid.UUID

// EntryID identifies an audit entry.
type EntryID uuid.UUID

// OutboxID identifies a pending audit export row.
type OutboxID uuid.UUID

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id UserID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) String() string  { return uuid.UUID(id).String() }
func (id EntryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OutboxID) String() string { return uuid.UUID(id).String() }
func (id OutboxID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a random user id.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewEntryID returns a random entry id.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// NewOutboxID returns a random outbox id.
func NewOutboxID() OutboxID { return OutboxID(uuid.New()) }

// ParseUserID parses an external user id. Empty, malformed and nil UUIDs are rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

// ParseEntryID parses an external audit entry id.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry_id")
	return EntryID(u), err
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be nil")
	}
	return u, nil
}
