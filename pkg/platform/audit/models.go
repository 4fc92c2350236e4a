// Package audit records the append-only trail of record changes.
//
// Entries are written synchronously by the Recorder, inside the transaction of the
// mutation they describe when the store supports one. Once appended an entry is
// never updated or removed.
package audit

import (
	"encoding/json"
	"time"

	id "gestionale/pkg/domain"
)

// EntityTypeAuditEntry is the entity name of audit entries themselves.
// Entries about this type are never recorded.
const EntityTypeAuditEntry = "AuditEntry"

// Action is the kind of mutation an entry describes.
type Action string

const (
	ActionCreated Action = "create"
	ActionUpdated Action = "update"
	ActionDeleted Action = "delete"
)

// Valid reports whether a is one of the three recorded actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	default:
		return false
	}
}

// ParseAction maps a query value to an Action.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, a.Valid()
}

// Entry is one immutable audit record.
//
// ActorID is a weak reference: the account may later be deactivated or
// removed and the entry stays valid, reading as "unknown actor" when nil.
// EntityID is the string form of the record's identifier and is not checked
// against the record, which may no longer exist.
type Entry struct {
	ID         id.EntryID
	ActorID    id.UserID
	Action     Action
	EntityType string
	EntityID   string
	Timestamp  time.Time
	RequestID  string
	Details    *Details
}

// Details carries optional before/after snapshots of the record as JSON.
type Details struct {
	Old json.RawMessage `json:"old,omitempty"`
	New json.RawMessage `json:"new,omitempty"`
}

// HasActor reports whether the entry is attributed to an account.
func (e Entry) HasActor() bool {
	return !e.ActorID.IsNil()
}
