package audit

import (
	"time"

	id "gestionale/pkg/domain"
)

// Order is the timestamp order of a listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query filters and pages a listing. Zero-valued fields do not filter.
// From is inclusive and To is exclusive.
type Query struct {
	EntityType string
	EntityID   string
	ActorID    id.UserID
	Action     Action
	From       time.Time
	To         time.Time
	Order      Order
	Limit      int
	Offset     int
}

// Normalize applies default ordering and clamps paging.
func (q Query) Normalize() Query {
	if q.Order != OrderAsc {
		q.Order = OrderDesc
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Matches reports whether e passes every filter in q.
func (q Query) Matches(e Entry) bool {
	if q.EntityType != "" && e.EntityType != q.EntityType {
		return false
	}
	if q.EntityID != "" && e.EntityID != q.EntityID {
		return false
	}
	if !q.ActorID.IsNil() && e.ActorID != q.ActorID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if !q.From.IsZero() && e.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.Timestamp.Before(q.To) {
		return false
	}
	return true
}

// Page is one slice of a listing plus the total number of matches.
type Page struct {
	Entries []Entry
	Total   int
}
