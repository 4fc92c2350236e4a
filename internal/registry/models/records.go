package models

import (
	"strings"
	"time"

	dErrors "gestionale/pkg/domain-errors"
)

// Record is implemented by *Customer and *Supplier so one service and one
// in-memory store can serve both registries.
type Record[T any] interface {
	Key() string
	SetKey(code string)
	Normalize()
	Validate() error
	Stamp(created, updated time.Time)
	Created() time.Time
	Matches(search string) bool
	Less(other T) bool
	Clone() T
}

// CustomerKind distinguishes private customers from businesses.
type CustomerKind string

const (
	CustomerPrivate  CustomerKind = "private"
	CustomerBusiness CustomerKind = "business"
)

// ParseCustomerKind accepts the English values and the legacy Italian ones.
func ParseCustomerKind(s string) (CustomerKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "private", "privato":
		return CustomerPrivate, true
	case "business", "azienda":
		return CustomerBusiness, true
	default:
		return "", false
	}
}

// Customer is an entry of the customer registry, keyed by Code (e.g. CLI001).
type Customer struct {
	Code string       `json:"code"`
	Kind CustomerKind `json:"kind"`
	Party
}

func (c *Customer) Key() string                      { return c.Code }
func (c *Customer) SetKey(code string)               { c.Code = code }
func (c *Customer) Stamp(created, updated time.Time) { c.stamp(created, updated) }
func (c *Customer) Created() time.Time               { return c.CreatedAt }
func (c *Customer) Less(o *Customer) bool            { return c.less(o.Party) }

func (c *Customer) Clone() *Customer {
	cp := *c
	return &cp
}

func (c *Customer) Normalize() {
	c.Code = strings.TrimSpace(c.Code)
	c.normalize()
	if kind, ok := ParseCustomerKind(string(c.Kind)); ok {
		c.Kind = kind
	}
}

func (c *Customer) Validate() error {
	if err := validateCode(c.Code); err != nil {
		return err
	}
	if c.Kind != CustomerPrivate && c.Kind != CustomerBusiness {
		return dErrors.New(dErrors.CodeValidation, "kind must be private or business")
	}
	return c.validate()
}

func (c *Customer) Matches(search string) bool {
	return search == "" || containsFold(c.Code, search) || c.contains(search)
}

// SupplierCategory classifies what a supplier provides.
type SupplierCategory string

const (
	SupplierParts    SupplierCategory = "parts"
	SupplierServices SupplierCategory = "services"
	SupplierOther    SupplierCategory = "other"
)

// ParseSupplierCategory accepts the English values and the legacy Italian ones.
func ParseSupplierCategory(s string) (SupplierCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "other", "altro":
		return SupplierOther, true
	case "parts", "ricambi":
		return SupplierParts, true
	case "services", "servizi":
		return SupplierServices, true
	default:
		return "", false
	}
}

// Supplier is an entry of the supplier registry, keyed by Code (e.g. FOR007).
type Supplier struct {
	Code     string           `json:"code"`
	Category SupplierCategory `json:"category"`
	Party
}

func (s *Supplier) Key() string                      { return s.Code }
func (s *Supplier) SetKey(code string)               { s.Code = code }
func (s *Supplier) Stamp(created, updated time.Time) { s.stamp(created, updated) }
func (s *Supplier) Created() time.Time               { return s.CreatedAt }
func (s *Supplier) Less(o *Supplier) bool            { return s.less(o.Party) }

func (s *Supplier) Clone() *Supplier {
	cp := *s
	return &cp
}

func (s *Supplier) Normalize() {
	s.Code = strings.TrimSpace(s.Code)
	s.normalize()
	if cat, ok := ParseSupplierCategory(string(s.Category)); ok {
		s.Category = cat
	}
}

func (s *Supplier) Validate() error {
	if err := validateCode(s.Code); err != nil {
		return err
	}
	switch s.Category {
	case SupplierParts, SupplierServices, SupplierOther:
	default:
		return dErrors.New(dErrors.CodeValidation, "category must be parts, services or other")
	}
	return s.validate()
}

func (s *Supplier) Matches(search string) bool {
	return search == "" || containsFold(s.Code, search) || s.contains(search)
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery filters and pages a registry listing.
type ListQuery struct {
	Search string
	Limit  int
	Offset int
}

// Normalize clamps paging and trims the search term.
func (q ListQuery) Normalize() ListQuery {
	q.Search = strings.TrimSpace(q.Search)
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

// ListPage is one page of a listing plus the total number of matches.
type ListPage[T any] struct {
	Items []T
	Total int
}
