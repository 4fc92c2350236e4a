package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gestionale/pkg/domain-errors"
)

func validCustomer() *Customer {
	return &Customer{
		Code: "CLI001",
		Party: Party{
			FirstName:  "Mario",
			LastName:   "Rossi",
			City:       "Torino",
			PostalCode: "10121",
			Province:   "to",
			TaxCode:    "rssmra80a01l219x",
		},
	}
}

func TestCustomer_NormalizeAndValidate(t *testing.T) {
	c := validCustomer()
	c.Normalize()
	require.NoError(t, c.Validate())
	assert.Equal(t, CustomerPrivate, c.Kind)
	assert.Equal(t, "TO", c.Province)
	assert.Equal(t, "RSSMRA80A01L219X", c.TaxCode)
	assert.Equal(t, "Mario Rossi", c.DisplayName())
}

func TestCustomer_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Customer)
	}{
		{"missing code", func(c *Customer) { c.Code = "" }},
		{"long code", func(c *Customer) { c.Code = "CLI0000000001" }},
		{"missing first name", func(c *Customer) { c.FirstName = "" }},
		{"short vat number", func(c *Customer) { c.VATNumber = "123" }},
		{"bad tax code", func(c *Customer) { c.TaxCode = "RSSMRA80A01" }},
		{"missing city", func(c *Customer) { c.City = "" }},
		{"bad postal code", func(c *Customer) { c.PostalCode = "1012" }},
		{"bad province", func(c *Customer) { c.Province = "TOR" }},
		{"bad email", func(c *Customer) { c.Email = "not-an-email" }},
		{"unknown kind", func(c *Customer) { c.Kind = "wholesale" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCustomer()
			tt.mutate(c)
			c.Normalize()
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestSupplier_LegacyCategory(t *testing.T) {
	s := &Supplier{Code: "FOR007", Category: "ricambi", Party: Party{FirstName: "Luca", CompanyName: "Ricambi Srl", City: "Asti", PostalCode: "14100", Province: "AT"}}
	s.Normalize()
	require.NoError(t, s.Validate())
	assert.Equal(t, SupplierParts, s.Category)
	assert.Equal(t, "Ricambi Srl", s.DisplayName())
}

func TestStamp_OverridesClientTimestamps(t *testing.T) {
	c := validCustomer()
	c.CreatedAt = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Stamp(t0, t0.Add(time.Hour))
	assert.Equal(t, t0, c.CreatedAt)
	assert.Equal(t, t0.Add(time.Hour), c.UpdatedAt)
}

func TestMatchesAndOrdering(t *testing.T) {
	a := &Customer{Code: "CLI001", Party: Party{FirstName: "Anna", LastName: "Bianchi"}}
	b := &Customer{Code: "CLI002", Party: Party{FirstName: "Bruno", CompanyName: "Acme"}}

	assert.True(t, a.Matches("bian"))
	assert.True(t, b.Matches("acme"))
	assert.True(t, b.Matches("cli002"))
	assert.False(t, a.Matches("acme"))

	// Empty company names sort first, then last name.
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestCustomer_JSONIsFlat(t *testing.T) {
	raw, err := json.Marshal(validCustomer())
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "CLI001", m["code"])
	assert.Equal(t, "Mario", m["first_name"])
}

func TestListQuery_Normalize(t *testing.T) {
	q := ListQuery{Search: "  rossi ", Limit: 1000, Offset: -4}.Normalize()
	assert.Equal(t, "rossi", q.Search)
	assert.Equal(t, MaxPageSize, q.Limit)
	assert.Equal(t, 0, q.Offset)
	assert.Equal(t, DefaultPageSize, ListQuery{}.Normalize().Limit)
}
