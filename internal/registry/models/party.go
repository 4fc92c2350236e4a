// Package models holds the customer and supplier registries' records.
package models

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	dErrors "gestionale/pkg/domain-errors"
)

const (
	EntityTypeCustomer = "Customer"
	EntityTypeSupplier = "Supplier"

	MaxCodeLength = 10
)

var (
	vatNumberPattern  = regexp.MustCompile(`^\d{11}$`)
	taxCodePattern    = regexp.MustCompile(`^[A-Z0-9]{16}$`)
	postalCodePattern = regexp.MustCompile(`^\d{5}$`)
	provincePattern   = regexp.MustCompile(`^[A-Z]{2}$`)
)

// Party holds the fields customers and suppliers share.
type Party struct {
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name"`
	VATNumber   string    `json:"vat_number"`
	TaxCode     string    `json:"tax_code"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	PostalCode  string    `json:"postal_code"`
	Province    string    `json:"province"`
	Phone       string    `json:"phone"`
	Email       string    `json:"email"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DisplayName is the company name, else "first last".
func (p Party) DisplayName() string {
	if p.CompanyName != "" {
		return p.CompanyName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Party) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.CompanyName = strings.TrimSpace(p.CompanyName)
	p.VATNumber = strings.TrimSpace(p.VATNumber)
	p.TaxCode = strings.ToUpper(strings.TrimSpace(p.TaxCode))
	p.Address = strings.TrimSpace(p.Address)
	p.City = strings.TrimSpace(p.City)
	p.PostalCode = strings.TrimSpace(p.PostalCode)
	p.Province = strings.ToUpper(strings.TrimSpace(p.Province))
	p.Phone = strings.TrimSpace(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
}

func (p Party) validate() error {
	switch {
	case p.FirstName == "":
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	case len(p.FirstName) > 100 || len(p.LastName) > 100:
		return dErrors.New(dErrors.CodeValidation, "names are limited to 100 characters")
	case len(p.CompanyName) > 200 || len(p.Address) > 200:
		return dErrors.New(dErrors.CodeValidation, "company_name and address are limited to 200 characters")
	case p.VATNumber != "" && !vatNumberPattern.MatchString(p.VATNumber):
		return dErrors.New(dErrors.CodeValidation, "vat_number must be 11 digits")
	case p.TaxCode != "" && !taxCodePattern.MatchString(p.TaxCode):
		return dErrors.New(dErrors.CodeValidation, "tax_code must be 16 letters or digits")
	case p.City == "":
		return dErrors.New(dErrors.CodeValidation, "city is required")
	case !postalCodePattern.MatchString(p.PostalCode):
		return dErrors.New(dErrors.CodeValidation, "postal_code must be 5 digits")
	case !provincePattern.MatchString(p.Province):
		return dErrors.New(dErrors.CodeValidation, "province must be 2 letters")
	case len(p.Phone) > 15:
		return dErrors.New(dErrors.CodeValidation, "phone is limited to 15 characters")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return dErrors.New(dErrors.CodeValidation, "email is not a valid address")
		}
	}
	return nil
}

func (p *Party) stamp(created, updated time.Time) {
	p.CreatedAt = created
	p.UpdatedAt = updated
}

func (p Party) contains(term string) bool {
	return containsFold(p.FirstName, term) ||
		containsFold(p.LastName, term) ||
		containsFold(p.CompanyName, term)
}

func (p Party) less(o Party) bool {
	if p.CompanyName != o.CompanyName {
		return p.CompanyName < o.CompanyName
	}
	if p.LastName != o.LastName {
		return p.LastName < o.LastName
	}
	return p.FirstName < o.FirstName
}

func containsFold(s, term string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(term))
}

func validateCode(code string) error {
	switch {
	case code == "":
		return dErrors.New(dErrors.CodeValidation, "code is required")
	case len(code) > MaxCodeLength:
		return dErrors.New(dErrors.CodeValidation, "code is limited to 10 characters")
	case strings.ContainsAny(code, " /\t\n"):
		return dErrors.New(dErrors.CodeValidation, "code must not contain spaces or slashes")
	}
	return nil
}
