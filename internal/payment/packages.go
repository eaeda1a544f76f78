package payment

import "github.com/shopspring/decimal"

// Package is a purchasable bundle of credits.
type Package struct {
	ID      string          `json:"id"`
	Price   decimal.Decimal `json:"price"`
	Credits int64           `json:"credits"`
	Label   string          `json:"label"`
}

var catalog = []Package{
	{ID: "pkg_12", Price: decimal.RequireFromString("9.90"), Credits: 12, Label: "12 credits"},
	{ID: "pkg_30", Price: decimal.RequireFromString("19.90"), Credits: 30, Label: "30 credits"},
}

// Packages returns the catalog in display order.
func Packages() []Package {
	out := make([]Package, len(catalog))
	copy(out, catalog)
	return out
}

// LookupPackage finds a package by id.
func LookupPackage(id string) (Package, bool) {
	for _, pkg := range catalog {
		if pkg.ID == id {
			return pkg, true
		}
	}
	return Package{}, false
}
