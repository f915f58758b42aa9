package domain

import "time"

// Product is an immutable catalog record as served by the ERP. The client
// never mutates products; pricing works from copies of the tier list.
type Product struct {
	ItemCode  string  `json:"itemCode"`
	ItemName  string  `json:"itemName"`
	BasePrice float64 `json:"basePrice"`
	Tiers     []Tier  `json:"tiers"`
	InStock   float64 `json:"inStock"`
	TaxType   string  `json:"taxType"`
	BarCode   string  `json:"barCode,omitempty"`
	GroupCode string  `json:"groupCode"`
}

// Tier is a volume-discount rule. MinQuantity values are distinct within one
// product but arrive in no particular order.
type Tier struct {
	MinQuantity int       `json:"minQuantity"`
	Price       float64   `json:"price"`
	Percent     float64   `json:"percent"`
	Expiry      time.Time `json:"expiry,omitempty"` // zero value = no expiry
}

// Expired reports whether the tier is past its expiry date at the given instant.
func (t Tier) Expired(at time.Time) bool {
	return !t.Expiry.IsZero() && t.Expiry.Before(at)
}

type Category struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
