package domain

// CartLine is the current desired state for one item in the cart, not a
// running sum. Re-adding the same item replaces quantity and price.
// Base price and tiers are snapshotted at add time so submission does not
// depend on the catalog cache.
type CartLine struct {
	ItemCode  string  `json:"itemCode"`
	ItemName  string  `json:"itemName"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	BasePrice float64 `json:"basePrice"`
	Tiers     []Tier  `json:"tiers"`
	TaxType   string  `json:"taxType"`
	Total     float64 `json:"total"`
}
