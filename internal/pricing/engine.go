// Package pricing resolves the effective unit price of a line item from the
// base price, the product's volume-discount tiers and the requested quantity.
// All functions are pure; the *At variants take the evaluation instant so tier
// expiry stays deterministic under test.
package pricing

import (
	"strconv"
	"strings"
	"time"

	"github.com/Keller65/iSync-sub000/internal/domain"
)

// OverrideResult is the outcome of validating a manually entered unit price.
// MinimumAllowed is always populated so the UI can render the floor inline.
type OverrideResult struct {
	Valid          bool    `json:"valid"`
	MinimumAllowed float64 `json:"minimumAllowed"`
}

// ResolveDefaultUnitPrice returns the unit price the engine would charge
// before any manual override.
func ResolveDefaultUnitPrice(basePrice float64, tiers []domain.Tier, quantity int, applyTierDiscounts bool) float64 {
	return ResolveDefaultUnitPriceAt(time.Now(), basePrice, tiers, quantity, applyTierDiscounts)
}

// ResolveDefaultUnitPriceAt resolves the default unit price at a given
// instant. With discounts enabled, the eligible tier with the largest
// MinQuantity wins; the tier price applies even when it is not the lowest,
// mirroring supplier tier semantics. No eligible tier means base price.
func ResolveDefaultUnitPriceAt(at time.Time, basePrice float64, tiers []domain.Tier, quantity int, applyTierDiscounts bool) float64 {
	if !applyTierDiscounts {
		return basePrice
	}
	best, ok := bestEligibleTier(at, tiers, quantity)
	if !ok {
		return basePrice
	}
	return best.Price
}

// ValidateOverride checks a manually entered price against the computed
// floor. A candidate below the floor is rejected, never silently clamped.
func ValidateOverride(basePrice float64, tiers []domain.Tier, quantity int, applyTierDiscounts bool, candidatePrice float64) OverrideResult {
	return ValidateOverrideAt(time.Now(), basePrice, tiers, quantity, applyTierDiscounts, candidatePrice)
}

func ValidateOverrideAt(at time.Time, basePrice float64, tiers []domain.Tier, quantity int, applyTierDiscounts bool, candidatePrice float64) OverrideResult {
	min := ResolveDefaultUnitPriceAt(at, basePrice, tiers, quantity, applyTierDiscounts)
	return OverrideResult{
		Valid:          candidatePrice >= min,
		MinimumAllowed: min,
	}
}

// LineTotal recomputes a line total from its inputs. Totals are never cached
// independently of unit price and quantity, so the displayed subtotal cannot
// drift from the cart total.
func LineTotal(unitPrice float64, quantity int) float64 {
	return unitPrice * float64(quantity)
}

// ParsePrice sanitizes textual price input: digits and at most one decimal
// point survive, everything else is dropped. Malformed input resolves to 0,
// which fails override validation downstream instead of panicking mid-edit.
func ParsePrice(input string) float64 {
	var b strings.Builder
	seenDot := false
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case (r == '.' || r == ',') && !seenDot:
			b.WriteByte('.')
			seenDot = true
		}
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

// bestEligibleTier picks the unexpired tier with the largest MinQuantity not
// exceeding the requested quantity. The source guarantees distinct thresholds
// but no ordering, so selection scans rather than assuming sorted input.
func bestEligibleTier(at time.Time, tiers []domain.Tier, quantity int) (domain.Tier, bool) {
	var best domain.Tier
	found := false
	for _, t := range tiers {
		if t.MinQuantity <= 0 || quantity < t.MinQuantity || t.Expired(at) {
			continue
		}
		if !found || t.MinQuantity > best.MinQuantity {
			best = t
			found = true
		}
	}
	return best, found
}
