// Package cart holds the single source of truth for what will be submitted.
package cart

import (
	"sync"

	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/Keller65/iSync-sub000/internal/pricing"
)

// Store is a mutable collection of unique cart lines. All mutating operations
// share one coarse mutex; operations are cheap so finer locking buys nothing.
//
// Store does not re-validate pricing. Callers run the unit price through
// pricing.ValidateOverride before UpsertLine; the store only enforces
// identity and quantity invariants.
type Store struct {
	mu    sync.Mutex
	lines []domain.CartLine
	index map[string]int // itemCode -> position in lines
}

func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// UpsertLine adds or replaces the line for the product. A line represents the
// current desired state for that item: re-adding replaces quantity, price and
// snapshots rather than accumulating. Quantity <= 0 is defined as a remove,
// never an error, mirroring decrement-to-zero in the quantity stepper.
func (s *Store) UpsertLine(p domain.Product, quantity int, unitPrice float64, tiers []domain.Tier) {
	if quantity <= 0 {
		s.RemoveLine(p.ItemCode)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := domain.CartLine{
		ItemCode:  p.ItemCode,
		ItemName:  p.ItemName,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		BasePrice: p.BasePrice,
		Tiers:     cloneTiers(tiers),
		TaxType:   p.TaxType,
		Total:     pricing.LineTotal(unitPrice, quantity),
	}

	if i, ok := s.index[p.ItemCode]; ok {
		s.lines[i] = line // last write wins, position preserved
		return
	}
	s.index[p.ItemCode] = len(s.lines)
	s.lines = append(s.lines, line)
}

// RemoveLine deletes the line if present. Removing an absent line is a no-op.
func (s *Store) RemoveLine(itemCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(itemCode)
}

// SetQuantity updates the quantity of an existing line, and the unit price
// when newUnitPrice is non-nil. Quantity <= 0 removes the line. Absent lines
// are left untouched.
func (s *Store) SetQuantity(itemCode string, quantity int, newUnitPrice *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(itemCode)
		return
	}

	i, ok := s.index[itemCode]
	if !ok {
		return
	}
	line := &s.lines[i]
	line.Quantity = quantity
	if newUnitPrice != nil {
		line.UnitPrice = *newUnitPrice
	}
	line.Total = pricing.LineTotal(line.UnitPrice, line.Quantity)
}

// Clear empties the cart. Called after a successful submission only; failed
// submissions keep the cart so the user can retry without re-entering data.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.index = make(map[string]int)
}

// Lines returns a snapshot copy in insertion order.
func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	for i := range out {
		out[i].Tiers = cloneTiers(out[i].Tiers)
	}
	return out
}

// Line returns the line for an item code, if present.
func (s *Store) Line(itemCode string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[itemCode]
	if !ok {
		return domain.CartLine{}, false
	}
	line := s.lines[i]
	line.Tiers = cloneTiers(line.Tiers)
	return line, true
}

// Total is the sum of all line totals, recomputed from the lines on every
// call so it cannot drift from what UpsertLine stored.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum float64
	for _, l := range s.lines {
		sum += l.Total
	}
	return sum
}

// Len reports the number of lines in the cart.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func (s *Store) removeLocked(itemCode string) {
	i, ok := s.index[itemCode]
	if !ok {
		return
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	delete(s.index, itemCode)
	for code, pos := range s.index {
		if pos > i {
			s.index[code] = pos - 1
		}
	}
}

func cloneTiers(tiers []domain.Tier) []domain.Tier {
	if tiers == nil {
		return nil
	}
	out := make([]domain.Tier, len(tiers))
	copy(out, tiers)
	return out
}
