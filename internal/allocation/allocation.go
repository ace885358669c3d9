package allocation

import (
	"errors"
	"fmt"

	"pasar/internal/models"
)

// ErrNoStockAvailable is returned by callers when an allocation pass could
// not fulfill a single requested item.
var ErrNoStockAvailable = errors.New("no stock available for any requested item")

// Outcome reports how much of a requested quantity a Reserver actually
// secured, and the product's stock level after the reservation.
type Outcome struct {
	Reserved  int
	Remaining int
}

// Reserver atomically decrements product stock. Implementations reserve
// min(quantity, available) and never drive stock negative. The GORM product
// repository is the production implementation; SnapshotReserver is the pure
// in-memory one.
type Reserver interface {
	TryReserve(productID string, quantity int) (Outcome, error)
}

// StockChange records the post-pass quantity of a product whose stock was
// mutated during allocation. One entry per mutated product.
type StockChange struct {
	ProductID   string
	NewQuantity int
}

// Result partitions an order request into the items stock could support and
// the items it could not, both in original request order.
type Result struct {
	Allocated []models.OrderItem
	Deferred  []models.OrderItem
	Changes   []StockChange
}

// Empty reports whether nothing could be fulfilled.
func (r *Result) Empty() bool {
	return len(r.Allocated) == 0
}

// Allocate runs a single pass over the requested items, reserving stock
// through r. Items are processed in input order, so earlier items get first
// claim on shared stock. Non-positive quantities pass through to Deferred
// untouched. A Reserver error aborts the pass; reservations made before the
// failure are reported in Changes so the caller can release them.
func Allocate(items []models.OrderItem, r Reserver) (*Result, error) {
	result := &Result{}

	// Final remaining quantity per mutated product, coalesced so a product
	// referenced by several line items yields a single stock change.
	remaining := make(map[string]int)
	var mutated []string

	for _, item := range items {
		if item.Quantity <= 0 {
			result.Deferred = append(result.Deferred, item)
			continue
		}

		outcome, err := r.TryReserve(item.ProductID, item.Quantity)
		if err != nil {
			result.Changes = coalesce(mutated, remaining)
			return result, fmt.Errorf("failed to reserve %d of product %s: %w", item.Quantity, item.ProductID, err)
		}

		if outcome.Reserved > 0 {
			if _, seen := remaining[item.ProductID]; !seen {
				mutated = append(mutated, item.ProductID)
			}
			remaining[item.ProductID] = outcome.Remaining
		}

		switch {
		case outcome.Reserved == 0:
			result.Deferred = append(result.Deferred, item)
		case outcome.Reserved < item.Quantity:
			fulfilled := item
			fulfilled.Quantity = outcome.Reserved
			rest := item
			rest.Quantity = item.Quantity - outcome.Reserved
			result.Allocated = append(result.Allocated, fulfilled)
			result.Deferred = append(result.Deferred, rest)
		default:
			result.Allocated = append(result.Allocated, item)
		}
	}

	result.Changes = coalesce(mutated, remaining)
	return result, nil
}

func coalesce(mutated []string, remaining map[string]int) []StockChange {
	if len(mutated) == 0 {
		return nil
	}
	changes := make([]StockChange, 0, len(mutated))
	for _, id := range mutated {
		changes = append(changes, StockChange{ProductID: id, NewQuantity: remaining[id]})
	}
	return changes
}

// ProductSnapshot is a point-in-time read of a product's stock, plus the
// catalog price and name used to re-derive line-item pricing.
type ProductSnapshot struct {
	ProductID string
	Available int
	Price     float64
	Name      string
}

// SnapshotReserver is a Reserver over an in-memory copy of stock levels
// seeded from snapshots. Products absent from the snapshot set are treated
// as out of stock. It performs no I/O and is safe for a single allocation
// pass; it is not safe for concurrent use.
type SnapshotReserver struct {
	available map[string]int
}

// NewSnapshotReserver builds a SnapshotReserver from stock snapshots.
func NewSnapshotReserver(snapshots []ProductSnapshot) *SnapshotReserver {
	available := make(map[string]int, len(snapshots))
	for _, s := range snapshots {
		available[s.ProductID] = s.Available
	}
	return &SnapshotReserver{available: available}
}

// TryReserve reserves up to quantity units, decrementing the in-memory copy.
func (s *SnapshotReserver) TryReserve(productID string, quantity int) (Outcome, error) {
	available := s.available[productID]
	if available <= 0 {
		return Outcome{Reserved: 0, Remaining: 0}, nil
	}
	reserved := quantity
	if available < quantity {
		reserved = available
	}
	s.available[productID] = available - reserved
	return Outcome{Reserved: reserved, Remaining: available - reserved}, nil
}
