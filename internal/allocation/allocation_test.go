package allocation_test

import (
	"fmt"
	"testing"

	"pasar/internal/allocation"
	"pasar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshots(stock map[string]int) []allocation.ProductSnapshot {
	snaps := make([]allocation.ProductSnapshot, 0, len(stock))
	for id, qty := range stock {
		snaps = append(snaps, allocation.ProductSnapshot{ProductID: id, Available: qty})
	}
	return snaps
}

func item(productID string, qty int, price float64) models.OrderItem {
	return models.OrderItem{ProductID: productID, Quantity: qty, Price: price, Name: "Item " + productID}
}

func TestAllocate_FullAvailability(t *testing.T) {
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 10}))

	result, err := allocation.Allocate([]models.OrderItem{item("p1", 4, 25.0)}, reserver)

	require.NoError(t, err)
	require.Len(t, result.Allocated, 1)
	assert.Empty(t, result.Deferred)
	assert.Equal(t, 4, result.Allocated[0].Quantity)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "p1", result.Changes[0].ProductID)
	assert.Equal(t, 6, result.Changes[0].NewQuantity)
}

func TestAllocate_PartialSplit(t *testing.T) {
	// Available 3, requested 5: fulfilled 3, deferred 2, stock drained to 0.
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 3}))

	result, err := allocation.Allocate([]models.OrderItem{item("p1", 5, 12.5)}, reserver)

	require.NoError(t, err)
	require.Len(t, result.Allocated, 1)
	require.Len(t, result.Deferred, 1)
	assert.Equal(t, 3, result.Allocated[0].Quantity)
	assert.Equal(t, 2, result.Deferred[0].Quantity)
	assert.Equal(t, 12.5, result.Allocated[0].Price, "unit price must carry over to the split item")
	require.Len(t, result.Changes, 1)
	assert.Equal(t, 0, result.Changes[0].NewQuantity)
}

func TestAllocate_ZeroAvailability(t *testing.T) {
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 0}))

	result, err := allocation.Allocate([]models.OrderItem{item("p1", 2, 9.99)}, reserver)

	require.NoError(t, err)
	assert.Empty(t, result.Allocated)
	require.Len(t, result.Deferred, 1)
	assert.Equal(t, 2, result.Deferred[0].Quantity)
	assert.Empty(t, result.Changes, "an already-empty product must emit no stock change")
	assert.True(t, result.Empty())
}

func TestAllocate_UnknownProductTreatedAsOutOfStock(t *testing.T) {
	reserver := allocation.NewSnapshotReserver(nil)

	result, err := allocation.Allocate([]models.OrderItem{item("ghost", 1, 5.0)}, reserver)

	require.NoError(t, err)
	assert.Empty(t, result.Allocated)
	require.Len(t, result.Deferred, 1)
	assert.Empty(t, result.Changes)
}

func TestAllocate_NonPositiveQuantityPassesThrough(t *testing.T) {
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 10}))

	result, err := allocation.Allocate([]models.OrderItem{
		item("p1", 0, 5.0),
		item("p1", -3, 5.0),
	}, reserver)

	require.NoError(t, err)
	assert.Empty(t, result.Allocated)
	require.Len(t, result.Deferred, 2)
	assert.Equal(t, 0, result.Deferred[0].Quantity)
	assert.Equal(t, -3, result.Deferred[1].Quantity)
	assert.Empty(t, result.Changes, "non-positive quantities must not touch stock")
}

func TestAllocate_EarlierItemsGetFirstClaim(t *testing.T) {
	// Two line items share one product with 5 in stock; the first takes all
	// of its 4, the second gets the single remaining unit.
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 5}))

	result, err := allocation.Allocate([]models.OrderItem{
		item("p1", 4, 10.0),
		item("p1", 3, 10.0),
	}, reserver)

	require.NoError(t, err)
	require.Len(t, result.Allocated, 2)
	assert.Equal(t, 4, result.Allocated[0].Quantity)
	assert.Equal(t, 1, result.Allocated[1].Quantity)
	require.Len(t, result.Deferred, 1)
	assert.Equal(t, 2, result.Deferred[0].Quantity)

	// Repeated references coalesce into one change with the final quantity.
	require.Len(t, result.Changes, 1)
	assert.Equal(t, 0, result.Changes[0].NewQuantity)
}

func TestAllocate_Conservation(t *testing.T) {
	reserver := allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 7, "p2": 0, "p3": 100}))
	items := []models.OrderItem{
		item("p1", 5, 1.0),
		item("p2", 4, 2.0),
		item("p1", 6, 1.0),
		item("p3", 9, 3.0),
	}

	result, err := allocation.Allocate(items, reserver)
	require.NoError(t, err)

	requested := make(map[string]int)
	for _, it := range items {
		requested[it.ProductID] += it.Quantity
	}
	got := make(map[string]int)
	for _, it := range result.Allocated {
		got[it.ProductID] += it.Quantity
	}
	for _, it := range result.Deferred {
		got[it.ProductID] += it.Quantity
	}
	assert.Equal(t, requested, got, "allocated + deferred must equal requested per product")

	// No over-allocation beyond snapshot availability.
	allocated := make(map[string]int)
	for _, it := range result.Allocated {
		allocated[it.ProductID] += it.Quantity
	}
	assert.LessOrEqual(t, allocated["p1"], 7)
	assert.Equal(t, 0, allocated["p2"])
	assert.LessOrEqual(t, allocated["p3"], 100)
}

func TestAllocate_Deterministic(t *testing.T) {
	items := []models.OrderItem{
		item("p1", 5, 1.0),
		item("p2", 2, 2.0),
	}
	stock := map[string]int{"p1": 3, "p2": 2}

	first, err := allocation.Allocate(items, allocation.NewSnapshotReserver(snapshots(stock)))
	require.NoError(t, err)
	second, err := allocation.Allocate(items, allocation.NewSnapshotReserver(snapshots(stock)))
	require.NoError(t, err)

	assert.Equal(t, first.Allocated, second.Allocated)
	assert.Equal(t, first.Deferred, second.Deferred)
}

// failingReserver fails after a configurable number of successful calls.
type failingReserver struct {
	inner     allocation.Reserver
	callsLeft int
}

func (f *failingReserver) TryReserve(productID string, quantity int) (allocation.Outcome, error) {
	if f.callsLeft <= 0 {
		return allocation.Outcome{}, fmt.Errorf("connection reset")
	}
	f.callsLeft--
	return f.inner.TryReserve(productID, quantity)
}

func TestAllocate_ReserverErrorAbortsPassAndReportsChanges(t *testing.T) {
	reserver := &failingReserver{
		inner:     allocation.NewSnapshotReserver(snapshots(map[string]int{"p1": 10, "p2": 10})),
		callsLeft: 1,
	}

	result, err := allocation.Allocate([]models.OrderItem{
		item("p1", 2, 1.0),
		item("p2", 2, 1.0),
	}, reserver)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "p2")
	// The successful reservation is still reported so the caller can release it.
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "p1", result.Changes[0].ProductID)
	assert.Equal(t, 8, result.Changes[0].NewQuantity)
}
