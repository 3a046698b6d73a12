package store

import (
	"context"

	"github.com/MikeYan01/List-memories/internal/models"
)

// Store is the data-access contract the sync core consumes. Reads return
// records ordered by the stable sort key (occurred_at, then id); writes go
// through a Batch so an import commits exactly once.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Store interface {
	Restaurants(ctx context.Context) ([]models.RestaurantRecord, error)
	Beverages(ctx context.Context) ([]models.BeverageRecord, error)
	Travels(ctx context.Context) ([]models.TravelRecord, error)
	Recreations(ctx context.Context) ([]models.RecreationRecord, error)
	Counts(ctx context.Context) (Counts, error)
	Begin(ctx context.Context) (Batch, error)
}

// Batch is one all-or-nothing write batch. Nothing is visible to readers
// until Commit; Rollback discards everything. Callers must finish a batch
// with exactly one of the two.
type Batch interface {
	InsertRestaurant(r models.RestaurantRecord) error
	InsertBeverage(b models.BeverageRecord) error
	InsertTravel(t models.TravelRecord) error
	InsertRecreation(r models.RecreationRecord) error
	DeleteAllRestaurants() error
	DeleteAllBeverages() error
	DeleteAllTravels() error
	DeleteAllRecreations() error
	Commit() error
	Rollback() error
}

// Counts holds per-type record totals.
type Counts struct {
	Restaurants int
	Beverages   int
	Travels     int
	Recreations int
}

// Total sums all four types.
func (c Counts) Total() int {
	return c.Restaurants + c.Beverages + c.Travels + c.Recreations
}

// Verify the concrete types satisfy the contracts at compile time.
var (
	_ Store = (*DB)(nil)
	_ Batch = (*batch)(nil)
)
