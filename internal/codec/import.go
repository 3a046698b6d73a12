package codec

import (
	"context"
	"fmt"

	"github.com/MikeYan01/List-memories/internal/apperr"
	"github.com/MikeYan01/List-memories/internal/models"
	"github.com/MikeYan01/List-memories/internal/store"
)

// ImportResult reports how many records one import wrote, per type and in
// total.
type ImportResult struct {
	Beverages     int `json:"beverages"`
	Recreations   int `json:"recreations"`
	Restaurants   int `json:"restaurants"`
	TotalImported int `json:"totalImported"`
	Travels       int `json:"travels"`
}

// Import writes a decoded bundle into the store as one all-or-nothing
// batch. With replaceExisting set, every stored record of all four types is
// deleted first; otherwise the bundle is appended as-is, so records already
// present come out duplicated. Nothing is committed until every insert has
// succeeded.
func Import(ctx context.Context, st store.Store, b *ExportBundle, replaceExisting bool) (ImportResult, error) {
	batch, err := st.Begin(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("codec: import: %w: %w", apperr.ErrStore, err)
	}
	defer batch.Rollback()

	if replaceExisting {
		for _, del := range []func() error{
			batch.DeleteAllRestaurants,
			batch.DeleteAllBeverages,
			batch.DeleteAllTravels,
			batch.DeleteAllRecreations,
		} {
			if err := del(); err != nil {
				return ImportResult{}, fmt.Errorf("codec: import: %w: %w", apperr.ErrStore, err)
			}
		}
	}

	// Records normally arrive with their creating device's IDs; a blank ID
	// gets a fresh one so the store never holds empty identities.
	var res ImportResult
	for _, r := range b.Restaurants {
		if r.ID == "" {
			r.ID = models.NewRecordID()
		}
		if err := batch.InsertRestaurant(r); err != nil {
			return ImportResult{}, fmt.Errorf("codec: import restaurants: %w: %w", apperr.ErrStore, err)
		}
		res.Restaurants++
	}
	for _, v := range b.Beverages {
		if v.ID == "" {
			v.ID = models.NewRecordID()
		}
		if err := batch.InsertBeverage(v); err != nil {
			return ImportResult{}, fmt.Errorf("codec: import beverages: %w: %w", apperr.ErrStore, err)
		}
		res.Beverages++
	}
	for _, t := range b.Travels {
		if t.ID == "" {
			t.ID = models.NewRecordID()
		}
		if err := batch.InsertTravel(t); err != nil {
			return ImportResult{}, fmt.Errorf("codec: import travels: %w: %w", apperr.ErrStore, err)
		}
		res.Travels++
	}
	for _, r := range b.Recreations {
		if r.ID == "" {
			r.ID = models.NewRecordID()
		}
		if err := batch.InsertRecreation(r); err != nil {
			return ImportResult{}, fmt.Errorf("codec: import recreations: %w: %w", apperr.ErrStore, err)
		}
		res.Recreations++
	}
	res.TotalImported = res.Restaurants + res.Beverages + res.Travels + res.Recreations

	if err := batch.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("codec: import: %w: %w", apperr.ErrStore, err)
	}
	return res, nil
}
