// Package codec implements the export bundle format: the JSON document
// exchanged between devices during sync and written by file export.
package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MikeYan01/List-memories/internal/apperr"
	"github.com/MikeYan01/List-memories/internal/models"
	"github.com/MikeYan01/List-memories/internal/store"
)

// SchemaVersion identifies the current bundle layout. Decode accepts any
// non-empty version so newer producers stay readable.
const SchemaVersion = "2"

// ExportBundle is the complete record snapshot of one device.
//
// Fields are declared in alphabetical JSON-key order so encoded documents
// always carry sorted keys.
type ExportBundle struct {
	Beverages     []models.BeverageRecord   `json:"beverages"`
	ExportedAt    time.Time                 `json:"exportedAt"`
	Recreations   []models.RecreationRecord `json:"recreations"`
	Restaurants   []models.RestaurantRecord `json:"restaurants"`
	SchemaVersion string                    `json:"schemaVersion"`
	Travels       []models.TravelRecord     `json:"travels"`
}

// Build reads every record type from the store and assembles a bundle
// stamped with now. Absent types become empty arrays, never null.
func Build(ctx context.Context, st store.Store, now time.Time) (*ExportBundle, error) {
	restaurants, err := st.Restaurants(ctx)
	if err != nil {
		return nil, fmt.Errorf("codec: build bundle: %w", err)
	}
	beverages, err := st.Beverages(ctx)
	if err != nil {
		return nil, fmt.Errorf("codec: build bundle: %w", err)
	}
	travels, err := st.Travels(ctx)
	if err != nil {
		return nil, fmt.Errorf("codec: build bundle: %w", err)
	}
	recreations, err := st.Recreations(ctx)
	if err != nil {
		return nil, fmt.Errorf("codec: build bundle: %w", err)
	}

	return &ExportBundle{
		Beverages:     orEmpty(beverages),
		ExportedAt:    now.UTC().Truncate(time.Second),
		Recreations:   orEmpty(recreations),
		Restaurants:   orEmpty(restaurants),
		SchemaVersion: SchemaVersion,
		Travels:       orEmpty(travels),
	}, nil
}

// Encode renders the bundle as pretty-printed JSON with two-space indent.
func Encode(b *ExportBundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: encode bundle: %w", err)
	}
	return data, nil
}

// Decode parses a bundle document. Any malformed field, unknown recreation
// kind, or missing schemaVersion fails the whole decode; no partial bundle
// is ever returned.
func Decode(data []byte) (*ExportBundle, error) {
	var b ExportBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("codec: decode bundle: %w: %w", apperr.ErrDecode, err)
	}
	if b.SchemaVersion == "" {
		return nil, fmt.Errorf("codec: decode bundle: %w: missing schemaVersion", apperr.ErrDecode)
	}
	return &b, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
