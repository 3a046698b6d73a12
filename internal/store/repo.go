package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/MikeYan01/List-memories/internal/models"
)

// Restaurants returns all restaurant records in stable order.
func (db *DB) Restaurants(ctx context.Context) ([]models.RestaurantRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, cuisine, location, price_per_person, rating, occurred_at, notes, photos
		FROM restaurants ORDER BY occurred_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list restaurants: %w", err)
	}
	defer rows.Close()

	var out []models.RestaurantRecord
	for rows.Next() {
		var r models.RestaurantRecord
		var photos string
		if err := rows.Scan(&r.ID, &r.Title, &r.Cuisine, &r.Location, &r.PricePerPerson,
			&r.Rating, &r.OccurredAt, &r.Notes, &photos); err != nil {
			return nil, fmt.Errorf("store: scan restaurant: %w", err)
		}
		if err := json.Unmarshal([]byte(photos), &r.Photos); err != nil {
			return nil, fmt.Errorf("store: restaurant photos: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Beverages returns all beverage records in stable order.
func (db *DB) Beverages(ctx context.Context) ([]models.BeverageRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, shop, flavor, sugar_level, ice_level, rating, occurred_at, notes, photos
		FROM beverages ORDER BY occurred_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list beverages: %w", err)
	}
	defer rows.Close()

	var out []models.BeverageRecord
	for rows.Next() {
		var b models.BeverageRecord
		var photos string
		if err := rows.Scan(&b.ID, &b.Title, &b.Shop, &b.Flavor, &b.SugarLevel,
			&b.IceLevel, &b.Rating, &b.OccurredAt, &b.Notes, &photos); err != nil {
			return nil, fmt.Errorf("store: scan beverage: %w", err)
		}
		if err := json.Unmarshal([]byte(photos), &b.Photos); err != nil {
			return nil, fmt.Errorf("store: beverage photos: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Travels returns all travel records in stable order.
func (db *DB) Travels(ctx context.Context) ([]models.TravelRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, destination, companions, start_date, end_date, rating, occurred_at, notes, photos
		FROM travels ORDER BY occurred_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list travels: %w", err)
	}
	defer rows.Close()

	var out []models.TravelRecord
	for rows.Next() {
		var t models.TravelRecord
		var photos string
		if err := rows.Scan(&t.ID, &t.Title, &t.Destination, &t.Companions, &t.StartDate,
			&t.EndDate, &t.Rating, &t.OccurredAt, &t.Notes, &photos); err != nil {
			return nil, fmt.Errorf("store: scan travel: %w", err)
		}
		if err := json.Unmarshal([]byte(photos), &t.Photos); err != nil {
			return nil, fmt.Errorf("store: travel photos: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Recreations returns all recreation records in stable order. Kind values in
// the database may predate the current encodings, so they pass through the
// same normalization as wire decode.
func (db *DB) Recreations(ctx context.Context) ([]models.RecreationRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, kind, venue, duration_minutes, rating, occurred_at, notes, photos
		FROM recreations ORDER BY occurred_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list recreations: %w", err)
	}
	defer rows.Close()

	var out []models.RecreationRecord
	for rows.Next() {
		var r models.RecreationRecord
		var kind, photos string
		if err := rows.Scan(&r.ID, &r.Title, &kind, &r.Venue, &r.DurationMinutes,
			&r.Rating, &r.OccurredAt, &r.Notes, &photos); err != nil {
			return nil, fmt.Errorf("store: scan recreation: %w", err)
		}
		k, err := models.ParseRecreationKind(kind)
		if err != nil {
			return nil, fmt.Errorf("store: recreation kind: %w", err)
		}
		r.Kind = k
		if err := json.Unmarshal([]byte(photos), &r.Photos); err != nil {
			return nil, fmt.Errorf("store: recreation photos: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns per-type record totals.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"restaurants", &c.Restaurants},
		{"beverages", &c.Beverages},
		{"travels", &c.Travels},
		{"recreations", &c.Recreations},
	} {
		if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM `+q.table).Scan(q.dst); err != nil {
			return Counts{}, fmt.Errorf("store: count %s: %w", q.table, err)
		}
	}
	return c, nil
}

// Begin opens one all-or-nothing write batch.
func (db *DB) Begin(ctx context.Context) (Batch, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin batch: %w", err)
	}
	return &batch{tx: tx}, nil
}

type batch struct {
	tx *sql.Tx
}

func (b *batch) InsertRestaurant(r models.RestaurantRecord) error {
	photos, _ := json.Marshal(r.Photos)
	_, err := b.tx.Exec(`
		INSERT INTO restaurants (id, title, cuisine, location, price_per_person, rating, occurred_at, notes, photos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, r.Cuisine, r.Location, r.PricePerPerson, r.Rating, r.OccurredAt, r.Notes, string(photos))
	if err != nil {
		return fmt.Errorf("store: insert restaurant: %w", err)
	}
	return nil
}

func (b *batch) InsertBeverage(v models.BeverageRecord) error {
	photos, _ := json.Marshal(v.Photos)
	_, err := b.tx.Exec(`
		INSERT INTO beverages (id, title, shop, flavor, sugar_level, ice_level, rating, occurred_at, notes, photos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Title, v.Shop, v.Flavor, v.SugarLevel, v.IceLevel, v.Rating, v.OccurredAt, v.Notes, string(photos))
	if err != nil {
		return fmt.Errorf("store: insert beverage: %w", err)
	}
	return nil
}

func (b *batch) InsertTravel(t models.TravelRecord) error {
	photos, _ := json.Marshal(t.Photos)
	_, err := b.tx.Exec(`
		INSERT INTO travels (id, title, destination, companions, start_date, end_date, rating, occurred_at, notes, photos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Destination, t.Companions, t.StartDate, t.EndDate, t.Rating, t.OccurredAt, t.Notes, string(photos))
	if err != nil {
		return fmt.Errorf("store: insert travel: %w", err)
	}
	return nil
}

func (b *batch) InsertRecreation(r models.RecreationRecord) error {
	photos, _ := json.Marshal(r.Photos)
	_, err := b.tx.Exec(`
		INSERT INTO recreations (id, title, kind, venue, duration_minutes, rating, occurred_at, notes, photos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Title, string(r.Kind), r.Venue, r.DurationMinutes, r.Rating, r.OccurredAt, r.Notes, string(photos))
	if err != nil {
		return fmt.Errorf("store: insert recreation: %w", err)
	}
	return nil
}

func (b *batch) DeleteAllRestaurants() error { return b.deleteAll("restaurants") }
func (b *batch) DeleteAllBeverages() error   { return b.deleteAll("beverages") }
func (b *batch) DeleteAllTravels() error     { return b.deleteAll("travels") }
func (b *batch) DeleteAllRecreations() error { return b.deleteAll("recreations") }

func (b *batch) deleteAll(table string) error {
	if _, err := b.tx.Exec(`DELETE FROM ` + table); err != nil {
		return fmt.Errorf("store: delete all %s: %w", table, err)
	}
	return nil
}

func (b *batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

func (b *batch) Rollback() error {
	return b.tx.Rollback()
}
