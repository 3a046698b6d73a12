// Package models defines the diary record types carried by the sync core.
//
// Struct fields are declared in alphabetical JSON-key order; the codec relies
// on declaration order to emit sorted keys in export files.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Photo is an attachment blob. Data is base64 on the wire.
type Photo struct {
	Data []byte `json:"data"`
	Name string `json:"name"`
}

// RestaurantRecord is one logged restaurant visit.
type RestaurantRecord struct {
	Cuisine        string    `json:"cuisine"`
	ID             string    `json:"id"`
	Location       string    `json:"location"`
	Notes          string    `json:"notes"`
	OccurredAt     time.Time `json:"occurredAt"`
	Photos         []Photo   `json:"photos"`
	PricePerPerson float64   `json:"pricePerPerson"`
	Rating         int       `json:"rating"`
	Title          string    `json:"title"`
}

// BeverageRecord is one logged drink-shop visit.
type BeverageRecord struct {
	Flavor     string    `json:"flavor"`
	IceLevel   string    `json:"iceLevel"`
	ID         string    `json:"id"`
	Notes      string    `json:"notes"`
	OccurredAt time.Time `json:"occurredAt"`
	Photos     []Photo   `json:"photos"`
	Rating     int       `json:"rating"`
	Shop       string    `json:"shop"`
	SugarLevel string    `json:"sugarLevel"`
	Title      string    `json:"title"`
}

// TravelRecord is one logged trip. StartDate and EndDate are date-only
// "2006-01-02" strings; EndDate is empty for single-day or open-ended trips.
type TravelRecord struct {
	Companions  string    `json:"companions"`
	Destination string    `json:"destination"`
	EndDate     string    `json:"endDate"`
	ID          string    `json:"id"`
	Notes       string    `json:"notes"`
	OccurredAt  time.Time `json:"occurredAt"`
	Photos      []Photo   `json:"photos"`
	Rating      int       `json:"rating"`
	StartDate   string    `json:"startDate"`
	Title       string    `json:"title"`
}

// RecreationRecord is one logged recreation activity.
type RecreationRecord struct {
	DurationMinutes int            `json:"durationMinutes"`
	ID              string         `json:"id"`
	Kind            RecreationKind `json:"kind"`
	Notes           string         `json:"notes"`
	OccurredAt      time.Time      `json:"occurredAt"`
	Photos          []Photo        `json:"photos"`
	Rating          int            `json:"rating"`
	Title           string         `json:"title"`
	Venue           string         `json:"venue"`
}

// NewRecordID returns a fresh identity for a locally created record.
// Imported records keep the IDs carried by their bundle.
func NewRecordID() string {
	return uuid.NewString()
}

// RecreationKind categorizes a recreation activity. Only the current string
// encodings below are ever written; decode also accepts the legacy encodings
// that older exports used and normalizes them.
type RecreationKind string

// Current encodings.
const (
	KindMovie   RecreationKind = "movie"
	KindSports  RecreationKind = "sports"
	KindConcert RecreationKind = "concert"
	KindGame    RecreationKind = "game"
	KindOther   RecreationKind = "other"
)

// legacyKinds maps encodings from older export files to their current form.
var legacyKinds = map[string]RecreationKind{
	"film":      KindMovie,
	"exercise":  KindSports,
	"show":      KindConcert,
	"videogame": KindGame,
	"misc":      KindOther,
}

// ParseRecreationKind normalizes a wire string to a current kind.
// A value matching neither a current nor a legacy encoding is an error.
func ParseRecreationKind(s string) (RecreationKind, error) {
	switch RecreationKind(s) {
	case KindMovie, KindSports, KindConcert, KindGame, KindOther:
		return RecreationKind(s), nil
	}
	if k, ok := legacyKinds[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("models: unknown recreation kind %q", s)
}

// UnmarshalJSON accepts both current and legacy encodings and stores the
// current one, so re-encoding an old bundle always emits current values.
func (k *RecreationKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("models: recreation kind: %w", err)
	}
	parsed, err := ParseRecreationKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
