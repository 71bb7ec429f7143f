package rider

import (
	"time"

	"github.com/gofrs/uuid"
)

// Rider is a bodaboda delivery profile. It references the user record owned
// by the identity provider; only dispatch-relevant fields live here.
type Rider struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	PlateNumber string    `json:"plate_number" db:"plate_number"`
	IDNumber    string    `json:"-" db:"id_number"`
	Verified    bool      `json:"verified" db:"verified"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	Latitude    *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64  `json:"longitude,omitempty" db:"longitude"`
	Rating      int       `json:"rating" db:"rating"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the rider may be dispatched orders. Location is
// checked separately by proximity flows.
func (r *Rider) Eligible() bool {
	return r.Verified && r.IsAvailable
}

// Coordinates implements geo.Locatable. ok is false until the rider has
// reported a location.
func (r Rider) Coordinates() (float64, float64, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}
