// README: Driver presence record and decline suppression window.
package availability

import (
	"time"

	"ridedispatch/internal/types"
)

// Presence is one driver's availability. A declined ride is hidden from this
// driver until DeclinedUntil; expired suppression is ignored, never renewed.
type Presence struct {
	DriverID       types.ID      `json:"driverId"`
	Online         bool          `json:"isAvailable"`
	LastLocation   *types.Sample `json:"lastLocation,omitempty"`
	LastSeenAt     time.Time     `json:"lastSeenAt"`
	DeclinedRideID *types.ID     `json:"declinedRideId,omitempty"`
	DeclinedUntil  *time.Time    `json:"declinedUntil,omitempty"`
}

// NearbyDriver is an online driver position returned by radius lookups.
type NearbyDriver struct {
	DriverID   types.ID    `json:"driverId"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distanceKm"`
}

func (p *Presence) Suppressed(rideID types.ID, now time.Time) bool {
	if p.DeclinedRideID == nil || p.DeclinedUntil == nil {
		return false
	}
	return *p.DeclinedRideID == rideID && now.Before(*p.DeclinedUntil)
}

func (p *Presence) clearSuppression() {
	p.DeclinedRideID = nil
	p.DeclinedUntil = nil
}

// view drops an expired suppression so callers never see a stale window.
func (p Presence) view(now time.Time) *Presence {
	if p.DeclinedUntil != nil && !now.Before(*p.DeclinedUntil) {
		p.clearSuppression()
	}
	return &p
}
