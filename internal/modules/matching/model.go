// README: Offer is the derived (ride, driver) pairing shown on a driver poll.
package matching

import (
	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

// Offer is recomputed on every poll and never stored.
type Offer struct {
	Ride     *ride.Ride `json:"ride"`
	DriverID types.ID   `json:"driverId"`
	// PickupDistanceMeters is the straight-line distance from the driver's last
	// known position to the ride origin; zero when the position is unknown.
	PickupDistanceMeters int `json:"pickupDistance"`
}
