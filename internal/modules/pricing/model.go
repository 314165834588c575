// README: Fare rate and route estimate value objects.
package pricing

// Rate is a linear fare: base + per-kilometre + per-minute, in the ride's currency.
type Rate struct {
	BaseFare  float64
	PerKm     float64
	PerMinute float64
}

// DefaultRate is the fare the passenger app quotes before requesting a ride.
var DefaultRate = Rate{BaseFare: 2, PerKm: 2, PerMinute: 0.25}

// Route is the raw distance and driving time between two points.
type Route struct {
	DistanceMeters  int
	DurationSeconds int
}

type Estimate struct {
	DistanceMeters  int     `json:"distance"`
	DurationSeconds int     `json:"duration"`
	Price           float64 `json:"price"`
}
