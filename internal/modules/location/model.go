// README: Location snapshot for persistence and replay.
package location

import (
	"time"

	"ridedispatch/internal/types"
)

const UserTypeDriver = "driver"

type Snapshot struct {
	ID         int64
	UserID     types.ID
	UserType   string
	Position   types.Point
	RecordedAt time.Time
}

// Update is one sample from a driver's device geolocation feed.
type Update struct {
	DriverID types.ID
	Sample   types.Sample
}
