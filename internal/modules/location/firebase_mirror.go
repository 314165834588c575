// README: Mirrors driver presence into Firebase RTDB so client maps can follow drivers live.
package location

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"ridedispatch/internal/modules/availability"
)

const driverLocationsNode = "driver_locations"

// rtdbDriverEntry mirrors a single driver entry stored under /driver_locations.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// FirebaseMirror is an availability.Sink writing one RTDB node per driver.
type FirebaseMirror struct {
	dbClient *db.Client
}

func NewFirebaseMirror(ctx context.Context, app *firebase.App) (*FirebaseMirror, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
	}
	return &FirebaseMirror{dbClient: dbClient}, nil
}

func (m *FirebaseMirror) PresenceChanged(ctx context.Context, p availability.Presence) error {
	ref := m.dbClient.NewRef(driverLocationsNode).Child(string(p.DriverID))
	if err := ref.Set(ctx, mirrorEntry(p)); err != nil {
		return fmt.Errorf("writing %s/%s: %w", driverLocationsNode, p.DriverID, err)
	}
	return nil
}

func mirrorEntry(p availability.Presence) rtdbDriverEntry {
	entry := rtdbDriverEntry{
		Status:    "offline",
		Timestamp: p.LastSeenAt.UnixMilli(),
	}
	if p.Online {
		entry.Status = "online"
	}
	if p.LastLocation != nil {
		entry.Lat = p.LastLocation.Lat
		entry.Lng = p.LastLocation.Lng
	}
	return entry
}
