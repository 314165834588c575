// README: Location snapshot store backed by Postgres.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridedispatch/internal/types"
)

type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	Recent(ctx context.Context, userID types.ID, limit int) ([]Snapshot, error)
}

type PGSnapshotStore struct {
	db *pgxpool.Pool
}

func NewPGSnapshotStore(db *pgxpool.Pool) *PGSnapshotStore {
	return &PGSnapshotStore{db: db}
}

func (s *PGSnapshotStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO location_snapshots (user_id, user_type, lat, lng, recorded_at)
        VALUES ($1, $2, $3, $4, $5)`,
		string(snap.UserID), snap.UserType, snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}

// Recent returns the newest snapshots first.
func (s *PGSnapshotStore) Recent(ctx context.Context, userID types.ID, limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, user_id, user_type, lat, lng, recorded_at
        FROM location_snapshots
        WHERE user_id = $1
        ORDER BY recorded_at DESC
        LIMIT $2`, string(userID), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.UserID, &snap.UserType, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
