// README: Presence store backed by a Redis hash per driver plus a GEO index of online drivers.
package availability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridedispatch/internal/types"
)

const (
	presenceKeyPrefix = "presence:driver:%s"
	onlineSetKey      = "presence:online"
	onlineGeoKey      = "presence:online:geo"
	// Presence rows of drivers that never come back are dropped after a day.
	presenceTTL = 24 * time.Hour
)

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redis *redis.Client) *RedisStore {
	return &RedisStore{redis: redis}
}

func (s *RedisStore) Get(ctx context.Context, driverID types.ID) (*Presence, error) {
	fields, err := s.redis.HGetAll(ctx, presenceKey(driverID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		// The row may have expired while the driver was online.
		if err := s.prune(ctx, driverID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return decodePresence(driverID, fields)
}

// Put rewrites the whole row and keeps the online set and GEO index in step, in one MULTI.
func (s *RedisStore) Put(ctx context.Context, p *Presence) error {
	key := presenceKey(p.DriverID)
	fields := encodePresence(p)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, presenceTTL)
		if p.Online {
			pipe.SAdd(ctx, onlineSetKey, string(p.DriverID))
		} else {
			pipe.SRem(ctx, onlineSetKey, string(p.DriverID))
		}
		if p.Online && p.LastLocation != nil {
			pipe.GeoAdd(ctx, onlineGeoKey, &redis.GeoLocation{
				Name:      string(p.DriverID),
				Longitude: p.LastLocation.Lng,
				Latitude:  p.LastLocation.Lat,
			})
		} else {
			pipe.ZRem(ctx, onlineGeoKey, string(p.DriverID))
		}
		return nil
	})
	return err
}

// OnlineCount counts online drivers whose row is still live and prunes the rest.
func (s *RedisStore) OnlineCount(ctx context.Context) (int64, error) {
	members, err := s.redis.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	live, err := s.liveRows(ctx, ids)
	if err != nil {
		return 0, err
	}
	var n int64
	var stale []types.ID
	for i, id := range ids {
		if !live[i] {
			stale = append(stale, id)
			continue
		}
		n++
	}
	if err := s.prune(ctx, stale...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisStore) Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]NearbyDriver, error) {
	results, err := s.redis.GeoSearchLocation(ctx, onlineGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r.Name)
	}
	live, err := s.liveRows(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyDriver, 0, len(results))
	var stale []types.ID
	for i, r := range results {
		if !live[i] {
			stale = append(stale, types.ID(r.Name))
			continue
		}
		out = append(out, NearbyDriver{
			DriverID:   types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		})
	}
	if err := s.prune(ctx, stale...); err != nil {
		return nil, err
	}
	return out, nil
}

// liveRows reports, per driver, whether the presence row still exists.
func (s *RedisStore) liveRows(ctx context.Context, driverIDs []types.ID) ([]bool, error) {
	live := make([]bool, len(driverIDs))
	if len(driverIDs) == 0 {
		return live, nil
	}
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(driverIDs))
	for i, id := range driverIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for i, c := range cmds {
		live[i] = c.Val() > 0
	}
	return live, nil
}

// prune removes drivers whose row expired from the online set and GEO index.
func (s *RedisStore) prune(ctx context.Context, driverIDs ...types.ID) error {
	if len(driverIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(driverIDs))
	for i, id := range driverIDs {
		members[i] = string(id)
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, onlineSetKey, members...)
		pipe.ZRem(ctx, onlineGeoKey, members...)
		return nil
	})
	return err
}

func presenceKey(driverID types.ID) string {
	return fmt.Sprintf(presenceKeyPrefix, string(driverID))
}

func encodePresence(p *Presence) map[string]interface{} {
	fields := map[string]interface{}{
		"online":       strconv.FormatBool(p.Online),
		"last_seen_at": p.LastSeenAt.UTC().Format(time.RFC3339Nano),
	}
	if p.LastLocation != nil {
		fields["lat"] = strconv.FormatFloat(p.LastLocation.Lat, 'f', -1, 64)
		fields["lng"] = strconv.FormatFloat(p.LastLocation.Lng, 'f', -1, 64)
		fields["location_at"] = p.LastLocation.At.UTC().Format(time.RFC3339Nano)
	}
	if p.DeclinedRideID != nil && p.DeclinedUntil != nil {
		fields["declined_ride_id"] = string(*p.DeclinedRideID)
		fields["declined_until"] = p.DeclinedUntil.UTC().Format(time.RFC3339Nano)
	}
	return fields
}

func decodePresence(driverID types.ID, fields map[string]string) (*Presence, error) {
	p := &Presence{DriverID: driverID}
	var err error
	if p.Online, err = strconv.ParseBool(fields["online"]); err != nil {
		return nil, fmt.Errorf("presence %s: online: %w", driverID, err)
	}
	if p.LastSeenAt, err = time.Parse(time.RFC3339Nano, fields["last_seen_at"]); err != nil {
		return nil, fmt.Errorf("presence %s: last_seen_at: %w", driverID, err)
	}
	if lat, ok := fields["lat"]; ok {
		var loc types.Sample
		if loc.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
			return nil, fmt.Errorf("presence %s: lat: %w", driverID, err)
		}
		if loc.Lng, err = strconv.ParseFloat(fields["lng"], 64); err != nil {
			return nil, fmt.Errorf("presence %s: lng: %w", driverID, err)
		}
		if loc.At, err = time.Parse(time.RFC3339Nano, fields["location_at"]); err != nil {
			return nil, fmt.Errorf("presence %s: location_at: %w", driverID, err)
		}
		p.LastLocation = &loc
	}
	if rideID, ok := fields["declined_ride_id"]; ok {
		until, err := time.Parse(time.RFC3339Nano, fields["declined_until"])
		if err != nil {
			return nil, fmt.Errorf("presence %s: declined_until: %w", driverID, err)
		}
		id := types.ID(rideID)
		p.DeclinedRideID = &id
		p.DeclinedUntil = &until
	}
	return p, nil
}
