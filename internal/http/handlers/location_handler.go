// README: Location and availability handlers for the driver feed and nearby lookups.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/types"
)

const (
	defaultNearbyRadiusKm = 3.0
	defaultNearbyLimit    = 20
	defaultHistoryLimit   = 50
)

type LocationHandler struct {
	location *location.Service
	registry *availability.Registry
}

func NewLocationHandler(svc *location.Service, registry *availability.Registry) *LocationHandler {
	return &LocationHandler{location: svc, registry: registry}
}

// coordinates are [lng, lat], the same order rides use.
type availabilityReq struct {
	IsAvailable *bool       `json:"isAvailable"`
	Coordinates *[2]float64 `json:"coordinates"`
}

type locationReq struct {
	Coordinates *[2]float64 `json:"coordinates"`
}

func sampleOf(coords [2]float64) types.Sample {
	return types.Sample{Point: types.Point{Lat: coords[1], Lng: coords[0]}}
}

func (h *LocationHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.IsAvailable == nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "isAvailable is required")
		return
	}
	ctx := c.Request.Context()
	var err error
	if *req.IsAvailable {
		var loc *types.Sample
		if req.Coordinates != nil {
			s := sampleOf(*req.Coordinates)
			loc = &s
		}
		err = h.registry.SetOnline(ctx, caller(c), loc)
	} else {
		err = h.registry.SetOffline(ctx, caller(c))
	}
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	p, err := h.registry.Get(ctx, caller(c))
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// UpdateLocation answers applied=false for samples from an offline driver.
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Coordinates == nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "coordinates are required")
		return
	}
	applied, err := h.location.Update(c.Request.Context(), location.Update{
		DriverID: caller(c),
		Sample:   sampleOf(*req.Coordinates),
	})
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"applied": applied})
}

func (h *LocationHandler) History(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultHistoryLimit)
	if !ok {
		return
	}
	snaps, err := h.location.History(c.Request.Context(), caller(c), limit)
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	out := make([]map[string]any, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, map[string]any{
			"lat":        s.Position.Lat,
			"lng":        s.Position.Lng,
			"recordedAt": s.RecordedAt,
		})
	}
	writeJSON(c, http.StatusOK, map[string]any{"snapshots": out})
}

// Nearby lists online drivers around ?lat=&lng=, closest first.
func (h *LocationHandler) Nearby(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "lat and lng are required")
		return
	}
	radius := defaultNearbyRadiusKm
	if v := c.Query("radiusKm"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid radiusKm")
			return
		}
		radius = r
	}
	limit, ok := intQuery(c, "limit", defaultNearbyLimit)
	if !ok {
		return
	}
	drivers, err := h.registry.Nearby(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	if drivers == nil {
		drivers = []availability.NearbyDriver{}
	}
	writeJSON(c, http.StatusOK, map[string]any{"drivers": drivers})
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid "+key)
		return 0, false
	}
	return n, true
}
