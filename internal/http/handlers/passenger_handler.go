// README: Passenger handlers (request and cancel a ride).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/ride"
	"ridedispatch/internal/types"
)

type PassengerHandler struct {
	rides *ride.Service
}

func NewPassengerHandler(rides *ride.Service) *PassengerHandler {
	return &PassengerHandler{rides: rides}
}

type requestRideReq struct {
	Origin      *types.Place `json:"origin"`
	Destination *types.Place `json:"destination"`
}

type cancelRideReq struct {
	Reason string `json:"reason"`
}

func (h *PassengerHandler) RequestRide(c *gin.Context) {
	var req requestRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid json")
		return
	}
	if req.Origin == nil || req.Destination == nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "origin and destination are required")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		PassengerID: caller(c),
		Origin:      *req.Origin,
		Destination: *req.Destination,
	})
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Cancel accepts an optional {"reason": "..."} body.
func (h *PassengerHandler) Cancel(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	var req cancelRideReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid json")
			return
		}
	}
	r, err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{
		RideID:      id,
		PassengerID: caller(c),
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
