// README: Ride read handlers shared by drivers and passengers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/ride"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(rides *ride.Service) *RideHandler {
	return &RideHandler{rides: rides}
}

// Current answers the caller's active ride or null.
func (h *RideHandler) Current(c *gin.Context) {
	var (
		r   *ride.Ride
		err error
	)
	if middleware.CallerRole(c) == middleware.RoleDriver {
		r, err = h.rides.CurrentForDriver(c.Request.Context(), caller(c))
	} else {
		r, err = h.rides.CurrentForPassenger(c.Request.Context(), caller(c))
	}
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Get is visible to the ride's passenger, its assigned driver, and to any
// driver while the ride is still waiting for one.
func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	uid := caller(c)
	visible := r.PassengerID == uid ||
		r.AssignedTo(uid) ||
		(middleware.CallerRole(c) == middleware.RoleDriver && r.Status == ride.StatusRequested)
	if !visible {
		writeError(c, http.StatusForbidden, CodeForbidden, "not a participant of this ride")
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Events(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	if uid := caller(c); r.PassengerID != uid && !r.AssignedTo(uid) {
		writeError(c, http.StatusForbidden, CodeForbidden, "not a participant of this ride")
		return
	}
	events, err := h.rides.Events(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"events": events})
}
