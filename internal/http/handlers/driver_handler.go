// README: Driver handlers for the offer poll, accept, decline, start and complete.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/ride"
)

type DriverHandler struct {
	rides    *ride.Service
	matching *matching.Service
	registry *availability.Registry
	now      func() time.Time
}

func NewDriverHandler(rides *ride.Service, matchingSvc *matching.Service, registry *availability.Registry) *DriverHandler {
	return &DriverHandler{rides: rides, matching: matchingSvc, registry: registry, now: time.Now}
}

// Available answers the driver's current offer, or null when there is none.
func (h *DriverHandler) Available(c *gin.Context) {
	offer, err := h.matching.NextOffer(c.Request.Context(), caller(c), h.now())
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, offer)
}

// Accept answers 409 offer_gone to every driver that lost the race.
func (h *DriverHandler) Accept(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Accept(c.Request.Context(), ride.AcceptCommand{RideID: id, DriverID: caller(c)})
	if err != nil {
		writeServiceError(c, err, CodeOfferGone)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Decline(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	if err := h.registry.Decline(c.Request.Context(), caller(c), id, 0); err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DriverHandler) Start(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Start(c.Request.Context(), ride.StartCommand{RideID: id, DriverID: caller(c)})
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *DriverHandler) Complete(c *gin.Context) {
	id, ok := rideIDParam(c)
	if !ok {
		return
	}
	r, err := h.rides.Complete(c.Request.Context(), ride.CompleteCommand{RideID: id, DriverID: caller(c)})
	if err != nil {
		writeServiceError(c, err, CodeConflict)
		return
	}
	writeJSON(c, http.StatusOK, r)
}
