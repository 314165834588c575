// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridedispatch/internal/http/handlers"
	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/infra"
	"ridedispatch/internal/logging"
	"ridedispatch/internal/modules/availability"
	"ridedispatch/internal/modules/location"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/ride"
)

type ServerDeps struct {
	Rides    *ride.Service
	Matching *matching.Service
	Registry *availability.Registry
	Location *location.Service
	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rideH := handlers.NewRideHandler(s.deps.Rides)
	passengerH := handlers.NewPassengerHandler(s.deps.Rides)
	driverH := handlers.NewDriverHandler(s.deps.Rides, s.deps.Matching, s.deps.Registry)
	locationH := handlers.NewLocationHandler(s.deps.Location, s.deps.Registry)
	userH := handlers.NewUserHandler(s.deps.Registry)

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))
	driver := middleware.RequireRole(middleware.RoleDriver)

	api.GET("/users/me", userH.Me)
	api.GET("/rides/current", rideH.Current)
	api.GET("/rides/:id", rideH.Get)
	api.GET("/rides/:id/events", rideH.Events)
	api.POST("/rides", passengerH.RequestRide)
	api.POST("/rides/cancel/:id", passengerH.Cancel)
	api.GET("/drivers/nearby", locationH.Nearby)

	api.GET("/rides/available", driver, driverH.Available)
	api.POST("/rides/accept/:id", driver, driverH.Accept)
	api.POST("/rides/decline/:id", driver, driverH.Decline)
	api.POST("/rides/start/:id", driver, driverH.Start)
	api.POST("/rides/complete/:id", driver, driverH.Complete)
	api.PATCH("/users/availability", driver, locationH.SetAvailability)
	api.PATCH("/users/location", driver, locationH.UpdateLocation)
	api.GET("/users/location/history", driver, locationH.History)

	return r
}
