// README: User handler; /users/me doubles as the driver app's liveness probe.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/modules/availability"
)

type UserHandler struct {
	registry *availability.Registry
}

func NewUserHandler(registry *availability.Registry) *UserHandler {
	return &UserHandler{registry: registry}
}

type meResponse struct {
	UID      string                 `json:"uid"`
	Role     string                 `json:"role"`
	Presence *availability.Presence `json:"presence,omitempty"`
}

func (h *UserHandler) Me(c *gin.Context) {
	resp := meResponse{UID: middleware.CallerUID(c), Role: middleware.CallerRole(c)}
	if resp.Role == middleware.RoleDriver {
		p, err := h.registry.Get(c.Request.Context(), caller(c))
		if err != nil {
			writeServiceError(c, err, CodeConflict)
			return
		}
		resp.Presence = p
	}
	writeJSON(c, http.StatusOK, resp)
}
