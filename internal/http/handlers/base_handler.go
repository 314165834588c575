// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/types"
)

const (
	CodeBadRequest      = "bad_request"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeInvalidState    = "invalid_state"
	CodeConflict        = "conflict"
	CodeOfferGone       = "offer_gone"
	CodeUnauthenticated = "unauthenticated"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// rideIDParam reads :id and rejects anything that is not a uuid.
func rideIDParam(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(c, http.StatusBadRequest, CodeBadRequest, "invalid ride id")
		return "", false
	}
	return types.ID(id), true
}

func caller(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, code, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps a module error onto the HTTP contract. conflictCode
// distinguishes a lost accept ("offer_gone") from other concurrent writes.
func writeServiceError(c *gin.Context, err error, conflictCode string) {
	switch {
	case errors.Is(err, types.ErrBadRequest):
		writeError(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, types.ErrForbidden):
		writeError(c, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, types.ErrInvalidState):
		writeError(c, http.StatusConflict, CodeInvalidState, err.Error())
	case errors.Is(err, types.ErrConflict):
		writeError(c, http.StatusConflict, conflictCode, err.Error())
	case errors.Is(err, types.ErrUnauthenticated):
		writeError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
	case errors.Is(err, types.ErrTransient):
		writeError(c, http.StatusServiceUnavailable, CodeUnavailable, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
