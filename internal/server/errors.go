package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/denismitr/pathkeeper/docstore"
	"github.com/denismitr/pathkeeper/internal/logging"
	"github.com/denismitr/pathkeeper/internal/registry"
	"github.com/denismitr/pathkeeper/internal/report"
)

const (
	serverErrorMessage = "Server error"
	notArrayMessage    = "Request body must be an array"
	emptyItemsMessage  = "Request body must hold at least one item"
	notObjectMessage   = "Every item must be an object"
	reservedMessage    = "Path is reserved"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an error to its status. Internal details are only logged.
func writeError(c *gin.Context, err error) {
	status, msg := statusOf(err)

	logger := logging.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.V(logging.DEFAULT).Error(err, "Request failed", "status", status)
	} else {
		logger.V(logging.DEBUG).Info("Request rejected", "status", status, "reason", err.Error())
	}

	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrReservedPath):
		return http.StatusBadRequest, reservedMessage
	case errors.Is(err, registry.ErrInvalidIdentifier):
		return http.StatusBadRequest, "Invalid identifier"
	case errors.Is(err, report.ErrNotAnArray):
		return http.StatusBadRequest, notArrayMessage
	case errors.Is(err, report.ErrEmptyItems):
		return http.StatusBadRequest, emptyItemsMessage
	case errors.Is(err, report.ErrItemNotObject):
		return http.StatusBadRequest, notObjectMessage
	case errors.Is(err, report.ErrInvalidRequest), errors.Is(err, errInvalidBody):
		return http.StatusBadRequest, "Invalid request body"
	case errors.Is(err, docstore.ErrInvalidDocument):
		return http.StatusBadRequest, "Invalid request body"
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, serverErrorMessage
	}
}
