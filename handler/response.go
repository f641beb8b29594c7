// Package handler provides HTTP handlers for the Vigil API.
package handler

import (
	"errors"
	"net/http"

	"nfcunha/vigil/core/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Stable error codes returned in the "code" field.
const (
	codeUnauthenticated    = "unauthenticated"
	codeInvalidCredentials = "invalid_credentials"
	codeInvalidAction      = "invalid_action"
	codeInvalidRequest     = "invalid_request"
	codeCollectionFailed   = "collection_failed"
	codeActionFailed       = "action_failed"
	codeFeatureDisabled    = "feature_disabled"
	codeRateLimited        = "rate_limited"
	codeInternal           = "internal_error"
)

// respondError writes {"error", "code"} and, outside release mode, the raw
// error as "detail".
func respondError(c *gin.Context, status int, code, message string, err error) {
	body := gin.H{
		"error": message,
		"code":  code,
	}
	if err != nil && gin.Mode() != gin.ReleaseMode {
		body["detail"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}

// respondServiceError maps a service boundary error onto a status and payload.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		respondError(c, http.StatusUnauthorized, codeUnauthenticated, "Authentication required", nil)
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, codeInvalidCredentials, "Invalid username or password", nil)
	case errors.Is(err, service.ErrInvalidAction):
		respondError(c, http.StatusBadRequest, codeInvalidAction, "Invalid action", err)
	case errors.Is(err, service.ErrCollectionFailed):
		respondError(c, http.StatusServiceUnavailable, codeCollectionFailed, "Telemetry unavailable", err)
	case errors.Is(err, service.ErrFeatureDisabled):
		respondError(c, http.StatusNotFound, codeFeatureDisabled, "Feature is disabled", nil)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		respondError(c, http.StatusInternalServerError, codeInternal, "Internal server error", err)
	}
}
