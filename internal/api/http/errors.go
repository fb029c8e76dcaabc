package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/speeddating/internal/domain"
)

const userIDHeader = "X-User-ID"

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrNotQueued):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrAlreadyInSession),
		errors.Is(err, domain.ErrSessionEnded):
		return http.StatusConflict
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// errorCode is the stable, client-facing name of a domain error.
func errorCode(err error) string {
	codes := []struct {
		err  error
		code string
	}{
		{domain.ErrValidation, "validation_error"},
		{domain.ErrUnauthorized, "unauthorized"},
		{domain.ErrSessionNotFound, "session_not_found"},
		{domain.ErrNotQueued, "not_queued"},
		{domain.ErrAlreadyQueued, "already_queued"},
		{domain.ErrAlreadyInSession, "already_in_session"},
		{domain.ErrSessionEnded, "session_ended"},
		{domain.ErrLockNotAcquired, "busy"},
		{domain.ErrProvisioningFailure, "provisioning_failure"},
		{domain.ErrStoreUnavailable, "store_unavailable"},
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func respondError(ctx *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{
		"error":     errorCode(err),
		"retryable": domain.IsRetryable(err),
	}
	if status == http.StatusBadRequest {
		body["details"] = err.Error()
	}
	ctx.JSON(status, body)
}

// requireUser reads the caller's identity, set by the upstream auth gateway.
func requireUser(ctx *gin.Context) (string, bool) {
	userID := strings.TrimSpace(ctx.GetHeader(userIDHeader))
	if userID == "" {
		userID = strings.TrimSpace(ctx.Query("user_id"))
	}
	if userID == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return "", false
	}
	return userID, true
}
