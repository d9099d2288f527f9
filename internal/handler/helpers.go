package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docmem/internal/memory"
	"github.com/xxxsen/docmem/internal/middleware"
	"github.com/xxxsen/docmem/internal/pkg/errcode"
	appErr "github.com/xxxsen/docmem/internal/pkg/errors"
	"github.com/xxxsen/docmem/internal/pkg/response"
)

func getScope(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextScopeKey)
	scope, _ := value.(string)
	return scope
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("scope", getScope(c)),
		zap.Error(err),
	)
	var depErr *memory.DependencyError
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.ErrorWithErrno(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.ErrorWithErrno(c, http.StatusNotFound, errcode.ErrNotFound, "not_found", "not found")
	case errors.Is(err, appErr.ErrNoContext):
		response.ErrorWithErrno(c, http.StatusNotFound, errcode.ErrNoContext, "no_context", err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.ErrorWithErrno(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid", err.Error())
	case errors.Is(err, appErr.ErrTooLarge):
		response.ErrorWithErrno(c, http.StatusRequestEntityTooLarge, errcode.ErrTooLarge, "too_large", err.Error())
	case errors.Is(err, appErr.ErrUnavailable):
		response.ErrorWithErrno(c, http.StatusServiceUnavailable, errcode.ErrAIUnavailable, "ai_unavailable", "ai provider not available")
	case errors.As(err, &depErr):
		response.ErrorWithErrno(c, http.StatusBadGateway, errcode.ErrUploadFailed, "dependency_failed", depErr.Error())
	default:
		response.ErrorWithErrno(c, http.StatusInternalServerError, errcode.ErrInternal, "internal", "internal error")
	}
}
