package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docmem/internal/pkg/errcode"
	"github.com/xxxsen/docmem/internal/pkg/jwt"
	"github.com/xxxsen/docmem/internal/pkg/response"
)

const ContextScopeKey = "scope"

// JWTAuth resolves the bearer token into the memory scope of the request.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "invalid authorization")
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}
		c.Set(ContextScopeKey, claims.Scope)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	response.ErrorWithErrno(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized", msg)
	c.Abort()
}
