package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docmem/internal/pkg/jwt"
)

func newTestEngine(mws ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mws...)
	ping := func(c *gin.Context) {
		scope, _ := c.Get(ContextScopeKey)
		reqID, _ := c.Get(ContextRequestIDKey)
		c.JSON(http.StatusOK, gin.H{"scope": scope, "request_id": reqID})
	}
	r.GET("/ping", ping)
	r.OPTIONS("/ping", ping)
	return r
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("secret")
	r := newTestEngine(JWTAuth(secret))
	token, err := jwt.GenerateToken("scope-1", secret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.Contains(t, w.Body.String(), `"scope":"scope-1"`)
			} else {
				require.Contains(t, w.Body.String(), `"code":"unauthorized"`)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := newTestEngine(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Len(t, w.Header().Get("X-Request-Id"), 32)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "given")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "given", w.Header().Get("X-Request-Id"))
	require.Contains(t, w.Body.String(), `"request_id":"given"`)
}

func TestCORS(t *testing.T) {
	r := newTestEngine(CORS([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := newTestEngine(CORS(nil))
	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	w = httptest.NewRecorder()
	open.ServeHTTP(w, req)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusNoContent, w.Code)
}
