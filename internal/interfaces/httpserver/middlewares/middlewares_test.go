package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"collab-server/services/groupchat-api/internal/utils/platformerrors"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(handlers...)
	return engine
}

func TestRequestID(t *testing.T) {
	var seen, fromCtx string
	engine := newEngine(RequestID())
	engine.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		fromCtx = platformerrors.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
		assert.Equal(t, seen, fromCtx)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{"wildcard without origin", nil, "", http.MethodGet, "*", http.StatusOK},
		{"wildcard echoes origin", []string{"*"}, "https://app.test", http.MethodGet, "https://app.test", http.StatusOK},
		{"listed origin", []string{"https://app.test"}, "https://app.test", http.MethodGet, "https://app.test", http.StatusOK},
		{"unlisted origin", []string{"https://app.test"}, "https://evil.test", http.MethodGet, "", http.StatusOK},
		{"preflight", []string{"*"}, "https://app.test", http.MethodOptions, "https://app.test", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine(CORS(tt.allowed))
			engine.Any("/", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}
