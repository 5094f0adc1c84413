package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newAdminRouter(am *AdminMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(am.RequireAdminAuth())
	router.POST("/admin/snapshots", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "admin access granted"})
	})
	return router
}

func TestAdminMiddleware_RequireAdminAuth(t *testing.T) {
	router := newAdminRouter(NewAdminMiddleware("test-admin-key"))

	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
	}{
		{"bearer key", map[string]string{"Authorization": "Bearer test-admin-key"}, http.StatusOK},
		{"api key header", map[string]string{"X-API-Key": "test-admin-key"}, http.StatusOK},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"wrong bearer", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"no credentials", nil, http.StatusUnauthorized},
		{"malformed authorization", map[string]string{"Authorization": "test-admin-key"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/snapshots", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAdminMiddleware_DisabledWithoutKey(t *testing.T) {
	router := newAdminRouter(NewAdminMiddleware(""))

	req := httptest.NewRequest(http.MethodPost, "/admin/snapshots", nil)
	req.Header.Set("X-API-Key", "")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Admin access disabled")
}
