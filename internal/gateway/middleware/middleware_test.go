package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"pos-system/internal/database/models"
	"pos-system/internal/utils"
)

type fakeChecker struct {
	granted map[int64][]models.Permission
	err     error
}

func (f fakeChecker) HasPermission(_ context.Context, employeeID int64, p models.Permission) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, g := range f.granted[employeeID] {
		if g == p {
			return true, nil
		}
	}
	return false, nil
}

func serve(r *gin.Engine, token string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestJWTAuthAndRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt := utils.NewJWTManager("secret", time.Hour)
	checker := fakeChecker{granted: map[int64][]models.Permission{1: {models.PermissionC}}}

	r := gin.New()
	r.GET("/", JWTAuth(jwt), RequirePermission(checker, models.PermissionC), func(c *gin.Context) {
		id, ok := EmployeeID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"employee_id": id})
	})

	cashier, _, err := jwt.GenerateToken(1, "cashier")
	require.NoError(t, err)
	stranger, _, err := jwt.GenerateToken(2, "stranger")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(r, cashier))
	assert.Equal(t, http.StatusForbidden, serve(r, stranger))
	assert.Equal(t, http.StatusUnauthorized, serve(r, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "forged"))
}

func TestRequirePermission_StoreFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwt := utils.NewJWTManager("secret", time.Hour)

	r := gin.New()
	r.GET("/", JWTAuth(jwt), RequirePermission(fakeChecker{err: errors.New("db down")}, models.PermissionA), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	token, _, err := jwt.GenerateToken(1, "admin")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, serve(r, token))
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	_, err := RateLimit("lots")
	assert.Error(t, err)

	limit, err := RateLimit("2-M", WithLimiterStore(memory.NewStore()))
	require.NoError(t, err)

	r := gin.New()
	r.Use(limit)
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/other", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, ""))
	assert.Equal(t, http.StatusOK, serve(r, ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), `"error":"RATE_LIMITED"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusOK, w.Code, "limits are kept per route")
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}
