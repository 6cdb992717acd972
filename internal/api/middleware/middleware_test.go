package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/bookstore/internal/model"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "bookstore"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": UserID(c), "role": Role(c)})
	})
	r.GET("/x", chain...)
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth(testSecret, testIssuer))

	token, err := NewToken(testSecret, testIssuer, 12, "", time.Minute)
	require.NoError(t, err)
	w := get(r, "/x", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":12,"role":"USER"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/x", "").Code)

	forged, err := NewToken("other-secret", testIssuer, 12, model.RoleAdmin, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/x", forged).Code)

	expired, err := NewToken(testSecret, testIssuer, 12, "", -time.Minute)
	require.NoError(t, err)
	w = get(r, "/x", expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")

	wrongIssuer, err := NewToken(testSecret, "someone-else", 12, "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/x", wrongIssuer).Code)

	noSubject, err := NewToken(testSecret, testIssuer, 0, "", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/x", noSubject).Code)
}

func TestRequireAdmin(t *testing.T) {
	r := newEngine(Auth(testSecret, testIssuer), RequireAdmin())

	user, _ := NewToken(testSecret, testIssuer, 1, model.RoleUser, time.Minute)
	admin, _ := NewToken(testSecret, testIssuer, 2, model.RoleAdmin, time.Minute)

	assert.Equal(t, http.StatusForbidden, get(r, "/x", user).Code)
	assert.Equal(t, http.StatusOK, get(r, "/x", admin).Code)
}

func TestRequestIDPropagation(t *testing.T) {
	r := newEngine()

	w := get(r, "/x", "")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(headerRequestID))
}

func TestRecovery(t *testing.T) {
	w := get(newEngine(), "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per client")

	r := newEngine(RateLimit(NewIPRateLimiter(1, 1)))
	assert.Equal(t, http.StatusOK, get(r, "/x", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/x", "").Code)

	unlimited := newEngine(RateLimit(NewIPRateLimiter(0, 0)))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(unlimited, "/x", "").Code)
	}
}
