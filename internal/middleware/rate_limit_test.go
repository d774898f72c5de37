package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happybusride/booking-backend/internal/config"
)

func newTestLimiter(requests, windowSeconds int, now *time.Time) *RateLimiter {
	rl := NewRateLimiter(config.RateLimitConfig{Requests: requests, WindowSeconds: windowSeconds}, quietLogger())
	rl.now = func() time.Time { return *now }
	return rl
}

// limitedRouter authenticates from a header instead of a token to keep the
// tests about the limiter only
func limitedRouter(rl *RateLimiter) *gin.Engine {
	router := setupTestRouter()
	router.POST("/seats/lock", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(UserContextKey, UserContext{UserID: uuid.MustParse(id)})
		}
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "locked"})
	})
	return router
}

func post(router *gin.Engine, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/seats/lock", nil)
	if userID != "" {
		req.Header.Set("X-Test-User", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Middleware(t *testing.T) {
	now := time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC)

	t.Run("burst then 429 with Retry-After", func(t *testing.T) {
		rl := newTestLimiter(3, 60, &now)
		router := limitedRouter(rl)
		user := uuid.NewString()

		for i := 0; i < 3; i++ {
			require.Equal(t, http.StatusOK, post(router, user).Code, "request %d", i)
		}

		w := post(router, user)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
		assert.Equal(t, "20", w.Header().Get("Retry-After"))
	})

	t.Run("users are limited independently", func(t *testing.T) {
		rl := newTestLimiter(1, 60, &now)
		router := limitedRouter(rl)
		alice, bob := uuid.NewString(), uuid.NewString()

		assert.Equal(t, http.StatusOK, post(router, alice).Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, alice).Code)
		assert.Equal(t, http.StatusOK, post(router, bob).Code)
	})

	t.Run("tokens refill over the window", func(t *testing.T) {
		clock := now
		rl := newTestLimiter(2, 60, &clock)
		router := limitedRouter(rl)
		user := uuid.NewString()

		assert.Equal(t, http.StatusOK, post(router, user).Code)
		assert.Equal(t, http.StatusOK, post(router, user).Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, user).Code)

		clock = clock.Add(30 * time.Second)
		assert.Equal(t, http.StatusOK, post(router, user).Code)
	})

	t.Run("anonymous callers are keyed by ip", func(t *testing.T) {
		rl := newTestLimiter(1, 60, &now)
		router := limitedRouter(rl)

		assert.Equal(t, http.StatusOK, post(router, "").Code)
		assert.Equal(t, http.StatusTooManyRequests, post(router, "").Code)
	})
}

func TestRateLimiter_Sweep(t *testing.T) {
	clock := time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC)
	rl := newTestLimiter(5, 60, &clock)
	router := limitedRouter(rl)

	post(router, uuid.NewString())
	post(router, uuid.NewString())

	clock = clock.Add(5 * time.Minute)
	assert.Equal(t, 0, rl.Sweep())

	clock = clock.Add(6 * time.Minute)
	assert.Equal(t, 2, rl.Sweep())
}
