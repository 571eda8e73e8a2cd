package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	engine := gin.New()
	engine.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		p, ok := utils.PrincipalFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role, "gin_role": c.GetString("userRole")})
	})

	t.Run("missing header", func(t *testing.T) {
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)
	})

	t.Run("valid token sets principal", func(t *testing.T) {
		token, _, err := utils.GenerateAccessToken(42, "ana", models.RoleTechnician)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := serve(engine, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"user_id":42,"role":"Technician","gin_role":"Technician"}`, w.Body.String())
	})
}

func TestRoleAuthMiddleware(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set("userRole", role)
			}
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	cases := []struct {
		role string
		want int
	}{
		{"Admin", http.StatusOK},
		{"admin", http.StatusOK},
		{"Technician", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		engine := gin.New()
		engine.GET("/x", withRole(tc.role), RoleAuthMiddleware(models.RoleAdmin, models.RoleReceptionist), ok)
		w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tc.want, w.Code, "role %q", tc.role)
	}
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(utils.RequestIDKey))
	})

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(engine, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

type fakeLocker struct {
	err  error
	keys []string
}

func (f *fakeLocker) Obtain(_ context.Context, key string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	f.keys = append(f.keys, key)
	return nil, f.err
}

func TestTicketLock(t *testing.T) {
	build := func(locker Locker) *gin.Engine {
		engine := gin.New()
		engine.POST("/tickets/:id/approve", TicketLock(locker, time.Second), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return engine
	}

	t.Run("held lock is a retryable conflict", func(t *testing.T) {
		locker := &fakeLocker{err: redislock.ErrNotObtained}
		w := serve(build(locker), httptest.NewRequest(http.MethodPost, "/tickets/9/approve", nil))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), utils.ErrCodeConflictRetryable)
		assert.Equal(t, []string{"ticket-lock:9"}, locker.keys)
	})

	t.Run("redis failure lets the request through", func(t *testing.T) {
		locker := &fakeLocker{err: errors.New("dial tcp: connection refused")}
		w := serve(build(locker), httptest.NewRequest(http.MethodPost, "/tickets/9/approve", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		w := serve(build(nil), httptest.NewRequest(http.MethodPost, "/tickets/9/approve", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestTicketLockBy(t *testing.T) {
	owners := map[string]string{"31": "9"}
	resolve := func(c *gin.Context) (string, bool) {
		ticketID, ok := owners[c.Param("usageId")]
		return ticketID, ok
	}
	build := func(locker Locker) *gin.Engine {
		engine := gin.New()
		engine.DELETE("/ticket-parts/:usageId", TicketLockBy(locker, time.Second, resolve), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		return engine
	}

	t.Run("usage edits share the owning ticket's lock", func(t *testing.T) {
		locker := &fakeLocker{err: redislock.ErrNotObtained}
		w := serve(build(locker), httptest.NewRequest(http.MethodDelete, "/ticket-parts/31", nil))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, []string{"ticket-lock:9"}, locker.keys)
	})

	t.Run("unknown usage skips the lock", func(t *testing.T) {
		locker := &fakeLocker{err: redislock.ErrNotObtained}
		w := serve(build(locker), httptest.NewRequest(http.MethodDelete, "/ticket-parts/77", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, locker.keys)
	})
}
