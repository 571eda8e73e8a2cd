package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"repair_shop_backend/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
)

// Locker is the part of *redislock.Client the ticket lock needs.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// TicketIDResolver returns the id of the ticket a request mutates. ok is false
// when the request does not name an existing ticket; such requests skip the
// lock and the handler reports the problem.
type TicketIDResolver func(c *gin.Context) (ticketID string, ok bool)

// TicketIDParam resolves the ticket from the :id path parameter.
func TicketIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	return id, id != ""
}

// TicketLock serializes mutating requests on the same ticket across server
// instances. A request that finds the lock held gets 409 CONFLICT_RETRYABLE.
// When Redis itself fails the request goes through; the row lock taken by the
// service still serializes it.
func TicketLock(locker Locker, ttl time.Duration) gin.HandlerFunc {
	return TicketLockBy(locker, ttl, TicketIDParam)
}

// TicketLockBy is TicketLock for routes that address the ticket indirectly.
func TicketLockBy(locker Locker, ttl time.Duration, resolve TicketIDResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if locker == nil {
			c.Next()
			return
		}
		ticketID, ok := resolve(c)
		if !ok {
			c.Next()
			return
		}
		key := "ticket-lock:" + ticketID

		lock, err := locker.Obtain(c.Request.Context(), key, ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			c.Header("Retry-After", "1")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflictRetryable,
				"Ticket is being modified by another request, retry shortly.", map[string]string{"ticket_id": ticketID}))
			return
		}
		if err != nil {
			utils.LogWarn(err, "ticket lock unavailable; proceeding without it", map[string]interface{}{"key": key})
			c.Next()
			return
		}

		defer func() {
			if err := lock.Release(context.WithoutCancel(c.Request.Context())); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				utils.LogWarn(err, "failed to release ticket lock", map[string]interface{}{"key": key})
			}
		}()
		c.Next()
	}
}
