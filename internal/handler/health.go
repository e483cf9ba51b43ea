package handler

import (
	"context"
	"net/http"
	"time"

	"gymdesk/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *redis.Client.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Health returns a JSON health check response.
// Checks Redis connectivity and the backend circuit; never exposes
// credentials or internals. An open circuit degrades but does not fail
// the check: drafts can still be saved.
func Health(rdb Pinger, backendState func() infra.CBState) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":      status == http.StatusOK,
			"redis":   redisStatus,
			"backend": backendState().String(),
		})
	}
}
