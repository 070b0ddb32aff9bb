package handler

import (
	"context"
	"net/http"
	"time"

	"mongosession/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

type CacheStatus interface {
	IsConnected(ctx context.Context) bool
}

// HealthHandler reports database and cache reachability. The cache is optional
// and never makes the service unhealthy.
func HealthHandler(db Pinger, cache CacheStatus, logger *zap.Logger) gin.HandlerFunc {
	logger = utils.LoggerOrNop(logger)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{
			"database":  "up",
			"cache":     "disabled",
			"cpu_usage": utils.GetCPUUsage(ctx, 100*time.Millisecond, logger),
		}
		if cache != nil {
			status["cache"] = "up"
			if !cache.IsConnected(ctx) {
				status["cache"] = "down"
			}
		}

		if err := db.Ping(ctx, readpref.Primary()); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			status["database"] = "down"
			utils.ServiceUnavailable(c, "Database unreachable", status)
			return
		}

		c.JSON(http.StatusOK, &utils.Response{Message: "ok", Data: status})
	}
}
