package utils

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.uber.org/zap"
)

// GetCPUUsage returns the CPU usage, as a percentage, sampled over interval.
func GetCPUUsage(ctx context.Context, interval time.Duration, logger *zap.Logger) float64 {
	percentage, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		LoggerOrNop(logger).Warn("failed to read CPU usage", zap.Error(err))
		return 0
	}
	if len(percentage) > 0 {
		return percentage[0]
	}
	return 0
}
