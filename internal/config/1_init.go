package config

import (
	"context"
	"fmt"
	"runtime"
)

func init() {
	if BoolValue("MONITOR_DEBUG") {
		ctx := SetContextDebug(context.Background(), true)
		LogDebug(ctx, fmt.Sprintf("monitor config.init(): arch: %v", runtime.GOOS))
		LogDebug(ctx, "monitor config initialized with environment variable defaults")
	}
}
