// Package invariant reports "can't happen" states. Builds tagged debug panic;
// other builds log the violation and let the caller degrade gracefully.
package invariant

import (
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/logging"
)

// Violated reports a broken invariant.
func Violated(log *zap.Logger, msg string, fields ...zap.Field) {
	if debug {
		panic("invariant violated: " + msg)
	}
	logging.OrNop(log).Error("invariant violated: "+msg, fields...)
}
