package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm/logger"

	"creatorguard/internal/bootstrap/logging"
)

const slowQueryThreshold = 500 * time.Millisecond

// slogWriter forwards gorm's warn and error lines to the context logger.
type slogWriter struct {
	ctx context.Context
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	logging.Warn(w.ctx, "database statement", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// newGormLogger keeps slow and failed statements; a missing row is an
// expected lookup result and is not logged.
func newGormLogger(ctx context.Context) logger.Interface {
	return logger.New(slogWriter{ctx: ctx}, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
