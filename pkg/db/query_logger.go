package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildmart/storefront/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryLogger routes gorm statement traces into the service logger. Slow
// statements log at warn, failures at error. Record-not-found is a normal
// state lookup miss and stays quiet.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, "db.error", fmt.Errorf(msg, args...))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow

	switch {
	case failed && q.level >= gormlogger.Error:
		q.logg.Error(q.fields(ctx, fc, elapsed), "db.query_failed", err)
	case slow && q.level >= gormlogger.Warn:
		q.logg.Warn(q.fields(ctx, fc, elapsed), "db.query_slow")
	case q.level >= gormlogger.Info:
		q.logg.Debug(q.fields(ctx, fc, elapsed), "db.query")
	}
}

func (q *queryLogger) fields(ctx context.Context, fc func() (string, int64), elapsed time.Duration) context.Context {
	stmt, rows := fc()
	return q.logg.WithFields(ctx, map[string]any{
		"sql":         stmt,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
}
