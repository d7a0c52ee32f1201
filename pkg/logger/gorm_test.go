package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGorm(level string, slow float64) (*GormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), slow, level), logs
}

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return "SELECT * FROM queues", 1 }

	t.Run("error", func(t *testing.T) {
		l, logs := newObservedGorm("warn", 0)
		l.Trace(context.Background(), time.Now(), query, errors.New("connection reset"))

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
		assert.Equal(t, "gorm", entry.ContextMap()["component"])
	})

	t.Run("record not found is quiet", func(t *testing.T) {
		l, logs := newObservedGorm("warn", 0)
		l.Trace(context.Background(), time.Now(), query, gorm.ErrRecordNotFound)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("slow query", func(t *testing.T) {
		l, logs := newObservedGorm("warn", 0.001)
		l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("silent", func(t *testing.T) {
		l, logs := newObservedGorm("silent", 0)
		l.Trace(context.Background(), time.Now(), query, errors.New("boom"))
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("long sql is truncated", func(t *testing.T) {
		l, logs := newObservedGorm("debug", 0)
		long := func() (string, int64) { return strings.Repeat("x", 2*maxSQLLength), 0 }
		l.Trace(context.Background(), time.Now(), long, nil)

		require.Equal(t, 1, logs.Len())
		assert.Len(t, logs.All()[0].ContextMap()["sql"], maxSQLLength+3)
	})
}

func TestGormLogger_LogMode(t *testing.T) {
	l, logs := newObservedGorm("warn", 0)
	quiet := l.LogMode(gormlogger.Silent)

	quiet.Error(context.Background(), "failed %s", "x")
	assert.Equal(t, 0, logs.Len())

	l.Error(context.Background(), "failed %s", "x")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed x", logs.All()[0].Message)
}
