package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFn(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), 50*time.Millisecond)
	ctx := WithRequestID(context.Background(), "req-1")

	l.Trace(ctx, time.Now(), sqlFn("SELECT fast"), nil)
	require.Zero(t, logs.Len(), "fast queries are quiet at warn level")

	l.Trace(ctx, time.Now(), sqlFn("SELECT missing"), gorm.ErrRecordNotFound)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), sqlFn("INSERT broken"), errors.New("disk I/O error"))
	l.Trace(ctx, time.Now().Add(-time.Second), sqlFn("SELECT slow"), nil)

	entries := logs.All()
	require.Len(t, entries, 2)

	require.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(t, "sql failed", entries[0].Message)
	require.Equal(t, "INSERT broken", entries[0].ContextMap()["sql"])
	require.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	require.Equal(t, "gorm", entries[0].LoggerName)

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "slow sql", entries[1].Message)
}

func TestGormLogger_LogMode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := NewGormLogger(zap.New(core), 0)

	base.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sqlFn("SELECT 1"), errors.New("boom"))
	require.Zero(t, logs.Len())

	base.LogMode(gormlogger.Info).Trace(context.Background(), time.Now(), sqlFn("SELECT 1"), nil)
	require.Equal(t, 1, logs.FilterMessage("sql").Len())
	_, hasID := logs.All()[0].ContextMap()["request_id"]
	require.False(t, hasID)

	base.Info(context.Background(), "migrating %s", "sessions")
	require.Zero(t, logs.FilterMessage("migrating sessions").Len(), "LogMode must not change the receiver")
}
