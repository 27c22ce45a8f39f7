package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
}

func TestNew_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	log := New(Config{Level: "warn", Format: "json", Output: path})

	log.Info("dropped")
	log.Warn("kept", zap.String("link_id", "link-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"link_id":"link-1"`)
}

func TestContextLogger(t *testing.T) {
	// GIVEN: no logger in context
	assert.NotNil(t, FromContext(context.Background()))

	// WHEN: an observed logger is stored and enriched
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	ctx, _ = With(ctx, zap.String("owner_id", "owner-1"))
	FromContext(ctx).Info("hello")

	// THEN: the field travels with the context
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "owner-1", logs.All()[0].ContextMap()["owner_id"])
}
