package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithScope(t *testing.T) {
	t.Parallel()

	t.Run("scoped attributes reach records", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))

		ctx := logger.WithScope(context.Background(), logger.TaskID("task-1"))
		ctx = logger.WithScope(ctx, logger.UserID("u1"))
		log.InfoContext(ctx, "applied")

		entry := decode(t, buf)
		assert.Equal(t, "task-1", entry["task_id"])
		assert.Equal(t, "u1", entry["user_id"])
	})

	t.Run("inner scope replaces outer key", func(t *testing.T) {
		t.Parallel()
		ctx := logger.WithScope(context.Background(), logger.UserID("outer"), logger.Provider("memory"))
		ctx = logger.WithScope(ctx, logger.UserID("inner"))

		scope := logger.Scope(ctx)
		require.Len(t, scope, 2)
		assert.Equal(t, "memory", scope[0].Value.String())
		assert.Equal(t, "inner", scope[1].Value.Any())
	})

	t.Run("explicit attribute wins over scope", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))

		ctx := logger.WithScope(context.Background(), logger.UserID("scoped"))
		log.InfoContext(ctx, "metadata mismatch", logger.UserID("owner"))

		assert.Equal(t, 1, strings.Count(buf.String(), `"user_id"`))
		assert.Equal(t, "owner", decode(t, buf)["user_id"])
	})

	t.Run("scope wins over extractor", func(t *testing.T) {
		t.Parallel()
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithOutput(buf),
			logger.WithContextExtractors(func(context.Context) (slog.Attr, bool) {
				return logger.RequestID("extracted"), true
			}),
		)

		ctx := logger.WithScope(context.Background(), logger.RequestID("scoped"))
		log.InfoContext(ctx, "request")
		assert.Equal(t, "scoped", decode(t, buf)["request_id"])
	})

	t.Run("empty scope keeps context", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		assert.Equal(t, ctx, logger.WithScope(ctx))
		assert.Empty(t, logger.Scope(ctx))
	})
}
