package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		env       string
		wantJSON  bool
		wantDebug bool
	}{
		{"production", true, false},
		{"development", false, true},
		{"", false, true},
		{"staging", false, true},
	}

	for _, tt := range tests {
		t.Run("env="+tt.env, func(t *testing.T) {
			logger := NewLogger(tt.env)
			require.NotNil(t, logger)

			_, isJSON := logger.Handler().(*slog.JSONHandler)
			assert.Equal(t, tt.wantJSON, isJSON, "handler type for %q", tt.env)

			ctx := context.Background()
			assert.Equal(t, tt.wantDebug, logger.Handler().Enabled(ctx, slog.LevelDebug))
			assert.True(t, logger.Handler().Enabled(ctx, slog.LevelInfo))
		})
	}
}
