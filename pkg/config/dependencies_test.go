package config

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()

	dev := NewLogger("dev")
	if !dev.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("dev logger does not emit debug")
	}

	prod := NewLogger("prod")
	if prod.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("prod logger emits debug")
	}
	if !prod.Enabled(ctx, slog.LevelInfo) {
		t.Fatal("prod logger does not emit info")
	}

	if slog.Default() != prod {
		t.Fatal("NewLogger did not install the slog default")
	}
}
