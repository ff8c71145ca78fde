package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestCtxReturnsStoredLogger(t *testing.T) {
	var buf bytes.Buffer
	stored := zerolog.New(&buf)
	ctx := WithLogger(context.Background(), stored)

	// Chained form, the way call sites use it.
	Ctx(ctx).Info().Msg("from context")

	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("expected context logger output, got %q", buf.String())
	}
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	if Ctx(context.Background()) != L() {
		t.Fatal("expected the global logger when the context carries none")
	}
}
