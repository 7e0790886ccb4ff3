package security

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(r *Redactor, level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(NewRedactingHandler(inner, r)), &buf
}

func TestRedactingHandler_RedactsMessageAndAttrs(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("local-vllm-token")
	logger, buf := newTestLogger(r, slog.LevelDebug)

	logger.Info("key is "+geminiKey, "token", "local-vllm-token", "model", "gemini-2.5-flash")

	out := buf.String()
	for _, secret := range []string{geminiKey, "local-vllm-token"} {
		if strings.Contains(out, secret) {
			t.Errorf("secret %q found in output: %s", secret, out)
		}
	}
	if !strings.Contains(out, "model=gemini-2.5-flash") {
		t.Errorf("safe attribute missing: %s", out)
	}
}

func TestRedactingHandler_RedactsErrors(t *testing.T) {
	t.Parallel()

	logger, buf := newTestLogger(NewRedactor(), slog.LevelInfo)

	err := errors.New(`Post "https://generativelanguage.googleapis.com/v1beta/models/x?key=abc123secret": EOF`)
	logger.Error("generation failed", "error", err)

	if strings.Contains(buf.String(), "abc123secret") {
		t.Errorf("secret in error attribute leaked: %s", buf.String())
	}
}

func TestRedactingHandler_WithAttrsAndGroups(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("persistent-secret")
	logger, buf := newTestLogger(r, slog.LevelInfo)

	logger.With("auth", "persistent-secret").
		WithGroup("attempt").
		Info("call", "key", geminiKey, slog.Group("nested", "inner", "persistent-secret"))

	out := buf.String()
	if strings.Contains(out, "persistent-secret") || strings.Contains(out, geminiKey) {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "attempt.key=") {
		t.Errorf("group prefix missing: %s", out)
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewRedactingHandler(inner, NewRedactor())

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info should be disabled at Warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Error should be enabled at Warn level")
	}
}
