// Package testutil provides common test utilities and helpers to reduce boilerplate in test files.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trly/nfops/internal/config"
	"github.com/trly/nfops/internal/log"
)

// NewTestLogger creates a logger that writes to t.Logf for testing.
func NewTestLogger(t testing.TB) log.Logger {
	handler := &testHandler{t: t}
	return log.NewSlogAdapter(slog.New(handler))
}

// ConfigOption allows customization of test config settings.
type ConfigOption func(*config.Settings)

// WithRuntime sets the workload runtime.
func WithRuntime(runtime string) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.Runtime = runtime
	}
}

// WithLeader sets the static leadership flag.
func WithLeader(leader bool) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.Leader = leader
	}
}

// WithActivationTimeout sets the activation timeout.
func WithActivationTimeout(d time.Duration) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.ActivationTimeout = d
	}
}

// WithVerbose sets verbose logging.
func WithVerbose(verbose bool) ConfigOption {
	return func(cfg *config.Settings) {
		cfg.Verbose = verbose
	}
}

// NewMockConfig creates a config provider for testing with optional
// customizations. Paths point into a per-test temporary directory and all
// delays are zero.
func NewMockConfig(t testing.TB, opts ...ConfigOption) config.Provider {
	tmpDir := t.TempDir()

	cfg := config.Defaults()
	cfg.StateFile = filepath.Join(tmpDir, "state.json")
	cfg.DBPath = filepath.Join(tmpDir, "relations.db")
	cfg.DescriptorDir = filepath.Join(tmpDir, "units")
	cfg.SystemdUnitDir = filepath.Join(tmpDir, "systemd")
	cfg.Runtime = config.RuntimeFake
	cfg.ActivationTimeout = time.Second
	cfg.GraceDelay = 0
	cfg.RetryDelay = 0
	cfg.UnitAddress = "10.0.0.1"
	cfg.Verbose = true

	for _, opt := range opts {
		opt(cfg)
	}

	configProvider := config.NewDefaultConfigProvider()
	configProvider.SetConfig(cfg)
	return configProvider
}

// testHandler implements slog.Handler to write to testing.TB.
type testHandler struct {
	t     testing.TB
	attrs []slog.Attr
}

func (h *testHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *testHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	record.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	h.t.Logf("[%s] %s%s", record.Level.String(), record.Message, b.String())
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &testHandler{t: h.t, attrs: merged}
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return &testHandler{t: h.t, attrs: h.attrs}
}
