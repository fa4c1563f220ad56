package wlrender

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/wlrender/internal/gpu"
	"github.com/gogpu/wlrender/internal/resource"
	"github.com/gogpu/wlrender/internal/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for wlrender and all its internal
// packages. By default wlrender produces no log output. Pass nil to
// restore the silent default.
//
// Log levels used by wlrender:
//   - [slog.LevelDebug]: per-frame diagnostics (redraw area, draw counts)
//   - [slog.LevelInfo]: lifecycle events (renderer created, shader table rebuilt)
//   - [slog.LevelWarn]: recoverable failures (unsupported buffer, failed present)
//
// Example:
//
//	wlrender.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	gpu.SetLogger(l)
	shader.SetLogger(l)
	resource.SetLogger(l)
}

// Logger returns the current logger used by wlrender.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func slogger() *slog.Logger { return loggerPtr.Load() }
