package hephaestus

import (
	"sync/atomic"

	"golang.org/x/exp/slog"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used by the package. A nil logger restores
// slog.Default().
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
