package gitfilter

import (
	"log/slog"
	"sync"
)

var logger *slog.Logger = slog.Default()

// SetLogger replaces the [slog.Logger] used by the package.
// The default is [slog.Default].
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	logger = l
}

var warnedOnce sync.Map

// warnOnce logs msg at warn level the first time key is seen.
// Warnings like ambiguous hex prefixes or path sanitization rewrites can fire
// per record; the contract is one line each on stderr.
func warnOnce(key string, msg string, args ...any) {
	if _, loaded := warnedOnce.LoadOrStore(key, empty{}); loaded {
		return
	}
	logger.Warn(msg, args...)
}
