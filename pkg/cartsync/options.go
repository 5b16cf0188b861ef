package cartsync

import (
	"log/slog"
	"time"
)

// DefaultTaskTimeout bounds each background store or remote call.
const DefaultTaskTimeout = 15 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTaskTimeout bounds each background call and the login fetch.
// Zero disables the bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}
