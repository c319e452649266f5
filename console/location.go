package console

import (
	"log/slog"
	"sync"

	"github.com/kodj/kodjadmin/guard"
)

// Location is the console's current navigation location. The session
// controller and the guard navigate it; guarded page requests update it.
type Location struct {
	mu     sync.RWMutex
	path   string
	logger *slog.Logger
}

// NewLocation starts at the login surface.
func NewLocation(logger *slog.Logger) *Location {
	return &Location{path: "/login", logger: logger}
}

// Navigate implements session.Navigator and guard.Navigator.
func (l *Location) Navigate(path string) {
	path = guard.Clean(path)
	l.mu.Lock()
	changed := l.path != path
	l.path = path
	l.mu.Unlock()
	if changed && l.logger != nil {
		l.logger.Info("navigate", "location", path)
	}
}

// Current returns the current location.
func (l *Location) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.path
}

func (l *Location) visit(path string) {
	l.mu.Lock()
	l.path = guard.Clean(path)
	l.mu.Unlock()
}
