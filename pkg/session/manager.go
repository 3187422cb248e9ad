package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/connection"
)

// ErrSessionNotFound is returned for unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// CreateOptions customizes one session created by a Manager.
type CreateOptions struct {
	// Catalog overrides the manager-wide initial catalog.
	Catalog string
	// Connect opens the connection before returning.
	Connect bool
}

// Manager manages sessions by ID.
type Manager struct {
	opener      connection.Opener
	opts        Options
	idleTimeout time.Duration
	lg          *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a new session manager. Sessions idle for longer than
// idleTimeout are closed by CleanupIdle; zero disables idle cleanup.
func NewManager(opener connection.Opener, opts Options, idleTimeout time.Duration) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opener:      opener,
		opts:        opts,
		idleTimeout: idleTimeout,
		lg:          opts.Logger.Named("manager"),
		sessions:    make(map[string]*Session),
	}
}

// Create creates a session. With co.Connect set, a connect failure is
// returned and no session is registered.
func (m *Manager) Create(ctx context.Context, co CreateOptions) (*Session, error) {
	opts := m.opts
	if co.Catalog != "" {
		if err := ValidateCatalogName(co.Catalog); err != nil {
			return nil, err
		}
		opts.Catalog = co.Catalog
	}

	s := New(m.opener, opts)
	if co.Connect {
		if err := s.Open(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.opts.Metrics.SessionsActive.Inc()

	m.lg.Info("session created", zap.String("session", s.ID), zap.String("catalog", opts.Catalog))
	return s, nil
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close closes and forgets the session with the given ID.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	m.opts.Metrics.SessionsActive.Dec()
	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close session %s: %w", id, err)
	}
	return nil
}

// CloseAll closes every session.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		m.opts.Metrics.SessionsActive.Dec()
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdle closes sessions that have not been used within the idle timeout
// and have nothing running, and returns how many were closed.
func (m *Manager) CleanupIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := time.Now()

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastAccessed()) > m.idleTimeout && s.tracker.Len() == 0 && s.QueueDepth() == 0 {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.opts.Metrics.SessionsActive.Dec()
		if err := s.Close(); err != nil {
			m.lg.Warn("failed to close idle session", zap.String("session", s.ID), zap.Error(err))
		}
	}
	if len(idle) > 0 {
		m.lg.Info("closed idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// RunCleanup calls CleanupIdle every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupIdle()
		}
	}
}
