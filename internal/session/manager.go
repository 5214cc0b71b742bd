package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/quietledger/sniper-core/internal/domain"
)

// Manager owns the owner -> Session map for every cluster. Lookup-or-
// create is atomic; Sessions themselves are
// never removed, only stopped.
type Manager struct {
	mu         sync.RWMutex
	byCluster  map[domain.Cluster]map[string]*Session
	logRingCap int
	logger     *zap.Logger
}

func NewManager(logRingCap int, logger *zap.Logger) *Manager {
	return &Manager{
		byCluster:  make(map[domain.Cluster]map[string]*Session),
		logRingCap: logRingCap,
		logger:     logger,
	}
}

// GetOrCreate returns the session for (cluster, owner), creating it
// lazily on first reference.
func (m *Manager) GetOrCreate(cluster domain.Cluster, owner string) *Session {
	m.mu.RLock()
	if byOwner, ok := m.byCluster[cluster]; ok {
		if s, ok := byOwner[owner]; ok {
			m.mu.RUnlock()
			return s
		}
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	byOwner, ok := m.byCluster[cluster]
	if !ok {
		byOwner = make(map[string]*Session)
		m.byCluster[cluster] = byOwner
	}
	if s, ok := byOwner[owner]; ok {
		return s
	}
	s := New(owner, cluster, m.logRingCap, m.logger)
	byOwner[owner] = s
	return s
}

// Get returns the session for (cluster, owner) without creating one.
func (m *Manager) Get(cluster domain.Cluster, owner string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byOwner, ok := m.byCluster[cluster]
	if !ok {
		return nil, false
	}
	s, ok := byOwner[owner]
	return s, ok
}

// ForEachRunning calls fn for every currently-running session in cluster.
// Used by the signal router to fan a notification out to candidates.
func (m *Manager) ForEachRunning(cluster domain.Cluster, fn func(*Session)) {
	m.mu.RLock()
	byOwner := m.byCluster[cluster]
	sessions := make([]*Session, 0, len(byOwner))
	for _, s := range byOwner {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if s.Running() {
			fn(s)
		}
	}
}

// AllSessions returns a snapshot of every session the manager has ever
// created, across every cluster, for drivers that poll all sessions on a
// fixed tick regardless of cluster (the volume timer).
func (m *Manager) AllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, byOwner := range m.byCluster {
		for _, s := range byOwner {
			out = append(out, s)
		}
	}
	return out
}

// AnyRunning reports whether any session in cluster is currently running,
// used by ClusterRuntime.TeardownIfIdle.
func (m *Manager) AnyRunning(cluster domain.Cluster) bool {
	m.mu.RLock()
	byOwner := m.byCluster[cluster]
	sessions := make([]*Session, 0, len(byOwner))
	for _, s := range byOwner {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		if s.Running() {
			return true
		}
	}
	return false
}
