package server

import "sync"

// SessionManager 跟踪所有存活连接，用于关闭时统一断开
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*session)}
}

func (m *SessionManager) add(s *session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	UpdateSessionCount(n)
}

func (m *SessionManager) remove(s *session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	n := len(m.sessions)
	m.mu.Unlock()
	UpdateSessionCount(n)
}

// Len 当前连接数
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll 关闭全部连接，各连接协程随后自行退出
func (m *SessionManager) CloseAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		_ = s.conn.Close()
	}
}
