package connection

import (
	"sync"
)

// Manager 管理本节点的所有连接
type Manager struct {
	connections map[string]*Connection
	userConns   map[string]map[string]*Connection // userID -> connID -> Connection
	maxConns    int
	mu          sync.RWMutex
}

// NewManager 创建连接管理器，maxConns 为 0 表示不限制
func NewManager(maxConns int) *Manager {
	return &Manager{
		connections: make(map[string]*Connection),
		userConns:   make(map[string]map[string]*Connection),
		maxConns:    maxConns,
	}
}

// Add 登记连接
func (m *Manager) Add(conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxConns > 0 && len(m.connections) >= m.maxConns {
		return ErrTooManyConns
	}
	m.connections[conn.ID()] = conn
	if conn.UserID() != "" {
		if _, ok := m.userConns[conn.UserID()]; !ok {
			m.userConns[conn.UserID()] = make(map[string]*Connection)
		}
		m.userConns[conn.UserID()][conn.ID()] = conn
	}
	return nil
}

// Remove 移除连接
func (m *Manager) Remove(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	delete(m.connections, connID)

	if userConns, ok := m.userConns[conn.UserID()]; ok {
		delete(userConns, connID)
		if len(userConns) == 0 {
			delete(m.userConns, conn.UserID())
		}
	}
}

func (m *Manager) Get(connID string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// GetByUserID 用户在本节点的全部连接
func (m *Manager) GetByUserID(userID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userConns, ok := m.userConns[userID]
	if !ok {
		return nil
	}

	conns := make([]*Connection, 0, len(userConns))
	for _, conn := range userConns {
		conns = append(conns, conn)
	}
	return conns
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// GetAllConnections 返回所有连接（用于心跳检测）
func (m *Manager) GetAllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}

// CloseAll 关闭全部连接
func (m *Manager) CloseAll() {
	for _, conn := range m.GetAllConnections() {
		conn.Close()
		m.Remove(conn.ID())
	}
}
