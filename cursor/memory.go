package cursor

import "sync"

// Memory is an in-memory Cursor. Progress is lost on restart.
type Memory struct {
	mu     sync.RWMutex
	blocks map[string]uint64
}

// NewMemory creates a new in-memory cursor.
func NewMemory() *Memory {
	return &Memory{
		blocks: make(map[string]uint64),
	}
}

// Load returns the last saved block number for key.
func (m *Memory) Load(key string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[key]
	return b, ok, nil
}

// Save stores the block number for key. Progress never moves backwards.
func (m *Memory) Save(key string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.blocks[key]; ok && cur > block {
		return nil
	}
	m.blocks[key] = block
	return nil
}

// Forget drops the progress for key.
func (m *Memory) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, key)
}
