package eth

import (
	"strings"
	"sync"
)

// NonceManager tracks the next nonce per sender so two sends issued before
// the first reaches the node's pending pool do not collide.
type NonceManager struct {
	mu     sync.Mutex
	nonces map[string]uint64 // lowercase address -> next unused nonce
}

// NewNonceManager creates an empty manager.
func NewNonceManager() *NonceManager {
	return &NonceManager{nonces: make(map[string]uint64)}
}

// Next returns max(pending, local) and reserves it.
func (m *NonceManager) Next(address string, pending uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(address)
	nonce := pending
	if local, ok := m.nonces[key]; ok && local > pending {
		nonce = local
	}
	m.nonces[key] = nonce + 1
	return nonce
}

// Release returns a reserved nonce after a failed broadcast. Only the most
// recent reservation can be released; older ones are left to the node to reconcile.
func (m *NonceManager) Release(address string, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(address)
	if next, ok := m.nonces[key]; ok && next == nonce+1 {
		m.nonces[key] = nonce
	}
}

// Reset forgets local tracking for an address.
func (m *NonceManager) Reset(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nonces, strings.ToLower(address))
}
