package balance

import (
	"sync"

	"github.com/google/uuid"
)

// Locks is the registry of exclusive in-flight flags, one per account.
// Only one owner (a pending transaction identity) may hold an account at a time.
type Locks struct {
	mu      sync.Mutex
	holders map[string]uuid.UUID
}

// NewLocks creates an empty registry.
func NewLocks() *Locks {
	return &Locks{holders: make(map[string]uuid.UUID)}
}

// Acquire takes the account for owner. It returns true when owner now holds
// it, including when owner already held it.
func (l *Locks) Acquire(accountID string, owner uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.holders[accountID]; ok {
		return holder == owner
	}
	l.holders[accountID] = owner
	return true
}

// Release frees the account if owner holds it. It reports whether a lock was released.
func (l *Locks) Release(accountID string, owner uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.holders[accountID]; ok && holder == owner {
		delete(l.holders, accountID)
		return true
	}
	return false
}

// Holder returns the current owner of the account.
func (l *Locks) Holder(accountID string) (uuid.UUID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	holder, ok := l.holders[accountID]
	return holder, ok
}
