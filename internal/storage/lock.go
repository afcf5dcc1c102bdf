// Package storage - Lock manager
//
// What: Shared/exclusive record locks keyed by (table, primary key value),
// held per transaction until ReleaseAll.
// How: Non-blocking two-phase locking. A conflicting acquisition is refused
// immediately; callers treat refusal as abort-and-retry. Deadlock avoidance
// is by refusal, not detection.
// Why: The engine is single-writer-per-record; readers under a transaction
// take shared locks so writers cannot slip a version underneath them.

package storage

import (
	"sync"

	"github.com/google/uuid"
)

// LockMode classifies the operation requesting a lock. Read is shared;
// insert, update and delete are exclusive.
type LockMode uint8

const (
	LockRead LockMode = iota
	LockInsert
	LockUpdate
	LockDelete
)

// Exclusive reports whether the mode requires an exclusive lock.
func (m LockMode) Exclusive() bool { return m != LockRead }

// String returns a human-readable label for the mode.
func (m LockMode) String() string {
	switch m {
	case LockRead:
		return "read"
	case LockInsert:
		return "insert"
	case LockUpdate:
		return "update"
	case LockDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// LockKey identifies a lockable record.
type LockKey struct {
	Table string
	Key   int64
}

// lockState tracks the holders of one record lock.
type lockState struct {
	shared    map[uuid.UUID]struct{}
	exclusive uuid.UUID // uuid.Nil when not exclusively held
}

// LockManager hands out record locks to transactions. All methods are safe
// for concurrent use.
type LockManager struct {
	mu    sync.Mutex
	locks map[LockKey]*lockState
	held  map[uuid.UUID]map[LockKey]struct{}
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[LockKey]*lockState),
		held:  make(map[uuid.UUID]map[LockKey]struct{}),
	}
}

// AcquireLock tries to take key in the given mode for transaction tx.
// It returns false immediately on conflict. Re-acquisition by the same
// transaction succeeds, including a shared-to-exclusive upgrade when the
// transaction is the sole shared holder.
func (lm *LockManager) AcquireLock(tx uuid.UUID, key LockKey, mode LockMode) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	st, ok := lm.locks[key]
	if !ok {
		st = &lockState{shared: make(map[uuid.UUID]struct{})}
		lm.locks[key] = st
	}

	if mode.Exclusive() {
		if st.exclusive != uuid.Nil && st.exclusive != tx {
			return false
		}
		for holder := range st.shared {
			if holder != tx {
				return false
			}
		}
		delete(st.shared, tx) // upgrade
		st.exclusive = tx
	} else {
		if st.exclusive != uuid.Nil && st.exclusive != tx {
			return false
		}
		if st.exclusive != tx {
			st.shared[tx] = struct{}{}
		}
	}

	if lm.held[tx] == nil {
		lm.held[tx] = make(map[LockKey]struct{})
	}
	lm.held[tx][key] = struct{}{}
	return true
}

// ReleaseAll releases every lock held by transaction tx.
func (lm *LockManager) ReleaseAll(tx uuid.UUID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for key := range lm.held[tx] {
		st, ok := lm.locks[key]
		if !ok {
			continue
		}
		if st.exclusive == tx {
			st.exclusive = uuid.Nil
		}
		delete(st.shared, tx)
		if st.exclusive == uuid.Nil && len(st.shared) == 0 {
			delete(lm.locks, key)
		}
	}
	delete(lm.held, tx)
}

// HeldCount returns how many locks transaction tx currently holds. Test
// hook.
func (lm *LockManager) HeldCount(tx uuid.UUID) int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.held[tx])
}
