package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/lstore/internal/storage"
)

// Transaction groups query operations under two-phase locking: every lock
// taken on its behalf is held until Commit or Abort releases them all.
// Lock acquisition is non-blocking; a refused lock means the caller should
// abort and retry.
type Transaction struct {
	id uuid.UUID
	db *storage.Database

	mu   sync.Mutex
	done bool
}

// NewTransaction starts a transaction against db.
func NewTransaction(db *storage.Database) *Transaction {
	return &Transaction{id: uuid.New(), db: db}
}

// ID returns the transaction identifier.
func (tx *Transaction) ID() uuid.UUID { return tx.id }

// Commit releases every lock the transaction holds. Commit and Abort are
// idempotent.
func (tx *Transaction) Commit() {
	tx.release()
}

// Abort releases every lock the transaction holds.
func (tx *Transaction) Abort() {
	tx.release()
}

func (tx *Transaction) release() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return
	}
	tx.done = true
	tx.db.LockManager().ReleaseAll(tx.id)
}
