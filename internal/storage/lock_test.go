package storage

import (
	"testing"

	"github.com/google/uuid"
)

func TestLockSharedCompatible(t *testing.T) {
	lm := NewLockManager()
	tx1, tx2 := uuid.New(), uuid.New()
	key := LockKey{Table: "t", Key: 7}

	if !lm.AcquireLock(tx1, key, LockRead) {
		t.Fatal("tx1 read lock refused")
	}
	if !lm.AcquireLock(tx2, key, LockRead) {
		t.Error("Concurrent read locks should be compatible")
	}
}

func TestLockExclusiveConflict(t *testing.T) {
	lm := NewLockManager()
	tx1, tx2 := uuid.New(), uuid.New()
	key := LockKey{Table: "t", Key: 7}

	if !lm.AcquireLock(tx1, key, LockUpdate) {
		t.Fatal("tx1 update lock refused")
	}
	if lm.AcquireLock(tx2, key, LockRead) {
		t.Error("Read lock granted while exclusively held")
	}
	if lm.AcquireLock(tx2, key, LockDelete) {
		t.Error("Exclusive lock granted while exclusively held")
	}

	// Non-blocking refusal must not leak state: after release tx2 wins.
	lm.ReleaseAll(tx1)
	if !lm.AcquireLock(tx2, key, LockUpdate) {
		t.Error("Lock refused after holder released")
	}
}

func TestLockReentrancyAndUpgrade(t *testing.T) {
	lm := NewLockManager()
	tx := uuid.New()
	key := LockKey{Table: "t", Key: 1}

	if !lm.AcquireLock(tx, key, LockRead) {
		t.Fatal("read lock refused")
	}
	if !lm.AcquireLock(tx, key, LockRead) {
		t.Error("Re-acquiring own shared lock refused")
	}
	if !lm.AcquireLock(tx, key, LockUpdate) {
		t.Error("Upgrade refused while sole shared holder")
	}
	if !lm.AcquireLock(tx, key, LockRead) {
		t.Error("Read refused while holding own exclusive lock")
	}
}

func TestLockUpgradeBlockedByOtherReader(t *testing.T) {
	lm := NewLockManager()
	tx1, tx2 := uuid.New(), uuid.New()
	key := LockKey{Table: "t", Key: 1}

	lm.AcquireLock(tx1, key, LockRead)
	lm.AcquireLock(tx2, key, LockRead)

	if lm.AcquireLock(tx1, key, LockUpdate) {
		t.Error("Upgrade granted while another shared holder exists")
	}
}

func TestLockReleaseAll(t *testing.T) {
	lm := NewLockManager()
	tx1, tx2 := uuid.New(), uuid.New()

	lm.AcquireLock(tx1, LockKey{Table: "t", Key: 1}, LockUpdate)
	lm.AcquireLock(tx1, LockKey{Table: "t", Key: 2}, LockRead)
	lm.AcquireLock(tx1, LockKey{Table: "u", Key: 1}, LockInsert)

	if got := lm.HeldCount(tx1); got != 3 {
		t.Errorf("HeldCount = %d, want 3", got)
	}

	lm.ReleaseAll(tx1)
	if got := lm.HeldCount(tx1); got != 0 {
		t.Errorf("HeldCount after release = %d, want 0", got)
	}

	for _, k := range []LockKey{{Table: "t", Key: 1}, {Table: "t", Key: 2}, {Table: "u", Key: 1}} {
		if !lm.AcquireLock(tx2, k, LockUpdate) {
			t.Errorf("Lock %v still held after ReleaseAll", k)
		}
	}
}

func TestLockKeysAreIndependent(t *testing.T) {
	lm := NewLockManager()
	tx1, tx2 := uuid.New(), uuid.New()

	if !lm.AcquireLock(tx1, LockKey{Table: "t", Key: 1}, LockUpdate) {
		t.Fatal("lock refused")
	}
	if !lm.AcquireLock(tx2, LockKey{Table: "t", Key: 2}, LockUpdate) {
		t.Error("Lock on different key refused")
	}
	if !lm.AcquireLock(tx2, LockKey{Table: "other", Key: 1}, LockUpdate) {
		t.Error("Lock on same key in different table refused")
	}
}
