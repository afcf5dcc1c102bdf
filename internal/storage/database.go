// Package storage - Database
//
// What: The registry of tables, owning the process-wide buffer pool, lock
// manager, and maintenance scheduler shared by all of them.
// How: A mutex-guarded name->table map. The database implements PageLoader
// so buffer pool misses materialize straight from the backing pages.
// Why: One authoritative owner for the shared resources keeps their
// lifetimes bound to database construction and Close.

package storage

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Database is a registry of tables plus the shared engine infrastructure.
type Database struct {
	mu     sync.RWMutex
	id     uuid.UUID
	tables map[string]*Table
	path   string

	pool  *BufferPool
	locks *LockManager
	cfg   *EngineConfig
	sched *Scheduler
}

// NewDatabase creates an empty database with the default configuration.
func NewDatabase() *Database {
	return NewDatabaseWithConfig(DefaultEngineConfig())
}

// NewDatabaseWithConfig creates an empty database. A merge sweep schedule
// in the configuration starts the maintenance scheduler immediately.
func NewDatabaseWithConfig(cfg *EngineConfig) *Database {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	cfg.normalize()

	db := &Database{
		id:     uuid.New(),
		tables: make(map[string]*Table),
		locks:  NewLockManager(),
		cfg:    cfg,
	}
	db.pool = NewBufferPool(cfg.MaxCachedPages, db)

	if cfg.MergeSweepSpec != "" {
		db.sched = NewScheduler(db, cfg.MergeSweepSpec)
		if err := db.sched.Start(); err != nil {
			log.Printf("lstore: merge sweep disabled: %v", err)
			db.sched = nil
		}
	}
	return db
}

// ID returns the database instance identifier.
func (db *Database) ID() uuid.UUID { return db.id }

// Config returns the engine configuration.
func (db *Database) Config() *EngineConfig { return db.cfg }

// BufferPool returns the shared page cache.
func (db *Database) BufferPool() *BufferPool { return db.pool }

// LockManager returns the shared record lock manager.
func (db *Database) LockManager() *LockManager { return db.locks }

// CreateTable registers a new table with numColumns integer columns whose
// primary key is at keyIndex, and creates a point index for every column.
func (db *Database) CreateTable(name string, numColumns, keyIndex int) (*Table, error) {
	if numColumns <= 0 {
		return nil, fmt.Errorf("create table %s: %d columns: %w", name, numColumns, ErrOutOfBounds)
	}
	if keyIndex < 0 || keyIndex >= numColumns {
		return nil, fmt.Errorf("create table %s: key index %d of %d columns: %w", name, keyIndex, numColumns, ErrOutOfBounds)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("create table %s: %w", name, ErrTableExists)
	}
	t := NewTable(db, name, numColumns, keyIndex)
	for c := 0; c < numColumns; c++ {
		t.Index().CreateIndex(c)
	}
	db.tables[name] = t
	return t, nil
}

// DropTable drops every column index of the named table and removes it.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	t, ok := db.tables[name]
	if !ok {
		db.mu.Unlock()
		return fmt.Errorf("drop table %s: %w", name, ErrTableNotFound)
	}
	for c := 0; c < t.NumColumns(); c++ {
		t.Index().DropIndex(c)
	}
	delete(db.tables, name)
	db.mu.Unlock()

	db.pool.DropTable(name)
	return nil
}

// GetTable returns the named table.
func (db *Database) GetTable(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("get table %s: %w", name, ErrTableNotFound)
	}
	return t, nil
}

// Tables returns the registered table names, sorted.
func (db *Database) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadPage implements PageLoader: buffer pool misses materialize from the
// backing record pages.
func (db *Database) LoadPage(key PageKey) (*PageData, error) {
	t, err := db.GetTable(key.Table)
	if err != nil {
		return nil, err
	}
	return t.SnapshotPage(key.Kind, key.Range, key.Page)
}

// Open attaches the database to a snapshot file, loading it when present.
// The path is remembered for Close.
func (db *Database) Open(path string) error {
	db.mu.Lock()
	db.path = path
	db.mu.Unlock()
	return db.loadSnapshot(path)
}

// Close stops the maintenance scheduler and, when Open was given a path,
// writes a final snapshot.
func (db *Database) Close() error {
	if db.sched != nil {
		db.sched.Stop()
	}
	db.mu.RLock()
	path := db.path
	db.mu.RUnlock()
	if path == "" {
		return nil
	}
	return db.SaveToFile(path)
}
