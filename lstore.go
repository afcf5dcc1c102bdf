// Package lstore provides an embeddable L-Store style columnar storage
// engine for Go applications.
//
// lstore keeps every logical record as a base image plus an append-only
// chain of tail images linked by per-slot indirection pointers. Updates
// append tail records instead of overwriting, reads resolve the latest or
// a historical version by walking the chain, and a background merge
// periodically consolidates tail data back into read-optimized base pages.
//
// # Basic Usage
//
// Create a database, a table, and run queries:
//
//	db := lstore.NewDatabase()
//	table, _ := db.CreateTable("grades", 3, 0)
//
//	q := lstore.NewQuery(table, nil)
//	q.Insert(100, 11, 12)
//	q.Update(100, nil, lstore.Int(22), nil)
//
//	recs := q.Select(100, 0, []int{1, 1, 1})        // latest: [100 22 12]
//	old := q.SelectVersion(100, 0, []int{1, 1, 1}, -1) // base: [100 11 12]
//	_ = recs
//	_ = old
//
// # Transactions
//
// Attach a transaction for two-phase locking; refused locks mean abort
// and retry:
//
//	tx := lstore.NewTransaction(db)
//	q := lstore.NewQuery(table, tx)
//	if !q.Update(100, nil, lstore.Int(33), nil) {
//	    tx.Abort()
//	} else {
//	    tx.Commit()
//	}
//
// # Persistence
//
// Snapshots are full-image checkpoints:
//
//	db.Open("grades.lsn") // loads the snapshot when present
//	defer db.Close()      // writes it back
package lstore

import (
	"github.com/SimonWaldherr/lstore/internal/engine"
	"github.com/SimonWaldherr/lstore/internal/storage"
)

// ============================================================================
// Core Types - Re-exported from internal packages for public API
// ============================================================================

// Database is a registry of tables owning the shared buffer pool, lock
// manager, and maintenance scheduler. Use NewDatabase to create one.
type Database = storage.Database

// Table is one relation: page ranges, the page directory, and the
// per-column index. Created via Database.CreateTable.
type Table = storage.Table

// Record is a materialized record image: RID, primary key, and column
// values (a subset under projection).
type Record = storage.Record

// RID addresses a record slot: page range, page, slot, and base/tail kind.
type RID = storage.RID

// Indirection is a slot's chain pointer: none, tombstone, or a RID (the
// latest tail for a base slot, the previous version for a tail slot).
type Indirection = storage.Indirection

// EngineConfig collects the engine tunables (page capacity, range size,
// merge threshold, buffer pool bound, merge sweep schedule).
type EngineConfig = storage.EngineConfig

// CacheStats reports buffer pool counters.
type CacheStats = storage.CacheStats

// Query runs operations against one table, optionally transactionally.
type Query = engine.Query

// Transaction groups query operations under non-blocking two-phase
// locking.
type Transaction = engine.Transaction

// ============================================================================
// Constructors
// ============================================================================

// NewDatabase creates an empty database with the default configuration.
func NewDatabase() *Database { return storage.NewDatabase() }

// NewDatabaseWithConfig creates an empty database with cfg.
func NewDatabaseWithConfig(cfg *EngineConfig) *Database {
	return storage.NewDatabaseWithConfig(cfg)
}

// DefaultEngineConfig returns the stock engine configuration.
func DefaultEngineConfig() *EngineConfig { return storage.DefaultEngineConfig() }

// LoadConfig reads an EngineConfig from a YAML file.
func LoadConfig(path string) (*EngineConfig, error) { return storage.LoadConfig(path) }

// NewQuery creates a query runner for table. tx may be nil for
// non-transactional use.
func NewQuery(table *Table, tx *Transaction) *Query { return engine.NewQuery(table, tx) }

// NewTransaction starts a transaction against db.
func NewTransaction(db *Database) *Transaction { return engine.NewTransaction(db) }

// Int returns a pointer to v, for Update arguments where nil preserves
// the current column value.
func Int(v int64) *int64 { return &v }
