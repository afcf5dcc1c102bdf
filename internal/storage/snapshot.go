// Package storage - Snapshot persistence
//
// What: Full-image checkpoints of a database: every table's page ranges,
// page directory, index entries, and the engine configuration.
// How: GOB encoding behind a snappy compression layer. Load rebuilds the
// in-memory structures and re-registers index entries.
// Why: A checkpoint surface for Open/Close without WAL machinery; crash
// recovery is out of scope.

package storage

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/klauspost/compress/snappy"
)

// diskTable is the serialized form of a Table.
type diskTable struct {
	Name         string
	NumColumns   int
	KeyColumn    int
	Ranges       []*PageRange
	Directory    map[RID]*Record
	IndexEntries map[int][]IndexEntry
	MergeCounter int
}

// diskDatabase is the serialized form of a Database.
type diskDatabase struct {
	Config *EngineConfig
	Tables map[string]*diskTable
}

// SaveToFile writes a snapshot of every table to path.
func (db *Database) SaveToFile(path string) error {
	dd := &diskDatabase{
		Config: db.cfg,
		Tables: make(map[string]*diskTable),
	}

	db.mu.RLock()
	for name, t := range db.tables {
		t.mu.RLock()
		dt := &diskTable{
			Name:         t.name,
			NumColumns:   t.numColumns,
			KeyColumn:    t.keyColumn,
			Ranges:       t.ranges,
			Directory:    t.directory,
			MergeCounter: t.mergeCounter,
		}
		t.mu.RUnlock()
		dt.IndexEntries = t.index.Entries()
		dd.Tables[name] = dt
	}
	db.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	sw := snappy.NewBufferedWriter(f)
	if err := gob.NewEncoder(sw).Encode(dd); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

// loadSnapshot restores tables from path. A missing file is not an error:
// Open on a fresh path starts empty.
func (db *Database) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	var dd diskDatabase
	if err := gob.NewDecoder(snappy.NewReader(f)).Decode(&dd); err != nil {
		return fmt.Errorf("snapshot: decode %s: %w", path, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if dd.Config != nil {
		dd.Config.normalize()
		db.cfg = dd.Config
	}
	db.tables = make(map[string]*Table, len(dd.Tables))
	for name, dt := range dd.Tables {
		t := NewTable(db, dt.Name, dt.NumColumns, dt.KeyColumn)
		t.ranges = dt.Ranges
		if dt.Directory != nil {
			t.directory = dt.Directory
		}
		t.mergeCounter = dt.MergeCounter
		t.index.Restore(dt.IndexEntries)
		db.tables[name] = t
	}
	return nil
}
