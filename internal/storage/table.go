// Package storage - Table
//
// What: A table owns its page ranges, the page directory (RID to
// materialized image), the per-column index, and the merge counter.
// How: Inserts land in the last base page of the last range, rolling over
// to fresh pages and ranges as capacity runs out. Every structural
// mutation also refreshes the buffer pool snapshot of the touched page.
// Why: The page directory is a lookaside cache of the image written at a
// slot - not a version resolver; version resolution is the query engine's
// job via indirection chains.

package storage

import (
	"fmt"
	"sync"
)

// Record is the materialized image written at one slot: the RID, the
// primary key at write time, and the column values. Columns may be a
// subset when the record was produced by a projection.
type Record struct {
	RID     RID
	Key     int64
	Columns []int64
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	cols := make([]int64, len(r.Columns))
	copy(cols, r.Columns)
	return &Record{RID: r.RID, Key: r.Key, Columns: cols}
}

// Table is one relation: an ordered list of page ranges plus the lookaside
// page directory and the column index. All methods are safe for concurrent
// use.
type Table struct {
	name       string
	numColumns int
	keyColumn  int

	mu        sync.RWMutex
	ranges    []*PageRange
	directory map[RID]*Record

	index *Index
	db    *Database
	cfg   *EngineConfig

	mergeCounter int
	merging      bool
}

// NewTable constructs an empty table bound to db.
func NewTable(db *Database, name string, numColumns, keyColumn int) *Table {
	return &Table{
		name:       name,
		numColumns: numColumns,
		keyColumn:  keyColumn,
		directory:  make(map[RID]*Record),
		index:      NewIndex(numColumns, keyColumn),
		db:         db,
		cfg:        db.Config(),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// NumColumns returns the column count.
func (t *Table) NumColumns() int { return t.numColumns }

// KeyColumn returns the primary key column position.
func (t *Table) KeyColumn() int { return t.keyColumn }

// Index returns the table's column index.
func (t *Table) Index() *Index { return t.index }

// Database returns the owning database.
func (t *Table) Database() *Database { return t.db }

// ───────────────────────────────────────────────────────────────────────────
// Insert path
// ───────────────────────────────────────────────────────────────────────────

// InsertRecord appends a new base record: it allocates a page range or
// base page when needed, writes the row, registers the page directory
// image, and indexes every column. The buffer pool snapshot of the target
// page is refreshed so caches and backing structures agree.
func (t *Table) InsertRecord(timestamp, schema string, columns []int64) (RID, error) {
	if len(columns) != t.numColumns {
		return RID{}, fmt.Errorf("table %s: %d values for %d columns: %w", t.name, len(columns), t.numColumns, ErrOutOfBounds)
	}
	key := columns[t.keyColumn]
	if hits := t.index.Locate(t.keyColumn, key); len(hits) > 0 {
		return RID{}, fmt.Errorf("table %s: key %d: %w", t.name, key, ErrDuplicateKey)
	}

	t.mu.Lock()
	if len(t.ranges) == 0 || !t.ranges[len(t.ranges)-1].HasBaseCapacity() {
		t.ranges = append(t.ranges, NewPageRange(t.numColumns, t.cfg.PageCapacity, t.cfg.RangeBasePages))
	}
	prIdx := len(t.ranges) - 1
	pr := t.ranges[prIdx]

	bp := pr.BasePages[pr.BaseCount()-1]
	if !bp.HasCapacity() {
		var err error
		bp, err = pr.AddBasePage()
		if err != nil {
			t.mu.Unlock()
			return RID{}, err
		}
	}
	bpIdx := pr.BaseCount() - 1

	rid := RID{Range: prIdx, Page: bpIdx, Slot: bp.NumRecords(), Kind: KindBase}
	if err := bp.Append(columns, rid, timestamp, schema, NoIndirection()); err != nil {
		t.mu.Unlock()
		return RID{}, err
	}

	rec := &Record{RID: rid, Key: key}
	rec.Columns = append(rec.Columns, columns...)
	t.directory[rid] = rec
	snap := bp.Snapshot()
	t.mu.Unlock()

	for c := 0; c < t.numColumns; c++ {
		t.index.Insert(c, columns[c], rid)
	}
	t.db.BufferPool().SetPage(PageKey{Table: t.name, Kind: KindBase, Range: prIdx, Page: bpIdx}, snap)
	return rid, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Page access
// ───────────────────────────────────────────────────────────────────────────

// RangeCount returns the number of page ranges.
func (t *Table) RangeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ranges)
}

// Range returns page range i.
func (t *Table) Range(i int) (*PageRange, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rangeLocked(i)
}

func (t *Table) rangeLocked(i int) (*PageRange, error) {
	if i < 0 || i >= len(t.ranges) {
		return nil, fmt.Errorf("table %s: page range %d of %d: %w", t.name, i, len(t.ranges), ErrOutOfBounds)
	}
	return t.ranges[i], nil
}

// pageLocked resolves a (kind, range, page) triple. Must hold t.mu.
func (t *Table) pageLocked(kind PageKind, rangeIdx, pageIdx int) (*RecordPage, error) {
	pr, err := t.rangeLocked(rangeIdx)
	if err != nil {
		return nil, err
	}
	return pr.Page(kind, pageIdx)
}

// SnapshotPage produces the buffer pool view of a page.
func (t *Table) SnapshotPage(kind PageKind, rangeIdx, pageIdx int) (*PageData, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rp, err := t.pageLocked(kind, rangeIdx, pageIdx)
	if err != nil {
		return nil, err
	}
	return rp.Snapshot(), nil
}

// SyncPage refreshes the buffer pool snapshot of a page after a direct
// mutation.
func (t *Table) SyncPage(kind PageKind, rangeIdx, pageIdx int) error {
	snap, err := t.SnapshotPage(kind, rangeIdx, pageIdx)
	if err != nil {
		return err
	}
	t.db.BufferPool().SetPage(PageKey{Table: t.name, Kind: kind, Range: rangeIdx, Page: pageIdx}, snap)
	return nil
}

// ReadColumnAt reads one column value directly from the backing page,
// bypassing the buffer pool. Fallback path for cache misses.
func (t *Table) ReadColumnAt(rid RID, col int) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rp, err := t.pageLocked(rid.Kind, rid.Range, rid.Page)
	if err != nil {
		return 0, err
	}
	return rp.ReadColumn(col, rid.Slot)
}

// SetIndirection overwrites the indirection entry at rid's slot and syncs
// the buffer pool view.
func (t *Table) SetIndirection(rid RID, ind Indirection) error {
	t.mu.Lock()
	rp, err := t.pageLocked(rid.Kind, rid.Range, rid.Page)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if err := rp.SetIndirection(rid.Slot, ind); err != nil {
		t.mu.Unlock()
		return err
	}
	snap := rp.Snapshot()
	t.mu.Unlock()

	t.db.BufferPool().SetPage(PageKey{Table: t.name, Kind: rid.Kind, Range: rid.Range, Page: rid.Page}, snap)
	return nil
}

// EnsureTailCapacity returns the index of a tail page in range rangeIdx
// with room for one more slot, allocating one when the range has no tails
// or the last tail is full.
func (t *Table) EnsureTailCapacity(rangeIdx int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pr, err := t.rangeLocked(rangeIdx)
	if err != nil {
		return 0, err
	}
	if pr.TailCount() == 0 || !pr.TailPages[pr.TailCount()-1].HasCapacity() {
		pr.AddTailPage()
	}
	return pr.TailCount() - 1, nil
}

// AppendTail writes one complete tail slot and syncs the buffer pool view.
// The returned RID addresses the new slot.
func (t *Table) AppendTail(rangeIdx, tailIdx int, values []int64, timestamp, schema string, ind Indirection) (RID, error) {
	t.mu.Lock()
	pr, err := t.rangeLocked(rangeIdx)
	if err != nil {
		t.mu.Unlock()
		return RID{}, err
	}
	tp, err := pr.Tail(tailIdx)
	if err != nil {
		t.mu.Unlock()
		return RID{}, err
	}
	rid := RID{Range: rangeIdx, Page: tailIdx, Slot: tp.NumRecords(), Kind: KindTail}
	if err := tp.Append(values, rid, timestamp, schema, ind); err != nil {
		t.mu.Unlock()
		return RID{}, err
	}
	snap := tp.Snapshot()
	t.mu.Unlock()

	t.db.BufferPool().SetPage(PageKey{Table: t.name, Kind: KindTail, Range: rangeIdx, Page: tailIdx}, snap)
	return rid, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Page directory
// ───────────────────────────────────────────────────────────────────────────

// DirectoryGet returns the materialized image stored for rid.
func (t *Table) DirectoryGet(rid RID) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.directory[rid]
	return rec, ok
}

// DirectorySet installs the image for rid.
func (t *Table) DirectorySet(rid RID, rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.directory[rid] = rec
}

// DirectoryDelete removes the image for rid.
func (t *Table) DirectoryDelete(rid RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.directory, rid)
}

// DirectoryLen returns the number of directory entries. Test hook.
func (t *Table) DirectoryLen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.directory)
}

// LatestTailForKey scans the directory for tail images carrying the given
// primary key and returns the newest one. This compensates for chains
// broken by key-changing updates.
func (t *Table) LatestTailForKey(key int64) (RID, *Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var (
		best    RID
		bestRec *Record
		found   bool
	)
	for rid, rec := range t.directory {
		if rid.Kind != KindTail || rec.Key != key {
			continue
		}
		if !found || best.Less(rid) {
			best, bestRec, found = rid, rec, true
		}
	}
	return best, bestRec, found
}

// ───────────────────────────────────────────────────────────────────────────
// Merge bookkeeping
// ───────────────────────────────────────────────────────────────────────────

// NoteUpdate bumps the merge counter and reports whether the merge
// threshold was crossed; crossing resets the counter.
func (t *Table) NoteUpdate() bool {
	if t.cfg.MergeThreshold <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mergeCounter++
	if t.mergeCounter < t.cfg.MergeThreshold {
		return false
	}
	t.mergeCounter = 0
	return true
}

// PendingTailRecords returns the total tail slots across all ranges.
func (t *Table) PendingTailRecords() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, pr := range t.ranges {
		n += pr.TailRecords()
	}
	return n
}

// CheckInvariants validates every page's metadata alignment. Test hook.
func (t *Table) CheckInvariants() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ri, pr := range t.ranges {
		for pi, bp := range pr.BasePages {
			if err := bp.CheckInvariant(); err != nil {
				return fmt.Errorf("range %d base %d: %w", ri, pi, err)
			}
		}
		for pi, tp := range pr.TailPages {
			if err := tp.CheckInvariant(); err != nil {
				return fmt.Errorf("range %d tail %d: %w", ri, pi, err)
			}
		}
	}
	return nil
}
