// Package engine implements the query layer of lstore.
//
// What: Point queries and mutations over one table: insert, select with
// version resolution, update, delete, range sums, and increment.
// How: The engine resolves keys to RIDs through the column index, walks
// indirection chains through the buffer pool (cycle-safe, bounded), and
// mutates pages through the table so direct structures and cached
// snapshots stay in step. With a transaction attached, record locks are
// acquired non-blocking and held until the transaction ends.
// Why: All failure is absorbed at this boundary: mutators report false,
// readers report empty, sums report zero. The engine never panics outward
// and keeps serving other records past a corrupt chain.
package engine

import (
	"time"

	"github.com/SimonWaldherr/lstore/internal/storage"
)

// maxChainHops bounds indirection walks against corrupt cyclic chains.
const maxChainHops = 1000

// Query performs operations on one table, optionally inside a transaction.
type Query struct {
	table *storage.Table
	tx    *Transaction
	db    *storage.Database
	locks *storage.LockManager
}

// NewQuery creates a query runner for t. tx may be nil for
// non-transactional use, which bypasses locking entirely.
func NewQuery(t *storage.Table, tx *Transaction) *Query {
	return &Query{
		table: t,
		tx:    tx,
		db:    t.Database(),
		locks: t.Database().LockManager(),
	}
}

// acquire takes a record lock when running transactionally. Without a
// transaction it always succeeds.
func (q *Query) acquire(key int64, mode storage.LockMode) bool {
	if q.tx == nil {
		return true
	}
	return q.locks.AcquireLock(q.tx.ID(), storage.LockKey{Table: q.table.Name(), Key: key}, mode)
}

func (q *Query) pageKey(rid storage.RID) storage.PageKey {
	return storage.PageKey{Table: q.table.Name(), Kind: rid.Kind, Range: rid.Range, Page: rid.Page}
}

// ───────────────────────────────────────────────────────────────────────────
// Insert
// ───────────────────────────────────────────────────────────────────────────

// Insert appends a new base record. It fails on duplicate primary key,
// column count mismatch, refused lock, or any storage error.
func (q *Query) Insert(columns ...int64) bool {
	if len(columns) != q.table.NumColumns() {
		return false
	}
	key := columns[q.table.KeyColumn()]
	if !q.acquire(key, storage.LockInsert) {
		return false
	}
	if len(q.table.Index().Locate(q.table.KeyColumn(), key)) > 0 {
		return false
	}

	ts := time.Now().UTC().Format(storage.TimestampFormat)
	schema := zeroSchema(q.table.NumColumns())
	_, err := q.table.InsertRecord(ts, schema, columns)
	return err == nil
}

// ───────────────────────────────────────────────────────────────────────────
// Delete
// ───────────────────────────────────────────────────────────────────────────

// Delete tombstones the record with the given primary key: the base slot's
// indirection becomes a tombstone, and the record leaves the page
// directory and the key index. Physical slots are never freed here.
func (q *Query) Delete(primaryKey int64) bool {
	rids := q.table.Index().Locate(q.table.KeyColumn(), primaryKey)
	if len(rids) == 0 {
		return false
	}
	if !q.acquire(primaryKey, storage.LockDelete) {
		return false
	}

	rid := rids[0]
	if rid.Kind != storage.KindBase {
		// Key index points at a tail after a key-change update; tombstone
		// its base anchor instead.
		anchor, ok := q.baseAnchor(rid)
		if !ok {
			return false
		}
		rid = anchor
	}
	if err := q.table.SetIndirection(rid, storage.Tombstone()); err != nil {
		return false
	}
	q.table.DirectoryDelete(rid)
	q.table.Index().Delete(q.table.KeyColumn(), primaryKey, rids[0])
	return true
}

// ───────────────────────────────────────────────────────────────────────────
// Select
// ───────────────────────────────────────────────────────────────────────────

// Select returns the latest version of every record whose column
// searchColumn currently indexes searchKey. projection holds a 0/1 flag
// per column; returned records carry only the flagged values, in column
// order. A refused read lock yields an empty result.
func (q *Query) Select(searchKey int64, searchColumn int, projection []int) []*storage.Record {
	rids := q.table.Index().Locate(searchColumn, searchKey)
	if len(rids) == 0 {
		return nil
	}
	if !q.acquire(searchKey, storage.LockRead) {
		return nil
	}

	out := make([]*storage.Record, 0, len(rids))
	for _, rid := range rids {
		if rec := q.selectLatest(rid, searchKey, projection); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// selectLatest resolves the newest version reachable from rid and
// materializes it under the projection.
func (q *Query) selectLatest(rid storage.RID, searchKey int64, projection []int) *storage.Record {
	latest := rid
	if rid.Kind == storage.KindBase {
		latest = q.latestVersion(rid)
	}
	// Key-changing updates can leave the located RID behind the newest
	// image; the directory scan restores it.
	if tailRID, _, ok := q.table.LatestTailForKey(searchKey); ok {
		latest = tailRID
	}
	return q.materialize(latest, searchKey, projection)
}

// SelectVersion reads a historical version: 0 is the latest, -1 the base
// image, and -k (k >= 2) steps k-1 versions back from the latest along
// the chain, clamped to the base. Positive versions are unsupported and yield an empty result.
func (q *Query) SelectVersion(searchKey int64, searchColumn int, projection []int, relativeVersion int) []*storage.Record {
	if relativeVersion > 0 {
		return nil
	}
	rids := q.table.Index().Locate(searchColumn, searchKey)
	if len(rids) == 0 {
		return nil
	}
	if !q.acquire(searchKey, storage.LockRead) {
		return nil
	}

	base := rids[0]
	for _, rid := range rids {
		if rid.Kind == storage.KindBase {
			base = rid
			break
		}
	}

	var rec *storage.Record
	switch {
	case relativeVersion == 0:
		rec = q.selectLatest(base, searchKey, projection)
	case relativeVersion == -1:
		rec = q.materialize(base, searchKey, projection)
	default:
		target := base
		if base.Kind == storage.KindBase {
			if latest := q.latestVersion(base); latest != base {
				target = q.stepBack(latest, -relativeVersion-1)
			}
		}
		rec = q.materialize(target, searchKey, projection)
	}
	if rec == nil {
		return nil
	}
	return []*storage.Record{rec}
}

// ───────────────────────────────────────────────────────────────────────────
// Update
// ───────────────────────────────────────────────────────────────────────────

// Update appends a new tail version for the record with the given primary
// key. A nil column keeps its current value, so every tail row is a
// complete image. The tail slot is fully written before the base slot's
// forward pointer is swapped to it.
func (q *Query) Update(primaryKey int64, columns ...*int64) bool {
	if len(columns) != q.table.NumColumns() {
		return false
	}
	rids := q.table.Index().Locate(q.table.KeyColumn(), primaryKey)
	if len(rids) == 0 {
		return false
	}
	if !q.acquire(primaryKey, storage.LockUpdate) {
		return false
	}

	located := rids[0]
	anchor, ok := q.baseAnchor(located)
	if !ok {
		return false
	}

	pool := q.db.BufferPool()
	baseKey := q.pageKey(anchor)
	basePage, err := pool.GetPage(baseKey)
	if err != nil {
		return false
	}
	defer pool.UnpinPage(baseKey)
	if anchor.Slot >= basePage.Len() {
		return false
	}

	latest := anchor
	if l := q.latestVersion(anchor); l != anchor {
		latest = l
	}
	if tailRID, _, ok := q.table.LatestTailForKey(primaryKey); ok {
		latest = tailRID
	}

	current, ok := q.table.DirectoryGet(latest)
	if !ok {
		current, ok = q.table.DirectoryGet(anchor)
	}
	if !ok {
		current = &storage.Record{RID: latest, Key: primaryKey, Columns: q.fullRow(latest)}
	}

	originalKey := primaryKey
	if baseRec, ok := q.table.DirectoryGet(anchor); ok && q.table.KeyColumn() < len(baseRec.Columns) {
		originalKey = baseRec.Columns[q.table.KeyColumn()]
	}

	// Build the complete tail image: supplied value, else the original
	// base key for the key column, else the prior latest image.
	row := make([]int64, q.table.NumColumns())
	schema := make([]byte, q.table.NumColumns())
	for c := range row {
		switch {
		case columns[c] != nil:
			row[c] = *columns[c]
			schema[c] = '1'
		case c == q.table.KeyColumn():
			row[c] = originalKey
			schema[c] = '0'
		default:
			schema[c] = '0'
			if c < len(current.Columns) {
				row[c] = current.Columns[c]
			}
		}
	}

	tailIdx, err := q.table.EnsureTailCapacity(anchor.Range)
	if err != nil {
		return false
	}
	tailPageKey := storage.PageKey{Table: q.table.Name(), Kind: storage.KindTail, Range: anchor.Range, Page: tailIdx}
	if _, err := pool.GetPage(tailPageKey); err != nil {
		return false
	}
	defer pool.UnpinPage(tailPageKey)

	ts := time.Now().UTC().Format(storage.TimestampFormat)
	tailRID, err := q.table.AppendTail(anchor.Range, tailIdx, row, ts, string(schema), storage.ForwardTo(latest))
	if err != nil {
		return false
	}
	// The tail slot is complete; now swap the base's forward pointer.
	if err := q.table.SetIndirection(anchor, storage.ForwardTo(tailRID)); err != nil {
		return false
	}

	newKey := row[q.table.KeyColumn()]
	q.table.DirectorySet(tailRID, &storage.Record{RID: tailRID, Key: newKey, Columns: row})

	if newKey != primaryKey {
		q.table.Index().Delete(q.table.KeyColumn(), primaryKey, located)
		q.table.Index().Delete(q.table.KeyColumn(), primaryKey, latest)
		q.table.DirectoryDelete(latest)
		q.table.Index().Insert(q.table.KeyColumn(), newKey, tailRID)
	}

	if q.table.NoteUpdate() {
		q.table.TriggerMerge()
	}
	return true
}

// ───────────────────────────────────────────────────────────────────────────
// Aggregates
// ───────────────────────────────────────────────────────────────────────────

// Sum adds up aggregateColumn over the latest version of every record
// whose primary key lies in [lo, hi]. Records are deduplicated by key and
// the range is rechecked on the resolved key, since a record may surface
// through multiple index entries after a key change. The second return is
// false when no record matched the range.
func (q *Query) Sum(lo, hi int64, aggregateColumn int) (int64, bool) {
	rids := q.table.Index().LocateRange(lo, hi)
	if len(rids) == 0 {
		return 0, false
	}

	var total int64
	seen := make(map[int64]bool)
	for _, rid := range rids {
		latest := rid
		if rid.Kind == storage.KindBase {
			latest = q.latestVersion(rid)
		}
		key := q.versionValue(latest, q.table.KeyColumn())
		if key < lo || key > hi || seen[key] {
			continue
		}
		seen[key] = true
		// Same key-change compensation as Select: the directory may hold
		// a newer tail than the located chain resolves to.
		if tailRID, _, ok := q.table.LatestTailForKey(key); ok {
			latest = tailRID
		}
		total += q.versionValue(latest, aggregateColumn)
	}
	return total, true
}

// SumVersion is Sum at a historical version. The range predicate uses the
// base key, since version resolution happens after the range check. An
// empty match returns 0.
func (q *Query) SumVersion(lo, hi int64, aggregateColumn, relativeVersion int) int64 {
	if relativeVersion > 0 {
		return 0
	}
	rids := q.table.Index().LocateRange(lo, hi)
	if len(rids) == 0 {
		return 0
	}

	var total int64
	seen := make(map[int64]bool)
	for _, rid := range rids {
		baseKey := q.versionValue(rid, q.table.KeyColumn())
		if baseKey < lo || baseKey > hi || seen[baseKey] {
			continue
		}
		seen[baseKey] = true

		switch {
		case relativeVersion == 0:
			target := rid
			if rid.Kind == storage.KindBase {
				target = q.latestVersion(rid)
			}
			if tailRID, rec, ok := q.table.LatestTailForKey(baseKey); ok {
				target = tailRID
				if aggregateColumn < len(rec.Columns) {
					total += rec.Columns[aggregateColumn]
					continue
				}
			}
			total += q.versionValue(target, aggregateColumn)
		case relativeVersion == -1:
			total += q.versionValue(rid, aggregateColumn)
		default:
			target := rid
			if rid.Kind == storage.KindBase {
				if latest := q.latestVersion(rid); latest != rid {
					target = q.stepBack(latest, -relativeVersion-1)
				}
			}
			total += q.versionValue(target, aggregateColumn)
		}
	}
	return total
}

// Increment adds one to column col of the record with the given key, by
// reading the latest image and issuing an update that preserves every
// other column.
func (q *Query) Increment(key int64, col int) bool {
	if col < 0 || col >= q.table.NumColumns() {
		return false
	}
	recs := q.Select(key, q.table.KeyColumn(), onesProjection(q.table.NumColumns()))
	if len(recs) == 0 || col >= len(recs[0].Columns) {
		return false
	}

	updated := make([]*int64, q.table.NumColumns())
	v := recs[0].Columns[col] + 1
	updated[col] = &v
	return q.Update(key, updated...)
}

// ───────────────────────────────────────────────────────────────────────────
// Version resolution
// ───────────────────────────────────────────────────────────────────────────

// latestVersion resolves the newest version of a base record. Every
// update swaps the base slot's forward pointer to the new tail, so the
// base points directly at the latest and resolution is a single hop;
// tail indirection pointers form the reverse log and must not be
// followed forward. Tombstoned or unreadable slots resolve to rid.
func (q *Query) latestVersion(rid storage.RID) storage.RID {
	if rid.Kind != storage.KindBase {
		return rid
	}
	pool := q.db.BufferPool()
	key := q.pageKey(rid)
	pd, err := pool.GetPage(key)
	if err != nil {
		return rid
	}
	if rid.Slot >= pd.Len() {
		pool.UnpinPage(key)
		return rid
	}
	ind := pd.Indirection[rid.Slot]
	pool.UnpinPage(key)

	if next, ok := ind.Forward(); ok && next != rid {
		return next
	}
	return rid
}

// stepBack walks hops versions backwards from latest. Tail indirection
// pointers form a reverse log (newest to oldest); the walk clamps at the
// base record.
func (q *Query) stepBack(latest storage.RID, hops int) storage.RID {
	pool := q.db.BufferPool()
	current := latest
	visited := map[storage.RID]bool{current: true}

	for i := 0; i < hops && i < maxChainHops; i++ {
		if current.Kind == storage.KindBase {
			return current
		}
		key := q.pageKey(current)
		pd, err := pool.GetPage(key)
		if err != nil {
			return current
		}
		if current.Slot >= pd.Len() {
			pool.UnpinPage(key)
			return current
		}
		ind := pd.Indirection[current.Slot]
		pool.UnpinPage(key)

		prev, ok := ind.Forward()
		if !ok || visited[prev] {
			return current
		}
		visited[prev] = true
		current = prev
	}
	return current
}

// baseAnchor resolves the base RID owning rid's chain. For a tail RID
// (the key index points at tails after key-change updates) it follows the
// reverse log down to the base.
func (q *Query) baseAnchor(rid storage.RID) (storage.RID, bool) {
	if rid.Kind == storage.KindBase {
		return rid, true
	}
	pool := q.db.BufferPool()
	current := rid
	visited := map[storage.RID]bool{current: true}

	for i := 0; i < maxChainHops; i++ {
		key := q.pageKey(current)
		pd, err := pool.GetPage(key)
		if err != nil {
			return storage.RID{}, false
		}
		if current.Slot >= pd.Len() {
			pool.UnpinPage(key)
			return storage.RID{}, false
		}
		ind := pd.Indirection[current.Slot]
		pool.UnpinPage(key)

		prev, ok := ind.Forward()
		if !ok || visited[prev] {
			return storage.RID{}, false
		}
		if prev.Kind == storage.KindBase {
			return prev, true
		}
		visited[prev] = true
		current = prev
	}
	return storage.RID{}, false
}

// ───────────────────────────────────────────────────────────────────────────
// Materialization
// ───────────────────────────────────────────────────────────────────────────

// materialize builds the projected record at rid: the page directory
// image when present, else column reads through the buffer pool with a
// direct page fallback. Unreadable values default to 0.
func (q *Query) materialize(rid storage.RID, key int64, projection []int) *storage.Record {
	rec, ok := q.table.DirectoryGet(rid)

	values := make([]int64, 0, len(projection))
	for c, flag := range projection {
		if flag != 1 {
			continue
		}
		if ok && c < len(rec.Columns) {
			values = append(values, rec.Columns[c])
			continue
		}
		values = append(values, q.columnValue(rid, c))
	}
	return &storage.Record{RID: rid, Key: key, Columns: values}
}

// versionValue reads one column of the version stored at rid: the page
// directory image when present, else the physical slot. Merge rewrites
// base page columns with consolidated latest images while preserving the
// directory's insert-time entries, so version reads must prefer the
// directory to stay stable across a merge.
func (q *Query) versionValue(rid storage.RID, col int) int64 {
	if rec, ok := q.table.DirectoryGet(rid); ok && col >= 0 && col < len(rec.Columns) {
		return rec.Columns[col]
	}
	return q.columnValue(rid, col)
}

// columnValue reads one column at rid through the buffer pool, falling
// back to direct page access on a miss. Returns 0 when unreadable.
func (q *Query) columnValue(rid storage.RID, col int) int64 {
	pool := q.db.BufferPool()
	key := q.pageKey(rid)
	if pd, err := pool.GetPage(key); err == nil {
		if col >= 0 && col < len(pd.Columns) && rid.Slot < len(pd.Columns[col]) {
			v := pd.Columns[col][rid.Slot]
			pool.UnpinPage(key)
			return v
		}
		pool.UnpinPage(key)
	}
	if v, err := q.table.ReadColumnAt(rid, col); err == nil {
		return v
	}
	return 0
}

// fullRow reads every column at rid.
func (q *Query) fullRow(rid storage.RID) []int64 {
	row := make([]int64, q.table.NumColumns())
	for c := range row {
		row[c] = q.columnValue(rid, c)
	}
	return row
}

func zeroSchema(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func onesProjection(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = 1
	}
	return p
}
