// Package storage provides the columnar data structures for lstore.
//
// What: An L-Store style table layout: append-only integer column chunks
// grouped into base and tail pages, page ranges bounding base growth, a
// page-id keyed buffer pool with pin counts, per-column value indexes, a
// non-blocking lock manager, and periodic tail-to-base consolidation.
// How: Every logical record has a base image plus a chain of tail images
// linked by per-slot indirection pointers. Writers append tail records and
// swap the base slot's forward pointer; readers resolve versions by walking
// the chain. Snapshots serialize the catalog with GOB behind a snappy layer.
// Why: Append-only updates keep writes cheap while merges restore a
// read-optimized base layout, without the complexity of a full page manager.
package storage

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Constants
// ───────────────────────────────────────────────────────────────────────────

const (
	// DefaultPageCapacity is the number of slots per physical page.
	DefaultPageCapacity = 512

	// DefaultRangeBasePages is the number of base pages per page range.
	DefaultRangeBasePages = 16

	// DefaultMergeThreshold is the update count at which a table schedules
	// a background merge.
	DefaultMergeThreshold = 512

	// TimestampFormat is the per-slot creation time layout. The value is
	// opaque to the engine; it is stored and returned verbatim.
	TimestampFormat = "20060102150405"
)

// ───────────────────────────────────────────────────────────────────────────
// Physical page
// ───────────────────────────────────────────────────────────────────────────

// PhysicalPage is a fixed-capacity, append-only chunk of a single integer
// column. Fields are exported for snapshot serialization only; all access
// goes through the methods.
type PhysicalPage struct {
	Data []int64
	Cap  int
}

// NewPhysicalPage allocates an empty page with the given slot capacity.
func NewPhysicalPage(capacity int) *PhysicalPage {
	if capacity <= 0 {
		capacity = DefaultPageCapacity
	}
	return &PhysicalPage{Data: make([]int64, 0, capacity), Cap: capacity}
}

// HasCapacity reports whether another value can be appended.
func (p *PhysicalPage) HasCapacity() bool {
	return len(p.Data) < p.Cap
}

// NumRecords returns the number of values stored.
func (p *PhysicalPage) NumRecords() int {
	return len(p.Data)
}

// Write appends v and returns the slot it was written to.
func (p *PhysicalPage) Write(v int64) (int, error) {
	if !p.HasCapacity() {
		return 0, fmt.Errorf("physical page: %w (%d/%d slots)", ErrCapacityExhausted, len(p.Data), p.Cap)
	}
	p.Data = append(p.Data, v)
	return len(p.Data) - 1, nil
}

// Read returns count values starting at slot.
func (p *PhysicalPage) Read(slot, count int) ([]int64, error) {
	if slot < 0 || count < 0 || slot+count > len(p.Data) {
		return nil, fmt.Errorf("physical page: read [%d,%d) of %d records: %w", slot, slot+count, len(p.Data), ErrOutOfBounds)
	}
	out := make([]int64, count)
	copy(out, p.Data[slot:slot+count])
	return out, nil
}

// ───────────────────────────────────────────────────────────────────────────
// Record page (base / tail)
// ───────────────────────────────────────────────────────────────────────────

// RecordPage is a row group: one PhysicalPage per column plus four parallel
// per-slot metadata vectors. Base and tail pages share this layout; the RID
// kind tells them apart. The vectors and every column page always agree on
// length (see CheckInvariant).
type RecordPage struct {
	Columns     []*PhysicalPage
	RIDs        []RID
	Timestamps  []string
	Schema      []string
	Indirection []Indirection
}

// NewRecordPage constructs a page with numColumns empty column chunks.
func NewRecordPage(numColumns, capacity int) *RecordPage {
	cols := make([]*PhysicalPage, numColumns)
	for i := range cols {
		cols[i] = NewPhysicalPage(capacity)
	}
	return &RecordPage{Columns: cols}
}

// NumRecords returns the number of slots in use.
func (rp *RecordPage) NumRecords() int {
	return len(rp.RIDs)
}

// HasCapacity reports whether another slot can be appended.
func (rp *RecordPage) HasCapacity() bool {
	if len(rp.Columns) == 0 {
		return false
	}
	return rp.Columns[0].HasCapacity()
}

// Append pushes one complete slot: the column values and all four metadata
// entries, as a single logical unit. It fails before mutating anything when
// the value count is wrong or any column page is full.
func (rp *RecordPage) Append(values []int64, rid RID, timestamp, schema string, ind Indirection) error {
	if len(values) != len(rp.Columns) {
		return fmt.Errorf("record page: %d values for %d columns: %w", len(values), len(rp.Columns), ErrOutOfBounds)
	}
	for _, col := range rp.Columns {
		if !col.HasCapacity() {
			return fmt.Errorf("record page: %w", ErrCapacityExhausted)
		}
	}
	for i, v := range values {
		if _, err := rp.Columns[i].Write(v); err != nil {
			return err
		}
	}
	rp.RIDs = append(rp.RIDs, rid)
	rp.Timestamps = append(rp.Timestamps, timestamp)
	rp.Schema = append(rp.Schema, schema)
	rp.Indirection = append(rp.Indirection, ind)
	return nil
}

// IndirectionAt returns the indirection entry for slot.
func (rp *RecordPage) IndirectionAt(slot int) (Indirection, error) {
	if slot < 0 || slot >= len(rp.Indirection) {
		return Indirection{}, fmt.Errorf("record page: indirection slot %d of %d: %w", slot, len(rp.Indirection), ErrOutOfBounds)
	}
	return rp.Indirection[slot], nil
}

// SetIndirection overwrites the indirection entry for slot.
func (rp *RecordPage) SetIndirection(slot int, ind Indirection) error {
	if slot < 0 || slot >= len(rp.Indirection) {
		return fmt.Errorf("record page: indirection slot %d of %d: %w", slot, len(rp.Indirection), ErrOutOfBounds)
	}
	rp.Indirection[slot] = ind
	return nil
}

// ReadColumn returns the value of column col at slot.
func (rp *RecordPage) ReadColumn(col, slot int) (int64, error) {
	if col < 0 || col >= len(rp.Columns) {
		return 0, fmt.Errorf("record page: column %d of %d: %w", col, len(rp.Columns), ErrOutOfBounds)
	}
	vals, err := rp.Columns[col].Read(slot, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// Row returns the full image stored at slot.
func (rp *RecordPage) Row(slot int) ([]int64, error) {
	if slot < 0 || slot >= rp.NumRecords() {
		return nil, fmt.Errorf("record page: slot %d of %d: %w", slot, rp.NumRecords(), ErrOutOfBounds)
	}
	row := make([]int64, len(rp.Columns))
	for i, col := range rp.Columns {
		vals, err := col.Read(slot, 1)
		if err != nil {
			return nil, err
		}
		row[i] = vals[0]
	}
	return row, nil
}

// CheckInvariant verifies that the metadata vectors and every column page
// agree on length.
func (rp *RecordPage) CheckInvariant() error {
	n := len(rp.RIDs)
	if len(rp.Timestamps) != n || len(rp.Schema) != n || len(rp.Indirection) != n {
		return fmt.Errorf("record page: metadata vectors disagree (%d/%d/%d/%d)",
			n, len(rp.Timestamps), len(rp.Schema), len(rp.Indirection))
	}
	for i, col := range rp.Columns {
		if col.NumRecords() != n {
			return fmt.Errorf("record page: column %d has %d records, metadata has %d", i, col.NumRecords(), n)
		}
	}
	return nil
}

// Snapshot produces a slot-aligned deep copy of the page for the buffer
// pool view.
func (rp *RecordPage) Snapshot() *PageData {
	n := rp.NumRecords()
	pd := &PageData{
		Columns:     make([][]int64, len(rp.Columns)),
		RIDs:        make([]RID, n),
		Timestamps:  make([]string, n),
		Schema:      make([]string, n),
		Indirection: make([]Indirection, n),
	}
	for i, col := range rp.Columns {
		pd.Columns[i] = make([]int64, len(col.Data))
		copy(pd.Columns[i], col.Data)
	}
	copy(pd.RIDs, rp.RIDs)
	copy(pd.Timestamps, rp.Timestamps)
	copy(pd.Schema, rp.Schema)
	copy(pd.Indirection, rp.Indirection)
	return pd
}
