package storage

import "fmt"

// PageRange bounds base page growth: at most MaxBase base pages, after
// which inserts roll over to a new range. Tail pages grow without a cap.
type PageRange struct {
	BasePages []*RecordPage
	TailPages []*RecordPage

	NumCols int
	PageCap int
	MaxBase int
}

// NewPageRange constructs an empty range with one initial base page.
func NewPageRange(numColumns, pageCapacity, maxBasePages int) *PageRange {
	if maxBasePages <= 0 {
		maxBasePages = DefaultRangeBasePages
	}
	pr := &PageRange{
		NumCols: numColumns,
		PageCap: pageCapacity,
		MaxBase: maxBasePages,
	}
	pr.BasePages = append(pr.BasePages, NewRecordPage(numColumns, pageCapacity))
	return pr
}

// HasBaseCapacity reports whether an insert can land in this range: the
// last base page has room, or another base page may still be added.
func (pr *PageRange) HasBaseCapacity() bool {
	if len(pr.BasePages) == 0 {
		return pr.MaxBase > 0
	}
	if pr.BasePages[len(pr.BasePages)-1].HasCapacity() {
		return true
	}
	return len(pr.BasePages) < pr.MaxBase
}

// AddBasePage appends a fresh base page, failing once MaxBase is reached.
func (pr *PageRange) AddBasePage() (*RecordPage, error) {
	if len(pr.BasePages) >= pr.MaxBase {
		return nil, fmt.Errorf("page range: %d base pages: %w", len(pr.BasePages), ErrCapacityExhausted)
	}
	bp := NewRecordPage(pr.NumCols, pr.PageCap)
	pr.BasePages = append(pr.BasePages, bp)
	return bp, nil
}

// AddTailPage appends a freshly constructed tail page.
func (pr *PageRange) AddTailPage() *RecordPage {
	tp := NewRecordPage(pr.NumCols, pr.PageCap)
	pr.TailPages = append(pr.TailPages, tp)
	return tp
}

// BaseCount returns the number of base pages.
func (pr *PageRange) BaseCount() int { return len(pr.BasePages) }

// TailCount returns the number of tail pages.
func (pr *PageRange) TailCount() int { return len(pr.TailPages) }

// Base returns base page i.
func (pr *PageRange) Base(i int) (*RecordPage, error) {
	if i < 0 || i >= len(pr.BasePages) {
		return nil, fmt.Errorf("page range: base page %d of %d: %w", i, len(pr.BasePages), ErrOutOfBounds)
	}
	return pr.BasePages[i], nil
}

// Tail returns tail page i.
func (pr *PageRange) Tail(i int) (*RecordPage, error) {
	if i < 0 || i >= len(pr.TailPages) {
		return nil, fmt.Errorf("page range: tail page %d of %d: %w", i, len(pr.TailPages), ErrOutOfBounds)
	}
	return pr.TailPages[i], nil
}

// Page returns the page of the given kind at index i.
func (pr *PageRange) Page(kind PageKind, i int) (*RecordPage, error) {
	if kind == KindBase {
		return pr.Base(i)
	}
	return pr.Tail(i)
}

// TailRecords returns the total number of tail slots written in this range.
func (pr *PageRange) TailRecords() int {
	n := 0
	for _, tp := range pr.TailPages {
		n += tp.NumRecords()
	}
	return n
}
