package storage

import (
	"fmt"
	"testing"
)

// fakeLoader materializes synthetic one-slot pages and counts loads.
type fakeLoader struct {
	loads int
	fail  bool
}

func (fl *fakeLoader) LoadPage(key PageKey) (*PageData, error) {
	fl.loads++
	if fl.fail {
		return nil, fmt.Errorf("load %s: %w", key, ErrOutOfBounds)
	}
	return &PageData{
		Columns:     [][]int64{{int64(key.Page)}},
		RIDs:        []RID{{Range: key.Range, Page: key.Page, Kind: key.Kind}},
		Timestamps:  []string{"20260101120000"},
		Schema:      []string{"0"},
		Indirection: []Indirection{NoIndirection()},
	}, nil
}

func TestBufferPoolPinUnpin(t *testing.T) {
	fl := &fakeLoader{}
	bp := NewBufferPool(8, fl)
	key := PageKey{Table: "t", Kind: KindBase}

	pd, err := bp.GetPage(key)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if pd.Len() != 1 {
		t.Errorf("Len = %d, want 1", pd.Len())
	}
	if got := bp.PinCount(key); got != 1 {
		t.Errorf("PinCount = %d, want 1", got)
	}

	if _, err := bp.GetPage(key); err != nil {
		t.Fatalf("Second GetPage failed: %v", err)
	}
	if got := bp.PinCount(key); got != 2 {
		t.Errorf("PinCount = %d, want 2", got)
	}
	if fl.loads != 1 {
		t.Errorf("Expected 1 load, got %d", fl.loads)
	}

	bp.UnpinPage(key)
	bp.UnpinPage(key)
	if got := bp.PinCount(key); got != 0 {
		t.Errorf("PinCount after unpins = %d, want 0", got)
	}
	// Extra unpin is a safe no-op.
	bp.UnpinPage(key)
	if got := bp.PinCount(key); got != 0 {
		t.Errorf("PinCount after extra unpin = %d, want 0", got)
	}
}

func TestBufferPoolEvictsOnlyUnpinned(t *testing.T) {
	fl := &fakeLoader{}
	bp := NewBufferPool(2, fl)

	k0 := PageKey{Table: "t", Kind: KindBase, Page: 0}
	k1 := PageKey{Table: "t", Kind: KindBase, Page: 1}
	k2 := PageKey{Table: "t", Kind: KindBase, Page: 2}

	if _, err := bp.GetPage(k0); err != nil {
		t.Fatal(err)
	}
	if _, err := bp.GetPage(k1); err != nil {
		t.Fatal(err)
	}
	bp.UnpinPage(k1) // k0 stays pinned

	if _, err := bp.GetPage(k2); err != nil {
		t.Fatal(err)
	}

	stats := bp.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if bp.PinCount(k0) != 1 {
		t.Error("Pinned page was evicted")
	}

	// k1 was evicted; fetching it again loads.
	before := fl.loads
	if _, err := bp.GetPage(k1); err != nil {
		t.Fatal(err)
	}
	if fl.loads != before+1 {
		t.Errorf("Expected reload of evicted page (loads %d -> %d)", before, fl.loads)
	}
}

func TestBufferPoolSetPagePreservesPins(t *testing.T) {
	fl := &fakeLoader{}
	bp := NewBufferPool(8, fl)
	key := PageKey{Table: "t", Kind: KindTail, Range: 1, Page: 2}

	if _, err := bp.GetPage(key); err != nil {
		t.Fatal(err)
	}

	mutated := &PageData{
		Columns:     [][]int64{{42}},
		RIDs:        []RID{{Range: 1, Page: 2, Kind: KindTail}},
		Timestamps:  []string{"20260101120000"},
		Schema:      []string{"1"},
		Indirection: []Indirection{NoIndirection()},
	}
	bp.SetPage(key, mutated)

	if got := bp.PinCount(key); got != 1 {
		t.Errorf("PinCount after SetPage = %d, want 1", got)
	}
	pd, err := bp.GetPage(key)
	if err != nil {
		t.Fatal(err)
	}
	if pd.Columns[0][0] != 42 {
		t.Errorf("SetPage snapshot not visible: got %d", pd.Columns[0][0])
	}
	bp.UnpinPage(key)
	bp.UnpinPage(key)
}

func TestBufferPoolLoadError(t *testing.T) {
	fl := &fakeLoader{fail: true}
	bp := NewBufferPool(8, fl)

	if _, err := bp.GetPage(PageKey{Table: "t"}); err == nil {
		t.Fatal("Expected load error to propagate")
	}
	stats := bp.Stats()
	if stats.Cached != 0 {
		t.Errorf("Failed load left %d cached frames", stats.Cached)
	}
}

func TestBufferPoolDropTable(t *testing.T) {
	fl := &fakeLoader{}
	bp := NewBufferPool(8, fl)

	ka := PageKey{Table: "a", Kind: KindBase}
	kb := PageKey{Table: "b", Kind: KindBase}
	if _, err := bp.GetPage(ka); err != nil {
		t.Fatal(err)
	}
	bp.UnpinPage(ka)
	if _, err := bp.GetPage(kb); err != nil {
		t.Fatal(err)
	}
	bp.UnpinPage(kb)

	bp.DropTable("a")
	stats := bp.Stats()
	if stats.Cached != 1 {
		t.Errorf("Cached = %d after DropTable, want 1", stats.Cached)
	}
}
