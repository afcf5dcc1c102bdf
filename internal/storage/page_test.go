package storage

import (
	"errors"
	"testing"
)

func TestPhysicalPageWriteRead(t *testing.T) {
	p := NewPhysicalPage(4)

	for i := int64(0); i < 4; i++ {
		slot, err := p.Write(i * 10)
		if err != nil {
			t.Fatalf("Write(%d) failed: %v", i, err)
		}
		if slot != int(i) {
			t.Errorf("Write(%d) returned slot %d, want %d", i, slot, i)
		}
	}

	if p.HasCapacity() {
		t.Error("Expected full page to report no capacity")
	}
	if _, err := p.Write(99); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("Write on full page: got %v, want ErrCapacityExhausted", err)
	}

	vals, err := p.Read(1, 2)
	if err != nil {
		t.Fatalf("Read(1,2) failed: %v", err)
	}
	if vals[0] != 10 || vals[1] != 20 {
		t.Errorf("Read(1,2) = %v, want [10 20]", vals)
	}

	if _, err := p.Read(3, 2); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Read past end: got %v, want ErrOutOfBounds", err)
	}
	if _, err := p.Read(-1, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Read negative slot: got %v, want ErrOutOfBounds", err)
	}
}

func TestRecordPageAppend(t *testing.T) {
	rp := NewRecordPage(3, 2)

	rid := RID{Range: 0, Page: 0, Slot: 0, Kind: KindBase}
	if err := rp.Append([]int64{1, 2, 3}, rid, "20260101120000", "000", NoIndirection()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := rp.CheckInvariant(); err != nil {
		t.Fatalf("Invariant violated after append: %v", err)
	}

	if err := rp.Append([]int64{1, 2}, rid, "", "000", NoIndirection()); err == nil {
		t.Error("Expected append with wrong column count to fail")
	}
	if rp.NumRecords() != 1 {
		t.Errorf("Failed append mutated the page: %d records", rp.NumRecords())
	}

	row, err := rp.Row(0)
	if err != nil {
		t.Fatalf("Row(0) failed: %v", err)
	}
	if row[0] != 1 || row[1] != 2 || row[2] != 3 {
		t.Errorf("Row(0) = %v, want [1 2 3]", row)
	}
}

func TestRecordPageCapacityUnit(t *testing.T) {
	rp := NewRecordPage(2, 1)
	rid := RID{Kind: KindBase}

	if err := rp.Append([]int64{5, 6}, rid, "", "00", NoIndirection()); err != nil {
		t.Fatalf("First append failed: %v", err)
	}
	err := rp.Append([]int64{7, 8}, RID{Slot: 1, Kind: KindBase}, "", "00", NoIndirection())
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("Append on full page: got %v, want ErrCapacityExhausted", err)
	}
	// The failed append must not have touched any vector.
	if err := rp.CheckInvariant(); err != nil {
		t.Errorf("Invariant violated after rejected append: %v", err)
	}
	if rp.NumRecords() != 1 {
		t.Errorf("Expected 1 record, got %d", rp.NumRecords())
	}
}

func TestRecordPageIndirection(t *testing.T) {
	rp := NewRecordPage(1, 4)
	rid := RID{Kind: KindBase}
	if err := rp.Append([]int64{1}, rid, "", "0", NoIndirection()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	tail := RID{Range: 0, Page: 0, Slot: 0, Kind: KindTail}
	if err := rp.SetIndirection(0, ForwardTo(tail)); err != nil {
		t.Fatalf("SetIndirection failed: %v", err)
	}
	ind, err := rp.IndirectionAt(0)
	if err != nil {
		t.Fatalf("IndirectionAt failed: %v", err)
	}
	next, ok := ind.Forward()
	if !ok || next != tail {
		t.Errorf("Forward() = %v,%v, want %v,true", next, ok, tail)
	}

	if err := rp.SetIndirection(5, Tombstone()); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("SetIndirection out of range: got %v, want ErrOutOfBounds", err)
	}
}

func TestPageRangeCapacity(t *testing.T) {
	pr := NewPageRange(2, 2, 2) // 2 cols, 2 slots/page, max 2 base pages

	if !pr.HasBaseCapacity() {
		t.Fatal("Fresh range should have base capacity")
	}

	// Fill both base pages.
	for p := 0; p < 2; p++ {
		bp, err := pr.Base(pr.BaseCount() - 1)
		if err != nil {
			t.Fatalf("Base lookup failed: %v", err)
		}
		for s := 0; s < 2; s++ {
			rid := RID{Page: p, Slot: s, Kind: KindBase}
			if err := bp.Append([]int64{int64(p), int64(s)}, rid, "", "00", NoIndirection()); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		if p == 0 {
			if _, err := pr.AddBasePage(); err != nil {
				t.Fatalf("AddBasePage failed: %v", err)
			}
		}
	}

	if pr.HasBaseCapacity() {
		t.Error("Full range should report no base capacity")
	}
	if _, err := pr.AddBasePage(); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("AddBasePage past max: got %v, want ErrCapacityExhausted", err)
	}

	// Tail pages are unbounded.
	for i := 0; i < 5; i++ {
		pr.AddTailPage()
	}
	if pr.TailCount() != 5 {
		t.Errorf("TailCount = %d, want 5", pr.TailCount())
	}
}

func TestIndirectionStates(t *testing.T) {
	if !NoIndirection().IsNone() {
		t.Error("NoIndirection should be none")
	}
	if !Tombstone().IsTombstone() {
		t.Error("Tombstone should be tombstone")
	}
	fwd := ForwardTo(RID{Slot: 3, Kind: KindTail})
	if fwd.IsNone() || fwd.IsTombstone() {
		t.Error("Forward pointer misclassified")
	}
	if _, ok := NoIndirection().Forward(); ok {
		t.Error("NoIndirection should not yield a forward RID")
	}
}
