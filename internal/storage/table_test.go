package storage

import (
	"testing"
)

func testConfig() *EngineConfig {
	return &EngineConfig{
		PageCapacity:   4,
		RangeBasePages: 2,
		MergeThreshold: 0, // threshold merges off; tests call MergeNow
		MaxCachedPages: 64,
	}
}

func mustCreateTable(t *testing.T, db *Database, name string, cols, key int) *Table {
	t.Helper()
	tbl, err := db.CreateTable(name, cols, key)
	if err != nil {
		t.Fatalf("CreateTable(%s) failed: %v", name, err)
	}
	return tbl
}

func TestTableInsertRecord(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig())
	tbl := mustCreateTable(t, db, "grades", 3, 0)

	rid, err := tbl.InsertRecord("20260101120000", "000", []int64{100, 11, 12})
	if err != nil {
		t.Fatalf("InsertRecord failed: %v", err)
	}
	if rid.Kind != KindBase || rid.Range != 0 || rid.Page != 0 || rid.Slot != 0 {
		t.Errorf("First insert RID = %v", rid)
	}

	rec, ok := tbl.DirectoryGet(rid)
	if !ok {
		t.Fatal("Inserted record missing from page directory")
	}
	if rec.Key != 100 || rec.Columns[1] != 11 {
		t.Errorf("Directory image = %+v", rec)
	}

	for c := 0; c < 3; c++ {
		vals := []int64{100, 11, 12}
		if got := tbl.Index().Locate(c, vals[c]); len(got) != 1 || got[0] != rid {
			t.Errorf("Index column %d: Locate(%d) = %v", c, vals[c], got)
		}
	}

	if err := tbl.CheckInvariants(); err != nil {
		t.Errorf("Invariant violated: %v", err)
	}
}

func TestTableInsertRollover(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig()) // 4 slots/page, 2 base pages/range
	tbl := mustCreateTable(t, db, "grades", 2, 0)

	// 8 inserts fill range 0; the 9th must open range 1.
	for i := int64(0); i < 9; i++ {
		rid, err := tbl.InsertRecord("20260101120000", "00", []int64{i, i * 2})
		if err != nil {
			t.Fatalf("InsertRecord(%d) failed: %v", i, err)
		}
		wantRange := int(i) / 8
		wantPage := (int(i) / 4) % 2
		if rid.Range != wantRange || rid.Page != wantPage || rid.Slot != int(i)%4 {
			t.Errorf("Insert %d: RID = %v, want range %d page %d slot %d", i, rid, wantRange, wantPage, int(i)%4)
		}
	}
	if tbl.RangeCount() != 2 {
		t.Errorf("RangeCount = %d, want 2", tbl.RangeCount())
	}
	if err := tbl.CheckInvariants(); err != nil {
		t.Errorf("Invariant violated: %v", err)
	}
}

func TestTableWrongColumnCount(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig())
	tbl := mustCreateTable(t, db, "grades", 3, 0)

	if _, err := tbl.InsertRecord("", "00", []int64{1, 2}); err == nil {
		t.Error("Expected insert with wrong column count to fail")
	}
}

func TestTableTailAppendAndChain(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig())
	tbl := mustCreateTable(t, db, "grades", 2, 0)

	base, err := tbl.InsertRecord("20260101120000", "00", []int64{1, 10})
	if err != nil {
		t.Fatal(err)
	}

	tailIdx, err := tbl.EnsureTailCapacity(0)
	if err != nil {
		t.Fatalf("EnsureTailCapacity failed: %v", err)
	}
	tail, err := tbl.AppendTail(0, tailIdx, []int64{1, 20}, "20260101120001", "01", ForwardTo(base))
	if err != nil {
		t.Fatalf("AppendTail failed: %v", err)
	}
	if tail.Kind != KindTail {
		t.Errorf("Tail RID kind = %v", tail.Kind)
	}
	if err := tbl.SetIndirection(base, ForwardTo(tail)); err != nil {
		t.Fatalf("SetIndirection failed: %v", err)
	}

	// The buffer pool view must reflect the swap.
	pd, err := db.BufferPool().GetPage(PageKey{Table: "grades", Kind: KindBase, Range: 0, Page: 0})
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	next, ok := pd.Indirection[base.Slot].Forward()
	db.BufferPool().UnpinPage(PageKey{Table: "grades", Kind: KindBase, Range: 0, Page: 0})
	if !ok || next != tail {
		t.Errorf("Pool view indirection = %v, want forward to %v", pd.Indirection[base.Slot], tail)
	}
}

func TestTableNoteUpdateThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.MergeThreshold = 3
	db := NewDatabaseWithConfig(cfg)
	tbl := mustCreateTable(t, db, "grades", 2, 0)

	if tbl.NoteUpdate() || tbl.NoteUpdate() {
		t.Error("Threshold crossed early")
	}
	if !tbl.NoteUpdate() {
		t.Error("Threshold not crossed at 3")
	}
	// Counter reset after crossing.
	if tbl.NoteUpdate() {
		t.Error("Counter did not reset")
	}
}

func TestMergeConsolidatesLatestImages(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig())
	tbl := mustCreateTable(t, db, "grades", 3, 0)

	base, err := tbl.InsertRecord("20260101120000", "000", []int64{100, 11, 12})
	if err != nil {
		t.Fatal(err)
	}

	// Two updates: 11 -> 22 -> 33 in column 1.
	prev := base
	for _, v := range []int64{22, 33} {
		tailIdx, err := tbl.EnsureTailCapacity(0)
		if err != nil {
			t.Fatal(err)
		}
		tail, err := tbl.AppendTail(0, tailIdx, []int64{100, v, 12}, "20260101120001", "010", ForwardTo(prev))
		if err != nil {
			t.Fatal(err)
		}
		if err := tbl.SetIndirection(base, ForwardTo(tail)); err != nil {
			t.Fatal(err)
		}
		prev = tail
	}

	if err := tbl.MergeNow(); err != nil {
		t.Fatalf("MergeNow failed: %v", err)
	}

	// The base slot now holds the latest image...
	pr, err := tbl.Range(0)
	if err != nil {
		t.Fatal(err)
	}
	bp, err := pr.Base(0)
	if err != nil {
		t.Fatal(err)
	}
	row, err := bp.Row(base.Slot)
	if err != nil {
		t.Fatal(err)
	}
	if row[1] != 33 {
		t.Errorf("Merged base row = %v, want column 1 = 33", row)
	}

	// ...while the chain and the insert-time directory image survive.
	ind, err := bp.IndirectionAt(base.Slot)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ind.Forward(); !ok {
		t.Error("Merge dropped the base indirection pointer")
	}
	rec, ok := tbl.DirectoryGet(base)
	if !ok || rec.Columns[1] != 11 {
		t.Errorf("Directory base image after merge = %+v, want column 1 = 11", rec)
	}

	// Idempotent: a second pass recomputes the same images.
	if err := tbl.MergeNow(); err != nil {
		t.Fatalf("Second MergeNow failed: %v", err)
	}
	pr2, err := tbl.Range(0)
	if err != nil {
		t.Fatal(err)
	}
	bp2, err := pr2.Base(0)
	if err != nil {
		t.Fatal(err)
	}
	row2, err := bp2.Row(base.Slot)
	if err != nil {
		t.Fatal(err)
	}
	if row2[1] != 33 {
		t.Errorf("Second merge changed the image: %v", row2)
	}
	if err := tbl.CheckInvariants(); err != nil {
		t.Errorf("Invariant violated after merge: %v", err)
	}
}

func TestDatabaseTableRegistry(t *testing.T) {
	db := NewDatabaseWithConfig(testConfig())

	if _, err := db.CreateTable("a", 2, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateTable("a", 2, 0); err == nil {
		t.Error("Duplicate CreateTable succeeded")
	}
	if _, err := db.CreateTable("bad", 2, 5); err == nil {
		t.Error("CreateTable with key index out of range succeeded")
	}

	if _, err := db.GetTable("a"); err != nil {
		t.Errorf("GetTable(a) failed: %v", err)
	}
	if _, err := db.GetTable("missing"); err == nil {
		t.Error("GetTable on missing table succeeded")
	}

	if err := db.DropTable("a"); err != nil {
		t.Errorf("DropTable failed: %v", err)
	}
	if err := db.DropTable("a"); err == nil {
		t.Error("Second DropTable succeeded")
	}
	if got := db.Tables(); len(got) != 0 {
		t.Errorf("Tables = %v, want empty", got)
	}
}
