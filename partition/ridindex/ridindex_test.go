package ridindex

import (
	"testing"

	"github.com/partdb/partdb/bitset"
)

// S3: rids = [(0,0),(0,1),(0,2),(1,0),(1,1)]. Query {(1,0),(0,2)} via
// searchSortedRIDs yields bitmap with bits {2, 3} set.
func TestSearchSortedRIDsScenarioS3(t *testing.T) {
	idx := New([]RID{
		{Run: 0, Event: 0},
		{Run: 0, Event: 1},
		{Run: 0, Event: 2},
		{Run: 1, Event: 0},
		{Run: 1, Event: 1},
	})
	out := bitset.New(5)
	idx.SearchSortedRIDs(SortSet([]RID{{Run: 1, Event: 0}, {Run: 0, Event: 2}}), out)

	want := bitset.New(5)
	want.Set(2)
	want.Set(3)
	if !out.Equals(want) {
		t.Fatalf("got %v want %v", out.ToArray(), want.ToArray())
	}
}

// Invariant 5: RID round-trip. For any row i with a RID,
// getRowNumber(rids[i]) == i.
func TestGetRowNumberRoundTrip(t *testing.T) {
	idx := New([]RID{
		{Run: 3, Event: 7},
		{Run: 1, Event: 2},
		{Run: 1, Event: 9},
	})
	idx.SortRIDs()
	for i, r := range idx.RIDs() {
		got := idx.GetRowNumber(r, uint64(len(idx.RIDs())))
		if got != uint64(i) {
			t.Fatalf("GetRowNumber(%v) = %d, want %d", r, got, i)
		}
	}
	if got := idx.GetRowNumber(RID{Run: 99, Event: 99}, 3); got != 3 {
		t.Fatalf("miss should return n=3, got %d", got)
	}
}

// Invariant 6: sorted-RID regeneration is idempotent — sortRIDs is a
// no-op once already sorted.
func TestSortRIDsIdempotent(t *testing.T) {
	idx := New([]RID{{Run: 2, Event: 0}, {Run: 1, Event: 0}})
	idx.SortRIDs()
	first := idx.EncodeSorted()

	idx.SortRIDs() // second call must not reorder or rebuild
	second := idx.EncodeSorted()

	if string(first) != string(second) {
		t.Fatalf("SortRIDs was not idempotent")
	}
}

func TestLoadSortedRejectsWrongSize(t *testing.T) {
	idx := &Index{}
	if err := idx.LoadSorted(make([]byte, 10), 5); err == nil {
		t.Fatal("expected an error for a wrong-sized rids.srt buffer")
	}
}

func TestLoadSortedAcceptsCorrectSize(t *testing.T) {
	src := New([]RID{{Run: 0, Event: 1}, {Run: 0, Event: 0}})
	src.SortRIDs()
	data := src.EncodeSorted()

	dst := &Index{}
	if err := dst.LoadSorted(data, 2); err != nil {
		t.Fatal(err)
	}
	out := bitset.New(2)
	dst.SearchSortedRIDs(SortSet([]RID{{Run: 0, Event: 1}}), out)
	if out.Popcount() != 1 {
		t.Fatalf("expected exactly one hit, got %v", out.ToArray())
	}
}

func TestEvaluateRidSetWithoutRIDsUsesEventAsRowPosition(t *testing.T) {
	idx := &Index{} // no rids materialized
	out := idx.EvaluateRidSet([]RID{{Run: 0, Event: 2}, {Run: 5, Event: 4}}, 6)
	want := bitset.New(6)
	want.Set(2)
	want.Set(4)
	if !out.Equals(want) {
		t.Fatalf("got %v want %v", out.ToArray(), want.ToArray())
	}
}

func TestFillRIDsSynthesizesSequentialEvents(t *testing.T) {
	idx := &Index{}
	idx.FillRIDs(4, 7)
	rids := idx.RIDs()
	if len(rids) != 4 {
		t.Fatalf("len = %d", len(rids))
	}
	for i, r := range rids {
		if r.Run != 7 || r.Event != uint32(i) {
			t.Fatalf("rids[%d] = %+v", i, r)
		}
	}
}
