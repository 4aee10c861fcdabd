package bitset

import "testing"

func TestSetGetPopcount(t *testing.T) {
	b := New(10)
	b.Set(2)
	b.Set(3)
	b.Set(4)
	b.Set(5)
	if b.Popcount() != 4 {
		t.Fatalf("popcount = %d, want 4", b.Popcount())
	}
	if !b.Get(3) || b.Get(9) {
		t.Fatal("Get mismatch")
	}
}

func TestFull(t *testing.T) {
	b := Full(5)
	if b.Popcount() != 5 {
		t.Fatalf("Full(5) popcount = %d", b.Popcount())
	}
}

func TestAndOrAndNot(t *testing.T) {
	a := New(10)
	for _, i := range []uint32{1, 2, 3, 4} {
		a.Set(i)
	}
	c := New(10)
	for _, i := range []uint32{3, 4, 5, 6} {
		c.Set(i)
	}
	and := a.And(c)
	if got := and.ToArray(); !equalU32(got, []uint32{3, 4}) {
		t.Fatalf("And = %v", got)
	}
	or := a.Or(c)
	if got := or.ToArray(); !equalU32(got, []uint32{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("Or = %v", got)
	}
	diff := a.AndNot(c)
	if got := diff.ToArray(); !equalU32(got, []uint32{1, 2}) {
		t.Fatalf("AndNot = %v", got)
	}
}

func TestNotWithinLength(t *testing.T) {
	a := New(5)
	a.Set(1)
	a.Set(3)
	not := a.Not()
	if got := not.ToArray(); !equalU32(got, []uint32{0, 2, 4}) {
		t.Fatalf("Not = %v", got)
	}
}

func TestRunsCoalescesContiguous(t *testing.T) {
	b := New(20)
	for _, i := range []uint32{0, 1, 2, 5, 6, 10} {
		b.Set(i)
	}
	it := b.Runs()
	var runs []Run
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		runs = append(runs, r)
	}
	want := []Run{{Start: 0, Length: 3}, {Start: 5, Length: 2}, {Start: 10, Length: 1}}
	if len(runs) != len(want) {
		t.Fatalf("runs = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Fatalf("runs[%d] = %v, want %v", i, runs[i], want[i])
		}
	}
}

func TestRunsAcrossBatchBoundary(t *testing.T) {
	b := New(uint64(runBatchSize) + 10)
	// one long contiguous run that spans more than one internal batch
	b.SetRange(0, uint32(runBatchSize)+5)
	it := b.Runs()
	r, ok := it.Next()
	if !ok || r.Start != 0 || r.Length != uint32(runBatchSize)+5 {
		t.Fatalf("run = %v, ok=%v", r, ok)
	}
	if _, ok := it.Next(); ok {
		t.Fatal("expected exactly one run")
	}
}

func equalU32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
