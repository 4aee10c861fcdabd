package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/binfmt"
	"github.com/partdb/partdb/partition/predicate"
)

func fullMask(n uint64) *bitset.Bitmap { return bitset.Full(n) }

func TestEvaluateArrayRangeInt(t *testing.T) {
	values := []int32{1, 5, 9, 10, 15, 20, 3, 7, 12, 4}
	n := uint64(len(values))
	mask := fullMask(n)

	r := predicate.Range{LowOp: predicate.Ge, Low: 5, HighOp: predicate.Le, High: 10}
	test, verdict := RangeTest(coltype.Int, r)
	if verdict != predicate.Normal {
		t.Fatalf("verdict = %v, want Normal", verdict)
	}

	out, err := EvaluateArray(values, n, false, mask, test, false)
	if err != nil {
		t.Fatal(err)
	}
	want := map[uint32]bool{1: true, 2: true, 3: true, 7: true}
	for i := uint32(0); i < uint32(n); i++ {
		if out.Get(i) != want[i] {
			t.Fatalf("row %d: got %v want %v (value %d)", i, out.Get(i), want[i], values[i])
		}
	}
}

func TestEvaluateArrayNegateRangeIsComplement(t *testing.T) {
	values := []int32{1, 5, 9, 10, 15, 20, 3, 7, 12, 4}
	n := uint64(len(values))
	mask := fullMask(n)
	r := predicate.Range{LowOp: predicate.Ge, Low: 5, HighOp: predicate.Le, High: 10}
	test, _ := RangeTest(coltype.Int, r)

	positive, err := EvaluateArray(values, n, false, mask, test, false)
	if err != nil {
		t.Fatal(err)
	}
	negative, err := EvaluateArray(values, n, false, mask, test, true)
	if err != nil {
		t.Fatal(err)
	}
	want := mask.AndNot(positive)
	if !negative.Equals(want) {
		t.Fatalf("negated scan != mask AndNot positive: got %v want %v", negative.ToArray(), want.ToArray())
	}
}

func TestEvaluateArrayCompacted(t *testing.T) {
	// mask selects rows {1, 3, 5} out of 6; compacted values supply exactly
	// those three values in ascending row order.
	n := uint64(6)
	mask := bitset.New(n)
	mask.Set(1)
	mask.Set(3)
	mask.Set(5)

	values := []int32{100, 200, 300}
	r := predicate.Range{LowOp: predicate.Ge, Low: 150, HighOp: predicate.None}
	test, _ := RangeTest(coltype.Int, r)

	out, err := EvaluateArray(values, n, true, mask, test, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Get(1) || !out.Get(3) || !out.Get(5) {
		t.Fatalf("compacted scan mismatch: %v", out.ToArray())
	}
}

func TestEvaluateArraySizeMismatchErrors(t *testing.T) {
	n := uint64(10)
	mask := fullMask(n)
	values := []int32{1, 2, 3}
	test, _ := RangeTest(coltype.Int, predicate.Range{})
	if _, err := EvaluateArray(values, n, false, mask, test, false); err == nil {
		t.Fatal("expected size-mismatch error")
	}
}

func TestDiscreteTestInteger(t *testing.T) {
	test := DiscreteTest(coltype.Short, []float64{3, 7, 7.5, 40000})
	if !test(3) || !test(7) {
		t.Fatal("expected 3 and 7 to match")
	}
	if test(7.5) {
		t.Fatal("fractional value must not match an integer column")
	}
	if test(40000) {
		t.Fatal("out-of-range value must not match Short")
	}
}

func TestEvaluateRowRangeClampsAndIntersectsMask(t *testing.T) {
	n := uint64(20)
	mask := bitset.New(n)
	mask.SetRange(0, 10)

	out := EvaluateRowRange(n, mask, -5, 8)
	for i := uint32(0); i < 20; i++ {
		want := i < 8
		if out.Get(i) != want {
			t.Fatalf("row %d: got %v want %v", i, out.Get(i), want)
		}
	}
}

func TestEvaluateFileRunsAndSingletons(t *testing.T) {
	values := []int32{1, 5, 9, 10, 15, 20, 3, 7, 12, 4}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binfmt.PutU32(buf, i*4, uint32(v))
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "col.bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	n := uint64(len(values))
	// Mask has one run [0,3) and singletons 5, 7, 9 to exercise both the
	// run path and the singleton-bracket path.
	mask := bitset.New(n)
	mask.SetRange(0, 3)
	mask.Set(5)
	mask.Set(7)
	mask.Set(9)

	r := predicate.Range{LowOp: predicate.Ge, Low: 5, HighOp: predicate.None}
	test, _ := RangeTest(coltype.Int, r)

	mgr := filemgr.New(nil)
	h, err := mgr.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.EndUse()

	e := NewEngine(mgr)
	decode := func(b []byte) float64 { return float64(int32(binfmt.ReadU32(b, 0))) }

	out, err := e.EvaluateFile(h, 4, decode, n, mask, test, false)
	if err != nil {
		t.Fatal(err)
	}
	want := map[uint32]bool{1: true, 2: true, 5: true, 7: true}
	for i := uint32(0); i < uint32(n); i++ {
		if out.Get(i) != want[i] {
			t.Fatalf("row %d: got %v want %v (value %d)", i, out.Get(i), want[i], values[i])
		}
	}
}

func TestEvaluateFileNegate(t *testing.T) {
	values := []int32{1, 5, 9, 10, 15, 20, 3, 7, 12, 4}
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binfmt.PutU32(buf, i*4, uint32(v))
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "col.bin")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}

	n := uint64(len(values))
	mask := fullMask(n)
	r := predicate.Range{LowOp: predicate.Ge, Low: 5, HighOp: predicate.Le, High: 10}
	test, _ := RangeTest(coltype.Int, r)

	mgr := filemgr.New(nil)
	h, err := mgr.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.EndUse()

	e := NewEngine(mgr)
	decode := func(b []byte) float64 { return float64(int32(binfmt.ReadU32(b, 0))) }

	positive, err := e.EvaluateFile(h, 4, decode, n, mask, test, false)
	if err != nil {
		t.Fatal(err)
	}
	negative, err := e.EvaluateFile(h, 4, decode, n, mask, test, true)
	if err != nil {
		t.Fatal(err)
	}
	want := mask.AndNot(positive)
	if !negative.Equals(want) {
		t.Fatalf("negated file scan != mask AndNot positive: got %v want %v", negative.ToArray(), want.ToArray())
	}
}
