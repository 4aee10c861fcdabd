package evaluator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/binfmt"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/header"
	"github.com/partdb/partdb/partition/predicate"
	"github.com/partdb/partdb/partition/ridindex"
)

func openFixture(t *testing.T, dir string, h *header.Header) (*partition.Partition, *filemgr.Manager) {
	t.Helper()
	if err := header.Write(dir, h, time.Now()); err != nil {
		t.Fatal(err)
	}
	mgr := filemgr.New(nil)
	p, err := partition.Open(dir, mgr, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return p, mgr
}

func writeInt32Column(t *testing.T, dir, name string, values []int32) {
	t.Helper()
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binfmt.PutU32(buf, i*4, uint32(v))
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTextColumn(t *testing.T, dir, name string, values []string) {
	t.Helper()
	buf, err := column.EncodeTextFile(values, column.DefaultTextSlotBytes)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

// S1: N=10, x = [1..10], active mask all ones. evaluate(3 <= x < 7) =
// {2,3,4,5}, popcount 4.
func TestEvaluateRangeScenarioS1(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "s1", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)

	vals := make([]int32, 10)
	for i := range vals {
		vals[i] = int32(i + 1)
	}
	writeInt32Column(t, dir, "x", vals)

	ev := New(p, mgr, logx.Nop())
	r := predicate.Range{Column: "x", LowOp: predicate.Ge, Low: 3, HighOp: predicate.Lt, High: 7}
	hits, err := ev.Evaluate(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{2, 3, 4, 5}
	if got := hits.ToArray(); !equalU32(got, want) {
		t.Fatalf("hits = %v, want %v", got, want)
	}

	// With no index loaded, estimate.low is empty and estimate.high is
	// the full active mask: both bracket the true answer (invariant 2).
	low, high := ev.Estimate(r)
	if low.Popcount() != 0 {
		t.Fatalf("estimate.low = %v, want empty (no index loaded)", low.ToArray())
	}
	for _, i := range want {
		if !high.Get(i) {
			t.Fatalf("estimate.high must be a superset of evaluate's result, missing row %d", i)
		}
	}
}

// S2: evaluate(x == 5) = {4}; negativeScan(x == 5, fullMask) = everything
// else.
func TestEvaluateAndNegationScanScenarioS2(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "s2", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)

	vals := make([]int32, 10)
	for i := range vals {
		vals[i] = int32(i + 1)
	}
	writeInt32Column(t, dir, "x", vals)

	ev := New(p, mgr, logx.Nop())
	r := predicate.Range{Column: "x", LowOp: predicate.Eq, Low: 5}

	hits, err := ev.Evaluate(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := hits.ToArray(); !equalU32(got, []uint32{4}) {
		t.Fatalf("evaluate = %v, want [4]", got)
	}

	neg, err := ev.NegationScan(r, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{0, 1, 2, 3, 5, 6, 7, 8, 9}
	if got := neg.ToArray(); !equalU32(got, want) {
		t.Fatalf("negationScan = %v, want %v", got, want)
	}

	count, err := ev.CountHits(r)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("countHits = %d, want 1", count)
	}
}

func TestEvaluateUnknownColumnLogsAndReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "empty-col", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "x", []int32{1, 2, 3, 4})

	ev := New(p, mgr, logx.Nop())
	hits, err := ev.Evaluate(predicate.Range{Column: "missing"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if hits.Popcount() != 0 {
		t.Fatalf("expected empty result for unknown column, got popcount %d", hits.Popcount())
	}
}

// S3: rids = [(0,0),(0,1),(0,2),(1,0),(1,1)]. Query {(1,0),(0,2)} yields
// bitmap with bits {2,3} set.
func TestEvaluateRidSetScenarioS3(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "s3", NumberOfRows: 5, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "x", []int32{1, 2, 3, 4, 5})

	rids := []ridindex.RID{{Run: 0, Event: 0}, {Run: 0, Event: 1}, {Run: 0, Event: 2}, {Run: 1, Event: 0}, {Run: 1, Event: 1}}
	buf := make([]byte, len(rids)*8)
	for i, r := range rids {
		binfmt.PutU32(buf, i*8, r.Run)
		binfmt.PutU32(buf, i*8+4, r.Event)
	}
	if err := os.WriteFile(filepath.Join(dir, "rids"), buf, 0o644); err != nil {
		t.Fatal(err)
	}

	// Reopen so RIDs() picks up the freshly written rids file.
	p, err := partition.Open(dir, mgr, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ev := New(p, mgr, logx.Nop())
	hits := ev.EvaluateRidSet([]ridindex.RID{{Run: 1, Event: 0}, {Run: 0, Event: 2}})
	want := []uint32{2, 3}
	if got := hits.ToArray(); !equalU32(got, want) {
		t.Fatalf("EvaluateRidSet = %v, want %v", got, want)
	}
}

func TestLookforStringTriesLeftThenRight(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "strings", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "label", Type: coltype.Text}},
	}
	p, mgr := openFixture(t, dir, h)
	writeTextColumn(t, dir, "label", []string{"hello", "world", "hello", "bye"})

	ev := New(p, mgr, logx.Nop())

	hits, err := ev.LookforString(StringPred{Left: "label", Right: "hello"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := hits.ToArray(); !equalU32(got, []uint32{0, 2}) {
		t.Fatalf("left-as-column: hits = %v, want [0 2]", got)
	}

	hits, err = ev.LookforString(StringPred{Left: "hello", Right: "label"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := hits.ToArray(); !equalU32(got, []uint32{0, 2}) {
		t.Fatalf("right-as-column: hits = %v, want [0 2]", got)
	}
}

func TestMatchAnyScansEveryPrefixedColumn(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "matchany", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{
			{Name: "tagA", Type: coltype.Category},
			{Name: "tagB", Type: coltype.Category},
		},
	}
	p, mgr := openFixture(t, dir, h)
	writeTextColumn(t, dir, "tagA", []string{"red", "green", "blue", "green"})
	writeTextColumn(t, dir, "tagB", []string{"x", "y", "z", "w"})

	ev := New(p, mgr, logx.Nop())
	hits := ev.MatchAny(predicate.AnyAny{Prefix: "tag", Values: []string{"red", "blue"}}, nil)
	want := []uint32{0, 2}
	if got := hits.ToArray(); !equalU32(got, want) {
		t.Fatalf("MatchAny = %v, want %v", got, want)
	}
}

func equalU32(got, want []uint32) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
