package histogram

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
	"github.com/partdb/partdb/partition/header"
	"github.com/partdb/partdb/partition/predicate"
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

func equalU64(got, want []uint64) bool {
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

func equalF64(got, want []float64) bool {
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

// S4: column y has distinct values 1..5 each occurring 100 times.
// getDistribution(y) returns bounds=[2,3,4,5], counts=[100,100,100,100,100].
func TestGetDistributionScenarioS4(t *testing.T) {
	dir := t.TempDir()
	n := uint64(500)
	h := &header.Header{
		Name: "s4", NumberOfRows: n, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "y", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)

	vals := make([]int32, n)
	for i := range vals {
		vals[i] = int32(i/100) + 1
	}
	writeInt32Column(t, dir, "y", vals)

	e := New(p, mgr, logx.Nop())
	d, err := e.GetDistribution("y", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !equalF64(d.Bounds, []float64{2, 3, 4, 5}) {
		t.Fatalf("bounds = %v, want [2 3 4 5]", d.Bounds)
	}
	if !equalU64(d.Counts, []uint64{100, 100, 100, 100, 100}) {
		t.Fatalf("counts = %v, want [100 100 100 100 100]", d.Counts)
	}
}

// S5: 2-D histogram over x in [0,10) stride 5 and y in [0,4) stride 2,
// constraint x > 0. Output length 4. (x,y) = (1,1),(3,3),(6,0),(9,2)
// produces counts [1,1,1,1].
func TestHistogram2DScenarioS5(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "s5", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{
			{Name: "x", Type: coltype.Int},
			{Name: "y", Type: coltype.Int},
		},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "x", []int32{1, 3, 6, 9})
	writeInt32Column(t, dir, "y", []int32{1, 3, 0, 2})

	e := New(p, mgr, logx.Nop())
	constraint := predicate.Range{Column: "x", LowOp: predicate.Gt, Low: 0}
	ev := e.ev
	constraints, err := ev.Evaluate(constraint, nil)
	if err != nil {
		t.Fatal(err)
	}

	counts, dim1, dim2, err := e.Histogram2D(
		Axis{Column: "x", Begin: 0, End: 10, Stride: 5},
		Axis{Column: "y", Begin: 0, End: 4, Stride: 2},
		constraints,
	)
	if err != nil {
		t.Fatal(err)
	}
	if dim1 != 2 || dim2 != 2 {
		t.Fatalf("dim1=%d dim2=%d, want 2,2", dim1, dim2)
	}
	if len(counts) != 4 {
		t.Fatalf("len(counts) = %d, want 4", len(counts))
	}
	if !equalU64(counts, []uint64{1, 1, 1, 1}) {
		t.Fatalf("counts = %v, want [1 1 1 1]", counts)
	}
}

func TestHistogram1DRejectsDisagreeingDirection(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "bad", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "x", []int32{1, 2, 3, 4})

	e := New(p, mgr, logx.Nop())
	if _, err := e.Histogram1D("x", 10, 0, 1, nil); err == nil {
		t.Fatal("expected error for begin > end with positive stride")
	}
}

func TestHistogram1DBasic(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "h1d", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, 10)
	for i := range vals {
		vals[i] = int32(i + 1)
	}
	writeInt32Column(t, dir, "x", vals)

	e := New(p, mgr, logx.Nop())
	counts, err := e.Histogram1D("x", 0, 10, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Output length is 1 + floor((end-begin)/stride) = 3. [0,5): values
	// 1,2,3,4 -> bin0; [5,10): values 5,6,7,8,9 -> bin1; bin2 empty (value
	// 10 itself is excluded by the BETWEEN evaluate, as begin<=v<end).
	if !equalU64(counts, []uint64{4, 5, 0}) {
		t.Fatalf("counts = %v, want [4 5 0]", counts)
	}
}

func TestPackCopiesVerbatimWhenItFits(t *testing.T) {
	d := &Distribution{Bounds: []float64{1, 2}, Counts: []uint64{5, 5, 5}}
	packed := Pack(d, 3)
	if packed != d {
		t.Fatal("Pack should return the original distribution unchanged when it already fits")
	}
}

func TestPackMergesToCapacity(t *testing.T) {
	d := &Distribution{
		Bounds: []float64{1, 2, 3, 4},
		Counts: []uint64{10, 10, 10, 10, 10},
	}
	packed := Pack(d, 2)
	if len(packed.Counts) != 2 {
		t.Fatalf("len(counts) = %d, want 2", len(packed.Counts))
	}
	var total uint64
	for _, c := range packed.Counts {
		total += c
	}
	if total != 50 {
		t.Fatalf("total = %d, want 50 (pack must not drop rows)", total)
	}
}

func TestGetCumulativeDistributionPrefixSums(t *testing.T) {
	dir := t.TempDir()
	n := uint64(500)
	h := &header.Header{
		Name: "cum", NumberOfRows: n, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "y", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = int32(i/100) + 1
	}
	writeInt32Column(t, dir, "y", vals)

	e := New(p, mgr, logx.Nop())
	cum, err := e.GetCumulativeDistribution("y", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !equalU64(cum.Counts, []uint64{100, 200, 300, 400, 500, 500}) {
		t.Fatalf("cumulative counts = %v, want [100 200 300 400 500 500]", cum.Counts)
	}
	if cum.Bounds[len(cum.Bounds)-1] <= 5 {
		t.Fatalf("final bound %v must exceed the max observed value 5", cum.Bounds[len(cum.Bounds)-1])
	}
}

func TestJointDistributionShape(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "joint", NumberOfRows: 6, State: header.Stable,
		Columns: []header.ColumnBlock{
			{Name: "a", Type: coltype.Int},
			{Name: "b", Type: coltype.Int},
		},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "a", []int32{1, 1, 2, 2, 3, 3})
	writeInt32Column(t, dir, "b", []int32{1, 2, 1, 2, 1, 2})

	e := New(p, mgr, logx.Nop())
	jd, err := e.JointDistribution("a", []float64{1, 2}, "b", []float64{1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantLen := (len(jd.Bounds1) + 1) * (len(jd.Bounds2) + 1)
	if len(jd.Counts) != wantLen {
		t.Fatalf("len(counts) = %d, want %d", len(jd.Counts), wantLen)
	}
	var total uint64
	for _, c := range jd.Counts {
		total += c
	}
	if total != 6 {
		t.Fatalf("total = %d, want 6", total)
	}
}
