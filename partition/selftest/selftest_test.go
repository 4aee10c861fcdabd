package selftest

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

func TestVerifyFileSizesPassesOnCorrectlySizedColumn(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "sizes", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, 10)
	for i := range vals {
		vals[i] = int32(i)
	}
	writeInt32Column(t, dir, "x", vals)

	tester := New(p, mgr, nil, logx.Nop())
	if errs := tester.VerifyFileSizes(); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestVerifyFileSizesCatchesTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "truncated", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	writeInt32Column(t, dir, "x", make([]int32, 3)) // too short for N=10

	tester := New(p, mgr, nil, logx.Nop())
	errs := tester.VerifyFileSizes()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one file-size error, got %v", errs)
	}
}

// Invariant 4: recursive split additivity. Run with queryTest (small N,
// no longTests needed) across a worker pool and confirm every
// tri-section query passes with zero errors.
func TestRunQueryTestFindsNoAdditivityErrors(t *testing.T) {
	dir := t.TempDir()
	n := uint64(20)
	h := &header.Header{
		Name: "querytest", NumberOfRows: n, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = int32(i)
	}
	writeInt32Column(t, dir, "x", vals)

	tester := New(p, mgr, nil, logx.Nop())
	result := tester.Run(4)
	if result.Errors != 0 {
		t.Fatalf("expected no additivity errors, got %d: %v", result.Errors, result.Failures)
	}
	if result.Queries == 0 {
		t.Fatal("expected at least one query to run")
	}
}

func TestRunQuickTestWithLongTestsDisabledOnSmallPartitionStillRunsQueryTest(t *testing.T) {
	dir := t.TempDir()
	n := uint64(10)
	h := &header.Header{
		Name: "small", NumberOfRows: n, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, n)
	for i := range vals {
		vals[i] = int32(i)
	}
	writeInt32Column(t, dir, "x", vals)

	tester := New(p, mgr, nil, logx.Nop())
	result := tester.Run(1)
	if result.Errors != 0 {
		t.Fatalf("unexpected errors: %v", result.Failures)
	}
}

func TestIndexSpeedBenchmarkReturnsNonNegativeDuration(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "bench", NumberOfRows: 10, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "x", Type: coltype.Int}},
	}
	p, mgr := openFixture(t, dir, h)
	vals := make([]int32, 10)
	for i := range vals {
		vals[i] = int32(i)
	}
	writeInt32Column(t, dir, "x", vals)

	tester := New(p, mgr, nil, logx.Nop())
	d, err := tester.IndexSpeedBenchmark("x", 5)
	if err != nil {
		t.Fatal(err)
	}
	if d < 0 {
		t.Fatalf("duration = %v, want non-negative", d)
	}
}

func TestIndexSpeedBenchmarkRejectsTextColumn(t *testing.T) {
	dir := t.TempDir()
	h := &header.Header{
		Name: "benchtext", NumberOfRows: 4, State: header.Stable,
		Columns: []header.ColumnBlock{{Name: "label", Type: coltype.Text}},
	}
	p, mgr := openFixture(t, dir, h)

	tester := New(p, mgr, nil, logx.Nop())
	if _, err := tester.IndexSpeedBenchmark("label", 1); err == nil {
		t.Fatal("expected an error benchmarking a Text column")
	}
}
