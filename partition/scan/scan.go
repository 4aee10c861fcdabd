// Package scan implements the ScanEngine: it
// dispatches per (value type x predicate kind) across either an in-memory
// typed array or an on-disk file of fixed-size elements, producing a
// compressed result bitmap. Rather than a dynamic type dispatch
// across each scalar type, there is one array kernel (EvaluateArray),
// generic over the element type, and one file kernel (EvaluateFile),
// which decodes elements through a caller-supplied function; everything
// above them is a type switch at the dispatch boundary living in the
// column package, which instantiates EvaluateArray once per concrete
// type and supplies the matching decoder to EvaluateFile.
package scan

import (
	"fmt"
	"math"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/partition/predicate"
)

// Numeric is the set of concrete element types a column's fixed-width data
// file or in-memory array can hold.
type Numeric interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Engine runs scans. It is safe for concurrent use: all state is either
// immutable configuration or passed in per call.
type Engine struct {
	mgr    *filemgr.Manager
	bufCap int
}

// defaultBufCap bounds the span of a singleton-bracket read; run reads
// use a buffer sized to the run itself.
const defaultBufCap = 1 << 16 // 64 KiB

// NewEngine returns an Engine. mgr may be nil if callers only scan
// in-memory arrays.
func NewEngine(mgr *filemgr.Manager) *Engine {
	return &Engine{mgr: mgr, bufCap: defaultBufCap}
}

// AccessHint reports whether a scan over n rows of size elemSize under
// mask should prefer mmap or buffered reads. Delegates to
// filemgr.AccessHintFor, which decides from the pages the mask touches.
func AccessHint(mask *bitset.Bitmap, n uint64, elemSize int) filemgr.AccessHint {
	return filemgr.AccessHintFor(mask, n, elemSize)
}

// --- internal representation policy ---------------------

// builder accumulates hits during a scan, switching representation based
// on how dense the candidate set is: a dense uncompressed bit array when
// the candidate count is large relative to the mask's logical length, or
// direct incremental sets into a compressed Bitmap otherwise. Either way
// the final result is always a compressed, N-length Bitmap.
type builder struct {
	n     uint64
	dense []uint64
	rb    *bitset.Bitmap
}

func newBuilder(n uint64, candidateCount uint64) *builder {
	if n > 0 && n/256 < candidateCount {
		words := (n + 63) / 64
		return &builder{n: n, dense: make([]uint64, words)}
	}
	return &builder{n: n, rb: bitset.New(n)}
}

func (b *builder) set(i uint32) {
	if b.dense != nil {
		b.dense[i/64] |= 1 << (i % 64)
		return
	}
	b.rb.Set(i)
}

func (b *builder) finish() *bitset.Bitmap {
	if b.dense == nil {
		return b.rb
	}
	out := bitset.New(b.n)
	for i := uint64(0); i < b.n; i++ {
		if b.dense[i/64]&(1<<(i%64)) != 0 {
			out.Set(uint32(i))
		}
	}
	return out
}

// --- predicate -> test function --------------------------------------------

func sideTest(op predicate.Op, bound float64) func(float64) bool {
	switch op {
	case predicate.Lt:
		return func(v float64) bool { return v < bound }
	case predicate.Le:
		return func(v float64) bool { return v <= bound }
	case predicate.Gt:
		return func(v float64) bool { return v > bound }
	case predicate.Ge:
		return func(v float64) bool { return v >= bound }
	case predicate.Eq:
		return func(v float64) bool { return v == bound }
	default:
		return func(float64) bool { return true }
	}
}

// RangeTest turns a predicate.Range into a float64 test function for
// column type t, folding both sides through predicate.Fold when t is an
// integer type. The returned Verdict lets callers skip
// the scan entirely when the whole range is trivially Always/Never.
func RangeTest(t coltype.Type, r predicate.Range) (test func(float64) bool, verdict predicate.Verdict) {
	if t.IsInteger() {
		low := predicate.Fold(r.LowOp, r.Low, t)
		high := predicate.Fold(r.HighOp, r.High, t)
		if low.Verdict == predicate.Never || high.Verdict == predicate.Never {
			return nil, predicate.Never
		}
		var lowTest, highTest func(float64) bool
		if low.Verdict == predicate.Normal {
			lowTest = sideTest(low.Op, float64(low.Threshold))
		}
		if high.Verdict == predicate.Normal {
			highTest = sideTest(high.Op, float64(high.Threshold))
		}
		if lowTest == nil && highTest == nil {
			return nil, predicate.Always
		}
		return func(v float64) bool {
			if lowTest != nil && !lowTest(v) {
				return false
			}
			if highTest != nil && !highTest(v) {
				return false
			}
			return true
		}, predicate.Normal
	}

	lowTest := sideTest(r.LowOp, r.Low)
	highTest := sideTest(r.HighOp, r.High)
	return func(v float64) bool { return lowTest(v) && highTest(v) }, predicate.Normal
}

// DiscreteTest turns a predicate.DiscreteRange's value list into a
// membership test, filtering to representable values for integer column
// types.
func DiscreteTest(t coltype.Type, values []float64) func(float64) bool {
	if t.IsInteger() {
		lo, hi := t.IntBounds()
		set := make(map[int64]struct{}, len(values))
		for _, v := range values {
			if v == math.Trunc(v) && v >= lo && v <= hi {
				set[int64(v)] = struct{}{}
			}
		}
		return func(v float64) bool {
			_, ok := set[int64(v)]
			return ok
		}
	}
	set := make(map[float64]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return func(v float64) bool {
		_, ok := set[v]
		return ok
	}
}

// --- array source -----------------------------------------------------------

// EvaluateArray scans an in-memory typed array. compacted indicates
// len(values) == mask.Popcount() (values already gathered for exactly the
// masked rows) rather than len(values) == n (the full column). Any other
// length is the "array size equals mask size OR mask popcount" violation
// the design notes call out as a bug to surface, not paper over.
func EvaluateArray[T Numeric](values []T, n uint64, compacted bool, mask *bitset.Bitmap, test func(float64) bool, negate bool) (*bitset.Bitmap, error) {
	if err := checkArraySize(len(values), n, mask, compacted); err != nil {
		return nil, err
	}
	want := func(v T) bool {
		ok := test(float64(v))
		if negate {
			return !ok
		}
		return ok
	}
	out := newBuilder(n, mask.Popcount())
	it := mask.Runs()
	idx := 0
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		for i := r.Start; i < r.Start+r.Length; i++ {
			var v T
			if compacted {
				v = values[idx]
				idx++
			} else {
				v = values[i]
			}
			if want(v) {
				out.set(i)
			}
		}
	}
	return out.finish(), nil
}

func checkArraySize(gotLen int, n uint64, mask *bitset.Bitmap, compacted bool) error {
	if compacted {
		if uint64(gotLen) != mask.Popcount() {
			return fmt.Errorf("scan: compacted array length %d does not match mask popcount %d", gotLen, mask.Popcount())
		}
		return nil
	}
	if uint64(gotLen) != n {
		return fmt.Errorf("scan: array length %d does not match column row count %d", gotLen, n)
	}
	return nil
}

// --- file source --------------------------------------------------------

// decodeFunc converts one elemSize-byte little-endian value to T.
type decodeFunc[T Numeric] func([]byte) T

// EvaluateFile scans a column's on-disk fixed-size-element file through h,
// following an I/O access pattern of one seek+read per
// multi-element run, and a single bracket read for a batch of singletons
// when their span fits the engine's buffer, otherwise individual reads.
// Every read records its page range with FileManager via Handle.ReadAt.
func (e *Engine) EvaluateFile(h *filemgr.Handle, elemSize int, decode func([]byte) float64, n uint64, mask *bitset.Bitmap, test func(float64) bool, negate bool) (*bitset.Bitmap, error) {
	want := func(v float64) bool {
		ok := test(v)
		if negate {
			return !ok
		}
		return ok
	}

	out := newBuilder(n, mask.Popcount())
	runs := collectRuns(mask)
	bufCap := e.bufCap
	if bufCap <= 0 {
		bufCap = defaultBufCap
	}

	i := 0
	for i < len(runs) {
		r := runs[i]
		if r.Length > 1 {
			if err := e.readRun(h, elemSize, decode, r, want, out); err != nil {
				return nil, err
			}
			i++
			continue
		}
		j := i
		for j < len(runs) && runs[j].Length == 1 {
			j++
		}
		batch := runs[i:j]
		bracketBytes := (int64(batch[len(batch)-1].Start) - int64(batch[0].Start) + 1) * int64(elemSize)
		if bracketBytes <= int64(bufCap) {
			if err := e.readBracket(h, elemSize, decode, batch, want, out); err != nil {
				return nil, err
			}
		} else {
			for _, s := range batch {
				if err := e.readRun(h, elemSize, decode, s, want, out); err != nil {
					return nil, err
				}
			}
		}
		i = j
	}
	return out.finish(), nil
}

func (e *Engine) readRun(h *filemgr.Handle, elemSize int, decode func([]byte) float64, r bitset.Run, want func(float64) bool, out *builder) error {
	buf := make([]byte, int(r.Length)*elemSize)
	if _, err := h.ReadAt(buf, int64(r.Start)*int64(elemSize)); err != nil {
		return fmt.Errorf("scan: read run [%d,+%d): %w", r.Start, r.Length, err)
	}
	for k := uint32(0); k < r.Length; k++ {
		off := int(k) * elemSize
		if want(decode(buf[off : off+elemSize])) {
			out.set(r.Start + k)
		}
	}
	return nil
}

func (e *Engine) readBracket(h *filemgr.Handle, elemSize int, decode func([]byte) float64, batch []bitset.Run, want func(float64) bool, out *builder) error {
	start := batch[0].Start
	end := batch[len(batch)-1].Start
	count := int(end-start) + 1
	buf := make([]byte, count*elemSize)
	if _, err := h.ReadAt(buf, int64(start)*int64(elemSize)); err != nil {
		return fmt.Errorf("scan: read bracket [%d,%d]: %w", start, end, err)
	}
	for _, s := range batch {
		off := int(s.Start-start) * elemSize
		if want(decode(buf[off : off+elemSize])) {
			out.set(s.Start)
		}
	}
	return nil
}

func collectRuns(mask *bitset.Bitmap) []bitset.Run {
	it := mask.Runs()
	var runs []bitset.Run
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		runs = append(runs, r)
	}
	return runs
}

// --- text-equality row-index passthrough ------------------------------------

// EvaluateRowRange implements the "row-index passthrough" behavior of
// TextEquality: Text columns treat a numeric range as a
// direct row-number range rather than a value comparison. Row positions
// below zero or at/above n are ignored.
func EvaluateRowRange(n uint64, mask *bitset.Bitmap, lowRow, highRow int64) *bitset.Bitmap {
	if lowRow < 0 {
		lowRow = 0
	}
	if highRow > int64(n) {
		highRow = int64(n)
	}
	if highRow <= lowRow {
		return bitset.New(n)
	}
	full := bitset.New(n)
	full.SetRange(uint32(lowRow), uint32(highRow))
	return full.And(mask)
}

// --- arithmetic expressions over a barrel -----------------------------------

// ColumnReader supplies one column's value for a given row, used by
// EvaluateArithmetic to fill a predicate.Barrel one row at a time.
type ColumnReader interface {
	ValueAt(row uint32) (float64, error)
}

// EvaluateArithmetic evaluates expr row by row against mask, pulling one
// value per referenced column through readers into a shared Barrel (spec
// section 4.3).
func (e *Engine) EvaluateArithmetic(readers map[string]ColumnReader, n uint64, mask *bitset.Bitmap, expr predicate.ArithmeticExpr) (*bitset.Bitmap, error) {
	cols := expr.Columns()
	for _, c := range cols {
		if _, ok := readers[c]; !ok {
			return nil, fmt.Errorf("scan: arithmetic expression references unknown column %q", c)
		}
	}

	out := newBuilder(n, mask.Popcount())
	barrel := predicate.NewBarrel()
	it := mask.Runs()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		for i := r.Start; i < r.Start+r.Length; i++ {
			for _, c := range cols {
				v, err := readers[c].ValueAt(i)
				if err != nil {
					return nil, fmt.Errorf("scan: read column %q at row %d: %w", c, i, err)
				}
				barrel.Set(c, v)
			}
			if expr.InRange(barrel) {
				out.set(i)
			}
		}
	}
	return out.finish(), nil
}
