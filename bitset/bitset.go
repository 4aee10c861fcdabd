// Package bitset is the concrete BitVector referenced throughout spec
// section 2 ("BitVector (external) | Compressed bitmap with index-set
// iterator exposing runs and singletons"). Only its contract is meant to be
// consumed by the rest of the runtime, but something has to implement it:
// this package backs it with github.com/RoaringBitmap/roaring/v2, the same
// compressed-bitmap library the wider analytical-engine pack (erigon-lib)
// reaches for, rather than hand-rolling a bit-array the way a one-off tool
// would.
package bitset

import (
	"io"

	"github.com/RoaringBitmap/roaring/v2"
)

// runBatchSize bounds how many set bits Bitmap.Runs() pulls from the
// underlying roaring iterator per call, mirroring the per-call buffer
// bound ScanEngine's I/O access pattern uses for reads.
const runBatchSize = 1024

// Bitmap is a compressed bitmap of a fixed logical length N, where bit i
// means "row i is active / matches". The zero value is not usable; use
// New.
type Bitmap struct {
	rb *roaring.Bitmap
	n  uint64
}

// New returns an empty Bitmap of logical length n (no bits set).
func New(n uint64) *Bitmap {
	return &Bitmap{rb: roaring.New(), n: n}
}

// Full returns a Bitmap of logical length n with every bit in [0, n) set.
func Full(n uint64) *Bitmap {
	b := New(n)
	if n > 0 {
		b.rb.AddRange(0, n)
	}
	return b
}

// FromSorted builds a Bitmap of logical length n from an already
// ascending-sorted slice of positions, used by RidIndex's searchSortedRIDs
// and by column selection paths that already produced a sorted hit list.
func FromSorted(n uint64, positions []uint32) *Bitmap {
	b := New(n)
	b.rb.AddMany(positions)
	return b
}

// Len returns the bitmap's logical length N.
func (b *Bitmap) Len() uint64 { return b.n }

// Set marks row i as active.
func (b *Bitmap) Set(i uint32) { b.rb.Add(i) }

// SetRange marks rows [lo, hi) as active.
func (b *Bitmap) SetRange(lo, hi uint32) {
	if hi <= lo {
		return
	}
	b.rb.AddRange(uint64(lo), uint64(hi))
}

// Clear marks row i as inactive.
func (b *Bitmap) Clear(i uint32) { b.rb.Remove(i) }

// Get reports whether row i is active.
func (b *Bitmap) Get(i uint32) bool { return b.rb.Contains(i) }

// Popcount returns the number of active rows.
func (b *Bitmap) Popcount() uint64 { return b.rb.GetCardinality() }

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{rb: b.rb.Clone(), n: b.n}
}

// And returns a new Bitmap that is the intersection of b and other. The
// result's length is the smaller of the two, matching the "low &=
// activeMask" masking convention used throughout the Evaluator.
func (b *Bitmap) And(other *Bitmap) *Bitmap {
	n := b.n
	if other.n < n {
		n = other.n
	}
	return &Bitmap{rb: roaring.And(b.rb, other.rb), n: n}
}

// AndInPlace intersects other into b, mutating b.
func (b *Bitmap) AndInPlace(other *Bitmap) {
	b.rb.And(other.rb)
	if other.n < b.n {
		b.n = other.n
	}
}

// Or returns a new Bitmap that is the union of b and other.
func (b *Bitmap) Or(other *Bitmap) *Bitmap {
	n := b.n
	if other.n > n {
		n = other.n
	}
	return &Bitmap{rb: roaring.Or(b.rb, other.rb), n: n}
}

// OrInPlace unions other into b, mutating b.
func (b *Bitmap) OrInPlace(other *Bitmap) {
	b.rb.Or(other.rb)
	if other.n > b.n {
		b.n = other.n
	}
}

// AndNot returns a new Bitmap containing rows set in b but not in other.
// A negation scan is expressed as AndNot against the
// positive result, without ever materializing an explicit complement.
func (b *Bitmap) AndNot(other *Bitmap) *Bitmap {
	return &Bitmap{rb: roaring.AndNot(b.rb, other.rb), n: b.n}
}

// Not returns the complement of b within [0, b.Len()).
func (b *Bitmap) Not() *Bitmap {
	out := roaring.Flip(b.rb, 0, b.n)
	return &Bitmap{rb: out, n: b.n}
}

// Equals reports bit-for-bit equality (ignoring Len()).
func (b *Bitmap) Equals(other *Bitmap) bool {
	return b.rb.Equals(other.rb)
}

// ToArray returns the ascending positions of every active bit. Intended
// for small result sets (tests, sample printing); large scans should use
// Runs or Iterator instead.
func (b *Bitmap) ToArray() []uint32 {
	return b.rb.ToArray()
}

// Run is one maximal contiguous span of active bits, [Start, Start+Length).
// A singleton is a Run with Length == 1. ScanEngine's I/O access pattern
// issues one seek+read per Run to amortize disk access across contiguous
// spans.
type Run struct {
	Start  uint32
	Length uint32
}

// RunIterator yields the active bits of a Bitmap grouped into maximal
// contiguous runs, in ascending order. It never buffers the whole bitmap:
// it pulls runBatchSize values at a time from the underlying roaring
// iterator and coalesces across batch boundaries via pending.
type RunIterator struct {
	it      roaring.ManyIntIterable
	buf     [runBatchSize]uint32
	bufLen  int
	bufPos  int
	pending Run
	have    bool
	done    bool
}

// Runs returns a RunIterator over every active bit in b.
func (b *Bitmap) Runs() *RunIterator {
	return &RunIterator{it: b.rb.ManyIterator()}
}

func (ri *RunIterator) fill() bool {
	if ri.bufPos < ri.bufLen {
		return true
	}
	ri.bufLen = ri.it.NextMany(ri.buf[:])
	ri.bufPos = 0
	return ri.bufLen > 0
}

// Next returns the next run and true, or a zero Run and false when
// exhausted.
func (ri *RunIterator) Next() (Run, bool) {
	for {
		if !ri.fill() {
			if ri.have {
				ri.have = false
				return ri.pending, true
			}
			return Run{}, false
		}
		v := ri.buf[ri.bufPos]
		ri.bufPos++
		if !ri.have {
			ri.pending = Run{Start: v, Length: 1}
			ri.have = true
			continue
		}
		if uint64(ri.pending.Start)+uint64(ri.pending.Length) == uint64(v) {
			ri.pending.Length++
			continue
		}
		out := ri.pending
		ri.pending = Run{Start: v, Length: 1}
		return out, true
	}
}

// Iterator exposes a plain ascending value iterator, used by code (e.g.
// the ArithmeticExpr barrel scan) that needs one row position at a time
// rather than runs.
func (b *Bitmap) Iterator() roaring.IntIterable {
	return b.rb.Iterator()
}

// WriteTo serializes b in the roaring library's own compressed on-disk
// format, the row-mask file's exact contents.
func (b *Bitmap) WriteTo(w io.Writer) (int64, error) {
	return b.rb.WriteTo(w)
}

// ReadFrom populates b (logical length n) from a stream previously
// produced by WriteTo.
func ReadFrom(r io.Reader, n uint64) (*Bitmap, error) {
	b := New(n)
	if _, err := b.rb.ReadFrom(r); err != nil {
		return nil, err
	}
	return b, nil
}
