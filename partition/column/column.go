// Package column implements a partition column: a
// column's metadata (type, bounds, null mask), the delegation points to
// an optional bitmap index, and typed selection/search over either an
// in-memory array or an on-disk fixed-size-element file. Column never
// holds a back-reference to its owning partition: every operation that needs
// row data or a mask takes it as an explicit Source/mask argument.
package column

import (
	"fmt"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/binfmt"
	"github.com/partdb/partdb/partition/perr"
	"github.com/partdb/partdb/partition/predicate"
	"github.com/partdb/partdb/partition/scan"
)

// Index is the external bitmap-index contract: only the
// load/unload/query contract is referenced here, not a concrete
// implementation. A concrete index
// implementation is supplied by the caller of LoadIndex.
type Index interface {
	// EstimateRange returns a (low, high) bracket such that
	// low ⊆ trueAnswer ⊆ high, without touching the column's data file.
	EstimateRange(r predicate.Range) (low, high *bitset.Bitmap)
	// Cost returns a scalar cost hint for evaluating r through this index.
	Cost(r predicate.Range) float64
	// Close releases any resources (mapped index file, etc).
	Close() error
}

// IndexLoader constructs an Index from a spec string, analogous to the
// out-of-scope index layer's own open-by-spec entry point.
type IndexLoader interface {
	Load(spec string, colName string, typ coltype.Type) (Index, error)
}

// ArraySource is an in-memory typed value source. Exactly one field
// matching the Column's Type should be populated. Compacted mirrors
// ScanEngine's convention: false means len(field) == N, true means
// len(field) == mask.Popcount().
type ArraySource struct {
	Int8      []int8
	UInt8     []uint8
	Int16     []int16
	UInt16    []uint16
	Int32     []int32
	UInt32    []uint32
	Int64     []int64
	UInt64    []uint64
	Float32   []float32
	Float64   []float64
	Text      []string
	Compacted bool
}

// FileSource is an on-disk fixed-size-element value source.
type FileSource struct {
	Handle *filemgr.Handle
}

// Source is either an ArraySource or a FileSource.
type Source interface{}

// Column is one column's metadata. The zero value is not usable; use New.
type Column struct {
	name       string
	typ        coltype.Type
	lowerBound float64
	upperBound float64
	boundsSet  bool
	nullMask   *bitset.Bitmap
	indexSpec  string
	index      Index
}

// New returns a Column with no bounds set and no null mask.
func New(name string, typ coltype.Type) *Column {
	return &Column{name: name, typ: typ}
}

func (c *Column) Name() string        { return c.name }
func (c *Column) Type() coltype.Type  { return c.typ }
func (c *Column) IndexSpec() string   { return c.indexSpec }
func (c *Column) SetIndexSpec(s string) { c.indexSpec = s }

// Bounds returns the column's lower/upper bound and whether they have
// been set. The column tracks "set" with its own flag, so callers get an
// explicit bool here rather than relying on the lower > upper convention.
func (c *Column) Bounds() (lo, hi float64, ok bool) {
	return c.lowerBound, c.upperBound, c.boundsSet
}

// SetBounds sets explicit bounds, e.g. from a parsed header block.
func (c *Column) SetBounds(lo, hi float64) {
	c.lowerBound, c.upperBound = lo, hi
	c.boundsSet = true
}

// ElementSize returns bytes per value, or a negative number for
// variable-width types.
func (c *Column) ElementSize() int { return c.typ.ElementSize() }

// DataFileName is the column's on-disk file name within the partition
// directory: the column name, exactly.
func (c *Column) DataFileName() string { return c.name }

// GetNullMask returns the column's null mask (1 = null), or an all-clear
// mask of length n if none has been recorded.
func (c *Column) GetNullMask(n uint64) *bitset.Bitmap {
	if c.nullMask != nil {
		return c.nullMask
	}
	return bitset.New(n)
}

// SetNullMask installs a null mask, e.g. loaded from disk.
func (c *Column) SetNullMask(m *bitset.Bitmap) { c.nullMask = m }

// --- index delegation --------------------------------------------------

// LoadIndex asks loader to build an Index from spec and installs it.
func (c *Column) LoadIndex(loader IndexLoader, spec string) error {
	if loader == nil {
		return perr.New(perr.KindUnsupportedType, "column: LoadIndex: no index loader configured for "+c.name)
	}
	idx, err := loader.Load(spec, c.name, c.typ)
	if err != nil {
		return perr.Wrap(perr.KindIO, "column: LoadIndex "+c.name, err)
	}
	c.indexSpec = spec
	c.index = idx
	return nil
}

// UnloadIndex releases the loaded index, if any.
func (c *Column) UnloadIndex() error {
	if c.index == nil {
		return nil
	}
	err := c.index.Close()
	c.index = nil
	return err
}

// PurgeIndexFile unloads the index and forgets its spec.
func (c *Column) PurgeIndexFile() error {
	err := c.UnloadIndex()
	c.indexSpec = ""
	return err
}

// HasIndex reports whether an index is currently loaded.
func (c *Column) HasIndex() bool { return c.index != nil }

// --- min/max -------------------------------------------------------------

// ComputeMinMax scans src to set the column's bounds. Idempotent: a call
// on an already-bounded column is a no-op. Variable-width columns have
// no numeric bounds and are left unset.
func (c *Column) ComputeMinMax(src Source, n uint64) error {
	if c.boundsSet || c.typ.IsVariableWidth() {
		return nil
	}
	full := bitset.Full(n)
	lo, hi, err := c.minMaxOver(src, full)
	if err != nil {
		return err
	}
	c.lowerBound, c.upperBound, c.boundsSet = lo, hi, lo <= hi
	return nil
}

func (c *Column) minMaxOver(src Source, mask *bitset.Bitmap) (float64, float64, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return 0, 0, err
	}
	lo, hi, ok := minMaxAny(v)
	if !ok {
		return 1, 0, nil // empty: unset convention (lower > upper)
	}
	return lo, hi, nil
}

func minMaxAny(v any) (lo, hi float64, ok bool) {
	switch vv := v.(type) {
	case []int8:
		return minMaxSlice(vv)
	case []uint8:
		return minMaxSlice(vv)
	case []int16:
		return minMaxSlice(vv)
	case []uint16:
		return minMaxSlice(vv)
	case []int32:
		return minMaxSlice(vv)
	case []uint32:
		return minMaxSlice(vv)
	case []int64:
		return minMaxSlice(vv)
	case []uint64:
		return minMaxSlice(vv)
	case []float32:
		return minMaxSlice(vv)
	case []float64:
		return minMaxSlice(vv)
	default:
		return 0, 0, false
	}
}

func minMaxSlice[T scan.Numeric](v []T) (float64, float64, bool) {
	if len(v) == 0 {
		return 0, 0, false
	}
	lo, hi := float64(v[0]), float64(v[0])
	for _, x := range v[1:] {
		f := float64(x)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	return lo, hi, true
}

// --- range evaluation ------------------------------------------------------

// EstimateRange returns a conservative (low, high) bracket, consulting
// the loaded index when present. With no index the bracket is
// maximally uninformative: an empty low and a full-length high, which
// still satisfies low ⊆ answer ⊆ high.
func (c *Column) EstimateRange(r predicate.Range, n uint64) (low, high *bitset.Bitmap) {
	if c.index != nil {
		return c.index.EstimateRange(r)
	}
	return bitset.New(n), bitset.Full(n)
}

// EstimateCost returns a scalar cost hint: the index's own hint when
// loaded, otherwise n (a full scan).
func (c *Column) EstimateCost(r predicate.Range, n uint64) float64 {
	if c.index != nil {
		return c.index.Cost(r)
	}
	return float64(n)
}

// GetUndecidable returns the fraction of rows the index cannot resolve
// and the bitmap of rows requiring a scan (high AndNot low). With no
// index, every row is undecidable.
func (c *Column) GetUndecidable(r predicate.Range, n uint64) (fraction float64, iffy *bitset.Bitmap) {
	low, high := c.EstimateRange(r, n)
	iffy = high.AndNot(low)
	if n == 0 {
		return 0, iffy
	}
	return float64(iffy.Popcount()) / float64(n), iffy
}

// EvaluateRange scans src for rows in mask whose value satisfies r (or,
// if negate, whose value does not). Only rows set in mask are visited;
// callers pass a mask already intersected with the active mask.
func (c *Column) EvaluateRange(e *scan.Engine, src Source, n uint64, mask *bitset.Bitmap, r predicate.Range, negate bool) (*bitset.Bitmap, error) {
	if c.typ == coltype.Text || c.typ == coltype.Category {
		return nil, perr.New(perr.KindUnsupportedType, "column: EvaluateRange: "+c.typ.String()+" columns use TextEquality, not Range")
	}
	test, verdict := scan.RangeTest(c.typ, r)
	return c.evaluatePredicate(e, src, n, mask, test, verdict, negate)
}

// EvaluateTextEquality evaluates a TextEquality predicate. When
// UseRowRange is set the column's values are never touched: the engine
// passes the row range straight through.
func (c *Column) EvaluateTextEquality(values []string, n uint64, mask *bitset.Bitmap, te predicate.TextEquality) *bitset.Bitmap {
	if te.UseRowRange {
		return scan.EvaluateRowRange(n, mask, te.RowLow, te.RowHigh)
	}
	if te.Value != "" {
		return c.searchMatch(values, mask, func(s string) bool { return s == te.Value })
	}
	return c.SearchAny(values, mask, te.Values)
}

// EvaluateDiscreteRange scans src for membership in r.Values.
func (c *Column) EvaluateDiscreteRange(e *scan.Engine, src Source, n uint64, mask *bitset.Bitmap, r predicate.DiscreteRange, negate bool) (*bitset.Bitmap, error) {
	test := scan.DiscreteTest(c.typ, r.Values)
	return c.evaluatePredicate(e, src, n, mask, test, predicate.Normal, negate)
}

func (c *Column) evaluatePredicate(e *scan.Engine, src Source, n uint64, mask *bitset.Bitmap, test func(float64) bool, verdict predicate.Verdict, negate bool) (*bitset.Bitmap, error) {
	switch verdict {
	case predicate.Always:
		if negate {
			return bitset.New(n), nil
		}
		return mask.Clone(), nil
	case predicate.Never:
		if negate {
			return mask.Clone(), nil
		}
		return bitset.New(n), nil
	}

	switch s := src.(type) {
	case ArraySource:
		return c.evaluateArray(s, n, mask, test, negate)
	case FileSource:
		return c.evaluateFile(e, s, n, mask, test, negate)
	default:
		return nil, fmt.Errorf("column: unsupported source type %T", src)
	}
}

func (c *Column) evaluateArray(s ArraySource, n uint64, mask *bitset.Bitmap, test func(float64) bool, negate bool) (*bitset.Bitmap, error) {
	wrap := func(v float64) bool { return test(v) }
	switch c.typ {
	case coltype.Byte:
		return scan.EvaluateArray(s.Int8, n, s.Compacted, mask, wrap, negate)
	case coltype.UByte:
		return scan.EvaluateArray(s.UInt8, n, s.Compacted, mask, wrap, negate)
	case coltype.Short:
		return scan.EvaluateArray(s.Int16, n, s.Compacted, mask, wrap, negate)
	case coltype.UShort:
		return scan.EvaluateArray(s.UInt16, n, s.Compacted, mask, wrap, negate)
	case coltype.Int:
		return scan.EvaluateArray(s.Int32, n, s.Compacted, mask, wrap, negate)
	case coltype.UInt:
		return scan.EvaluateArray(s.UInt32, n, s.Compacted, mask, wrap, negate)
	case coltype.Long:
		return scan.EvaluateArray(s.Int64, n, s.Compacted, mask, wrap, negate)
	case coltype.ULong:
		return scan.EvaluateArray(s.UInt64, n, s.Compacted, mask, wrap, negate)
	case coltype.Float:
		return scan.EvaluateArray(s.Float32, n, s.Compacted, mask, wrap, negate)
	case coltype.Double:
		return scan.EvaluateArray(s.Float64, n, s.Compacted, mask, wrap, negate)
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: evaluateArray: unsupported type "+c.typ.String())
	}
}

func (c *Column) evaluateFile(e *scan.Engine, s FileSource, n uint64, mask *bitset.Bitmap, test func(float64) bool, negate bool) (*bitset.Bitmap, error) {
	elemSize := c.typ.ElementSize()
	if elemSize <= 0 {
		return nil, perr.New(perr.KindUnsupportedType, "column: evaluateFile: variable-width type "+c.typ.String())
	}
	decode, err := c.decoder()
	if err != nil {
		return nil, err
	}
	return e.EvaluateFile(s.Handle, elemSize, decode, n, mask, test, negate)
}

func (c *Column) decoder() (func([]byte) float64, error) {
	switch c.typ {
	case coltype.Byte:
		return func(b []byte) float64 { return float64(int8(b[0])) }, nil
	case coltype.UByte:
		return func(b []byte) float64 { return float64(b[0]) }, nil
	case coltype.Short:
		return func(b []byte) float64 { return float64(int16(binfmt.ReadU16(b, 0))) }, nil
	case coltype.UShort:
		return func(b []byte) float64 { return float64(binfmt.ReadU16(b, 0)) }, nil
	case coltype.Int:
		return func(b []byte) float64 { return float64(binfmt.ReadI32(b, 0)) }, nil
	case coltype.UInt:
		return func(b []byte) float64 { return float64(binfmt.ReadU32(b, 0)) }, nil
	case coltype.Long:
		return func(b []byte) float64 { return float64(binfmt.ReadI64(b, 0)) }, nil
	case coltype.ULong:
		return func(b []byte) float64 { return float64(binfmt.ReadU64(b, 0)) }, nil
	case coltype.Float:
		return func(b []byte) float64 { return float64(binfmt.ReadF32(b, 0)) }, nil
	case coltype.Double:
		return func(b []byte) float64 { return binfmt.ReadF64(b, 0) }, nil
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: decoder: unsupported type "+c.typ.String())
	}
}

// Reader adapts src into a scan.ColumnReader for ArithmeticExpr barrels.
func (c *Column) Reader(src Source) (scan.ColumnReader, error) {
	switch s := src.(type) {
	case ArraySource:
		if s.Compacted {
			return nil, fmt.Errorf("column: Reader: compacted array sources are not addressable by row")
		}
		return arrayReader{c: c, s: s}, nil
	case FileSource:
		decode, err := c.decoder()
		if err != nil {
			return nil, err
		}
		elemSize := c.typ.ElementSize()
		return fileReader{h: s.Handle, elemSize: elemSize, decode: decode}, nil
	default:
		return nil, fmt.Errorf("column: Reader: unsupported source type %T", src)
	}
}

type arrayReader struct {
	c *Column
	s ArraySource
}

func (r arrayReader) ValueAt(row uint32) (float64, error) {
	switch r.c.typ {
	case coltype.Byte:
		return float64(r.s.Int8[row]), nil
	case coltype.UByte:
		return float64(r.s.UInt8[row]), nil
	case coltype.Short:
		return float64(r.s.Int16[row]), nil
	case coltype.UShort:
		return float64(r.s.UInt16[row]), nil
	case coltype.Int:
		return float64(r.s.Int32[row]), nil
	case coltype.UInt:
		return float64(r.s.UInt32[row]), nil
	case coltype.Long:
		return float64(r.s.Int64[row]), nil
	case coltype.ULong:
		return float64(r.s.UInt64[row]), nil
	case coltype.Float:
		return float64(r.s.Float32[row]), nil
	case coltype.Double:
		return r.s.Float64[row], nil
	default:
		return 0, perr.New(perr.KindUnsupportedType, "column: ValueAt: unsupported type "+r.c.typ.String())
	}
}

type fileReader struct {
	h        *filemgr.Handle
	elemSize int
	decode   func([]byte) float64
}

func (r fileReader) ValueAt(row uint32) (float64, error) {
	buf := make([]byte, r.elemSize)
	if _, err := r.h.ReadAt(buf, int64(row)*int64(r.elemSize)); err != nil {
		return 0, err
	}
	return r.decode(buf), nil
}

// --- typed selection -------------------------------------------------------

func (c *Column) gatherTyped(src Source, mask *bitset.Bitmap) (any, error) {
	switch s := src.(type) {
	case ArraySource:
		switch c.typ {
		case coltype.Byte:
			return gatherArray(s.Int8, s.Compacted, mask), nil
		case coltype.UByte:
			return gatherArray(s.UInt8, s.Compacted, mask), nil
		case coltype.Short:
			return gatherArray(s.Int16, s.Compacted, mask), nil
		case coltype.UShort:
			return gatherArray(s.UInt16, s.Compacted, mask), nil
		case coltype.Int:
			return gatherArray(s.Int32, s.Compacted, mask), nil
		case coltype.UInt:
			return gatherArray(s.UInt32, s.Compacted, mask), nil
		case coltype.Long:
			return gatherArray(s.Int64, s.Compacted, mask), nil
		case coltype.ULong:
			return gatherArray(s.UInt64, s.Compacted, mask), nil
		case coltype.Float:
			return gatherArray(s.Float32, s.Compacted, mask), nil
		case coltype.Double:
			return gatherArray(s.Float64, s.Compacted, mask), nil
		default:
			return nil, perr.New(perr.KindUnsupportedType, "column: gather: unsupported type "+c.typ.String())
		}
	case FileSource:
		elemSize := c.typ.ElementSize()
		if elemSize <= 0 {
			return nil, perr.New(perr.KindUnsupportedType, "column: gather: variable-width type "+c.typ.String())
		}
		switch c.typ {
		case coltype.Byte:
			return gatherFile(s.Handle, elemSize, func(b []byte) int8 { return int8(b[0]) }, mask)
		case coltype.UByte:
			return gatherFile(s.Handle, elemSize, func(b []byte) uint8 { return b[0] }, mask)
		case coltype.Short:
			return gatherFile(s.Handle, elemSize, func(b []byte) int16 { return int16(binfmt.ReadU16(b, 0)) }, mask)
		case coltype.UShort:
			return gatherFile(s.Handle, elemSize, func(b []byte) uint16 { return binfmt.ReadU16(b, 0) }, mask)
		case coltype.Int:
			return gatherFile(s.Handle, elemSize, func(b []byte) int32 { return binfmt.ReadI32(b, 0) }, mask)
		case coltype.UInt:
			return gatherFile(s.Handle, elemSize, func(b []byte) uint32 { return binfmt.ReadU32(b, 0) }, mask)
		case coltype.Long:
			return gatherFile(s.Handle, elemSize, func(b []byte) int64 { return binfmt.ReadI64(b, 0) }, mask)
		case coltype.ULong:
			return gatherFile(s.Handle, elemSize, func(b []byte) uint64 { return binfmt.ReadU64(b, 0) }, mask)
		case coltype.Float:
			return gatherFile(s.Handle, elemSize, func(b []byte) float32 { return binfmt.ReadF32(b, 0) }, mask)
		case coltype.Double:
			return gatherFile(s.Handle, elemSize, func(b []byte) float64 { return binfmt.ReadF64(b, 0) }, mask)
		default:
			return nil, perr.New(perr.KindUnsupportedType, "column: gather: unsupported type "+c.typ.String())
		}
	default:
		return nil, fmt.Errorf("column: gather: unsupported source type %T", src)
	}
}

func gatherArray[T scan.Numeric](values []T, compacted bool, mask *bitset.Bitmap) []T {
	out := make([]T, 0, mask.Popcount())
	it := mask.Runs()
	idx := 0
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		for i := r.Start; i < r.Start+r.Length; i++ {
			if compacted {
				out = append(out, values[idx])
				idx++
			} else {
				out = append(out, values[i])
			}
		}
	}
	return out
}

func gatherFile[T scan.Numeric](h *filemgr.Handle, elemSize int, decode func([]byte) T, mask *bitset.Bitmap) ([]T, error) {
	out := make([]T, 0, mask.Popcount())
	it := mask.Runs()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		buf := make([]byte, int(r.Length)*elemSize)
		if _, err := h.ReadAt(buf, int64(r.Start)*int64(elemSize)); err != nil {
			return nil, err
		}
		for k := uint32(0); k < r.Length; k++ {
			off := int(k) * elemSize
			out = append(out, decode(buf[off:off+elemSize]))
		}
	}
	return out, nil
}

func widen[From, To scan.Numeric](in []From) []To {
	out := make([]To, len(in))
	for i, v := range in {
		out[i] = To(v)
	}
	return out
}

// SelectInts widens any integer type up to 32 bits (Byte/UByte/Short/UShort/Int)
// into a freshly allocated []int32 of length mask.Popcount().
func (c *Column) SelectInts(src Source, mask *bitset.Bitmap) ([]int32, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []int8:
		return widen[int8, int32](vv), nil
	case []uint8:
		return widen[uint8, int32](vv), nil
	case []int16:
		return widen[int16, int32](vv), nil
	case []uint16:
		return widen[uint16, int32](vv), nil
	case []int32:
		return vv, nil
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: SelectInts: "+c.typ.String()+" is not widenable to Int")
	}
}

// SelectUInts widens UByte/UShort/UInt into a freshly allocated []uint32.
func (c *Column) SelectUInts(src Source, mask *bitset.Bitmap) ([]uint32, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []uint8:
		return widen[uint8, uint32](vv), nil
	case []uint16:
		return widen[uint16, uint32](vv), nil
	case []uint32:
		return vv, nil
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: SelectUInts: "+c.typ.String()+" is not widenable to UInt")
	}
}

// SelectLongs widens any integer type into a freshly allocated []int64.
func (c *Column) SelectLongs(src Source, mask *bitset.Bitmap) ([]int64, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []int8:
		return widen[int8, int64](vv), nil
	case []uint8:
		return widen[uint8, int64](vv), nil
	case []int16:
		return widen[int16, int64](vv), nil
	case []uint16:
		return widen[uint16, int64](vv), nil
	case []int32:
		return widen[int32, int64](vv), nil
	case []uint32:
		return widen[uint32, int64](vv), nil
	case []int64:
		return vv, nil
	case []uint64:
		return widen[uint64, int64](vv), nil
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: SelectLongs: "+c.typ.String()+" is not widenable to Long")
	}
}

// SelectFloats returns the column's values as []float32. Only valid for
// Float columns.
func (c *Column) SelectFloats(src Source, mask *bitset.Bitmap) ([]float32, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return nil, err
	}
	vv, ok := v.([]float32)
	if !ok {
		return nil, perr.New(perr.KindUnsupportedType, "column: SelectFloats: "+c.typ.String()+" is not Float")
	}
	return vv, nil
}

// SelectDoubles returns the column's values widened to []float64.
func (c *Column) SelectDoubles(src Source, mask *bitset.Bitmap) ([]float64, error) {
	v, err := c.gatherTyped(src, mask)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []int8:
		return widen[int8, float64](vv), nil
	case []uint8:
		return widen[uint8, float64](vv), nil
	case []int16:
		return widen[int16, float64](vv), nil
	case []uint16:
		return widen[uint16, float64](vv), nil
	case []int32:
		return widen[int32, float64](vv), nil
	case []uint32:
		return widen[uint32, float64](vv), nil
	case []int64:
		return widen[int64, float64](vv), nil
	case []uint64:
		return widen[uint64, float64](vv), nil
	case []float32:
		return widen[float32, float64](vv), nil
	case []float64:
		return vv, nil
	default:
		return nil, perr.New(perr.KindUnsupportedType, "column: SelectDoubles: unsupported type "+c.typ.String())
	}
}

// --- text/category search --------------------------------------------------

// Search returns the rows whose decoded string equals value.
func (c *Column) Search(values []string, mask *bitset.Bitmap, value string) *bitset.Bitmap {
	return c.searchMatch(values, mask, func(s string) bool { return s == value })
}

// SearchAny returns the rows whose decoded string is in the given list.
func (c *Column) SearchAny(values []string, mask *bitset.Bitmap, list []string) *bitset.Bitmap {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return c.searchMatch(values, mask, func(s string) bool {
		_, ok := set[s]
		return ok
	})
}

// KeywordSearch returns the rows whose decoded string contains value as
// a substring.
func (c *Column) KeywordSearch(values []string, mask *bitset.Bitmap, value string) *bitset.Bitmap {
	return c.searchMatch(values, mask, func(s string) bool { return containsSubstring(s, value) })
}

func (c *Column) searchMatch(values []string, mask *bitset.Bitmap, match func(string) bool) *bitset.Bitmap {
	n := uint64(len(values))
	out := bitset.New(n)
	it := mask.Runs()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		for i := r.Start; i < r.Start+r.Length && uint64(i) < n; i++ {
			if match(values[i]) {
				out.Set(i)
			}
		}
	}
	return out
}

func containsSubstring(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
