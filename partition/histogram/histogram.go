// Package histogram implements HistogramEngine: fixed
// begin/end/stride histograms in one, two, and three dimensions, the
// adaptive getDistribution/cumulative-distribution algorithm, a
// fixed-capacity pack step, and two-column joint distributions. Every
// operation here is numeric-only: Text/Category columns are rejected the
// same way partition/column.EvaluateRange rejects them.
//
// A textual constraints expression belongs
// to the query parser/planner, which lives out of this package's scope;
// this package accepts constraints as an already-evaluated *bitset.Bitmap
// instead of a string, the same substitution partition/evaluator makes
// for predicate trees versus query text.
package histogram

import (
	"math"
	"sort"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/evaluator"
	"github.com/partdb/partdb/partition/perr"
	"github.com/partdb/partdb/partition/predicate"
)

// Distribution is the (bounds, counts) pair getDistribution and its
// cumulative variant return: len(Counts) == len(Bounds)+1, Bounds[i]
// separating Counts[i] from Counts[i+1]. A value equal to Bounds[i] is
// counted in Counts[i+1].
type Distribution struct {
	Bounds []float64
	Counts []uint64
}

// Distribution2D is the joint-distribution result: counts indexed as
// j1*dim2 + j2 where dim2 == len(Bounds2)+1.
type Distribution2D struct {
	Bounds1 []float64
	Bounds2 []float64
	Counts  []uint64
}

// Engine computes histograms over a Partition's numeric columns.
type Engine struct {
	p   *partition.Partition
	mgr *filemgr.Manager
	ev  *evaluator.Evaluator
	log *logx.Logger
}

// New returns an Engine over p, opening column files through mgr.
func New(p *partition.Partition, mgr *filemgr.Manager, log *logx.Logger) *Engine {
	if log == nil {
		log = logx.Default()
	}
	return &Engine{p: p, mgr: mgr, ev: evaluator.New(p, mgr, log), log: log}
}

func (e *Engine) baseMask(constraints *bitset.Bitmap) *bitset.Bitmap {
	active := e.p.ActiveMask()
	if constraints != nil && constraints.Len() != 0 {
		return constraints.And(active)
	}
	return active
}

func (e *Engine) columnValues(name string, mask *bitset.Bitmap) (*column.Column, []float64, error) {
	c, ok := e.p.Column(name)
	if !ok {
		return nil, nil, perr.New(perr.KindConfiguration, "histogram: unknown column "+name)
	}
	if c.Type() == coltype.Text || c.Type() == coltype.Category {
		return nil, nil, perr.New(perr.KindUnsupportedType, "histogram: "+name+" is not numeric")
	}
	path, _ := e.p.ColumnPath(name)
	h, err := e.mgr.Open(path, true)
	if err != nil {
		return nil, nil, perr.Wrap(perr.KindIO, "histogram: open "+name, err)
	}
	defer h.EndUse()
	vals, err := c.SelectDoubles(column.FileSource{Handle: h}, mask)
	if err != nil {
		return nil, nil, err
	}
	return c, vals, nil
}

// rangeFor builds the BETWEEN-style predicate.Range an axis scan uses to
// restrict values to [begin,end) (stride > 0) or (end,begin] (stride <
// 0), mirroring 1-D's "WHERE (constraints) AND col BETWEEN begin AND
// end".
func rangeFor(col string, begin, end, stride float64) predicate.Range {
	if stride < 0 {
		return predicate.Range{Column: col, LowOp: predicate.Gt, Low: end, HighOp: predicate.Le, High: begin}
	}
	return predicate.Range{Column: col, LowOp: predicate.Ge, Low: begin, HighOp: predicate.Lt, High: end}
}

// binCount1D is the 1-D output length, 1 + floor((end-
// begin)/stride): the final bin absorbs an exact stride-boundary edge
// case so a value equal to end would have a home (it never fires in
// practice since the BETWEEN evaluate excludes end itself, but the
// extra slot is part of the documented output shape).
func binCount1D(begin, end, stride float64) int {
	return int(math.Abs(math.Floor((end-begin)/stride))) + 1
}

// dimAxisCount is the per-axis bin count for 2-D/3-D histograms: plain
// floor((end-begin)/stride), no trailing overflow bin.
func dimAxisCount(begin, end, stride float64) int {
	return int(math.Abs(math.Floor((end - begin) / stride)))
}

func binIndex(v, begin, stride float64) int {
	return int(math.Floor((v - begin) / stride))
}

// Histogram1D bins colName's values over [begin,end) in steps of stride,
// restricted to constraints (nil means "just the active mask"). Rejects
// when begin/end/stride directions disagree.
func (e *Engine) Histogram1D(colName string, begin, end, stride float64, constraints *bitset.Bitmap) ([]uint64, error) {
	if stride == 0 || (stride > 0 && begin >= end) || (stride < 0 && begin <= end) {
		return nil, perr.New(perr.KindConfiguration, "histogram: begin/end/stride directions disagree")
	}
	mask := e.baseMask(constraints)
	box, err := e.ev.Evaluate(rangeFor(colName, begin, end, stride), mask)
	if err != nil {
		return nil, err
	}
	_, vals, err := e.columnValues(colName, box)
	if err != nil {
		return nil, err
	}
	counts := make([]uint64, binCount1D(begin, end, stride))
	for _, v := range vals {
		if idx := binIndex(v, begin, stride); idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}
	return counts, nil
}

// Axis describes one dimension of a 2-D or 3-D histogram.
type Axis struct {
	Column string
	Begin  float64
	End    float64
	Stride float64
}

// Histogram2D bins two columns jointly, addressing cell (j1,j2) at
// j1*dim2+j2.
func (e *Engine) Histogram2D(a1, a2 Axis, constraints *bitset.Bitmap) (counts []uint64, dim1, dim2 int, err error) {
	mask := e.baseMask(constraints)
	box, err := e.boxMask(mask, a1, a2)
	if err != nil {
		return nil, 0, 0, err
	}
	_, v1, err := e.columnValues(a1.Column, box)
	if err != nil {
		return nil, 0, 0, err
	}
	_, v2, err := e.columnValues(a2.Column, box)
	if err != nil {
		return nil, 0, 0, err
	}
	dim1 = dimAxisCount(a1.Begin, a1.End, a1.Stride)
	dim2 = dimAxisCount(a2.Begin, a2.End, a2.Stride)
	counts = make([]uint64, dim1*dim2)
	for i := range v1 {
		j1, j2 := binIndex(v1[i], a1.Begin, a1.Stride), binIndex(v2[i], a2.Begin, a2.Stride)
		if j1 >= 0 && j1 < dim1 && j2 >= 0 && j2 < dim2 {
			counts[j1*dim2+j2]++
		}
	}
	return counts, dim1, dim2, nil
}

// Histogram3D bins three columns jointly, addressing cell (j1,j2,j3) at
// j1*dim2 + j2*dim3 + j3 (not the more conventional j1*dim2*dim3 + j2*dim3 + j3).
func (e *Engine) Histogram3D(a1, a2, a3 Axis, constraints *bitset.Bitmap) (counts []uint64, dim1, dim2, dim3 int, err error) {
	mask := e.baseMask(constraints)
	box, err := e.boxMask(mask, a1, a2, a3)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	_, v1, err := e.columnValues(a1.Column, box)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	_, v2, err := e.columnValues(a2.Column, box)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	_, v3, err := e.columnValues(a3.Column, box)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	dim1 = dimAxisCount(a1.Begin, a1.End, a1.Stride)
	dim2 = dimAxisCount(a2.Begin, a2.End, a2.Stride)
	dim3 = dimAxisCount(a3.Begin, a3.End, a3.Stride)
	counts = make([]uint64, dim1*dim2*dim3)
	for i := range v1 {
		j1 := binIndex(v1[i], a1.Begin, a1.Stride)
		j2 := binIndex(v2[i], a2.Begin, a2.Stride)
		j3 := binIndex(v3[i], a3.Begin, a3.Stride)
		if j1 >= 0 && j1 < dim1 && j2 >= 0 && j2 < dim2 && j3 >= 0 && j3 < dim3 {
			counts[j1*dim2+j2*dim3+j3]++
		}
	}
	return counts, dim1, dim2, dim3, nil
}

func (e *Engine) boxMask(mask *bitset.Bitmap, axes ...Axis) (*bitset.Bitmap, error) {
	box := mask
	for _, a := range axes {
		m, err := e.ev.Evaluate(rangeFor(a.Column, a.Begin, a.End, a.Stride), box)
		if err != nil {
			return nil, err
		}
		box = m
	}
	return box, nil
}

// GetDistribution computes an adaptive (bounds, counts) pair for
// colName restricted to constraints. If bounds is strictly ascending it
// is used directly; otherwise the distribution is built from the
// column's own observed values.
func (e *Engine) GetDistribution(colName string, constraints *bitset.Bitmap, bounds []float64) (*Distribution, error) {
	mask := e.baseMask(constraints)
	c, vals, err := e.columnValues(colName, mask)
	if err != nil {
		return nil, err
	}
	strict := len(bounds) >= 2
	for i := 1; strict && i < len(bounds); i++ {
		strict = bounds[i-1] < bounds[i]
	}
	if strict {
		return distributionWithBounds(vals, bounds), nil
	}
	return adaptiveDistribution(c, vals), nil
}

func distributionWithBounds(vals, bounds []float64) *Distribution {
	counts := make([]uint64, len(bounds)+1)
	for _, v := range vals {
		counts[sort.Search(len(bounds), func(i int) bool { return bounds[i] > v })]++
	}
	return &Distribution{Bounds: bounds, Counts: counts}
}

func adaptiveDistribution(c *column.Column, vals []float64) *Distribution {
	counts := make(map[float64]uint64, len(vals))
	for _, v := range vals {
		counts[v]++
	}
	distinct := make([]float64, 0, len(counts))
	for v := range counts {
		distinct = append(distinct, v)
	}
	sort.Float64s(distinct)

	switch {
	case len(distinct) == 0:
		return &Distribution{}
	case len(distinct) == 1:
		v := distinct[0]
		return &Distribution{Bounds: []float64{v, v + 1}, Counts: []uint64{0, counts[v], 0}}
	case len(distinct) < 10000:
		outCounts := make([]uint64, len(distinct))
		for i, v := range distinct {
			outCounts[i] = counts[v]
		}
		return &Distribution{Bounds: distinct[1:], Counts: outCounts}
	default:
		return equiCountBins(distinct, counts, c.Type())
	}
}

const adaptiveTargetBins = 1000

// equiCountBins greedily divides sorted distinct values into
// adaptiveTargetBins equi-count bins, separated by a compact boundary
// value between the last value of one bin and the first of the next.
func equiCountBins(distinct []float64, counts map[float64]uint64, t coltype.Type) *Distribution {
	var outBounds []float64
	var outCounts []uint64
	var total uint64
	for _, v := range distinct {
		total += counts[v]
	}
	remainingBins := adaptiveTargetBins
	var acc uint64
	for i, v := range distinct {
		acc += counts[v]
		last := i == len(distinct)-1
		target := total / uint64(remainingBins)
		if !last && acc >= target && remainingBins > 1 {
			outBounds = append(outBounds, compactBoundary(v, distinct[i+1], t))
			outCounts = append(outCounts, acc)
			total -= acc
			acc = 0
			remainingBins--
		}
	}
	outCounts = append(outCounts, acc)
	return &Distribution{Bounds: outBounds, Counts: outCounts}
}

// compactBoundary picks a value greater than lo and at most hi (adjacent
// distinct values) to use as a bin separator: the next representable
// integer for integer columns (equal to hi when lo and hi are
// consecutive integers), the midpoint otherwise.
func compactBoundary(lo, hi float64, t coltype.Type) float64 {
	if t.IsInteger() {
		return lo + 1
	}
	return lo + (hi-lo)/2
}

// GetCumulativeDistribution runs the same algorithm as GetDistribution
// but returns prefix-sum counts, with one extra trailing bound strictly
// greater than the maximum observed value.
func (e *Engine) GetCumulativeDistribution(colName string, constraints *bitset.Bitmap, bounds []float64) (*Distribution, error) {
	d, err := e.GetDistribution(colName, constraints, bounds)
	if err != nil {
		return nil, err
	}
	cum := make([]uint64, len(d.Counts))
	var running uint64
	for i, c := range d.Counts {
		running += c
		cum[i] = running
	}
	_, vals, err := e.columnValues(colName, e.baseMask(constraints))
	if err != nil {
		return nil, err
	}
	maxVal := 0.0
	if len(d.Bounds) > 0 {
		maxVal = d.Bounds[len(d.Bounds)-1]
	}
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	outBounds := append(append([]float64{}, d.Bounds...), maxVal+1)
	outCounts := append(cum, running)
	return &Distribution{Bounds: outBounds, Counts: outCounts}, nil
}

// Pack redistributes d into at most capacity bins: verbatim when it
// already fits, otherwise by greedily merging adjacent bins so each
// merged bin holds approximately remainingTotal/remainingBins rows. The
// output bounds are the input bounds at which merged bins end; the
// first and last input bounds are not necessarily among them (bounds
// [1,2,3,4] with equal counts pack into two bins separated by 3).
func Pack(d *Distribution, capacity int) *Distribution {
	if capacity <= 0 || len(d.Counts) <= capacity {
		return d
	}
	var outBounds []float64
	var outCounts []uint64
	remainingBins := capacity
	var remainingTotal uint64
	for _, c := range d.Counts {
		remainingTotal += c
	}

	i := 0
	for remainingBins > 1 && i < len(d.Counts) {
		target := remainingTotal / uint64(remainingBins)
		var sum uint64
		for i < len(d.Counts) && (sum == 0 || sum < target) {
			sum += d.Counts[i]
			i++
		}
		outCounts = append(outCounts, sum)
		remainingTotal -= sum
		remainingBins--
		if i-1 < len(d.Bounds) {
			outBounds = append(outBounds, d.Bounds[i-1])
		}
	}
	var tail uint64
	for ; i < len(d.Counts); i++ {
		tail += d.Counts[i]
	}
	outCounts = append(outCounts, tail)

	return &Distribution{Bounds: outBounds, Counts: outCounts}
}

// JointDistribution produces bounds1/bounds2/counts for two columns,
// counts addressed at j1*(len(bounds2)+1)+j2. Bounds for either axis are
// computed adaptively when not supplied.
func (e *Engine) JointDistribution(col1 string, bounds1 []float64, col2 string, bounds2 []float64, constraints *bitset.Bitmap) (*Distribution2D, error) {
	mask := e.baseMask(constraints)
	c1, v1, err := e.columnValues(col1, mask)
	if err != nil {
		return nil, err
	}
	c2, v2, err := e.columnValues(col2, mask)
	if err != nil {
		return nil, err
	}
	if len(bounds1) == 0 {
		bounds1 = adaptiveDistribution(c1, v1).Bounds
	}
	if len(bounds2) == 0 {
		bounds2 = adaptiveDistribution(c2, v2).Bounds
	}
	dim2 := len(bounds2) + 1
	counts := make([]uint64, (len(bounds1)+1)*dim2)
	for i := range v1 {
		j1 := sort.Search(len(bounds1), func(k int) bool { return bounds1[k] > v1[i] })
		j2 := sort.Search(len(bounds2), func(k int) bool { return bounds2[k] > v2[i] })
		counts[j1*dim2+j2]++
	}
	return &Distribution2D{Bounds1: bounds1, Bounds2: bounds2, Counts: counts}, nil
}
