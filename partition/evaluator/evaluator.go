// Package evaluator implements predicate dispatch against a partition: it
// dispatches a predicate against one of a Partition's columns, restricting
// every scan to the caller's mask intersected with the partition's active
// mask, and resolves RID sets and row numbers through partition/ridindex.
// Evaluator never holds a back-reference into Partition's internals: it
// only calls Partition's exported accessors and opens column files itself
// through the FileManager it was constructed with, the same "no cyclic
// ownership" shape partition/column already follows.
package evaluator

import (
	"strconv"
	"strings"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/perr"
	"github.com/partdb/partdb/partition/predicate"
	"github.com/partdb/partdb/partition/ridindex"
	"github.com/partdb/partdb/partition/scan"
)

// StringPred is a string-equality comparison whose two operands are not
// yet resolved into "column" and "literal": LookforString tries the left
// operand as a column name first, then the right.
type StringPred struct {
	Left  string
	Right string
}

// Evaluator dispatches predicate evaluation against one Partition's
// columns.
type Evaluator struct {
	p   *partition.Partition
	mgr *filemgr.Manager
	eng *scan.Engine
	log *logx.Logger
}

// New returns an Evaluator over p, opening column files through mgr.
func New(p *partition.Partition, mgr *filemgr.Manager, log *logx.Logger) *Evaluator {
	if log == nil {
		log = logx.Default()
	}
	return &Evaluator{p: p, mgr: mgr, eng: scan.NewEngine(mgr), log: log}
}

func (ev *Evaluator) effectiveMask(mask *bitset.Bitmap) *bitset.Bitmap {
	active := ev.p.ActiveMask()
	if mask != nil && mask.Len() != 0 && mask.Popcount() > 0 {
		return mask.And(active)
	}
	return active
}

func (ev *Evaluator) openColumn(name string) (*column.Column, *filemgr.Handle, error) {
	c, ok := ev.p.Column(name)
	if !ok {
		return nil, nil, perr.New(perr.KindConfiguration, "evaluator: unknown column "+name)
	}
	path, _ := ev.p.ColumnPath(name)
	h, err := ev.mgr.Open(path, true)
	if err != nil {
		return nil, nil, perr.Wrap(perr.KindIO, "evaluator: open "+name, err)
	}
	return c, h, nil
}

// Estimate returns a conservative (low, high) bracket for r, masked
// against the partition's active mask whenever the index's bracket
// length matches it.
func (ev *Evaluator) Estimate(r predicate.Range) (low, high *bitset.Bitmap) {
	n := ev.p.N()
	c, ok := ev.p.Column(r.Column)
	if !ok {
		ev.log.Warn("evaluator: estimate: unknown column", "column", r.Column)
		return bitset.New(n), bitset.New(n)
	}
	low, high = c.EstimateRange(r, n)
	active := ev.p.ActiveMask()
	if low.Len() == active.Len() {
		low = low.And(active)
	}
	if high.Len() == active.Len() {
		high = high.And(active)
	}
	return low, high
}

// EstimateCount returns a conservative upper-bound row count for r,
// without ever touching the column's data file.
func (ev *Evaluator) EstimateCount(r predicate.Range) uint64 {
	_, high := ev.Estimate(r)
	return high.Popcount()
}

// Evaluate scans r against the column it names, restricted to mask
// intersected with the active mask (mask may be nil, meaning "just the
// active mask"). A missing column is logged and yields an empty result
// rather than an error.
func (ev *Evaluator) Evaluate(r predicate.Range, mask *bitset.Bitmap) (*bitset.Bitmap, error) {
	return ev.evaluate(r, mask, false)
}

// NegationScan returns the rows in mask whose value does NOT satisfy r,
// computed directly by the scan engine rather than by inverting a
// positive result.
func (ev *Evaluator) NegationScan(r predicate.Range, mask *bitset.Bitmap) (*bitset.Bitmap, error) {
	return ev.evaluate(r, mask, true)
}

func (ev *Evaluator) evaluate(r predicate.Range, mask *bitset.Bitmap, negate bool) (*bitset.Bitmap, error) {
	n := ev.p.N()
	c, ok := ev.p.Column(r.Column)
	if !ok {
		ev.log.Warn("evaluator: evaluate: unknown column", "column", r.Column)
		return bitset.New(n), nil
	}
	effective := ev.effectiveMask(mask)
	_, h, err := ev.openColumn(r.Column)
	if err != nil {
		return nil, err
	}
	defer h.EndUse()
	return c.EvaluateRange(ev.eng, column.FileSource{Handle: h}, n, effective, r, negate)
}

// CountHits returns popcount(Evaluate(r, nil)). ScanEngine exposes no
// count-only kernel, so this materializes the bitmap and counts the
// full result rather than avoiding the allocation.
func (ev *Evaluator) CountHits(r predicate.Range) (uint64, error) {
	hits, err := ev.Evaluate(r, nil)
	if err != nil {
		return 0, err
	}
	return hits.Popcount(), nil
}

// EvaluateRidSet resolves rids into a hit bitmap: if the partition
// carries row ids, it sorts them (lazily materializing rids.srt) and
// intersects with the requested set via a merge, falling back to a
// brute-force linear scan if regenerating the sorted file fails. If the
// partition has no row ids, each RID's Event field is treated directly
// as a row position.
func (ev *Evaluator) EvaluateRidSet(rids []ridindex.RID) *bitset.Bitmap {
	n := ev.p.N()
	idx, err := ev.p.RIDs()
	if err != nil {
		ev.log.Warn("evaluator: evaluateRidSet: failed to load rids", "err", err)
		return bitset.New(n)
	}
	if !idx.HasRIDs() {
		return idx.EvaluateRidSet(rids, n)
	}
	if err := ev.p.EnsureSortedRIDs(); err != nil {
		ev.log.Warn("evaluator: evaluateRidSet: rids.srt regeneration failed, falling back to brute force", "err", err)
		return idx.BruteForceEvaluateRidSet(rids, n)
	}
	return idx.EvaluateRidSet(rids, n)
}

// GetRowNumber resolves rid to a row number, binary-searching the
// sorted-RID file with a linear-scan fallback; returns N when rid is
// not found anywhere or the partition has no row ids.
func (ev *Evaluator) GetRowNumber(rid ridindex.RID) uint64 {
	n := ev.p.N()
	idx, err := ev.p.RIDs()
	if err != nil {
		ev.log.Warn("evaluator: getRowNumber: failed to load rids", "err", err)
		return n
	}
	if idx.HasRIDs() {
		if err := ev.p.EnsureSortedRIDs(); err != nil {
			ev.log.Warn("evaluator: getRowNumber: rids.srt regeneration failed", "err", err)
		}
	}
	return idx.GetRowNumber(rid, n)
}

// LookforString tries sp.Left as a column name, then sp.Right, and
// delegates to that column's Text/Category search with the other
// operand as the literal to match.
func (ev *Evaluator) LookforString(sp StringPred, mask *bitset.Bitmap) (*bitset.Bitmap, error) {
	if hits, matched, err := ev.searchColumn(sp.Left, sp.Right, mask); matched {
		return hits, err
	}
	if hits, matched, err := ev.searchColumn(sp.Right, sp.Left, mask); matched {
		return hits, err
	}
	ev.log.Warn("evaluator: lookforString: neither operand names a Text/Category column", "left", sp.Left, "right", sp.Right)
	return bitset.New(ev.p.N()), nil
}

func (ev *Evaluator) searchColumn(colName, value string, mask *bitset.Bitmap) (hits *bitset.Bitmap, matched bool, err error) {
	c, ok := ev.p.Column(colName)
	if !ok || (c.Type() != coltype.Text && c.Type() != coltype.Category) {
		return nil, false, nil
	}
	n := ev.p.N()
	effective := ev.effectiveMask(mask)
	path, _ := ev.p.ColumnPath(colName)
	h, err := ev.mgr.Open(path, true)
	if err != nil {
		return nil, true, perr.Wrap(perr.KindIO, "evaluator: lookforString: open "+colName, err)
	}
	defer h.EndUse()
	strs, err := column.DecodeTextFile(h, column.DefaultTextSlotBytes, n, effective)
	if err != nil {
		return nil, true, err
	}
	return c.Search(strs, effective, value), true, nil
}

// MatchAny implements the matchAny predicate: for every column whose
// name starts with a.Prefix (case-insensitive), it scans that column
// for membership in a.Values restricted to mask minus the hits already
// found, and ORs the result into hits.
func (ev *Evaluator) MatchAny(a predicate.AnyAny, mask *bitset.Bitmap) *bitset.Bitmap {
	n := ev.p.N()
	base := ev.effectiveMask(mask)
	hits := bitset.New(n)
	prefix := strings.ToLower(a.Prefix)

	for _, name := range ev.p.ColumnNames() {
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}
		remaining := base.AndNot(hits)
		if remaining.Popcount() == 0 {
			continue
		}
		colHits, err := ev.matchAnyColumn(name, remaining, a.Values)
		if err != nil {
			ev.log.Warn("evaluator: matchAny: column scan failed", "column", name, "err", err)
			continue
		}
		hits.OrInPlace(colHits)
	}
	return hits
}

func (ev *Evaluator) matchAnyColumn(name string, mask *bitset.Bitmap, values []string) (*bitset.Bitmap, error) {
	c, h, err := ev.openColumn(name)
	if err != nil {
		return nil, err
	}
	defer h.EndUse()
	n := ev.p.N()

	if c.Type() == coltype.Text || c.Type() == coltype.Category {
		strs, err := column.DecodeTextFile(h, column.DefaultTextSlotBytes, n, mask)
		if err != nil {
			return nil, err
		}
		return c.SearchAny(strs, mask, values), nil
	}

	floats := make([]float64, 0, len(values))
	for _, v := range values {
		f, perr2 := strconv.ParseFloat(v, 64)
		if perr2 != nil {
			continue // a non-numeric literal against a numeric column matches nothing
		}
		floats = append(floats, f)
	}
	if len(floats) == 0 {
		return bitset.New(n), nil
	}
	dr := predicate.DiscreteRange{Column: name, Values: floats}
	return c.EvaluateDiscreteRange(ev.eng, column.FileSource{Handle: h}, n, mask, dr, false)
}
