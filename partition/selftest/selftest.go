// Package selftest implements the SelfTest verification routine of spec
// section 4.8: fixed-size column file-size checks, an optional
// index-speed micro-benchmark, and either a bounded random quickTest or
// an exhaustive recursive queryTest, run across a small worker pool in
// which the calling goroutine also participates (the same
// channel-of-work-plus-WaitGroup shape els0r/goProbe's DBWorkManager
// uses for concurrent query execution).
package selftest

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/partdb/partdb/config"
	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/evaluator"
	"github.com/partdb/partdb/partition/perr"
	"github.com/partdb/partdb/partition/predicate"
)

// quickTestThreshold is the row count past which quickTest replaces the
// exhaustive queryTest unless the longTests option is set.
const quickTestThreshold = 1_000_000

const quickTestQueries = 50
const queryTestDepth = 4

// Result tallies a self-test run: Queries counts tests that passed,
// Errors counts tests whose cross-check disagreed, and Failures holds
// one message per error.
type Result struct {
	Queries  int
	Errors   int
	Failures []string
}

// Tester runs SelfTest against one Partition.
type Tester struct {
	p   *partition.Partition
	mgr *filemgr.Manager
	ev  *evaluator.Evaluator
	cfg config.Lookup
	log *logx.Logger
	rng *rand.Rand
}

// New returns a Tester over p. cfg may be nil, meaning no config source
// (longTests defaults to false).
func New(p *partition.Partition, mgr *filemgr.Manager, cfg config.Lookup, log *logx.Logger) *Tester {
	if log == nil {
		log = logx.Default()
	}
	return &Tester{
		p: p, mgr: mgr, cfg: cfg, log: log,
		ev:  evaluator.New(p, mgr, log),
		rng: rand.New(rand.NewSource(1)),
	}
}

// VerifyFileSizes confirms every fixed-size column's data file is
// exactly N * ElementSize() bytes. Text/Category columns have no fixed
// element size and are skipped.
func (t *Tester) VerifyFileSizes() []error {
	var errs []error
	n := t.p.N()
	for _, name := range t.p.ColumnNames() {
		c, ok := t.p.Column(name)
		if !ok || c.ElementSize() <= 0 {
			continue
		}
		path, ok := t.p.ColumnPath(name)
		if !ok {
			continue
		}
		fi, err := os.Stat(path)
		if err != nil {
			errs = append(errs, perr.Wrap(perr.KindIO, "selftest: stat "+name, err))
			continue
		}
		want := n * uint64(c.ElementSize())
		if uint64(fi.Size()) != want {
			errs = append(errs, perr.New(perr.KindIO,
				fmt.Sprintf("selftest: %s file size mismatch: got %d, want %d", name, fi.Size(), want)))
		}
	}
	return errs
}

// IndexSpeedBenchmark times numQueries repeated equality evaluations
// against colName, returning the total elapsed duration. It is a
// micro-benchmark, not a correctness check: callers compare the result
// across runs (e.g. before/after LoadIndex) rather than against a fixed
// threshold.
func (t *Tester) IndexSpeedBenchmark(colName string, numQueries int) (time.Duration, error) {
	c, ok := t.p.Column(colName)
	if !ok || c.Type() == coltype.Text || c.Type() == coltype.Category {
		return 0, perr.New(perr.KindConfiguration, "selftest: benchmark: "+colName+" is not numeric")
	}
	lo, hi, ok := c.Bounds()
	if !ok {
		lo, hi = 0, float64(t.p.N())
	}
	start := time.Now()
	for i := 0; i < numQueries; i++ {
		v := lo + t.rng.Float64()*(hi-lo)
		if _, err := t.ev.CountHits(predicate.Range{Column: colName, LowOp: predicate.Eq, Low: v}); err != nil {
			return 0, err
		}
	}
	return time.Since(start), nil
}

// query is one unit of self-test work, dispatched to whichever worker
// (background goroutine or the calling goroutine) pulls it off the
// channel next.
type query struct {
	verify func() error
}

// Run executes SelfTest: quickTest when the partition has more than
// quickTestThreshold rows and longTests is not set in cfg, queryTest
// otherwise. workers-1 goroutines are spawned and the calling goroutine
// also drains the work channel, so workers goroutines share the work.
func (t *Tester) Run(workers int) *Result {
	if workers < 1 {
		workers = 1
	}
	n := t.p.N()
	longTests := config.Bool(t.cfg, t.p.Name(), "longTests")
	useQuick := n > quickTestThreshold && !longTests

	numericCols := t.numericColumns()
	result := &Result{}
	if len(numericCols) == 0 {
		return result
	}

	var queries []query
	if useQuick {
		queries = t.buildQuickQueries(numericCols)
	} else {
		queries = t.buildRecursiveQueries(numericCols)
	}

	jobs := make(chan query, len(queries))
	for _, q := range queries {
		jobs <- q
	}
	close(jobs)

	var mu sync.Mutex
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Errors++
			result.Failures = append(result.Failures, err.Error())
		} else {
			result.Queries++
		}
	}
	drain := func() {
		for q := range jobs {
			record(q.verify())
		}
	}

	var wg sync.WaitGroup
	wg.Add(workers - 1)
	for i := 0; i < workers-1; i++ {
		go func() {
			defer wg.Done()
			drain()
		}()
	}
	drain() // the calling goroutine participates too
	wg.Wait()
	return result
}

func (t *Tester) numericColumns() []string {
	var out []string
	for _, name := range t.p.ColumnNames() {
		c, ok := t.p.Column(name)
		if ok && c.Type() != coltype.Text && c.Type() != coltype.Category {
			out = append(out, name)
		}
	}
	return out
}

// buildQuickQueries generates quickTestQueries bounded random range
// queries against a randomly chosen numeric column each, cross-checked
// by a sequential scan.
func (t *Tester) buildQuickQueries(cols []string) []query {
	queries := make([]query, 0, quickTestQueries)
	for i := 0; i < quickTestQueries; i++ {
		col := cols[t.rng.Intn(len(cols))]
		queries = append(queries, query{verify: func() error { return t.verifyRandomRange(col) }})
	}
	return queries
}

func (t *Tester) verifyRandomRange(col string) error {
	c, ok := t.p.Column(col)
	if !ok {
		return perr.New(perr.KindConfiguration, "selftest: unknown column "+col)
	}
	lo, hi, ok := c.Bounds()
	if !ok || lo >= hi {
		lo, hi = 0, float64(t.p.N())
	}
	a := lo + t.rng.Float64()*(hi-lo)
	b := lo + t.rng.Float64()*(hi-lo)
	if a > b {
		a, b = b, a
	}
	return t.crossCheck(col, a, b)
}

// crossCheck compares Evaluator.CountHits against an independent
// sequential scan over the same [lo,hi) range.
func (t *Tester) crossCheck(col string, lo, hi float64) error {
	evaluated, err := t.ev.CountHits(predicate.Range{Column: col, LowOp: predicate.Ge, Low: lo, HighOp: predicate.Lt, High: hi})
	if err != nil {
		return err
	}
	scanned, err := t.sequentialCount(col, lo, hi)
	if err != nil {
		return err
	}
	if evaluated != scanned {
		return perr.New(perr.KindIO,
			fmt.Sprintf("selftest: %s [%g,%g): evaluate=%d sequential=%d", col, lo, hi, evaluated, scanned))
	}
	return nil
}

func (t *Tester) sequentialCount(col string, lo, hi float64) (uint64, error) {
	c, ok := t.p.Column(col)
	if !ok {
		return 0, perr.New(perr.KindConfiguration, "selftest: unknown column "+col)
	}
	path, _ := t.p.ColumnPath(col)
	h, err := t.mgr.Open(path, true)
	if err != nil {
		return 0, perr.Wrap(perr.KindIO, "selftest: open "+col, err)
	}
	defer h.EndUse()
	vals, err := c.SelectDoubles(column.FileSource{Handle: h}, t.p.ActiveMask())
	if err != nil {
		return 0, err
	}
	var count uint64
	for _, v := range vals {
		if v >= lo && v < hi {
			count++
		}
	}
	return count, nil
}

// buildRecursiveQueries generates recursive tri-section queries:
// for [a,c), split at b and verify
// count([a,c)) == count([a,b)) + count([b,c)), recursing on each half
// down to queryTestDepth.
func (t *Tester) buildRecursiveQueries(cols []string) []query {
	var queries []query
	for _, col := range cols {
		c, ok := t.p.Column(col)
		if !ok {
			continue
		}
		lo, hi, ok := c.Bounds()
		if !ok || lo >= hi {
			lo, hi = 0, float64(t.p.N())
		}
		t.appendSplit(&queries, col, lo, hi, queryTestDepth)
	}
	return queries
}

func (t *Tester) appendSplit(queries *[]query, col string, a, c float64, depth int) {
	if depth <= 0 || a >= c {
		return
	}
	b := a + (c-a)/2
	*queries = append(*queries, query{verify: func() error { return t.verifyTriSection(col, a, b, c) }})
	t.appendSplit(queries, col, a, b, depth-1)
	t.appendSplit(queries, col, b, c, depth-1)
}

func (t *Tester) verifyTriSection(col string, a, b, c float64) error {
	total, err := t.ev.CountHits(predicate.Range{Column: col, LowOp: predicate.Ge, Low: a, HighOp: predicate.Lt, High: c})
	if err != nil {
		return err
	}
	left, err := t.ev.CountHits(predicate.Range{Column: col, LowOp: predicate.Ge, Low: a, HighOp: predicate.Lt, High: b})
	if err != nil {
		return err
	}
	right, err := t.ev.CountHits(predicate.Range{Column: col, LowOp: predicate.Ge, Low: b, HighOp: predicate.Lt, High: c})
	if err != nil {
		return err
	}
	if total != left+right {
		return perr.New(perr.KindIO,
			fmt.Sprintf("selftest: %s tri-section additivity failed: count([a,c))=%d count([a,b))+count([b,c))=%d",
				col, total, left+right))
	}
	return nil
}
