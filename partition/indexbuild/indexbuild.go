// Package indexbuild implements IndexBuilderPool: a
// shared atomic counter hands out column indices to a small worker pool,
// each worker computing min/max where unset and round-tripping the
// column's index through loadIndex/unloadIndex before releasing the
// data file handle (the release is FileManager's flush, since
// filemgr.Handle.EndUse already unmaps/closes once the reference count
// reaches zero). Workers are goroutines rather than system-scope
// threads; the calling goroutine joins the pool via errgroup.Group the
// same way partition/selftest's worker pool joins via sync.WaitGroup.
package indexbuild

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/perr"
)

// Result tallies one Run: Built counts columns that completed without
// error, Errors counts columns whose loadIndex/unloadIndex/min-max step
// failed, and Failures holds one message per error.
type Result struct {
	Built    int
	Errors   int
	Failures []string
}

// Pool builds (or rebuilds) the index for every column of a Partition.
type Pool struct {
	p      *partition.Partition
	mgr    *filemgr.Manager
	loader column.IndexLoader
	log    *logx.Logger
}

// New returns a Pool over p. loader may be nil: every column still gets
// its min/max computed, and no column's index is loaded.
func New(p *partition.Partition, mgr *filemgr.Manager, loader column.IndexLoader, log *logx.Logger) *Pool {
	if log == nil {
		log = logx.Default()
	}
	return &Pool{p: p, mgr: mgr, loader: loader, log: log}
}

// Run builds every column's index across workers goroutines, the
// calling goroutine being one of them, each pulling the next column off a shared atomic
// counter until none remain. A column's own build error is tallied into
// Result rather than returned, so one failing column never cancels the
// rest of the group.
func (pl *Pool) Run(workers int) *Result {
	if workers < 1 {
		workers = 1
	}
	names := pl.p.ColumnNames()
	var next int64 = -1
	result := &Result{}
	var mu sync.Mutex

	work := func() error {
		for {
			i := atomic.AddInt64(&next, 1)
			if i >= int64(len(names)) {
				return nil
			}
			name := names[i]
			err := pl.buildOne(name)
			mu.Lock()
			if err != nil {
				result.Errors++
				result.Failures = append(result.Failures, err.Error())
				pl.log.Error("indexbuild: column build failed", "column", name, "err", err)
			} else {
				result.Built++
			}
			mu.Unlock()
		}
	}

	var g errgroup.Group
	for i := 0; i < workers-1; i++ {
		g.Go(work)
	}
	work() // the main goroutine joins the pool too
	_ = g.Wait()
	return result
}

func (pl *Pool) buildOne(name string) error {
	c, ok := pl.p.Column(name)
	if !ok {
		return perr.New(perr.KindConfiguration, "indexbuild: unknown column "+name)
	}
	path, ok := pl.p.ColumnPath(name)
	if !ok {
		return perr.New(perr.KindConfiguration, "indexbuild: no data file for "+name)
	}
	h, err := pl.mgr.Open(path, true)
	if err != nil {
		return perr.Wrap(perr.KindIO, "indexbuild: open "+name, err)
	}
	defer h.EndUse() // flushes the data file once refcount drops to zero

	if err := c.ComputeMinMax(column.FileSource{Handle: h}, pl.p.N()); err != nil {
		return err
	}

	if spec := c.IndexSpec(); spec != "" && pl.loader != nil {
		if err := c.LoadIndex(pl.loader, spec); err != nil {
			return err
		}
		if err := c.UnloadIndex(); err != nil {
			return err
		}
	}
	return nil
}
