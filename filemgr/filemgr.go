// Package filemgr is the concrete FileManager: it opens, mmaps, and reads
// files, tracks pages, and notifies cleaners on pressure. The partition runtime only ever depends on
// the Manager/Handle contract below; this package is the one place that
// owns real file descriptors, real mmap mappings, and the access-hint
// bookkeeping ScanEngine consults before choosing mmap vs. buffered reads.
package filemgr

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/internal/logx"
)

// pageSize is the assumed OS page size used for access-hint bucketing
// and dirty-range coalescing.
const pageSize = 4096

// AccessHint is the advisory signal scan.AccessHint returns:
// whether a scan should prefer mmap or buffered reads for a
// given mask and element size.
type AccessHint int

const (
	// PreferMmap is the default when neither extreme applies.
	PreferMmap AccessHint = iota
	// MmapLarge means the touched pages are few and concentrated: map once,
	// let the OS page cache do the rest.
	MmapLarge
	// PreferRead means more than 1/16th of the file's pages will be
	// touched: a single sequential read beats scattered page faults.
	PreferRead
)

func (h AccessHint) String() string {
	switch h {
	case MmapLarge:
		return "MmapLarge"
	case PreferRead:
		return "PreferRead"
	default:
		return "PreferMmap"
	}
}

// Stats is a snapshot of Manager-wide bookkeeping: open files, mapped
// bytes, read calls and bytes, and pressure notifications.
type Stats struct {
	FilesOpen    int
	BytesMapped  int64
	ReadCalls    uint64
	BytesRead    int64
	PressureHits uint64
}

// Cleaner is registered by a Partition so the Manager can ask it to drop
// caches under memory pressure. Cleaners must never call back into the partition's
// locks: Manager invokes them synchronously from whatever goroutine
// detected pressure.
type Cleaner func()

// CleanerHandle lets a Partition unregister its cleaner on Close.
type CleanerHandle struct {
	mgr *Manager
	id  uint64
}

// Unregister removes the cleaner. Safe to call more than once.
func (h CleanerHandle) Unregister() {
	if h.mgr == nil {
		return
	}
	h.mgr.mu.Lock()
	delete(h.mgr.cleaners, h.id)
	h.mgr.mu.Unlock()
}

// Manager owns open file handles for one or more partitions, tracks which
// pages have been touched per file (for AccessHint), and fans out a
// low-memory signal to registered Cleaners.
type Manager struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	cleaners map[uint64]Cleaner
	nextID   uint64
	beat     uint64
	stats    Stats
	log      *logx.Logger
}

// New returns an empty Manager. log may be nil (falls back to logx.Default()).
func New(log *logx.Logger) *Manager {
	if log == nil {
		log = logx.Default()
	}
	return &Manager{
		handles:  make(map[string]*Handle),
		cleaners: make(map[uint64]Cleaner),
		log:      log,
	}
}

// RegisterCleaner registers fn to be called when NotifyPressure fires.
func (m *Manager) RegisterCleaner(fn Cleaner) CleanerHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.cleaners[id] = fn
	return CleanerHandle{mgr: m, id: id}
}

// NotifyPressure invokes every registered cleaner. Index loading that
// triggers memory pressure calls this; cleaners must not recursively
// acquire the partition's locks.
func (m *Manager) NotifyPressure() {
	m.mu.Lock()
	fns := make([]Cleaner, 0, len(m.cleaners))
	for _, fn := range m.cleaners {
		fns = append(fns, fn)
	}
	m.stats.PressureHits++
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// NextBeat returns a monotonically increasing, process-wide counter used
// to stamp synthesized RIDs' run field when a partition has no row ids
// of its own.
func (m *Manager) NextBeat() uint64 {
	return atomic.AddUint64(&m.beat, 1)
}

// Open opens path, preferring mmap when preferMmap is true and the
// platform supports it (unix/darwin); otherwise the file stays open and
// ReadAt reads from it on demand. Repeated Open calls for the same path return the same *Handle
// with an incremented reference count.
func (m *Manager) Open(path string, preferMmap bool) (*Handle, error) {
	m.mu.Lock()
	if h, ok := m.handles[path]; ok {
		h.beginUse()
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	size := st.Size()

	var mapped []byte
	if preferMmap && size > 0 {
		mapped, err = mmapFile(f, size)
		if err != nil {
			m.log.Warn("mmap failed, falling back to buffered read", "path", path, "err", err)
			mapped = nil
		}
	}

	h := &Handle{
		mgr:    m,
		path:   path,
		f:      f,
		mapped: mapped,
		size:   size,
		refs:   1,
		pages:  newPageSet(),
	}

	m.mu.Lock()
	m.handles[path] = h
	m.stats.FilesOpen++
	if mapped != nil {
		m.stats.BytesMapped += size
	}
	m.mu.Unlock()

	return h, nil
}

// Stats returns a snapshot of Manager-wide bookkeeping.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) recordRead(n int64) {
	m.mu.Lock()
	m.stats.ReadCalls++
	m.stats.BytesRead += n
	m.mu.Unlock()
}

func (m *Manager) closeHandle(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.handles[h.path]; ok && cur == h {
		delete(m.handles, h.path)
		m.stats.FilesOpen--
		if h.mapped != nil {
			m.stats.BytesMapped -= h.size
		}
	}
}

// Handle is a reference-counted open file, optionally backed by an mmap
// mapping. BeginUse/EndUse implement the explicit reference counting spec
// section 5 requires of FileManager-owned buffers.
type Handle struct {
	mgr    *Manager
	path   string
	f      *os.File
	mapped []byte
	size   int64
	refs   int32
	pages  *pageSet
}

func (h *Handle) beginUse() { atomic.AddInt32(&h.refs, 1) }

// BeginUse increments the reference count.
func (h *Handle) BeginUse() { h.beginUse() }

// EndUse decrements the reference count. When it reaches zero the handle
// is unmapped/closed and removed from the Manager.
func (h *Handle) EndUse() error {
	if atomic.AddInt32(&h.refs, -1) > 0 {
		return nil
	}
	h.mgr.closeHandle(h)
	var err error
	if h.mapped != nil {
		err = munmapFile(h.mapped)
		h.mapped = nil
	}
	if h.f != nil {
		if cerr := h.f.Close(); err == nil {
			err = cerr
		}
		h.f = nil
	}
	return err
}

// Mapped reports whether this handle is backed by an mmap mapping.
func (h *Handle) Mapped() bool { return h.mapped != nil }

// Size returns the file's size in bytes at open time.
func (h *Handle) Size() int64 { return h.size }

// Bytes returns the mmap'd region, or nil if this handle is read-only
// buffered access.
func (h *Handle) Bytes() []byte { return h.mapped }

// ReadAt fills buf from the file at the given absolute offset, hiding
// seek/EOF/short-read handling from callers
// and recording the touched page range for access-hint bookkeeping
// and FileManager statistics. Every read path closes cleanly on error: a
// failed mmap-backed read never leaves a dangling reference, and a failed
// buffered read never leaves the file descriptor in a partial-seek state.
func (h *Handle) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > h.size {
		return 0, io.ErrUnexpectedEOF
	}
	h.pages.markRange(off, int64(len(buf)))
	if h.mapped != nil {
		n := copy(buf, h.mapped[off:off+int64(len(buf))])
		h.mgr.recordRead(int64(n))
		return n, nil
	}
	n, err := h.f.ReadAt(buf, off)
	h.mgr.recordRead(int64(n))
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("filemgr: read %s at %d: %w", h.path, off, err)
	}
	return n, nil
}

// TouchedPages returns the number of distinct pages recorded by ReadAt so
// far, and ResetTouched clears that bookkeeping. AccessHintFor does not
// consult them; it derives its page counts from the mask it is given.
func (h *Handle) TouchedPages() int { return h.pages.count() }
func (h *Handle) ResetTouched()     { h.pages.reset() }

// AccessHintFor implements ScanEngine's access-hint function:
// given a candidate mask over n rows of size elemSize, decide
// whether a scan should prefer mmap or buffered reads.
//
//   - PreferRead when more than 1/16 of the file's pages would be touched.
//   - MmapLarge when the touched pages are few and concentrated (the runs
//     span a small number of contiguous page-sized windows).
//   - PreferMmap otherwise (the default).
func AccessHintFor(mask *bitset.Bitmap, n uint64, elemSize int) AccessHint {
	if elemSize <= 0 || n == 0 {
		return PreferRead
	}
	totalBytes := n * uint64(elemSize)
	totalPages := (totalBytes + pageSize - 1) / pageSize
	if totalPages == 0 {
		return MmapLarge
	}

	pages := newPageSet()
	spanPages := 0
	it := mask.Runs()
	var firstPage, lastPage int64 = -1, -1
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		startByte := int64(r.Start) * int64(elemSize)
		endByte := (int64(r.Start) + int64(r.Length)) * int64(elemSize)
		pages.markRange(startByte, endByte-startByte)
		p0 := startByte / pageSize
		p1 := (endByte - 1) / pageSize
		if firstPage == -1 {
			firstPage = p0
		}
		lastPage = p1
	}
	spanPages = int(lastPage-firstPage) + 1
	if lastPage < 0 {
		spanPages = 0
	}

	touched := pages.count()
	threshold := int(totalPages / 16)
	if touched > threshold && threshold > 0 {
		return PreferRead
	}
	// Concentrated: the touched pages fit within a small contiguous span
	// relative to the whole file.
	if spanPages > 0 && spanPages <= touched+touched/4+1 && int(totalPages) > 0 && spanPages*8 < int(totalPages) {
		return MmapLarge
	}
	return PreferMmap
}

// pageSet tracks distinct touched pages with a sorted, coalesced range
// list, avoiding the need to materialize a bit per page for very large
// files.
type pageSet struct {
	mu     sync.Mutex
	ranges []pageRange
}

type pageRange struct{ lo, hi int64 } // [lo, hi)

func newPageSet() *pageSet { return &pageSet{} }

func (p *pageSet) markRange(off, length int64) {
	if length <= 0 {
		return
	}
	lo := off / pageSize
	hi := (off+length-1)/pageSize + 1

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ranges = append(p.ranges, pageRange{lo, hi})
	if len(p.ranges) > 256 {
		p.ranges = coalesce(p.ranges)
	}
}

func (p *pageSet) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := coalesce(p.ranges)
	p.ranges = merged
	var total int64
	for _, r := range merged {
		total += r.hi - r.lo
	}
	return int(total)
}

func (p *pageSet) reset() {
	p.mu.Lock()
	p.ranges = nil
	p.mu.Unlock()
}

func coalesce(ranges []pageRange) []pageRange {
	if len(ranges) == 0 {
		return ranges
	}
	sorted := make([]pageRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lo < sorted[j].lo })
	out := sorted[:1]
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.lo <= last.hi {
			if r.hi > last.hi {
				last.hi = r.hi
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
