// Package partition implements PartitionLifecycle and
// the Partition data model: the directory/meta-tag
// constructors, the row-mask and RID lazy-load/repair paths, the
// active/backup directory dance, and the concurrency contracts governing
// the rest of the package. Evaluator, HistogramEngine, SelfTest, and IndexBuilderPool
// are built on top of this as separate packages; Partition exposes the
// column map, mask, and RID index they need without holding a back
// reference to any of them.
package partition

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/config"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/binfmt"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition/column"
	"github.com/partdb/partdb/partition/header"
	"github.com/partdb/partdb/partition/perr"
	"github.com/partdb/partdb/partition/ridindex"
)

const (
	maskFileName       = "-part.msk"
	ridsFileName       = "rids"
	sortedRidsFileName = "rids.srt"
	ridBytes           = 8 // uint32 run + uint32 event
)

// Partition is one horizontal slice of a table: its columns, row-validity
// mask, optional row identifiers, and persistent header. The zero value
// is not usable; construct with Open or OpenFromMetaTags.
type Partition struct {
	mu sync.Mutex   // serializes regeneration of cached derived state (rids.srt)
	rw sync.RWMutex // guards every other field below

	name        string
	description string
	n           uint64
	activeDir   string
	backupDir   string
	lastSwitch  time.Time
	state       header.State
	indexSpec   string
	metaTags    map[string]string
	meshShape   []header.ShapeDim

	order   []string // presentation order, file order from the header
	columns map[string]*column.Column

	mask *bitset.Bitmap  // nil means "all rows active"
	rids *ridindex.Index // nil until lazily loaded

	mgr             *filemgr.Manager
	cleaner         filemgr.CleanerHandle
	log             *logx.Logger
	fillRIDsEnabled bool
}

// Open constructs a Partition from an existing (or newly created)
// directory: it validates the directory, reads the header, loads the
// row-mask (repairing it if its size disagrees with N), and derives or
// verifies a backup directory per the configured keys. mgr and cfg may
// be nil.
func Open(dir string, mgr *filemgr.Manager, cfg config.Lookup, log *logx.Logger) (*Partition, error) {
	if log == nil {
		log = logx.Default()
	}
	if err := ensureDir(dir); err != nil {
		return nil, err
	}

	h, err := header.Read(dir, log)
	if err != nil {
		return nil, err
	}

	p := &Partition{
		name:        h.Name,
		description: h.Description,
		n:           h.NumberOfRows,
		activeDir:   dir,
		state:       h.State,
		indexSpec:   h.IndexSpec,
		metaTags:    h.MetaTags,
		meshShape:   h.MeshShape,
		columns:     make(map[string]*column.Column, len(h.Columns)),
		mgr:         mgr,
		log:         log,
	}
	if p.metaTags == nil {
		p.metaTags = make(map[string]string)
	}
	for _, cb := range h.Columns {
		c := column.New(cb.Name, cb.Type)
		if cb.BoundsSet {
			c.SetBounds(cb.LowerBound, cb.UpperBound)
		}
		c.SetIndexSpec(cb.IndexSpec)
		p.columns[key(cb.Name)] = c
		p.order = append(p.order, cb.Name)
	}

	p.fillRIDsEnabled = config.Bool(cfg, p.name, "fillRIDs")

	if err := p.loadMask(); err != nil {
		// a failure loading/repairing the mask is treated like any other
		// partial-construction failure: no partition is returned.
		return nil, err
	}

	p.resolveBackupDir(cfg, h)

	if mgr != nil {
		p.cleaner = mgr.RegisterCleaner(p.onMemoryPressure)
	}
	return p, nil
}

// OpenFromMetaTags synthesizes a directory name under baseDir by joining
// the meta-tag values with underscores (the triple
// (trgSetupName, production, magScale), when all three are present, is
// special-cased to match that exact order ahead of any other tags), then
// defers to Open.
func OpenFromMetaTags(baseDir string, tags map[string]string, mgr *filemgr.Manager, cfg config.Lookup, log *logx.Logger) (*Partition, error) {
	dir := filepath.Join(baseDir, synthesizeDirName(tags))
	p, err := Open(dir, mgr, cfg, log)
	if err != nil {
		return nil, err
	}
	p.rw.Lock()
	for k, v := range tags {
		p.metaTags[k] = v
	}
	p.rw.Unlock()
	return p, nil
}

func synthesizeDirName(tags map[string]string) string {
	var parts []string
	special := []string{"trgSetupName", "production", "magScale"}
	allSpecial := true
	for _, k := range special {
		if _, ok := tags[k]; !ok {
			allSpecial = false
			break
		}
	}
	used := make(map[string]bool)
	if allSpecial {
		for _, k := range special {
			parts = append(parts, tags[k])
			used[k] = true
		}
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, tags[k])
	}
	return strings.Join(parts, "_")
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return perr.New(perr.KindConfiguration, "partition: "+dir+" is not a directory")
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return perr.Wrap(perr.KindConfiguration, "partition: stat "+dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrap(perr.KindConfiguration, "partition: create "+dir, err)
	}
	return nil
}

func key(name string) string { return strings.ToLower(name) }

// --- accessors (read lock) --------------------------------------------------

func (p *Partition) Name() string          { p.rw.RLock(); defer p.rw.RUnlock(); return p.name }
func (p *Partition) Description() string   { p.rw.RLock(); defer p.rw.RUnlock(); return p.description }
func (p *Partition) N() uint64             { p.rw.RLock(); defer p.rw.RUnlock(); return p.n }
func (p *Partition) ActiveDir() string     { p.rw.RLock(); defer p.rw.RUnlock(); return p.activeDir }
func (p *Partition) BackupDir() string     { p.rw.RLock(); defer p.rw.RUnlock(); return p.backupDir }
func (p *Partition) State() header.State   { p.rw.RLock(); defer p.rw.RUnlock(); return p.state }
func (p *Partition) IndexSpec() string     { p.rw.RLock(); defer p.rw.RUnlock(); return p.indexSpec }

// ColumnNames returns column names in header/presentation order.
func (p *Partition) ColumnNames() []string {
	p.rw.RLock()
	defer p.rw.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Column looks up a column by name, case-insensitively.
func (p *Partition) Column(name string) (*column.Column, bool) {
	p.rw.RLock()
	defer p.rw.RUnlock()
	c, ok := p.columns[key(name)]
	return c, ok
}

// FileManager returns the FileManager this partition was opened with, or
// nil if none was supplied to Open.
func (p *Partition) FileManager() *filemgr.Manager {
	p.rw.RLock()
	defer p.rw.RUnlock()
	return p.mgr
}

// ColumnPath returns the absolute path of name's on-disk data file.
func (p *Partition) ColumnPath(name string) (string, bool) {
	p.rw.RLock()
	defer p.rw.RUnlock()
	c, ok := p.columns[key(name)]
	if !ok {
		return "", false
	}
	return filepath.Join(p.activeDir, c.DataFileName()), true
}

// MetaTags returns a copy of the partition's meta-tag multimap.
func (p *Partition) MetaTags() map[string]string {
	p.rw.RLock()
	defer p.rw.RUnlock()
	out := make(map[string]string, len(p.metaTags))
	for k, v := range p.metaTags {
		out[k] = v
	}
	return out
}

// ActiveMask returns a snapshot of the row-validity mask: a full mask of
// length N when no mask file is present.
func (p *Partition) ActiveMask() *bitset.Bitmap {
	p.rw.RLock()
	defer p.rw.RUnlock()
	if p.mask == nil {
		return bitset.Full(p.n)
	}
	return p.mask.Clone()
}

// --- mutation (write lock) ---------------------------------------------------

// SetState sets the lifecycle state and rewrites the header.
func (p *Partition) SetState(s header.State) error {
	p.rw.Lock()
	defer p.rw.Unlock()
	p.state = s
	return p.rewriteHeaderLocked()
}

// SetIndexSpec sets the partition-wide index spec and rewrites the header.
func (p *Partition) SetIndexSpec(spec string) error {
	p.rw.Lock()
	defer p.rw.Unlock()
	p.indexSpec = spec
	return p.rewriteHeaderLocked()
}

// RewriteHeader persists the partition's current in-memory state to its
// header file.
func (p *Partition) RewriteHeader() error {
	p.rw.Lock()
	defer p.rw.Unlock()
	return p.rewriteHeaderLocked()
}

func (p *Partition) rewriteHeaderLocked() error {
	h := &header.Header{
		Name:                 p.name,
		Description:          p.description,
		NumberOfRows:         p.n,
		State:                p.state,
		AlternativeDirectory: p.backupDir,
		IndexSpec:            p.indexSpec,
		MetaTags:             p.metaTags,
		MeshShape:            p.meshShape,
	}
	for _, name := range p.order {
		c := p.columns[key(name)]
		lo, hi, ok := c.Bounds()
		h.Columns = append(h.Columns, header.ColumnBlock{
			Name: c.Name(), Type: c.Type(),
			LowerBound: lo, UpperBound: hi, BoundsSet: ok,
			IndexSpec: c.IndexSpec(),
		})
	}
	return header.Write(p.activeDir, h, time.Now())
}

// --- row-validity mask -------------------------------------------------------

func (p *Partition) maskPath() string { return filepath.Join(p.activeDir, maskFileName) }

func (p *Partition) loadMask() error {
	f, err := os.Open(p.maskPath())
	if err != nil {
		if os.IsNotExist(err) {
			p.mask = nil
			return nil
		}
		return perr.Wrap(perr.KindIO, "partition: open mask file", err)
	}
	defer f.Close()

	m, err := bitset.ReadFrom(f, p.n)
	if err != nil {
		p.log.Warn("partition: mask file unreadable, repairing as all-active", "dir", p.activeDir, "err", err)
		m = bitset.Full(p.n)
	}
	return p.installMask(m)
}

// installMask sets the in-memory mask and normalizes the on-disk
// representation: a mask whose popcount equals N is equivalent to "no
// mask file" and the file is removed; otherwise it is (re)written.
func (p *Partition) installMask(m *bitset.Bitmap) error {
	if m == nil || m.Popcount() == p.n {
		p.mask = nil
		return p.removeMaskFile()
	}
	p.mask = m
	return p.persistMaskLocked()
}

// SetMask installs a new row-validity mask under the write lock,
// applying the same popcount-equals-N normalization as construction.
func (p *Partition) SetMask(m *bitset.Bitmap) error {
	p.rw.Lock()
	defer p.rw.Unlock()
	return p.installMask(m)
}

func (p *Partition) persistMaskLocked() error {
	if p.mask == nil {
		return p.removeMaskFile()
	}
	f, err := os.Create(p.maskPath())
	if err != nil {
		return perr.Wrap(perr.KindIO, "partition: write mask file", err)
	}
	defer f.Close()
	if _, err := p.mask.WriteTo(f); err != nil {
		return perr.Wrap(perr.KindIO, "partition: write mask file", err)
	}
	return nil
}

func (p *Partition) removeMaskFile() error {
	if err := os.Remove(p.maskPath()); err != nil && !os.IsNotExist(err) {
		return perr.Wrap(perr.KindIO, "partition: remove mask file", err)
	}
	return nil
}

// --- row identifiers ---------------------------------------------------------

func (p *Partition) ridsPath() string       { return filepath.Join(p.activeDir, ridsFileName) }
func (p *Partition) sortedRidsPath() string { return filepath.Join(p.activeDir, sortedRidsFileName) }

// RIDs lazily materializes the RID array: read from disk if present,
// synthesized (and persisted) if absent and fillRIDs is enabled,
// otherwise an empty index that treats row positions directly as RIDs.
func (p *Partition) RIDs() (*ridindex.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rids != nil {
		return p.rids, nil
	}

	data, err := os.ReadFile(p.ridsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, perr.Wrap(perr.KindIO, "partition: read rids", err)
		}
		p.rids = ridindex.New(nil)
		if p.fillRIDsEnabled && p.mgr != nil {
			p.rids.FillRIDs(p.n, uint32(p.mgr.NextBeat()))
			if err := p.persistRIDsLocked(); err != nil {
				return nil, err
			}
		}
		return p.rids, nil
	}

	rids, err := decodeRIDs(data, p.n)
	if err != nil {
		return nil, err
	}
	p.rids = ridindex.New(rids)
	return p.rids, nil
}

// FreeRIDs drops the cached RID array under a non-blocking (advisory)
// write lock; it is a no-op if the lock is contested.
func (p *Partition) FreeRIDs() {
	if !p.rw.TryLock() {
		return
	}
	defer p.rw.Unlock()
	p.rids = nil
}

// EnsureSortedRIDs regenerates rids.srt under the partition's dedicated
// mutex (not the rwlock, to avoid deadlocking with
// read-holders) unless an on-disk copy of the expected size already
// exists, in which case it is kept as-is.
func (p *Partition) EnsureSortedRIDs() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rids == nil {
		return perr.New(perr.KindConfiguration, "partition: EnsureSortedRIDs: rids not loaded")
	}
	if data, err := os.ReadFile(p.sortedRidsPath()); err == nil {
		if loadErr := p.rids.LoadSorted(data, p.n); loadErr == nil {
			return nil
		}
	}
	p.rids.SortRIDs()
	return p.persistSortedRIDsLocked()
}

func (p *Partition) persistRIDsLocked() error {
	rids := p.rids.RIDs()
	buf := make([]byte, len(rids)*ridBytes)
	for i, r := range rids {
		off := i * ridBytes
		binfmt.PutU32(buf, off, r.Run)
		binfmt.PutU32(buf, off+4, r.Event)
	}
	if err := os.WriteFile(p.ridsPath(), buf, 0o644); err != nil {
		return perr.Wrap(perr.KindIO, "partition: write rids", err)
	}
	return p.persistSortedRIDsLocked()
}

func (p *Partition) persistSortedRIDsLocked() error {
	data := p.rids.EncodeSorted()
	if err := os.WriteFile(p.sortedRidsPath(), data, 0o644); err != nil {
		return perr.Wrap(perr.KindIO, "partition: write rids.srt", err)
	}
	return nil
}

func decodeRIDs(data []byte, n uint64) ([]ridindex.RID, error) {
	want := int(n) * ridBytes
	if len(data) != want {
		return nil, perr.New(perr.KindParse, fmt.Sprintf("partition: rids file has wrong size: got %d want %d", len(data), want))
	}
	out := make([]ridindex.RID, n)
	for i := range out {
		off := i * ridBytes
		out[i] = ridindex.RID{Run: binfmt.ReadU32(data, off), Event: binfmt.ReadU32(data, off+4)}
	}
	return out, nil
}

// --- backup directory dance --------------------------------------------------

func (p *Partition) resolveBackupDir(cfg config.Lookup, h *header.Header) {
	backupDir, _ := config.Resolve(cfg, p.name, "backupDir")
	if backupDir == "" {
		backupDir, _ = config.Resolve(cfg, p.name, "dataDir2")
	}
	if backupDir == "" {
		backupDir, _ = config.Resolve(cfg, p.name, "backupDirectory")
	}
	useBackup := config.Bool(cfg, "", "ibis.table."+p.name+".useBackupDir") ||
		config.Bool(cfg, "", "ibis.table."+p.name+".useShadowDir")

	switch {
	case backupDir != "":
		p.backupDir = backupDir
	case h.AlternativeDirectory != "":
		p.backupDir = h.AlternativeDirectory
	case useBackup:
		p.backupDir = deriveBackupDirName(p.activeDir)
	default:
		return
	}
	p.verifyBackupDir()
}

// deriveBackupDirName starts from activeDir, strips any trailing digits
// from the final path element, then increments a numeric suffix until it
// finds a name that does not yet exist.
func deriveBackupDirName(activeDir string) string {
	parent := filepath.Dir(activeDir)
	base := filepath.Base(activeDir)
	trimmed := strings.TrimRight(base, "0123456789")
	suffix := base[len(trimmed):]
	n := 0
	if suffix != "" {
		n, _ = strconv.Atoi(suffix)
	}
	for {
		n++
		candidate := filepath.Join(parent, fmt.Sprintf("%s%d", trimmed, n))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// verifyBackupDir checks that the backup directory's own header agrees
// with this partition on Alternative_Directory, row count, and column
// count; on any disagreement (including the backup directory not
// existing yet) it triggers a detached repair copy.
func (p *Partition) verifyBackupDir() {
	bh, err := header.Read(p.backupDir, p.log)
	mismatch := err != nil ||
		bh.NumberOfRows != p.n ||
		int(bh.NumberOfColumns) != len(p.order) ||
		bh.AlternativeDirectory != p.activeDir
	if mismatch {
		p.state = header.Transitioning
		p.makeBackupCopy()
	}
}

// makeBackupCopy spawns a detached background task that removes the
// existing backup directory and performs a recursive copy of the active
// directory into its place, transitioning the partition to Stable on
// success. SIGHUP/SIGINT are drained for the task's duration so a copy
// in progress cannot be interrupted into a half-populated state.
func (p *Partition) makeBackupCopy() {
	go func() {
		sigc := make(chan os.Signal, 4)
		signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-sigc:
				case <-done:
					return
				}
			}
		}()

		err := p.copyBackupDir()
		close(done)
		signal.Stop(sigc)

		if err != nil {
			bgErr := perr.Wrap(perr.KindBackgroundTask, "partition: makeBackupCopy", err)
			p.log.Error("partition: backup copy failed", "dir", p.activeDir, "err", bgErr)
			return
		}
		if err := p.SetState(header.Stable); err != nil {
			p.log.Error("partition: rewrite header after backup copy", "err", err)
		}
	}()
}

// copyBackupDir holds the read lock for the duration of the copy (spec
// section 9's resolution: backup maintenance must not block ordinary
// readers from a concurrent write, only from a concurrent directory
// swap), removes the destination, then performs a recursive pure-Go
// directory copy with no shell-out.
func (p *Partition) copyBackupDir() error {
	p.rw.RLock()
	defer p.rw.RUnlock()
	if err := os.RemoveAll(p.backupDir); err != nil {
		return perr.Wrap(perr.KindIO, "partition: remove backup dir", err)
	}
	return copyDir(p.activeDir, p.backupDir)
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		sp := filepath.Join(src, e.Name())
		dp := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(sp, dp); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(sp, dp); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// onMemoryPressure is registered with FileManager as this partition's
// cleaner. It must not recursively acquire p.rw; there is currently nothing cached here that a
// cleaner needs to drop beyond what FileManager itself already manages
// per handle, so this is a no-op placeholder callers can extend.
func (p *Partition) onMemoryPressure() {}

// Close unregisters this partition's FileManager cleaner.
func (p *Partition) Close() {
	p.cleaner.Unregister()
}
