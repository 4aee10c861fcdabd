package partition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition/header"
)

func writeHeader(t *testing.T, dir string, h *header.Header) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := header.Write(dir, h, time.Now()); err != nil {
		t.Fatal(err)
	}
}

func basicHeader() *header.Header {
	return &header.Header{
		Name:         "p1",
		NumberOfRows: 4,
		State:        header.Stable,
		Columns: []header.ColumnBlock{
			{Name: "a", Type: coltype.Int},
			{Name: "b", Type: coltype.Double},
		},
	}
}

func TestOpenReadsHeaderAndColumns(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p.N() != 4 {
		t.Fatalf("N = %d", p.N())
	}
	if got := p.ColumnNames(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("ColumnNames = %v", got)
	}
	c, ok := p.Column("A") // case-insensitive lookup
	if !ok || c.Name() != "a" {
		t.Fatalf("Column(\"A\") = %v, %v", c, ok)
	}
}

func TestOpenMissingDirIsCreatedButHeaderReadFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	if _, err := Open(dir, nil, nil, logx.Nop()); err == nil {
		t.Fatal("expected an error: a freshly created directory has no header yet")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected directory to have been created: %v", err)
	}
}

func TestActiveMaskDefaultsToFullWhenNoMaskFile(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	mask := p.ActiveMask()
	if mask.Popcount() != p.N() {
		t.Fatalf("popcount = %d, want %d", mask.Popcount(), p.N())
	}
}

func TestSetMaskPersistsAndNormalizesFullMaskAway(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	partial := p.ActiveMask()
	partial.Clear(1)
	if err := p.SetMask(partial); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p.maskPath()); err != nil {
		t.Fatalf("expected mask file to be written: %v", err)
	}

	p2, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if p2.ActiveMask().Popcount() != 3 {
		t.Fatalf("reloaded popcount = %d, want 3", p2.ActiveMask().Popcount())
	}

	full := p2.ActiveMask()
	full.Set(1)
	if err := p2.SetMask(full); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p2.maskPath()); !os.IsNotExist(err) {
		t.Fatalf("expected mask file to be removed once the mask covers every row, err=%v", err)
	}
}

func TestRIDsWithoutFillRIDsReturnsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := p.RIDs()
	if err != nil {
		t.Fatal(err)
	}
	if idx.HasRIDs() {
		t.Fatal("expected no materialized rids without fillRIDs and a FileManager")
	}
}

func TestRIDsWithFillRIDsSynthesizesAndPersists(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	cfg := fakeLookup{"fillRIDs": "true"}
	mgr := filemgr.New(nil)
	p, err := Open(dir, mgr, cfg, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	idx, err := p.RIDs()
	if err != nil {
		t.Fatal(err)
	}
	if !idx.HasRIDs() || len(idx.RIDs()) != 4 {
		t.Fatalf("expected 4 synthesized rids, got %+v", idx.RIDs())
	}
	if _, err := os.Stat(p.ridsPath()); err != nil {
		t.Fatalf("expected rids file to be written: %v", err)
	}
	if _, err := os.Stat(p.sortedRidsPath()); err != nil {
		t.Fatalf("expected rids.srt to be written: %v", err)
	}
}

func TestFreeRIDsDropsCache(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.RIDs(); err != nil {
		t.Fatal(err)
	}
	p.FreeRIDs()
	if p.rids != nil {
		t.Fatal("expected FreeRIDs to drop the cached index")
	}
}

func TestSetStateRewritesHeader(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, basicHeader())

	p, err := Open(dir, nil, nil, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetState(header.Transitioning); err != nil {
		t.Fatal(err)
	}

	h, err := header.Read(dir, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if h.State != header.Transitioning {
		t.Fatalf("State = %v, want Transitioning", h.State)
	}
}

func TestDeriveBackupDirNameIncrementsPastExisting(t *testing.T) {
	parent := t.TempDir()
	active := filepath.Join(parent, "part3")
	if err := os.MkdirAll(active, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(parent, "part4"), 0o755); err != nil {
		t.Fatal(err)
	}
	got := deriveBackupDirName(active)
	want := filepath.Join(parent, "part5")
	if got != want {
		t.Fatalf("deriveBackupDirName = %q, want %q", got, want)
	}
}

func TestCopyDirRecursivelyCopiesFiles(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "b"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(t.TempDir(), "copy")
	if err := copyDir(src, dst); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "nested", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("copied content = %q", got)
	}
}

func TestSynthesizeDirNamePrefersSpecialTriple(t *testing.T) {
	tags := map[string]string{
		"trgSetupName": "rig1",
		"production":   "p9",
		"magScale":     "1.0T",
		"extra":        "z",
	}
	got := synthesizeDirName(tags)
	want := "rig1_p9_1.0T_z"
	if got != want {
		t.Fatalf("synthesizeDirName = %q, want %q", got, want)
	}
}

type fakeLookup map[string]string

func (f fakeLookup) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}
