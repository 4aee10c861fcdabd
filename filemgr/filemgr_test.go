package filemgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/partdb/partdb/bitset"
)

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "col.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenReadAtRoundTrip(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	path := writeTempFile(t, data)

	m := New(nil)
	h, err := m.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.EndUse()

	buf := make([]byte, 8)
	n, err := h.ReadAt(buf, 16)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Fatalf("n = %d", n)
	}
	for i, b := range buf {
		if b != byte(16+i) {
			t.Fatalf("buf[%d] = %d, want %d", i, b, 16+i)
		}
	}
}

func TestReadAtOutOfBoundsFails(t *testing.T) {
	path := writeTempFile(t, make([]byte, 8))
	m := New(nil)
	h, err := m.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer h.EndUse()

	buf := make([]byte, 16)
	if _, err := h.ReadAt(buf, 0); err == nil {
		t.Fatal("expected error reading past end of file")
	}
}

func TestRefCountingReusesHandle(t *testing.T) {
	path := writeTempFile(t, make([]byte, 8))
	m := New(nil)
	h1, err := m.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := m.Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("expected same handle for repeated Open")
	}
	if err := h1.EndUse(); err != nil {
		t.Fatal(err)
	}
	if m.Stats().FilesOpen != 1 {
		t.Fatalf("file should still be open after first EndUse, stats=%+v", m.Stats())
	}
	if err := h2.EndUse(); err != nil {
		t.Fatal(err)
	}
	if m.Stats().FilesOpen != 0 {
		t.Fatalf("file should be closed after final EndUse, stats=%+v", m.Stats())
	}
}

func TestNotifyPressureInvokesCleaners(t *testing.T) {
	m := New(nil)
	calls := 0
	h := m.RegisterCleaner(func() { calls++ })
	m.NotifyPressure()
	m.NotifyPressure()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	h.Unregister()
	m.NotifyPressure()
	if calls != 2 {
		t.Fatalf("cleaner should not fire after Unregister, calls = %d", calls)
	}
}

func TestAccessHintForPreferReadWhenWidespread(t *testing.T) {
	n := uint64(1 << 20)
	mask := bitset.Full(n) // touches ~every page
	if got := AccessHintFor(mask, n, 8); got != PreferRead {
		t.Fatalf("AccessHintFor = %v, want PreferRead", got)
	}
}

func TestAccessHintForMmapLargeWhenConcentrated(t *testing.T) {
	n := uint64(1 << 20)
	mask := bitset.New(n)
	mask.SetRange(0, 4) // a handful of rows, one tight region
	if got := AccessHintFor(mask, n, 8); got != MmapLarge {
		t.Fatalf("AccessHintFor = %v, want MmapLarge", got)
	}
}
