// Package ridindex implements the RID (row identifier) side of the
// partition runtime: a 64-bit row id viewable as a (run, event) pair, the on-disk
// sorted-RID file (triples of (run, event, row) sorted by (run, event)),
// and the two-pointer merge used to turn a requested RID set into a hit
// bitmap.
package ridindex

import (
	"sort"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/internal/binfmt"
	"github.com/partdb/partdb/partition/perr"
)

// RID is a row identifier, a 64-bit value viewable as a (run, event) pair.
type RID struct {
	Run   uint32
	Event uint32
}

// Less orders RIDs by (Run, Event), the sort key the sorted-RID file
// and every RID merge operation uses.
func (r RID) Less(other RID) bool {
	if r.Run != other.Run {
		return r.Run < other.Run
	}
	return r.Event < other.Event
}

// triple is one row of the sorted-RID file: (run, event, row position).
type triple struct {
	RID
	Row uint32
}

const tripleBytes = 12 // 3 x uint32

// Index holds a partition's row-id array and its lazily materialized
// sorted form. It is not safe for concurrent mutation; callers serialize
// SortRIDs/FillRIDs under the partition's own mutex.
type Index struct {
	rids   []RID   // rids[i] is the RID of row i; nil if not yet materialized
	sorted []triple // sorted by (Run, Event); nil until SortRIDs or Load
}

// New wraps an already-materialized RID array (rids[i] is row i's RID).
func New(rids []RID) *Index {
	return &Index{rids: rids}
}

// HasRIDs reports whether the partition carries row ids at all.
func (idx *Index) HasRIDs() bool { return idx.rids != nil }

// RIDs returns the row-id array, or nil if none is materialized.
func (idx *Index) RIDs() []RID { return idx.rids }

// FillRIDs synthesizes a RID array of length n when the partition has
// none on disk: run is a monotonically increasing counter supplied by
// the caller (FileManager's "beat"), event is the
// row index. The synthesized array becomes both the live RID array and
// the seed for a freshly sorted rids.srt.
func (idx *Index) FillRIDs(n uint64, run uint32) {
	rids := make([]RID, n)
	for i := range rids {
		rids[i] = RID{Run: run, Event: uint32(i)}
	}
	idx.rids = rids
	idx.sorted = nil
	idx.SortRIDs()
}

// SortRIDs builds the sorted-RID representation from the live RID array
// if it is not already materialized. A no-op if already sorted.
func (idx *Index) SortRIDs() {
	if idx.sorted != nil || idx.rids == nil {
		return
	}
	t := make([]triple, len(idx.rids))
	for i, r := range idx.rids {
		t[i] = triple{RID: r, Row: uint32(i)}
	}
	sort.Slice(t, func(i, j int) bool { return t[i].RID.Less(t[j].RID) })
	idx.sorted = t
}

// EncodeSorted serializes the sorted-RID representation as packed
// triples, the exact layout of rids.srt: 12N bytes, (run, event, row)
// per row, sorted ascending by (run, event).
func (idx *Index) EncodeSorted() []byte {
	idx.SortRIDs()
	out := make([]byte, len(idx.sorted)*tripleBytes)
	for i, t := range idx.sorted {
		off := i * tripleBytes
		binfmt.PutU32(out, off, t.Run)
		binfmt.PutU32(out, off+4, t.Event)
		binfmt.PutU32(out, off+8, t.Row)
	}
	return out
}

// LoadSorted accepts a previously-written rids.srt buffer if its size
// matches n (3N x uint32 = 12N bytes); otherwise it is considered wrong
// sized and the caller should regenerate it instead.
func (idx *Index) LoadSorted(data []byte, n uint64) error {
	want := int(n) * tripleBytes
	if len(data) != want {
		return perr.New(perr.KindAbsentArtifact, "ridindex: rids.srt has wrong size, needs regeneration")
	}
	t := make([]triple, n)
	for i := range t {
		off := i * tripleBytes
		t[i] = triple{
			RID: RID{Run: binfmt.ReadU32(data, off), Event: binfmt.ReadU32(data, off+4)},
			Row: binfmt.ReadU32(data, off+8),
		}
	}
	idx.sorted = t
	return nil
}

// GetRowNumber binary-searches the sorted-RID file for rid, falling
// back to a linear scan of the live RID array on a miss. Returns n
// (the row count) when rid is not found anywhere.
func (idx *Index) GetRowNumber(rid RID, n uint64) uint64 {
	if idx.sorted != nil {
		i := sort.Search(len(idx.sorted), func(i int) bool {
			return !idx.sorted[i].RID.Less(rid)
		})
		if i < len(idx.sorted) && idx.sorted[i].RID == rid {
			return uint64(idx.sorted[i].Row)
		}
	}
	for i, r := range idx.rids {
		if r == rid {
			return uint64(i)
		}
	}
	return n
}

// SearchSortedRIDs performs a two-pointer merge of a sorted input set
// against the sorted-RID file, setting the corresponding row bit in out
// for every match. set must
// already be sorted by (Run, Event); the caller sorts it (e.g. via
// SortSet) before calling.
func (idx *Index) SearchSortedRIDs(set []RID, out *bitset.Bitmap) {
	idx.SortRIDs()
	i, j := 0, 0
	for i < len(set) && j < len(idx.sorted) {
		s, t := set[i], idx.sorted[j]
		switch {
		case s.Less(t.RID):
			i++
		case t.RID.Less(s):
			j++
		default:
			out.Set(t.Row)
			i++
			j++
		}
	}
}

// SortSet returns a sorted copy of rids, the form SearchSortedRIDs
// expects for its set argument.
func SortSet(rids []RID) []RID {
	out := make([]RID, len(rids))
	copy(out, rids)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// EvaluateRidSet resolves a requested RID set into a hit bitmap of
// length n: if the partition carries row ids, it sorts the set and
// intersects it against the sorted-RID file; if the partition has no
// row ids at all, each RID's Event field (the lower 32 bits) is treated
// directly as a row position.
func (idx *Index) EvaluateRidSet(rids []RID, n uint64) *bitset.Bitmap {
	out := bitset.New(n)
	if !idx.HasRIDs() {
		for _, r := range rids {
			if uint64(r.Event) < n {
				out.Set(r.Event)
			}
		}
		return out
	}
	idx.SearchSortedRIDs(SortSet(rids), out)
	return out
}

// BruteForceEvaluateRidSet is the fallback path used when sorting or
// searching the RID file fails for any reason: a linear scan of the
// live RID array.
func (idx *Index) BruteForceEvaluateRidSet(rids []RID, n uint64) *bitset.Bitmap {
	out := bitset.New(n)
	want := make(map[RID]struct{}, len(rids))
	for _, r := range rids {
		want[r] = struct{}{}
	}
	for i, r := range idx.rids {
		if _, ok := want[r]; ok && uint64(i) < n {
			out.Set(uint32(i))
		}
	}
	return out
}
