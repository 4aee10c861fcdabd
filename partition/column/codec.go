package column

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/partdb/partdb/bitset"
	"github.com/partdb/partdb/filemgr"
	"github.com/partdb/partdb/partition/perr"
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// DefaultTextSlotBytes is the fixed slot width used for Text/Category
// data files whose header carries no explicit width: 64 UTF-16 code
// units, enough for the identifiers and short labels these columns
// typically hold without making every row read a variable-length scan.
const DefaultTextSlotBytes = 128

// EncodeUTF16LE encodes s as null-padded UTF-16LE into a slot of
// exactly slotBytes bytes. s that does not fit is truncated at a
// code-unit boundary.
func EncodeUTF16LE(s string, slotBytes int) ([]byte, error) {
	enc, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, perr.Wrap(perr.KindParse, "column: EncodeUTF16LE", err)
	}
	out := make([]byte, slotBytes)
	n := len(enc)
	if n > slotBytes {
		n = slotBytes &^ 1 // keep to a 2-byte boundary
	}
	copy(out, enc[:n])
	return out, nil
}

// DecodeUTF16LE decodes a UTF-16LE slot, stopping at the first
// embedded null code unit (the on-disk convention for fixed-width
// string slots).
func DecodeUTF16LE(data []byte) (string, error) {
	data = trimToNull(data)
	dec, err := utf16LE.NewDecoder().Bytes(data)
	if err != nil {
		return "", perr.Wrap(perr.KindParse, "column: DecodeUTF16LE", err)
	}
	return string(dec), nil
}

func trimToNull(data []byte) []byte {
	for i := 0; i+1 < len(data); i += 2 {
		if data[i] == 0 && data[i+1] == 0 {
			return data[:i]
		}
	}
	return data
}

// DecodeTextFile decodes every row in mask from a fixed-slot UTF-16LE
// column file into a []string indexed by row number (rows outside mask
// are left as "").
func DecodeTextFile(h *filemgr.Handle, slotBytes int, n uint64, mask *bitset.Bitmap) ([]string, error) {
	out := make([]string, n)
	it := mask.Runs()
	for {
		r, ok := it.Next()
		if !ok {
			break
		}
		buf := make([]byte, int(r.Length)*slotBytes)
		if _, err := h.ReadAt(buf, int64(r.Start)*int64(slotBytes)); err != nil {
			return nil, perr.Wrap(perr.KindIO, "column: DecodeTextFile", err)
		}
		for k := uint32(0); k < r.Length; k++ {
			off := int(k) * slotBytes
			s, err := DecodeUTF16LE(buf[off : off+slotBytes])
			if err != nil {
				return nil, err
			}
			out[r.Start+k] = s
		}
	}
	return out, nil
}

// EncodeTextFile encodes values into a contiguous UTF-16LE slot buffer
// suitable for writing as a column data file.
func EncodeTextFile(values []string, slotBytes int) ([]byte, error) {
	out := make([]byte, len(values)*slotBytes)
	for i, s := range values {
		enc, err := EncodeUTF16LE(s, slotBytes)
		if err != nil {
			return nil, err
		}
		copy(out[i*slotBytes:(i+1)*slotBytes], enc)
	}
	return out, nil
}
