// Package header parses and emits the partition's textual metadata file:
// a line-oriented, case-insensitive key=value format bracketed by
// "BEGIN HEADER"/"END HEADER", followed by one Column block per column.
// Parsing style favors byte-oriented line scanning, small enum constants,
// and fmt.Errorf with a package prefix.
package header

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/partdb/partdb/coltype"
	"github.com/partdb/partdb/internal/logx"
	"github.com/partdb/partdb/partition/perr"
)

// FileName is the canonical header file name, written and preferred on
// read.
const FileName = "-part.txt"

// legacyFileName is accepted on read for backward compatibility, never
// written.
const legacyFileName = "table.tdc"

// State is the partition lifecycle state persisted in the header.
type State int

const (
	Unknown State = iota
	Stable
	PreTransition
	Transitioning
	PostTransition
)

func (s State) String() string {
	switch s {
	case Stable:
		return "Stable"
	case PreTransition:
		return "PreTransition"
	case Transitioning:
		return "Transitioning"
	case PostTransition:
		return "PostTransition"
	default:
		return "Unknown"
	}
}

func parseState(s string) State {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 || n > 4 {
		return Unknown
	}
	return State(n)
}

// ShapeDim is one dimension of an optional mesh shape: an optional name
// and a size. The product of every dimension's size must equal the
// partition's row count.
type ShapeDim struct {
	Name string // "" when unnamed
	Size uint64
}

// ColumnBlock is one "Begin Column"/"Begin Property" block: the column's
// name, scalar type, optional bounds, and index spec. Full column
// behavior lives in the column package; this is just the on-disk
// metadata shape.
type ColumnBlock struct {
	Name       string
	Type       coltype.Type
	LowerBound float64
	UpperBound float64
	BoundsSet  bool
	IndexSpec  string
}

// Header is the parsed content of a partition's -part.txt, plus the
// bookkeeping (MaxNameLen) its readers need.
type Header struct {
	Name                 string
	Description          string
	NumberOfRows         uint64
	NumberOfColumns      uint32 // reconciled to len(Columns) after parsing
	DeclaredColumnCount  uint32 // as written in the file, before reconciliation
	TotNumOfProp         uint32
	Timestamp            uint64
	State                State
	AlternativeDirectory string
	IndexSpec            string
	MetaTags             map[string]string
	MeshShape            []ShapeDim
	Columns              []ColumnBlock
	MaxNameLen           int
}

// ColumnNames returns column names in file order.
func (h *Header) ColumnNames() []string {
	out := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		out[i] = c.Name
	}
	return out
}

// rawHeader accumulates key=value pairs found between BEGIN/END HEADER,
// keyed by lower-cased key, preserving case-insensitivity.
type rawHeader map[string]string

func (r rawHeader) get(keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := r[strings.ToLower(k)]; ok {
			return v, true
		}
	}
	return "", false
}

// Read parses dir's header file. It prefers FileName, falls back to
// legacyFileName, and fails with a Configuration error if neither
// exists. Malformed numeric fields fail with a Parse error; a declared
// column/row count that disagrees with the observed column blocks is
// logged and the observed count wins rather than failing outright.
func Read(dir string, log *logx.Logger) (*Header, error) {
	if log == nil {
		log = logx.Default()
	}
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		legacy := filepath.Join(dir, legacyFileName)
		data, err = os.ReadFile(legacy)
		if err != nil {
			return nil, perr.Wrap(perr.KindConfiguration, fmt.Sprintf("header: no %s or %s in %s", FileName, legacyFileName, dir), err)
		}
		path = legacy
	}

	raw, blocks, err := parseLines(data)
	if err != nil {
		return nil, perr.Wrap(perr.KindParse, fmt.Sprintf("header: parse %s", path), err)
	}

	h := &Header{MetaTags: make(map[string]string)}

	if v, ok := raw.get("Name"); ok {
		h.Name = unquote(v)
	}
	if v, ok := raw.get("Description"); ok {
		h.Description = unquote(v)
	}
	if v, ok := raw.get("Number_of_rows"); ok {
		n, perr2 := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if perr2 != nil {
			return nil, perr.Wrap(perr.KindParse, "header: Number_of_rows", perr2)
		}
		h.NumberOfRows = n
	}
	if v, ok := raw.get("Number_of_columns"); ok {
		n, perr2 := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if perr2 != nil {
			return nil, perr.Wrap(perr.KindParse, "header: Number_of_columns", perr2)
		}
		h.DeclaredColumnCount = uint32(n)
	}
	if v, ok := raw.get("Tot_num_of_prop"); ok {
		n, _ := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		h.TotNumOfProp = uint32(n)
	}
	if v, ok := raw.get("Timestamp"); ok {
		n, _ := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		h.Timestamp = n
	}
	if v, ok := raw.get("State"); ok {
		h.State = parseState(v)
	}
	if v, ok := raw.get("Alternative_Directory"); ok {
		h.AlternativeDirectory = unquote(v)
	}
	if v, ok := raw.get("index"); ok {
		h.IndexSpec = strings.TrimSpace(v)
	}
	if v, ok := raw.get("metaTags", "Table.metaTags", "Partition.metaTags"); ok {
		h.MetaTags = parseMetaTags(v)
	}
	if v, ok := raw.get("columnShape", "meshShape"); ok {
		shape, perr2 := parseMeshShape(v)
		if perr2 != nil {
			log.Warn("header: ignoring malformed mesh shape", "err", perr2)
		} else {
			h.MeshShape = shape
		}
	}

	h.Columns = blocks

	if v, ok := raw.get("Columns_Selected"); ok {
		selected, perr2 := parseColumnsSelected(v)
		if perr2 != nil {
			log.Warn("header: ignoring malformed Columns_Selected", "err", perr2)
		} else {
			h.Columns = filterSelected(h.Columns, selected)
		}
	}

	h.Columns = synthesizeMetaTagColumns(h.Columns, h.MetaTags)

	if h.DeclaredColumnCount != 0 && int(h.DeclaredColumnCount) != len(h.Columns) {
		log.Warn("header: declared column count disagrees with observed blocks",
			"declared", h.DeclaredColumnCount, "observed", len(h.Columns))
	}
	h.NumberOfColumns = uint32(len(h.Columns))

	if h.MeshShape != nil {
		product := uint64(1)
		for _, d := range h.MeshShape {
			product *= d.Size
		}
		if product != h.NumberOfRows {
			log.Warn("header: mesh shape product disagrees with row count, dropping shape",
				"product", product, "rows", h.NumberOfRows)
			h.MeshShape = nil
		}
	}

	for _, c := range h.Columns {
		if len(c.Name) > h.MaxNameLen {
			h.MaxNameLen = len(c.Name)
		}
	}

	return h, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseLines walks the file line by line, collecting BEGIN/END HEADER
// key=value pairs into a rawHeader and Begin Column/Begin Property
// blocks into ColumnBlocks, in file order.
func parseLines(data []byte) (rawHeader, []ColumnBlock, error) {
	raw := make(rawHeader)
	var blocks []ColumnBlock

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	inHeader := false
	seenHeader := false
	var inBlock *ColumnBlock

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			continue
		}

		low := strings.ToLower(trim)
		switch {
		case low == "begin header":
			inHeader = true
			seenHeader = true
			continue
		case low == "end header":
			inHeader = false
			continue
		case low == "begin column" || low == "begin property":
			inBlock = &ColumnBlock{}
			continue
		case low == "end column" || low == "end property":
			if inBlock != nil {
				blocks = append(blocks, *inBlock)
				inBlock = nil
			}
			continue
		}

		key, value, ok := splitKV(trim)
		if !ok {
			if inHeader || inBlock != nil {
				return nil, nil, fmt.Errorf("header: malformed line %q", trim)
			}
			continue
		}

		if inBlock != nil {
			applyColumnKey(inBlock, key, value)
			continue
		}
		if inHeader {
			raw[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if !seenHeader {
		return nil, nil, fmt.Errorf("header: missing BEGIN HEADER block")
	}
	return raw, blocks, nil
}

func splitKV(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func applyColumnKey(c *ColumnBlock, key, value string) {
	switch strings.ToLower(key) {
	case "name":
		c.Name = unquote(value)
	case "type":
		if t, ok := coltype.ParseType(unquote(value)); ok {
			c.Type = t
		}
	case "lower_bound":
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			c.LowerBound = f
			c.BoundsSet = true
		}
	case "upper_bound":
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			c.UpperBound = f
			c.BoundsSet = true
		}
	case "index":
		c.IndexSpec = strings.TrimSpace(value)
	}
}

// parseMetaTags parses "k=v, k=v, ..." into a map. Values may be the
// wildcard "*".
func parseMetaTags(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.IndexByte(part, '=')
		if i < 0 {
			continue
		}
		k := strings.TrimSpace(part[:i])
		v := strings.TrimSpace(part[i+1:])
		out[k] = v
	}
	return out
}

// parseMeshShape parses "(name=size, size, ...)" into ordered dimensions.
func parseMeshShape(s string) ([]ShapeDim, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" {
		return nil, nil
	}
	var dims []ShapeDim
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := ""
		sizeStr := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			name = strings.TrimSpace(part[:i])
			sizeStr = strings.TrimSpace(part[i+1:])
		}
		size, err := strconv.ParseUint(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("header: mesh dimension %q: %w", part, err)
		}
		dims = append(dims, ShapeDim{Name: name, Size: size})
	}
	return dims, nil
}

// parseColumnsSelected parses ranges like "1-4, 7; 9" into a 1-based
// selection set. The loop below intentionally iterates while characters
// remain in each token rather than the other way around: a version of
// this scanner that looped only while a separator character was present
// would never advance past the first token.
func parseColumnsSelected(s string) (map[int]bool, error) {
	selected := make(map[int]bool)
	tokens := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if i := strings.IndexByte(tok, '-'); i > 0 {
			lo, err := strconv.Atoi(strings.TrimSpace(tok[:i]))
			if err != nil {
				return nil, fmt.Errorf("header: Columns_Selected range %q: %w", tok, err)
			}
			hi, err := strconv.Atoi(strings.TrimSpace(tok[i+1:]))
			if err != nil {
				return nil, fmt.Errorf("header: Columns_Selected range %q: %w", tok, err)
			}
			for v := lo; v <= hi; v++ {
				selected[v] = true
			}
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("header: Columns_Selected entry %q: %w", tok, err)
		}
		selected[v] = true
	}
	return selected, nil
}

func filterSelected(blocks []ColumnBlock, selected map[int]bool) []ColumnBlock {
	out := make([]ColumnBlock, 0, len(selected))
	for i, c := range blocks {
		if selected[i+1] {
			out = append(out, c)
		}
	}
	return out
}

// synthesizeMetaTagColumns appends a single-value Category column for
// every meta-tag key that has no matching column block (case-insensitive
// name match).
func synthesizeMetaTagColumns(blocks []ColumnBlock, tags map[string]string) []ColumnBlock {
	if len(tags) == 0 {
		return blocks
	}
	have := make(map[string]bool, len(blocks))
	for _, c := range blocks {
		have[strings.ToLower(c.Name)] = true
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if have[strings.ToLower(k)] {
			continue
		}
		blocks = append(blocks, ColumnBlock{Name: k, Type: coltype.Category})
		have[strings.ToLower(k)] = true
	}
	return blocks
}

// Write rewrites dir's header file in canonical form: a UTC timestamp
// comment, then the BEGIN/END HEADER block, then one Column block per
// column, in h.Columns order. Called whenever names, bounds, state, or
// index spec change.
func Write(dir string, h *Header, now time.Time) error {
	name := h.Name
	if name == "" {
		name = placeholderName(h)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# written %s\n", now.UTC().Format(time.RFC3339))
	buf.WriteString("BEGIN HEADER\n")
	fmt.Fprintf(&buf, "Name = %q\n", name)
	fmt.Fprintf(&buf, "Description = %q\n", h.Description)
	fmt.Fprintf(&buf, "Number_of_rows = %d\n", h.NumberOfRows)
	fmt.Fprintf(&buf, "Number_of_columns = %d\n", len(h.Columns))
	if h.TotNumOfProp > 0 {
		fmt.Fprintf(&buf, "Tot_num_of_prop = %d\n", h.TotNumOfProp)
	}
	fmt.Fprintf(&buf, "Timestamp = %d\n", now.Unix())
	fmt.Fprintf(&buf, "State = %d\n", int(h.State))
	if h.AlternativeDirectory != "" {
		fmt.Fprintf(&buf, "Alternative_Directory = %q\n", h.AlternativeDirectory)
	}
	if len(h.MetaTags) > 0 {
		buf.WriteString("metaTags = ")
		buf.WriteString(formatMetaTags(h.MetaTags))
		buf.WriteString("\n")
	}
	if len(h.MeshShape) > 0 {
		buf.WriteString("columnShape = ")
		buf.WriteString(formatMeshShape(h.MeshShape))
		buf.WriteString("\n")
	}
	if h.IndexSpec != "" {
		fmt.Fprintf(&buf, "index = %s\n", h.IndexSpec)
	}
	buf.WriteString("END HEADER\n")

	for _, c := range h.Columns {
		buf.WriteString("\nBegin Column\n")
		fmt.Fprintf(&buf, "Name = %q\n", c.Name)
		fmt.Fprintf(&buf, "Type = %s\n", c.Type.String())
		if c.BoundsSet {
			fmt.Fprintf(&buf, "Lower_Bound = %v\n", c.LowerBound)
			fmt.Fprintf(&buf, "Upper_Bound = %v\n", c.UpperBound)
		}
		if c.IndexSpec != "" {
			fmt.Fprintf(&buf, "Index = %s\n", c.IndexSpec)
		}
		buf.WriteString("End Column\n")
	}

	return os.WriteFile(filepath.Join(dir, FileName), buf.Bytes(), 0o644)
}

func formatMetaTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, tags[k])
	}
	return strings.Join(parts, ", ")
}

func formatMeshShape(dims []ShapeDim) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d.Name != "" {
			parts[i] = fmt.Sprintf("%s=%d", d.Name, d.Size)
		} else {
			parts[i] = strconv.FormatUint(d.Size, 10)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// placeholderName derives a deterministic name for a partition with no
// name set, from a checksum of its row count and column names, with the
// first character normalized into a letter (a bare digit is not a valid
// leading character for downstream directory-name derivation).
func placeholderName(h *Header) string {
	sum := uint32(2166136261)
	write := func(s string) {
		for i := 0; i < len(s); i++ {
			sum ^= uint32(s[i])
			sum *= 16777619
		}
	}
	write(strconv.FormatUint(h.NumberOfRows, 10))
	for _, c := range h.Columns {
		write(c.Name)
	}
	hexStr := strconv.FormatUint(uint64(sum), 16)
	first := hexStr[0]
	if first >= '0' && first <= '9' {
		first = 'a' + (first - '0')
	}
	return "p" + string(first) + hexStr[1:]
}
