package plstring

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// WriteSidecar writes the hash -> text mapping for external-string
// records to w, one "hash\tunit\tvalue" line per string, sorted by
// hash for a stable diff. spec.md §6 names this file ("optional
// external-string lookup file") without specifying a format; a plain
// tab-separated text format keeps it editable and greppable, matching
// the teacher pack's preference for simple on-disk text formats over
// inventing a binary one for metadata that is not on the hot path.
func WriteSidecar(w io.Writer, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Hash < sorted[j].Hash })
	bw := bufio.NewWriter(w)
	for _, e := range sorted {
		if _, err := fmt.Fprintf(bw, "%x\t%s\t%s\n", uint64(e.Hash), e.Unit, escapeSidecar(e.Value)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSidecar parses a sidecar file written by WriteSidecar into a
// hash -> (value, unit) map.
func ReadSidecar(r io.Reader) (map[Hash]Entry, error) {
	out := make(map[Hash]Entry)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("plstring: malformed sidecar line %q", line)
		}
		h, err := strconv.ParseUint(parts[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("plstring: bad hash in sidecar line %q: %w", line, err)
		}
		out[Hash(h)] = Entry{Hash: Hash(h), Unit: parts[1], Value: unescapeSidecar(parts[2])}
	}
	return out, sc.Err()
}

func escapeSidecar(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}

func unescapeSidecar(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
