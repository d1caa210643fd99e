// Substring search across stored design contents.
//
// Information Hiding:
// - Concatenation layout and separator choice hidden behind SearchIndex
// - Offsets are mapped back to design entries before they escape

package corpus

import (
	"sort"
	"strings"

	"github.com/verideck/verideck/internal/dsa"
)

// SearchHit is one substring occurrence inside a stored design.
type SearchHit struct {
	Hash    Digest
	ClassID Digest
	Offset  int // byte offset within the design's content
}

// SearchIndex answers substring queries over every design in a database
// snapshot. The index is built once and does not track later mutations;
// rebuild after inserts or merges.
type SearchIndex struct {
	sa      *dsa.SuffixArray
	bounds  []int // start offset of each design in the concatenated text
	entries []DesignEntry
}

// NewSearchIndex builds a suffix array over the concatenation of every
// design's content, in class-id order. Designs are separated with a NUL
// byte so no match spans two designs. Canonicalized Verilog never contains
// NUL, so the separator cannot collide with content.
func NewSearchIndex(db *Database) *SearchIndex {
	idx := &SearchIndex{}

	var sb strings.Builder
	for _, classID := range db.ClassIDs() {
		for _, entry := range db.Designs(classID) {
			idx.bounds = append(idx.bounds, sb.Len())
			idx.entries = append(idx.entries, entry)
			sb.WriteString(entry.Content)
			sb.WriteByte(0)
		}
	}

	idx.sa = dsa.BuildSuffixArray(sb.String())
	return idx
}

// Search returns every occurrence of pattern across all indexed designs,
// in design order with ascending offsets. Patterns containing NUL never match.
func (idx *SearchIndex) Search(pattern string) []SearchHit {
	if pattern == "" || strings.ContainsRune(pattern, 0) {
		return nil
	}

	var hits []SearchHit
	for _, pos := range idx.sa.Search(pattern) {
		i := sort.SearchInts(idx.bounds, pos+1) - 1
		entry := idx.entries[i]
		hits = append(hits, SearchHit{Hash: entry.Hash, ClassID: entry.ClassID, Offset: pos - idx.bounds[i]})
	}
	return hits
}

// Count returns the number of occurrences of pattern across all designs.
func (idx *SearchIndex) Count(pattern string) int {
	return len(idx.Search(pattern))
}

// Designs returns the number of designs covered by the index.
func (idx *SearchIndex) Designs() int {
	return len(idx.entries)
}
