package corpus

import (
	"testing"
)

func TestSearchIndexFindsPatternAcrossDesigns(t *testing.T) {
	db := NewDatabase(nil)
	adderHash, _, err := db.Add("module adder(input a, input b, output sum);\nendmodule\n")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	counterHash, _, err := db.Add("module counter(input clk, output reg [7:0] count);\nendmodule\n")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx := NewSearchIndex(db)
	if idx.Designs() != 2 {
		t.Fatalf("expected 2 indexed designs, got %d", idx.Designs())
	}

	hits := idx.Search("module ")
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for %q, got %d", "module ", len(hits))
	}
	seen := map[Digest]bool{}
	for _, hit := range hits {
		seen[hit.Hash] = true
		if hit.Offset != 0 {
			t.Errorf("expected offset 0 for %s, got %d", hit.Hash, hit.Offset)
		}
	}
	if !seen[adderHash] || !seen[counterHash] {
		t.Errorf("hits missing a design: %v", seen)
	}
}

func TestSearchIndexMatchesOnlyContainingDesign(t *testing.T) {
	db := NewDatabase(nil)
	counterHash, _, err := db.Add("module counter(input clk);\nendmodule\n")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, _, err := db.Add("module adder(input a);\nendmodule\n"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx := NewSearchIndex(db)
	hits := idx.Search("clk")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for %q, got %d", "clk", len(hits))
	}
	if hits[0].Hash != counterHash {
		t.Errorf("hit attributed to wrong design: %s", hits[0].Hash)
	}
	if hits[0].ClassID != counterHash {
		t.Errorf("expected singleton class id %s, got %s", counterHash, hits[0].ClassID)
	}
}

func TestSearchIndexRepeatedOccurrences(t *testing.T) {
	db := NewDatabase(nil)
	if _, _, err := db.Add("module mux(input a, input b, input sel, output y);\nassign y = sel ? a : b;\nendmodule\n"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx := NewSearchIndex(db)
	hits := idx.Search("input ")
	if len(hits) != 3 {
		t.Fatalf("expected 3 occurrences of %q, got %d", "input ", len(hits))
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Offset <= hits[i-1].Offset {
			t.Errorf("offsets not ascending: %d then %d", hits[i-1].Offset, hits[i].Offset)
		}
	}
}

func TestSearchIndexNoMatchAcrossBoundary(t *testing.T) {
	db := NewDatabase(nil)
	if _, _, err := db.Add("module a(); endmod"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, _, err := db.Add("ule b(); endmodule"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx := NewSearchIndex(db)
	if hits := idx.Search("endmodule b"); len(hits) != 0 {
		t.Errorf("pattern spanning two designs should not match, got %d hits", len(hits))
	}
}

func TestSearchIndexEmptyCases(t *testing.T) {
	idx := NewSearchIndex(NewDatabase(nil))
	if hits := idx.Search("module"); len(hits) != 0 {
		t.Errorf("empty index returned %d hits", len(hits))
	}

	db := NewDatabase(nil)
	if _, _, err := db.Add("module a();\nendmodule\n"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	idx = NewSearchIndex(db)
	if hits := idx.Search(""); hits != nil {
		t.Errorf("empty pattern should return nil, got %v", hits)
	}
	if hits := idx.Search("a\x00module"); hits != nil {
		t.Errorf("NUL pattern should return nil, got %v", hits)
	}
}
