// Package merge folds batches of pairwise equivalence verdicts into class
// merges.
//
// The planner treats each verdict=true pair as an undirected edge between
// class ids, computes connected components, and folds every component into
// its lexicographically smallest id through repeated pairwise merges. Failed
// or timed-out checks contribute no edge, so only proven equivalences merge
// anything; the resulting partition depends solely on the verdict set, not
// on arrival order.
package merge

import (
	"fmt"
	"sort"

	"github.com/verideck/verideck/corpus"
	"github.com/verideck/verideck/oracle"
)

// Report summarizes one planning pass.
type Report struct {
	Components   int // components with >= 2 members, i.e. actual merges
	MergedPairs  int // pairwise MergeClasses calls issued
	PositiveEdge int // verdicts that contributed an edge
	Negative     int // definite non-equivalent verdicts
	TimedOut     int // ambiguous verdicts resolved by gateway policy
	Failed       int // infrastructure failures, planned as non-equivalent
}

// Plan computes the connected components implied by the verdicts and applies
// the merges to db. Verdicts with errors are planned as non-equivalent but
// counted separately in the report. Merging stops at the first structural
// failure (unknown class id, shared hash): those indicate an upstream bug
// and must surface rather than leave a half-applied plan unnoticed.
func Plan(db *corpus.Database, verdicts []oracle.PairVerdict) (Report, error) {
	var report Report

	adjacency := make(map[string]map[string]struct{})
	addEdge := func(a, b string) {
		if adjacency[a] == nil {
			adjacency[a] = make(map[string]struct{})
		}
		if adjacency[b] == nil {
			adjacency[b] = make(map[string]struct{})
		}
		adjacency[a][b] = struct{}{}
		adjacency[b][a] = struct{}{}
	}

	for _, v := range verdicts {
		switch {
		case v.Err != nil:
			report.Failed++
		case v.TimedOut && !v.Equivalent:
			report.TimedOut++
		case v.Equivalent:
			if v.TimedOut {
				report.TimedOut++
			}
			report.PositiveEdge++
			addEdge(v.A, v.B)
		default:
			report.Negative++
		}
	}

	for _, component := range components(adjacency) {
		if len(component) < 2 {
			continue
		}
		report.Components++

		target := component[0] // components are sorted; min id survives
		for _, id := range component[1:] {
			if err := db.MergeClasses(target, id); err != nil {
				return report, fmt.Errorf("failed to merge %s into %s: %w", id, target, err)
			}
			report.MergedPairs++
		}
	}
	return report, nil
}

// components returns the connected components of the adjacency map, each
// sorted ascending, ordered by their smallest member. Deterministic for a
// given edge set.
func components(adjacency map[string]map[string]struct{}) [][]string {
	nodes := make([]string, 0, len(adjacency))
	for id := range adjacency {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	visited := make(map[string]struct{}, len(nodes))
	var result [][]string

	for _, start := range nodes {
		if _, done := visited[start]; done {
			continue
		}

		// Breadth-first traversal from the smallest unvisited id.
		component := []string{}
		queue := []string{start}
		visited[start] = struct{}{}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			component = append(component, id)

			neighbors := make([]string, 0, len(adjacency[id]))
			for n := range adjacency[id] {
				neighbors = append(neighbors, n)
			}
			sort.Strings(neighbors)
			for _, n := range neighbors {
				if _, done := visited[n]; !done {
					visited[n] = struct{}{}
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(component)
		result = append(result, component)
	}
	return result
}
