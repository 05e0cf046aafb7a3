package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildGraph constructs a step graph of n nodes with the given edges, where
// edge [a, b] means step a depends on step b.
func buildGraph(n int, edges [][2]int) map[string]*Step {
	steps := make(map[string]*Step, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%d", i)
		steps[id] = &Step{ID: id, Status: StepPending}
	}
	for _, e := range edges {
		from := fmt.Sprintf("s%d", e[0])
		to := fmt.Sprintf("s%d", e[1])
		steps[from].DependsOn = append(steps[from].DependsOn, to)
	}
	return steps
}

func TestProperty_ForwardEdgeGraphsAreAcyclic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("graphs whose dependencies only point at lower-numbered steps never report a cycle", prop.ForAll(
		func(n int, seed int) bool {
			// Deterministically derive forward edges from the seed: step i
			// may depend on any j < i.
			var edges [][2]int
			s := seed
			for i := 1; i < n; i++ {
				if s%2 == 1 {
					edges = append(edges, [2]int{i, s % i})
				}
				s = s/2 + i
			}
			return !hasCycle(buildGraph(n, edges))
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 1<<20),
	))

	properties.Property("a full dependency chain is acyclic until any back edge closes it", prop.ForAll(
		func(n int, back int) bool {
			// Chain: s1 depends on s0, s2 on s1, ...
			var edges [][2]int
			for i := 1; i < n; i++ {
				edges = append(edges, [2]int{i, i - 1})
			}
			if hasCycle(buildGraph(n, edges)) {
				return false
			}
			// Closing the chain anywhere creates a cycle.
			target := back % n
			if target == n-1 {
				target = 0
			}
			edges = append(edges, [2]int{target, n - 1})
			return hasCycle(buildGraph(n, edges))
		},
		gen.IntRange(2, 12),
		gen.IntRange(0, 1<<20),
	))

	properties.Property("self dependencies are cycles", prop.ForAll(
		func(n int) bool {
			edges := [][2]int{{n - 1, n - 1}}
			return hasCycle(buildGraph(n, edges))
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
