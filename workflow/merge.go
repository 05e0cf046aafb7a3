package workflow

import "sort"

// resultAccumulator aggregates step results with full key preservation:
// no contributing key is ever dropped or silently overwritten. Values are
// collected per key in completion order and flattened on read.
type resultAccumulator struct {
	contributions map[string][]any
	order         []string
}

func newResultAccumulator() *resultAccumulator {
	return &resultAccumulator{contributions: make(map[string][]any)}
}

// add merges one step's result into the accumulator.
func (r *resultAccumulator) add(result map[string]any) {
	// Deterministic insertion for same-step keys.
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, seen := r.contributions[k]; !seen {
			r.order = append(r.order, k)
		}
		r.contributions[k] = append(r.contributions[k], result[k])
	}
}

// snapshot flattens the accumulator: a key with a single contributor maps
// to the scalar value (no wrapping); a key with multiple contributors maps
// to the ordered list of contributing values.
func (r *resultAccumulator) snapshot() map[string]any {
	if len(r.contributions) == 0 {
		return nil
	}
	out := make(map[string]any, len(r.contributions))
	for _, k := range r.order {
		vals := r.contributions[k]
		if len(vals) == 1 {
			out[k] = vals[0]
			continue
		}
		list := make([]any, len(vals))
		copy(list, vals)
		out[k] = list
	}
	return out
}
