package contexture

// ReverseRepack reorders ranked results so the best one comes last.
// Generation models attend most reliably to context near the end of a prompt
// ("lost in the middle"); placing the strongest passage closest to the
// question counters that bias. The function is an involution and does not
// mutate its input.
func ReverseRepack(results []SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[len(results)-1-i] = r
	}
	return out
}
