package retrieval

import (
	"strings"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// AssembleContext builds the final context-window slice from fused
// retrieval results (spec §4.7 context assembly): when a single document
// would contribute at least ceil(k/2) chunks, later chunks from that
// document are dropped; the remaining documents are interleaved
// round-robin (preserving each document's internal score order) to
// maximize source diversity, then the whole sequence is capped at
// maxContextTokens using a 4-chars-per-token approximation consistent
// with this engine's token-budget estimates elsewhere.
func AssembleContext(results []ragmodel.RetrievalResult, maxContextTokens int) []ragmodel.RetrievalResult {
	if len(results) == 0 {
		return nil
	}

	k := len(results)
	capPerDoc := (k + 1) / 2 // ceil(k/2)

	byDoc := make(map[string][]ragmodel.RetrievalResult)
	order := make([]string, 0)
	for _, r := range results {
		if _, seen := byDoc[r.DocumentID]; !seen {
			order = append(order, r.DocumentID)
		}
		if len(byDoc[r.DocumentID]) < capPerDoc {
			byDoc[r.DocumentID] = append(byDoc[r.DocumentID], r)
		}
	}

	interleaved := make([]ragmodel.RetrievalResult, 0, k)
	for i := 0; ; i++ {
		added := false
		for _, doc := range order {
			bucket := byDoc[doc]
			if i < len(bucket) {
				interleaved = append(interleaved, bucket[i])
				added = true
			}
		}
		if !added {
			break
		}
	}

	if maxContextTokens <= 0 {
		return interleaved
	}

	var used int
	out := make([]ragmodel.RetrievalResult, 0, len(interleaved))
	for _, r := range interleaved {
		tokens := estimateTokens(r.Content)
		if used+tokens > maxContextTokens && len(out) > 0 {
			break
		}
		out = append(out, r)
		used += tokens
	}
	return out
}

// estimateTokens approximates token count at roughly 4 characters per
// token, the same heuristic the prompt builder uses for history trimming.
func estimateTokens(s string) int {
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
