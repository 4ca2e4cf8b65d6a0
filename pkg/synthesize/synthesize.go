// Package synthesize is the RAG Synthesizer (C9): it builds a numbered
// context prompt, calls the active LLM, and resolves citation identifiers
// back into SearchSource records. Prompt shape (numbered context blocks
// with source metadata) is grounded on the teacher's rerank prompt
// builder, generalized from reranking to answer synthesis.
package synthesize

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

const systemPreamble = "Answer strictly using the provided context. If the context is insufficient, say so."

// GenerateFunc calls the active LLM (typically resilient.CallWithFallback
// wrapping a provider.Provider.GenerateText) and returns its raw answer
// text.
type GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Synthesize builds the prompt from context and trimmed history, calls
// generate, and post-processes the answer into a RagResponse. With no
// retrieved context there is no chunk to fall back to verbatim, so a
// generate failure propagates as an error rather than extractive fallback
// (spec §4.9's extractive fallback requires a top-scoring chunk; with zero
// context, all other errors propagate to the API boundary per spec §7).
func Synthesize(ctx context.Context, query string, contextChunks []ragmodel.RetrievalResult, history []ragmodel.Message, maxHistoryTokens int, generate GenerateFunc) (ragmodel.RagResponse, error) {
	if len(contextChunks) == 0 {
		answer, err := generate(ctx, systemPreamble, buildUserPrompt(query, nil, history, maxHistoryTokens))
		if err != nil {
			return ragmodel.RagResponse{}, ragerr.Wrap(ragerr.Of(err), "synthesize: generation failed with no context to fall back on", err)
		}
		return ragmodel.RagResponse{Query: query, Answer: answer}, nil
	}

	userPrompt := buildUserPrompt(query, contextChunks, history, maxHistoryTokens)

	answer, err := generate(ctx, systemPreamble, userPrompt)
	if err != nil {
		top := contextChunks[0]
		return ragmodel.RagResponse{
			Query:      query,
			Answer:     top.Content,
			Extractive: true,
			Sources: []ragmodel.SearchSource{{
				DocumentID:      top.DocumentID,
				RelevantContent: top.Content,
				RelevanceScore:  top.Score,
			}},
		}, nil
	}

	sources := resolveCitations(answer, contextChunks)
	return ragmodel.RagResponse{
		Query:   query,
		Answer:  answer,
		Sources: sources,
	}, nil
}

func buildUserPrompt(query string, chunks []ragmodel.RetrievalResult, history []ragmodel.Message, maxHistoryTokens int) string {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range trimHistory(history, maxHistoryTokens) {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		}
		b.WriteString("\n")
	}

	if len(chunks) > 0 {
		b.WriteString("Context:\n")
		for i, c := range chunks {
			fmt.Fprintf(&b, "[%d] (source: %s):\n%s\n\n", i+1, c.FileName, c.Content)
		}
		b.WriteString("Cite context by its numeric identifier in brackets, e.g. [1].\n\n")
	}

	fmt.Fprintf(&b, "Question:\n%s\n", query)
	return b.String()
}

// trimHistory keeps the most recent messages within maxHistoryTokens,
// trimming the oldest first.
func trimHistory(history []ragmodel.Message, maxTokens int) []ragmodel.Message {
	if maxTokens <= 0 {
		return history
	}

	var used int
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		t := estimateTokens(history[i].Text)
		if used+t > maxTokens && start != len(history) {
			break
		}
		used += t
		start = i
	}
	return history[start:]
}

func estimateTokens(s string) int {
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// resolveCitations extracts [n] identifiers from answer and resolves them
// to SearchSource records. If the model cited nothing but retrieval had
// results, the top-K results are attached with Inferred=true instead.
func resolveCitations(answer string, chunks []ragmodel.RetrievalResult) []ragmodel.SearchSource {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)

	seen := make(map[int]bool)
	var sources []ragmodel.SearchSource
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) || seen[n] {
			continue
		}
		seen[n] = true
		c := chunks[n-1]
		sources = append(sources, ragmodel.SearchSource{
			DocumentID:      c.DocumentID,
			FileName:        c.FileName,
			RelevantContent: c.Content,
			RelevanceScore:  c.Score,
		})
	}

	if len(sources) == 0 {
		for _, c := range chunks {
			sources = append(sources, ragmodel.SearchSource{
				DocumentID:      c.DocumentID,
				FileName:        c.FileName,
				RelevantContent: c.Content,
				RelevanceScore:  c.Score,
				Inferred:        true,
			})
		}
	}

	return sources
}
