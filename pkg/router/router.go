// Package router is the Query Router (C8): deterministic rules first,
// LLM-assisted classification only for genuinely ambiguous queries.
package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// Intent is the router's classification output.
type Intent string

const (
	IntentChat          Intent = "Chat"
	IntentDocumentRag    Intent = "DocumentRag"
	IntentDatabaseQuery  Intent = "DatabaseQuery"
	IntentExternalTool   Intent = "ExternalTool"
	IntentMixed          Intent = "Mixed"
	IntentSessionControl Intent = "SessionControl"
)

// AboveThresholdScore is the minimum fused score (spec §4.8) for a
// retrieval candidate to count as "found" rather than falling back to Chat.
const AboveThresholdScore = 0.25

// ToolDescriptor is the subset of an external tool's metadata the router
// needs to decide whether a query should be routed to it.
type ToolDescriptor struct {
	Name     string
	Keywords []string
}

// Sources describes what's available to route against.
type Sources struct {
	HasDocuments    bool
	DatabaseTerms   []string
	Tools           []ToolDescriptor
}

var continuationPattern = regexp.MustCompile(`(?i)^(it|this|that|they|he|she|those|these)\b|^(and|also|what about|how about)\b`)

// Route classifies a query using deterministic rules, falling back to an
// LLM classification prompt only when the rules leave the intent
// ambiguous (mixed signals from both database terms and tool keywords).
func Route(ctx context.Context, query string, history []ragmodel.Message, sources Sources, classify func(context.Context, string) (Intent, error)) (Intent, error) {
	if ragmodel.IsSessionControlCommand(strings.TrimSpace(query)) {
		return IntentSessionControl, nil
	}

	if !sources.HasDocuments && len(sources.DatabaseTerms) == 0 {
		return IntentChat, nil
	}

	lower := strings.ToLower(query)

	matchesDB := matchesAny(lower, sources.DatabaseTerms)
	matchedTools := matchingTools(lower, sources.Tools)

	switch {
	case matchesDB && len(matchedTools) > 0:
		if classify == nil {
			return IntentMixed, nil
		}
		return classify(ctx, query)
	case matchesDB:
		return IntentDatabaseQuery, nil
	case len(matchedTools) > 0 && sources.HasDocuments:
		// ExternalTool is additive to DocumentRag when a corpus is indexed:
		// fold into Mixed so the caller retrieves both sources.
		return IntentMixed, nil
	case len(matchedTools) > 0:
		return IntentExternalTool, nil
	case sources.HasDocuments:
		return IntentDocumentRag, nil
	default:
		return IntentChat, nil
	}
}

// IsContinuation reports whether a query reads as a pronoun-laden
// follow-up to the previous turn, used when retrieval falls below
// AboveThresholdScore to decide whether to treat it as a continuation of
// the last non-chat turn rather than a fresh Chat query.
func IsContinuation(query string) bool {
	return continuationPattern.MatchString(strings.TrimSpace(query))
}

func matchesAny(lowerQuery string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lowerQuery, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func matchingTools(lowerQuery string, tools []ToolDescriptor) []ToolDescriptor {
	var matched []ToolDescriptor
	for _, tool := range tools {
		if strings.Contains(lowerQuery, strings.ToLower(tool.Name)) {
			matched = append(matched, tool)
			continue
		}
		for _, kw := range tool.Keywords {
			if kw != "" && strings.Contains(lowerQuery, strings.ToLower(kw)) {
				matched = append(matched, tool)
				break
			}
		}
	}
	return matched
}
