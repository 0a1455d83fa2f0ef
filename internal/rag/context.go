// Package rag builds grounded prompts from retrieved history and turns model
// output into structured resolutions.
package rag

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/analysis"
	"github.com/kiranshivaraju/logresolver/pkg/models"
)

const (
	// DefaultContextBudget is the default maximum context block size in bytes.
	DefaultContextBudget = 4000
	// maxSnippetBytes bounds one rendered match.
	maxSnippetBytes = 800
)

// ContextBuilder renders retrieved matches into a bounded context block.
type ContextBuilder struct {
	MaxChars int
}

// NewContextBuilder returns a builder with the given budget; non-positive
// budgets fall back to DefaultContextBudget.
func NewContextBuilder(maxChars int) ContextBuilder {
	if maxChars <= 0 {
		maxChars = DefaultContextBudget
	}
	return ContextBuilder{MaxChars: maxChars}
}

// BuildContext renders matches in input order, one snippet per line, and
// stops before the output would exceed the budget. The first match is always
// present, truncated if it alone is over budget. Empty input yields "".
func (b ContextBuilder) BuildContext(matches []models.SimilarityMatch) string {
	if len(matches) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, m := range matches {
		snippet := RenderSnippet(i+1, m)
		if i == 0 {
			sb.WriteString(analysis.Truncate(snippet, b.MaxChars))
			continue
		}
		if sb.Len()+1+len(snippet) > b.MaxChars {
			break
		}
		sb.WriteByte('\n')
		sb.WriteString(snippet)
	}
	return sb.String()
}

// RenderSnippet formats one match as
// "1. [Similarity: 0.90] [service] [LEVEL]: message", capped in length.
func RenderSnippet(rank int, m models.SimilarityMatch) string {
	service := m.ServiceName
	if service == "" {
		service = analysis.UnknownService
	}
	level := m.ErrorLevel
	if level == "" {
		level = models.LevelUnknown
	}
	message := strings.Join(strings.Fields(m.ErrorMessage), " ")

	s := fmt.Sprintf("%d. [Similarity: %.2f] [%s] [%s]: %s", rank, m.Score, service, level, message)
	if len(s) > maxSnippetBytes {
		s = analysis.Truncate(s, maxSnippetBytes-3) + "..."
	}
	return s
}
