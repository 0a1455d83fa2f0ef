package rag_test

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/logresolver/internal/rag"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
)

func match(service string, level models.ErrorLevel, msg string, score float64) models.SimilarityMatch {
	return models.SimilarityMatch{ServiceName: service, ErrorLevel: level, ErrorMessage: msg, Score: score}
}

func TestBuildContext_Empty(t *testing.T) {
	b := rag.NewContextBuilder(0)
	assert.Equal(t, "", b.BuildContext(nil))
	assert.Equal(t, "", b.BuildContext([]models.SimilarityMatch{}))
}

func TestBuildContext_DefaultBudget(t *testing.T) {
	assert.Equal(t, rag.DefaultContextBudget, rag.NewContextBuilder(-5).MaxChars)
	assert.Equal(t, 1200, rag.NewContextBuilder(1200).MaxChars)
}

func TestBuildContext_InputOrder(t *testing.T) {
	b := rag.NewContextBuilder(4000)
	out := b.BuildContext([]models.SimilarityMatch{
		match("api", models.LevelError, "connection refused", 0.9),
		match("db", models.LevelFatal, "too many connections", 0.85),
	})

	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{
		"1. [Similarity: 0.90] [api] [ERROR]: connection refused",
		"2. [Similarity: 0.85] [db] [FATAL]: too many connections",
	}, lines)
}

func TestBuildContext_StopsAtBudget(t *testing.T) {
	m := match("api", models.LevelError, strings.Repeat("x", 40), 0.9)
	one := rag.RenderSnippet(1, m)

	// Room for two snippets plus the separator, not three.
	b := rag.NewContextBuilder(2*len(one) + 5)
	out := b.BuildContext([]models.SimilarityMatch{m, m, m})

	assert.LessOrEqual(t, len(out), b.MaxChars)
	assert.Len(t, strings.Split(out, "\n"), 2)
}

func TestBuildContext_FirstMatchAlwaysIncluded(t *testing.T) {
	b := rag.NewContextBuilder(20)
	out := b.BuildContext([]models.SimilarityMatch{
		match("payments", models.LevelError, strings.Repeat("timeout ", 50), 0.95),
		match("api", models.LevelError, "short", 0.9),
	})

	assert.NotEmpty(t, out)
	assert.LessOrEqual(t, len(out), 20)
	assert.True(t, strings.HasPrefix(out, "1. [Similarity"))
	assert.NotContains(t, out, "\n")
}

func TestRenderSnippet_Defaults(t *testing.T) {
	s := rag.RenderSnippet(3, match("", "", "  disk   full\n on /var ", 0.5))
	assert.Equal(t, "3. [Similarity: 0.50] [unknown] [UNKNOWN]: disk full on /var", s)
}

func TestRenderSnippet_Capped(t *testing.T) {
	s := rag.RenderSnippet(1, match("api", models.LevelError, strings.Repeat("a", 2000), 0.9))
	assert.LessOrEqual(t, len(s), 800)
	assert.True(t, strings.HasSuffix(s, "..."))
}
