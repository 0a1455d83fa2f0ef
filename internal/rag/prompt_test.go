package rag_test

import (
	"strings"
	"testing"

	"github.com/kiranshivaraju/logresolver/internal/rag"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt_Sections(t *testing.T) {
	q := rag.Query{ServiceName: "api", ErrorLevel: models.LevelError, ErrorMessage: "connection refused to db:5432"}
	ctxBlock := "1. [Similarity: 0.90] [api] [ERROR]: connection refused"

	p := rag.BuildPrompt(q, ctxBlock, models.PatternSignal{})

	assert.Contains(t, p, "CURRENT ERROR:\nService: api\nLevel: ERROR\nMessage: connection refused to db:5432")
	assert.Contains(t, p, "SIMILAR HISTORICAL ERRORS:\n"+ctxBlock)
	assert.NotContains(t, p, "PATTERN:")
	assert.True(t, strings.HasSuffix(p, `"root_cause", "recommended_fix", "confidence"`))
}

func TestBuildPrompt_NoHistory(t *testing.T) {
	p := rag.BuildPrompt(rag.Query{ErrorMessage: "panic: nil map"}, "", models.PatternSignal{})

	assert.Contains(t, p, "None found")
	assert.NotContains(t, p, "Service:")
	assert.NotContains(t, p, "Level:")
}

func TestBuildPrompt_Pattern(t *testing.T) {
	p := rag.BuildPrompt(rag.Query{ErrorMessage: "oom"}, "1. x", models.PatternSignal{Detected: true, Frequency: 4})
	assert.Contains(t, p, "PATTERN: 4 historical errors")
}
