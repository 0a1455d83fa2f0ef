package rag

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// SystemPrompt frames every completion request.
const SystemPrompt = "You are an expert DevOps engineer specializing in log analysis and error resolution."

// Query is the error being resolved.
type Query struct {
	ServiceName  string
	ErrorLevel   models.ErrorLevel
	ErrorMessage string
}

// BuildPrompt assembles the single user prompt for a resolve request.
func BuildPrompt(q Query, contextBlock string, signal models.PatternSignal) string {
	var b strings.Builder

	b.WriteString("Your task is to provide root cause analysis and recommended fixes based on the current error and similar historical errors.\n\n")

	b.WriteString("CURRENT ERROR:\n")
	if q.ServiceName != "" {
		fmt.Fprintf(&b, "Service: %s\n", q.ServiceName)
	}
	if q.ErrorLevel != "" {
		fmt.Fprintf(&b, "Level: %s\n", q.ErrorLevel)
	}
	fmt.Fprintf(&b, "Message: %s\n\n", q.ErrorMessage)

	b.WriteString("SIMILAR HISTORICAL ERRORS:\n")
	if contextBlock == "" {
		b.WriteString("None found. This error has no close match in the history.\n\n")
	} else {
		b.WriteString(contextBlock)
		b.WriteString("\n\n")
	}

	if signal.Detected {
		fmt.Fprintf(&b, "PATTERN: %d historical errors closely match this one; treat it as a recurring issue.\n\n", signal.Frequency)
	}

	b.WriteString("Please provide:\n")
	b.WriteString("1. ROOT CAUSE: A brief explanation of the likely root cause\n")
	b.WriteString("2. RECOMMENDED FIX: Specific actionable steps to resolve the issue\n")
	b.WriteString("3. CONFIDENCE: A confidence score from 0.0 to 1.0\n\n")
	b.WriteString(`Format your response as JSON with keys: "root_cause", "recommended_fix", "confidence"`)

	return b.String()
}
