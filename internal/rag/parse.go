package rag

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/logresolver/internal/analysis"
	"github.com/kiranshivaraju/logresolver/pkg/models"
	"github.com/valyala/fastjson"
)

// Fallback texts used when the model omits a field.
const (
	DegradedRootCause = "Unable to determine root cause from model output"
	NoFixRecommended  = "No specific fix recommended"
	// maxDegradedFixBytes bounds the raw response echoed in a degraded result.
	maxDegradedFixBytes = 1000
)

// ConfidencePolicy holds the fallback confidence values.
type ConfidencePolicy struct {
	High     float64 // pattern frequency >= 3
	Medium   float64 // pattern frequency 1-2
	Low      float64 // no pattern
	Degraded float64 // unparseable model output
}

// DefaultConfidencePolicy returns the standard fallback values.
func DefaultConfidencePolicy() ConfidencePolicy {
	return ConfidencePolicy{High: 0.8, Medium: 0.6, Low: 0.4, Degraded: 0.3}
}

// Heuristic derives a confidence from the pattern signal.
func (p ConfidencePolicy) Heuristic(signal models.PatternSignal) float64 {
	switch {
	case signal.Frequency >= 3:
		return p.High
	case signal.Frequency >= 1:
		return p.Medium
	default:
		return p.Low
	}
}

// parsed is the intermediate result of one parse stage.
type parsed struct {
	rootCause     string
	fix           string
	steps         []string
	confidence    float64
	hasConfidence bool
}

var (
	reCodeFence     = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
	reSectionHeader = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*)?(?:\d+[.)]\s*)?(?:[-*]\s+)?\**\s*["']?(root[ _]?cause|cause|recommended[ _]fix(?:es)?|fix(?:es)?|solution|resolution|remediation|confidence(?:[ _]score)?)["']?\s*\**\s*(?:[:\-]\s*\**\s*(.*)|$)`)
	reNumber        = regexp.MustCompile(`-?\d*\.?\d+`)
	reStepBullet    = regexp.MustCompile(`(?i)^\s*(?:[-*•]\s+|\d+[.)]\s+|step\s+\d+[:.)]?\s*)`)
)

// ParseResponse turns raw model output into a ResolutionResult, trying in
// order: strict JSON, labeled sections, then a degraded fallback. It never
// fails. Confidence is clamped to [0,1]; when the model gives none it is
// derived from signal via policy. Matches and timestamps are left unset.
func ParseResponse(raw string, signal models.PatternSignal, policy ConfidencePolicy) models.ResolutionResult {
	p, ok := parseStrict(raw)
	if !ok {
		p, ok = parseSections(raw)
	}
	if !ok {
		fix := strings.TrimSpace(analysis.Truncate(strings.TrimSpace(raw), maxDegradedFixBytes))
		if fix == "" {
			fix = NoFixRecommended
		}
		return models.ResolutionResult{
			RootCause:       DegradedRootCause,
			RecommendedFix:  fix,
			FixSteps:        []string{},
			ConfidenceScore: clamp(policy.Degraded),
			Degraded:        true,
		}
	}

	if p.fix == "" {
		p.fix = NoFixRecommended
	}
	if p.steps == nil {
		p.steps = FixSteps(p.fix)
	}

	confidence := policy.Heuristic(signal)
	if p.hasConfidence {
		confidence = p.confidence
	}

	return models.ResolutionResult{
		RootCause:       p.rootCause,
		RecommendedFix:  p.fix,
		FixSteps:        p.steps,
		ConfidenceScore: clamp(confidence),
	}
}

// parseStrict accepts a JSON object with a non-empty root_cause, optionally
// inside a markdown code fence or surrounded by prose.
func parseStrict(raw string) (parsed, bool) {
	var candidates []string
	if m := reCodeFence.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, raw)
	if i, j := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); i >= 0 && j > i {
		candidates = append(candidates, raw[i:j+1])
	}

	var parser fastjson.Parser
	for _, c := range candidates {
		v, err := parser.Parse(strings.TrimSpace(c))
		if err != nil || v.Type() != fastjson.TypeObject {
			continue
		}
		if p, ok := fromJSON(v); ok {
			return p, true
		}
	}
	return parsed{}, false
}

func fromJSON(v *fastjson.Value) (parsed, bool) {
	var p parsed

	rc := v.Get("root_cause")
	if rc == nil || rc.Type() != fastjson.TypeString {
		return p, false
	}
	p.rootCause = strings.TrimSpace(string(rc.GetStringBytes()))
	if p.rootCause == "" {
		return p, false
	}

	if fix := v.Get("recommended_fix"); fix != nil {
		switch fix.Type() {
		case fastjson.TypeString:
			p.fix = strings.TrimSpace(string(fix.GetStringBytes()))
		case fastjson.TypeArray:
			var lines []string
			for _, item := range fix.GetArray() {
				if item.Type() != fastjson.TypeString {
					continue
				}
				if s := strings.TrimSpace(string(item.GetStringBytes())); s != "" {
					p.steps = append(p.steps, reStepBullet.ReplaceAllString(s, ""))
				}
			}
			for i, s := range p.steps {
				lines = append(lines, strconv.Itoa(i+1)+". "+s)
			}
			p.fix = strings.Join(lines, "\n")
		}
	}

	if c := v.Get("confidence"); c != nil {
		switch c.Type() {
		case fastjson.TypeNumber:
			p.confidence, p.hasConfidence = validConfidence(c.GetFloat64())
		case fastjson.TypeString:
			p.confidence, p.hasConfidence = parseConfidenceText(string(c.GetStringBytes()))
		}
	}
	return p, true
}

// parseSections scans free text for "Root cause:", "Fix:", "Confidence:"
// style headers. Lines following a header belong to it until the next one.
func parseSections(raw string) (parsed, bool) {
	var (
		p       parsed
		root    []string
		fix     []string
		current *[]string
	)

	for _, line := range strings.Split(raw, "\n") {
		if m := reSectionHeader.FindStringSubmatch(line); m != nil {
			content := cleanSectionText(m[2])
			switch key := strings.ToLower(m[1]); {
			case strings.HasPrefix(key, "confidence"):
				if c, ok := parseConfidenceText(content); ok {
					p.confidence, p.hasConfidence = c, true
				}
				current = nil
				continue
			case strings.Contains(key, "cause"):
				current = &root
			default:
				current = &fix
			}
			if content != "" {
				*current = append(*current, content)
			}
			continue
		}

		if current == nil {
			continue
		}
		if s := strings.TrimSpace(line); s != "" && s != "```" {
			*current = append(*current, s)
		}
	}

	p.rootCause = strings.Join(root, " ")
	p.fix = strings.Join(fix, "\n")
	return p, p.rootCause != ""
}

func cleanSectionText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `*"',`)
	return strings.TrimSpace(s)
}

// parseConfidenceText reads the first number in s; "85%" reads as 0.85.
func parseConfidenceText(s string) (float64, bool) {
	m := reNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(s, "%") {
		f /= 100
	}
	return validConfidence(f)
}

func validConfidence(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FixSteps splits a recommended fix into individual steps, dropping bullet
// and numbering prefixes and blank lines.
func FixSteps(fix string) []string {
	steps := []string{}
	for _, line := range strings.Split(fix, "\n") {
		s := strings.TrimSpace(reStepBullet.ReplaceAllString(line, ""))
		if s != "" {
			steps = append(steps, s)
		}
	}
	return steps
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
