package analysis

import (
	"regexp"
	"strings"

	"github.com/kiranshivaraju/logresolver/pkg/models"
)

// MaxMessageLength caps the message extracted from unstructured text.
const MaxMessageLength = 500

// UnknownService is returned when no service name can be found in a line.
const UnknownService = "unknown"

var (
	reServiceKV      = regexp.MustCompile(`(?i)\bservice(?:_name)?\s*[=:]\s*"?([a-z0-9_.-]+)`)
	reServiceBracket = regexp.MustCompile(`\[([a-zA-Z][a-zA-Z0-9_.-]*)\]`)
	reServiceAngle   = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9_.-]*)>`)
	reWord           = regexp.MustCompile(`[A-Za-z]+`)

	reDatePrefix    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\S*\s+`)
	reClockPrefix   = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\S*\s+`)
	reBracketPrefix = regexp.MustCompile(`^\[[^\]]+\]:?\s+`)
	reUpperPrefix   = regexp.MustCompile(`^[A-Z]+:?\s+`)
)

// serviceKeywords are component nouns that usually follow a service prefix,
// as in "payment api" or "session cache".
var serviceKeywords = []string{"api", "auth", "db", "cache", "worker", "scheduler", "web", "gateway"}

// ExtractServiceName finds a service name in unstructured log text.
// Returns UnknownService when nothing matches.
func ExtractServiceName(text string) string {
	if m := reServiceKV.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	for _, re := range []*regexp.Regexp{reServiceBracket, reServiceAngle} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if _, isLevel := models.ParseErrorLevel(m[1]); isLevel {
				continue
			}
			return strings.ToLower(m[1])
		}
	}

	words := strings.Fields(strings.ToLower(text))
	for _, kw := range serviceKeywords {
		for i, w := range words {
			if strings.Trim(w, ".,:;") != kw {
				continue
			}
			if i > 0 {
				prev := strings.Trim(words[i-1], ".,:;[]<>")
				if prev != "" {
					return prev + "-" + kw
				}
			}
			return kw
		}
	}
	return UnknownService
}

// ExtractLevel infers the severity of an unstructured log line from level
// keywords. Priority: FATAL (also CRITICAL, PANIC) > ERROR > WARN > DEBUG > INFO.
func ExtractLevel(text string) models.ErrorLevel {
	seen := make(map[models.ErrorLevel]bool)
	for _, w := range reWord.FindAllString(text, -1) {
		if lvl, ok := models.ParseErrorLevel(w); ok {
			seen[lvl] = true
		}
		if strings.EqualFold(w, "exception") || strings.EqualFold(w, "traceback") {
			seen[models.LevelError] = true
		}
	}
	for _, lvl := range []models.ErrorLevel{
		models.LevelFatal, models.LevelError, models.LevelWarn, models.LevelDebug, models.LevelInfo,
	} {
		if seen[lvl] {
			return lvl
		}
	}
	return models.LevelUnknown
}

// ExtractMessage strips common log prefixes (date, clock, bracketed tags,
// uppercase level words) and returns the first non-empty line, capped at
// MaxMessageLength bytes with a trailing "..." when cut.
func ExtractMessage(text string) string {
	for _, line := range strings.Split(text, "\n") {
		msg := stripPrefixes(strings.TrimSpace(line))
		if msg == "" {
			continue
		}
		if len(msg) > MaxMessageLength {
			return Truncate(msg, MaxMessageLength) + "..."
		}
		return msg
	}
	return ""
}

func stripPrefixes(line string) string {
	for {
		before := line
		for _, re := range []*regexp.Regexp{reDatePrefix, reClockPrefix, reBracketPrefix, reUpperPrefix} {
			line = re.ReplaceAllString(line, "")
		}
		if line == before {
			return strings.TrimSpace(line)
		}
	}
}
