// Package logql builds LogQL queries for pulling error logs out of Loki.
package logql

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryBuilder constructs safe LogQL query strings.
// Zero value is ready to use.
type QueryBuilder struct{}

// DefaultImportLevels are the levels pulled when an import names none.
var DefaultImportLevels = []string{"error", "fatal", "critical", "panic"}

// ImportParams selects the log lines to import for one service.
type ImportParams struct {
	Service   string
	Namespace string
	Levels    []string
	Contains  string
}

// BuildImportQuery returns a LogQL query selecting error lines for a service.
func (b QueryBuilder) BuildImportQuery(p ImportParams) string {
	levels := p.Levels
	if len(levels) == 0 {
		levels = DefaultImportLevels
	}

	parts := []string{b.buildSelector(p.Service, p.Namespace)}
	if lf := b.buildContainsFilter(p.Contains); lf != "" {
		parts = append(parts, lf)
	}
	parts = append(parts, b.buildLevelFilter(levels))
	return strings.Join(parts, " ")
}

func (b QueryBuilder) buildSelector(service, namespace string) string {
	if namespace != "" {
		return fmt.Sprintf(`{service=%s, namespace=%s}`, strconv.Quote(service), strconv.Quote(namespace))
	}
	return fmt.Sprintf(`{service=%s}`, strconv.Quote(service))
}

func (b QueryBuilder) buildLevelFilter(levels []string) string {
	lower := make([]string, 0, len(levels))
	for _, l := range levels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || strings.ContainsAny(l, `|()"\`) {
			continue
		}
		lower = append(lower, l)
	}
	if len(lower) == 0 {
		return ""
	}
	return fmt.Sprintf(`| level =~ "(?i)(%s)"`, strings.Join(lower, "|"))
}

// buildContainsFilter uses a raw string when possible and falls back to a
// quoted string when the text itself holds a backtick.
func (b QueryBuilder) buildContainsFilter(text string) string {
	if text == "" {
		return ""
	}
	if strings.Contains(text, "`") {
		return "|= " + strconv.Quote(text)
	}
	return "|= `" + text + "`"
}
