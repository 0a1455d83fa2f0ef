// Package analysis turns raw log text into the stable forms used for embedding
// and comparison, and pulls service/level/message fields out of unstructured lines.
package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Placeholder tokens substituted for volatile values.
const (
	TokenTimestamp = "<timestamp>"
	TokenIP        = "<ip>"
	TokenUUID      = "<uuid>"
	TokenHex       = "<hex>"
	TokenNum       = "<num>"
)

// Normalization regexes compiled once at package init. They operate on
// already-lowercased text and are applied in the order normalizePass lists.
var (
	reISOTimestamp = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[t ]\d{2}:\d{2}(?::\d{2})?(?:[.,]\d+)?(?:z|[+-]\d{2}:?\d{2})?)?`)
	reSyslogStamp  = regexp.MustCompile(`\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`)
	reCLFStamp     = regexp.MustCompile(`\d{2}/(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)/\d{4}:\d{2}:\d{2}:\d{2}(?:\s+[+-]\d{4})?`)
	reClockTime    = regexp.MustCompile(`\b\d{2}:\d{2}:\d{2}(?:[.,]\d+)?\b`)
	reIPv4         = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`)
	reIPv6         = regexp.MustCompile(`\b(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b|\b(?:[0-9a-f]{1,4}:){1,6}:(?:[0-9a-f]{1,4}:){0,5}[0-9a-f]{1,4}\b|::(?:[0-9a-f]{1,4}:){0,5}[0-9a-f]{1,4}\b`)
	reUUID         = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	reHexAddr      = regexp.MustCompile(`0x[0-9a-f]+`)
	reHexID        = regexp.MustCompile(`\b[0-9a-f]{16,}\b`)
	reDigitRun     = regexp.MustCompile(`\d{4,}`)
	reWhitespace   = regexp.MustCompile(`\s+`)
)

// Normalize strips volatile tokens from raw log text so that two occurrences
// of the same error produce the same string.
//
// Normalize never fails: text without volatile tokens comes back lowercased
// with whitespace collapsed. Applying it twice yields the same result as once.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	// A placeholder can expose a word boundary that an earlier pattern
	// needs, so passes repeat until nothing changes. Every changing pass
	// removes volatile text or whitespace, which bounds the loop.
	for {
		next := normalizePass(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizePass(s string) string {
	s = reISOTimestamp.ReplaceAllString(s, TokenTimestamp)
	s = reCLFStamp.ReplaceAllString(s, TokenTimestamp)
	s = reSyslogStamp.ReplaceAllString(s, TokenTimestamp)
	s = reClockTime.ReplaceAllString(s, TokenTimestamp)
	s = reIPv4.ReplaceAllString(s, TokenIP)
	s = reUUID.ReplaceAllString(s, TokenUUID)
	s = reIPv6.ReplaceAllString(s, TokenIP)
	s = reHexAddr.ReplaceAllString(s, TokenHex)
	s = reHexID.ReplaceAllStringFunc(s, hexOrNum)
	s = reDigitRun.ReplaceAllString(s, TokenNum)
	s = reWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// hexOrNum keeps long pure-digit identifiers in the numeric bucket.
func hexOrNum(m string) string {
	for i := 0; i < len(m); i++ {
		if m[i] < '0' || m[i] > '9' {
			return TokenHex
		}
	}
	return TokenNum
}

// Truncate shortens s to at most maxBytes without splitting UTF-8 runes.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
