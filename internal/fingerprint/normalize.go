package fingerprint

import (
	"regexp"
	"strings"
)

// Volatile token patterns stripped before hashing. Order matters: composite
// tokens (timestamps, UUIDs) must be rewritten before the generic hex and
// number patterns get a chance to mangle them.
var volatilePatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), "<ts>"},
	{regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\b`), "<ts>"},
	{regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), "<uuid>"},
	{regexp.MustCompile(`\b(?:request_id|req_id|transaction_id|txn_id|trace_id|span_id|correlation_id|session_id)[=:]\S+`), "<id>"},
	{regexp.MustCompile(`\btxn_[A-Za-z0-9]+\b`), "<id>"},
	{regexp.MustCompile(`0x[0-9a-fA-F]+\b`), "<addr>"},
	{regexp.MustCompile(`\b[0-9a-f]{12,}\b`), "<hex>"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(?::\d+)?\b`), "<ip>"},
	{regexp.MustCompile(`\b\d+(?:\.\d+)?(?:ms|us|µs|ns|s)\b`), "<dur>"},
	{regexp.MustCompile(`\b\d{4,}\b`), "<n>"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// severity tokens that qualify a line for the error signature, checked in
// upper case against whole words.
var signatureLevels = map[string]struct{}{
	"ERROR":    {},
	"ERR":      {},
	"FATAL":    {},
	"CRITICAL": {},
	"CRIT":     {},
	"PANIC":    {},
	"WARN":     {},
	"WARNING":  {},
}

var wordRe = regexp.MustCompile(`[A-Za-z]+`)

// NormalizeLine rewrites one raw log line into its stable skeleton.
func NormalizeLine(line string) string {
	out := line
	for _, p := range volatilePatterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// lineLevel returns the severity token found on the line, or "".
func lineLevel(line string) string {
	for _, word := range wordRe.FindAllString(line, -1) {
		upper := strings.ToUpper(word)
		if _, ok := signatureLevels[upper]; ok {
			return upper
		}
	}
	return ""
}

// ErrorSignature extracts the normalized error signature from a raw log
// batch: the stable skeletons of every line carrying a warning-or-worse
// severity token. Returns nil when no structured signature is recoverable.
func ErrorSignature(lines []string) []string {
	signature := make([]string, 0, len(lines))
	for _, raw := range lines {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if lineLevel(raw) == "" {
			continue
		}
		signature = append(signature, NormalizeLine(raw))
	}
	if len(signature) > 0 {
		return signature
	}

	// Fall back to lines mentioning failure keywords so plain-text stacks
	// without level prefixes still fingerprint.
	for _, raw := range lines {
		lower := strings.ToLower(raw)
		if strings.Contains(lower, "exception") || strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			signature = append(signature, NormalizeLine(raw))
		}
	}
	if len(signature) == 0 {
		return nil
	}
	return signature
}
