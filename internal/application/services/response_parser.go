package services

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// maxBraceCandidates bounds how many balanced spans are tried.
const maxBraceCandidates = 64

// ParseStrategy turns raw model text into a JSON object, or reports failure.
type ParseStrategy struct {
	Name  string
	Parse func(text string) (map[string]any, bool)
}

// DefaultParseStrategies returns direct JSON, fenced block and balanced-brace
// strategies in order. withRepair appends a jsonrepair pass as a last resort.
func DefaultParseStrategies(withRepair bool) []ParseStrategy {
	strategies := []ParseStrategy{
		{Name: "direct_json", Parse: ParseDirectJSON},
		{Name: "fenced_block", Parse: ParseFencedBlock},
		{Name: "balanced_braces", Parse: ParseBalancedBraces},
	}
	if withRepair {
		strategies = append(strategies, ParseStrategy{Name: "json_repair", Parse: ParseRepairedJSON})
	}
	return strategies
}

// ParseWithStrategies tries each strategy in turn; the first success wins.
func ParseWithStrategies(text string, strategies []ParseStrategy) (map[string]any, string, bool) {
	for _, s := range strategies {
		if m, ok := s.Parse(text); ok {
			return m, s.Name, true
		}
	}
	return nil, "", false
}

// ParseDirectJSON parses the whole text as a JSON object.
func ParseDirectJSON(text string) (map[string]any, bool) {
	return decodeObject(strings.TrimSpace(text))
}

var fencedBlockPattern = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_-]*)[ \\t]*\\r?\\n?(.*?)```")

// ParseFencedBlock parses the first ```json fenced block that holds an object.
// Unlabelled fences are tried after labelled ones.
func ParseFencedBlock(text string) (map[string]any, bool) {
	matches := fencedBlockPattern.FindAllStringSubmatch(text, -1)
	var unlabelled []string
	for _, m := range matches {
		label := strings.ToLower(m[1])
		switch label {
		case "json":
			if obj, ok := decodeObject(strings.TrimSpace(m[2])); ok {
				return obj, true
			}
		case "":
			unlabelled = append(unlabelled, m[2])
		}
	}
	for _, body := range unlabelled {
		if obj, ok := decodeObject(strings.TrimSpace(body)); ok {
			return obj, true
		}
	}
	return nil, false
}

// ParseBalancedBraces extracts every balanced {...} span and tries them longest first.
func ParseBalancedBraces(text string) (map[string]any, bool) {
	for _, span := range BalancedSpans(text) {
		if obj, ok := decodeObject(span); ok {
			return obj, true
		}
	}
	return nil, false
}

// ParseRepairedJSON repairs the outermost brace span (or whole text) with jsonrepair.
func ParseRepairedJSON(text string) (map[string]any, bool) {
	candidate := strings.TrimSpace(text)
	if start := strings.Index(candidate, "{"); start >= 0 {
		candidate = candidate[start:]
		if end := strings.LastIndex(candidate, "}"); end >= 0 {
			candidate = candidate[:end+1]
		}
	} else {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, false
	}
	return decodeObject(repaired)
}

// BalancedSpans returns balanced brace spans sorted by length, longest first.
// Braces inside JSON strings are ignored.
func BalancedSpans(text string) []string {
	var spans []string
	for start := 0; start < len(text) && len(spans) < maxBraceCandidates; start++ {
		if text[start] != '{' {
			continue
		}
		if end, ok := matchBrace(text, start); ok {
			spans = append(spans, text[start:end+1])
		}
	}
	sort.SliceStable(spans, func(i, j int) bool { return len(spans[i]) > len(spans[j]) })
	return spans
}

func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
