package services

import "strings"

// placeholderAt reports whether s[i:] starts with {identifier}. It returns the
// identifier and the index of the closing brace.
func placeholderAt(s string, i int) (string, int, bool) {
	if i >= len(s) || s[i] != '{' {
		return "", 0, false
	}
	j := i + 1
	for j < len(s) {
		c := s[j]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if isLetter || (isDigit && j > i+1) {
			j++
			continue
		}
		break
	}
	if j == i+1 || j >= len(s) || s[j] != '}' {
		return "", 0, false
	}
	return s[i+1 : j], j, true
}

// escapeBraces doubles every brace that is not part of a {identifier} placeholder.
func escapeBraces(tmpl string) string {
	var b strings.Builder
	b.Grow(len(tmpl) + 64)
	for i := 0; i < len(tmpl); i++ {
		switch tmpl[i] {
		case '{':
			if _, end, ok := placeholderAt(tmpl, i); ok {
				b.WriteString(tmpl[i : end+1])
				i = end
				continue
			}
			b.WriteString("{{")
		case '}':
			b.WriteString("}}")
		default:
			b.WriteByte(tmpl[i])
		}
	}
	return b.String()
}

// substitute replaces placeholders in an escaped template and collapses doubled braces.
func substitute(escaped string, slots map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(escaped) * 2)
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if (c == '{' || c == '}') && i+1 < len(escaped) && escaped[i+1] == c {
			b.WriteByte(c)
			i++
			continue
		}
		if c == '{' {
			name, end, ok := placeholderAt(escaped, i)
			if !ok {
				return "", &SlotError{Slot: escaped[i:minInt(i+24, len(escaped))], Reason: "unbalanced brace"}
			}
			v, found := slots[name]
			if !found {
				return "", &SlotError{Slot: name, Reason: "template references an unknown slot"}
			}
			b.WriteString(v)
			i = end
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func interpolate(tmpl string, slots map[string]string) (string, error) {
	return substitute(escapeBraces(tmpl), slots)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
