package toolcall

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseParams turns a raw parameter object into a map, applying up to two
// bounded repair passes when strict parsing fails:
//
//  1. escape unescaped quotes, newlines, tabs and backslashes inside the
//     "content" field's value, and strip a single trailing spurious closing
//     brace, then retry;
//  2. as a last resort, aggressively re-escape the entire content value.
//
// Failure is a return value, never a panic, and never crosses this boundary
// as an exception-like condition.
func parseParams(payload string) (map[string]any, error) {
	params, err := strictParse(payload)
	if err == nil {
		return params, nil
	}

	repaired := repairContentField(payload, escapeUnescaped)
	repaired = stripSpuriousBrace(repaired)
	if params, rerr := strictParse(repaired); rerr == nil {
		return params, nil
	}

	aggressive := repairContentField(payload, escapeAll)
	aggressive = stripSpuriousBrace(aggressive)
	if params, rerr := strictParse(aggressive); rerr == nil {
		return params, nil
	}

	return nil, fmt.Errorf("invalid parameters: %v", err)
}

func strictParse(payload string) (map[string]any, error) {
	var params map[string]any
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	return params, nil
}

// repairContentField rewrites the value of the "content" key using the given
// escape function. The value's closing quote is the first quote that is
// followed by the start of a sibling field (`,"`) or the object close (`}`),
// so fields after a damaged content value are never swallowed into it. If the
// payload has no content field it is returned unchanged.
func repairContentField(payload string, escape func(string) string) string {
	keyIdx := strings.Index(payload, `"content"`)
	if keyIdx < 0 {
		return payload
	}
	colon := strings.IndexByte(payload[keyIdx+len(`"content"`):], ':')
	if colon < 0 {
		return payload
	}
	valStart := keyIdx + len(`"content"`) + colon + 1
	for valStart < len(payload) && (payload[valStart] == ' ' || payload[valStart] == '\t' || payload[valStart] == '\n' || payload[valStart] == '\r') {
		valStart++
	}
	if valStart >= len(payload) || payload[valStart] != '"' {
		return payload
	}
	valStart++ // past the opening quote

	valEnd := -1
	for i := valStart; i < len(payload); i++ {
		if payload[i] == '\\' {
			i++
			continue
		}
		if payload[i] != '"' {
			continue
		}
		rest := strings.TrimLeft(payload[i+1:], " \t\n\r")
		if strings.HasPrefix(rest, `,"`) || strings.HasPrefix(rest, "}") {
			valEnd = i
			break
		}
	}
	if valEnd < valStart {
		return payload
	}

	return payload[:valStart] + escape(payload[valStart:valEnd]) + payload[valEnd:]
}

// escapeUnescaped escapes quotes, newlines, tabs, carriage returns and bare
// backslashes while leaving already-valid escape sequences intact.
func escapeUnescaped(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '\\':
			if i+1 < len(s) && isEscapable(s[i+1]) {
				b.WriteByte(ch)
				b.WriteByte(s[i+1])
				i++
			} else {
				b.WriteString(`\\`)
			}
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// escapeAll re-escapes every special character unconditionally, including
// backslashes that look like valid escapes.
func escapeAll(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

func isEscapable(ch byte) bool {
	switch ch {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
		return true
	}
	return false
}

// stripSpuriousBrace removes one trailing closing brace when the payload
// closes more objects than it opens (counted outside quoted strings).
func stripSpuriousBrace(payload string) string {
	trimmed := strings.TrimRight(payload, " \t\n\r")
	if !strings.HasSuffix(trimmed, "}") {
		return payload
	}
	opens, closes := 0, 0
	inString, escaped := false, false
	for i := 0; i < len(trimmed); i++ {
		ch := trimmed[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '{':
			opens++
		case !inString && ch == '}':
			closes++
		}
	}
	if closes > opens {
		return trimmed[:len(trimmed)-1]
	}
	return payload
}
