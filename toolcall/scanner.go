package toolcall

import "strings"

const (
	openMarker   = "<TOOL_CALL"
	closeMarker  = "</TOOL_CALL>"
	toolAttrLead = `tool="`
)

// candidate is one located action request: the half-open byte region
// [start,end) it occupies in the source text, the action name (empty for the
// envelope shape until the payload is parsed), and the raw parameter object.
type candidate struct {
	start   int
	end     int
	action  string // from the tool="..." attribute; "" for envelope form
	payload string // balanced {...} object, possibly malformed JSON
	// truncated marks a request whose parameter object never closed before
	// the end of the text.
	truncated bool
}

// scan locates all action requests in text, left to right. Candidates never
// overlap; scanning resumes after each consumed region.
func scan(text string) []candidate {
	var out []candidate
	pos := 0
	for {
		idx := strings.Index(text[pos:], openMarker)
		if idx < 0 {
			return out
		}
		start := pos + idx
		c, next, ok := scanOne(text, start)
		if !ok {
			// Not a recognizable request shape; step past the marker so a
			// later real request is still found.
			pos = start + len(openMarker)
			continue
		}
		out = append(out, c)
		pos = next
	}
}

// scanOne parses a single candidate beginning at the opener offset. It
// returns the candidate, the offset scanning should resume from, and whether
// the region was a recognizable request.
func scanOne(text string, start int) (candidate, int, bool) {
	i := start + len(openMarker)
	var action string

	switch {
	case strings.HasPrefix(text[i:], ">"):
		// Envelope form: <TOOL_CALL>{...}
		i++
	default:
		// Attribute form: <TOOL_CALL tool="name">{...}
		j := skipSpaces(text, i)
		if !strings.HasPrefix(text[j:], toolAttrLead) {
			return candidate{}, 0, false
		}
		j += len(toolAttrLead)
		q := strings.IndexByte(text[j:], '"')
		if q < 0 {
			return candidate{}, 0, false
		}
		action = text[j : j+q]
		j += q + 1
		j = skipSpaces(text, j)
		if j >= len(text) || text[j] != '>' {
			return candidate{}, 0, false
		}
		i = j + 1
	}

	i = skipSpaces(text, i)
	if i >= len(text) || text[i] != '{' {
		return candidate{}, 0, false
	}

	payload, objEnd, closed := balancedObject(text, i)
	c := candidate{start: start, action: action, payload: payload, truncated: !closed}
	if !closed {
		c.end = len(text)
		return c, len(text), true
	}

	// Consume the region's tail: optional whitespace, stray closing braces
	// left by the model, and the closing tag when present.
	end := objEnd
	rest := skipSpaces(text, end)
	braces := rest
	for braces < len(text) && text[braces] == '}' {
		braces++
	}
	afterBraces := skipSpaces(text, braces)
	switch {
	case strings.HasPrefix(text[afterBraces:], closeMarker):
		end = afterBraces + len(closeMarker)
	case strings.HasPrefix(text[rest:], closeMarker):
		end = rest + len(closeMarker)
	case braces > rest && rest == end:
		// Stray braces glued to the object stand in for the tag; consume
		// them all so no residue leaks into the annotated text.
		end = braces
	}
	c.end = end
	return c, end, true
}

// balancedObject extracts the {...} object starting at text[open]. It tracks
// nesting depth, an in-quoted-string flag and an escape flag so braces inside
// quoted values never end extraction prematurely. Returns the object text,
// the offset just past it, and whether the object actually closed.
func balancedObject(text string, open int) (string, int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '{':
			depth++
		case !inString && ch == '}':
			depth--
			if depth == 0 {
				return text[open : i+1], i + 1, true
			}
		}
	}
	return text[open:], len(text), false
}

func skipSpaces(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n' || text[i] == '\r') {
		i++
	}
	return i
}
