package parser

import (
	"strings"

	"github.com/rotisserie/eris"
)

// decodeRepair fixes common malformations in the bracketed part of the
// response, then decodes each top-level array element on its own. Elements
// that still fail, including empty slots left by dangling separators, are
// counted as malformed and dropped. Attributes holding objects or arrays are
// dropped from an otherwise valid element.
func decodeRepair(raw string) (decoded, error) {
	text := stripCodeFences(raw)
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return decoded{}, eris.New("no opening delimiter found")
	}
	body := trimTrailingProse(text[start:])
	if body[0] == '{' {
		body = "[" + body
	}

	repaired := repairJSON(body)
	spans, err := splitElements(repaired)
	if err != nil {
		return decoded{}, err
	}

	var out decoded
	for _, span := range spans {
		if strings.TrimSpace(span) == "" {
			out.malformed++
			continue
		}
		rec, err := decodeRecord([]byte(span), true)
		if err != nil {
			out.malformed++
			continue
		}
		out.records = append(out.records, rec)
	}

	if len(out.records) == 0 && out.malformed > 0 {
		return decoded{}, eris.Errorf("no recoverable records in %d fragments", out.malformed)
	}
	return out, nil
}

// trimTrailingProse cuts text after the last closing delimiter when what
// follows contains no quotes (so it is commentary, not a truncated record).
func trimTrailingProse(text string) string {
	last := strings.LastIndexAny(text, "]}")
	if last < 0 {
		return text
	}
	if strings.ContainsRune(text[last+1:], '"') {
		return text
	}
	return text[:last+1]
}

// repairJSON walks text once, tracking open delimiters and string state, and
// emits a version with:
//   - interior quotes escaped (a quote closes a string only when followed by
//     a separator, closer, colon or end of input)
//   - raw control characters inside strings escaped
//   - stray closers dropped and missing closers inserted
//   - trailing separators before '}' removed
//   - missing separators between adjacent objects or strings inserted
//
// Anything after the outermost container closes is ignored.
//
// A separator followed by a closer for an outer container closes the inner
// containers first, so `{"a":"b",]` becomes `{"a":"b"},]`. Array-level
// trailing separators are kept so the splitter can count the empty slot.
func repairJSON(text string) string {
	out := make([]byte, 0, len(text)+8)
	var stack []byte
	inString := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				out = append(out, c)
				if i+1 < len(text) {
					i++
					out = append(out, text[i])
				}
			case '"':
				if closesString(text, i+1) {
					out = append(out, c)
					inString = false
				} else {
					out = append(out, '\\', '"')
				}
			case '\n':
				out = append(out, '\\', 'n')
			case '\r':
				out = append(out, '\\', 'r')
			case '\t':
				out = append(out, '\\', 't')
			default:
				out = append(out, c)
			}
			continue
		}

		switch c {
		case '"':
			if lastNonSpace(out) == '"' {
				out = append(out, ',')
			}
			inString = true
			out = append(out, c)
		case '{', '[':
			if prev := lastNonSpace(out); prev == '}' || prev == ']' {
				out = append(out, ',')
			}
			stack = append(stack, c)
			out = append(out, c)
		case '}', ']':
			idx := lastIndexByte(stack, openerFor(c))
			if idx < 0 {
				continue
			}
			out, stack = closeFrames(out, stack, idx)
			if len(stack) == 0 {
				return string(out)
			}
		case ',':
			if next := nextNonSpace(text, i+1); next == '}' || next == ']' {
				if len(stack) > 0 && stack[len(stack)-1] != openerFor(next) {
					if idx := lastIndexByte(stack, openerFor(next)); idx >= 0 {
						out, stack = closeFrames(out, stack, idx+1)
					}
				}
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}

	if inString {
		out = append(out, '"')
	}
	out, _ = closeFrames(out, stack, 0)
	return string(out)
}

// closeFrames writes closers for stack[from:] innermost first and returns the
// shortened stack.
func closeFrames(out []byte, stack []byte, from int) ([]byte, []byte) {
	for j := len(stack) - 1; j >= from; j-- {
		if stack[j] == '{' {
			out = trimTrailingSeparators(out)
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return out, stack[:from]
}

func trimTrailingSeparators(out []byte) []byte {
	for len(out) > 0 {
		switch out[len(out)-1] {
		case ' ', '\t', '\n', '\r', ',':
			out = out[:len(out)-1]
		default:
			return out
		}
	}
	return out
}

func closesString(text string, from int) bool {
	switch nextNonSpace(text, from) {
	case 0, ',', '}', ']', ':', '"':
		return true
	default:
		return false
	}
}

// nextNonSpace returns the first non-whitespace byte at or after from, or 0.
func nextNonSpace(text string, from int) byte {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return text[i]
		}
	}
	return 0
}

func lastNonSpace(out []byte) byte {
	for i := len(out) - 1; i >= 0; i-- {
		switch out[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return out[i]
		}
	}
	return 0
}

func openerFor(closer byte) byte {
	if closer == '}' {
		return '{'
	}
	return '['
}

func lastIndexByte(stack []byte, b byte) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == b {
			return i
		}
	}
	return -1
}

// splitElements returns the raw text of each top-level element of a JSON
// array. An empty array yields no elements; an empty slot between or after
// separators yields an empty element.
func splitElements(array string) ([]string, error) {
	array = strings.TrimSpace(array)
	if len(array) < 2 || array[0] != '[' || array[len(array)-1] != ']' {
		return nil, eris.New("repaired text is not an array")
	}
	inner := array[1 : len(array)-1]
	if strings.TrimSpace(inner) == "" {
		return nil, nil
	}

	var spans []string
	depth := 0
	inString := false
	begin := 0
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case ',':
			if depth == 0 {
				spans = append(spans, inner[begin:i])
				begin = i + 1
			}
		}
	}
	spans = append(spans, inner[begin:])
	return spans, nil
}
