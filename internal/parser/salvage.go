package parser

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/model"
)

// pairPattern matches `key: value` or `key = value`, with optional quotes
// around the key and a double-quoted, single-quoted or bare value. Quoted
// values may be unterminated (truncated output).
var pairPattern = regexp.MustCompile(`["']?([A-Za-z_][A-Za-z0-9_]*)["']?[ \t]*[:=][ \t]*("(?:[^"\\\n]|\\.)*"?|'[^'\n]*'?|[^,;\n{}\[\]]*)`)

// structuralKeys name containers rather than fields and are skipped.
var structuralKeys = map[string]bool{
	"attributes": true,
	"entities":   true,
	"entity":     true,
	"records":    true,
}

type salvageRun struct {
	name, typ       string
	hasName, hasTyp bool
	attrs           map[string]string
}

func (r *salvageRun) empty() bool {
	return !r.hasName && !r.hasTyp
}

func (r *salvageRun) complete() bool {
	return r.hasName && r.hasTyp
}

// decodeSalvage reassembles records from contiguous runs of key/value pairs.
// A run ends when name or type repeats, or at a blank line. Runs holding both
// name and type become records; runs holding only one are counted as
// malformed and discarded.
func decodeSalvage(raw string) (decoded, error) {
	matches := pairPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return decoded{}, eris.New("no key/value pairs found")
	}

	var out decoded
	cur := &salvageRun{}
	flush := func() {
		switch {
		case cur.complete():
			out.records = append(out.records, model.EntityRecord{
				Name:       cur.name,
				Type:       cur.typ,
				Attributes: cur.attrs,
			})
		case !cur.empty():
			out.malformed++
		}
		cur = &salvageRun{}
	}

	prevEnd := 0
	for _, m := range matches {
		if strings.Contains(raw[prevEnd:m[0]], "\n\n") {
			flush()
		}
		prevEnd = m[1]

		key := strings.ToLower(raw[m[2]:m[3]])
		value := cleanValue(raw[m[4]:m[5]])

		switch {
		case key == "name":
			if cur.hasName {
				flush()
			}
			cur.name, cur.hasName = value, true
		case key == "type":
			if cur.hasTyp {
				flush()
			}
			cur.typ, cur.hasTyp = value, true
		case structuralKeys[key]:
			continue
		default:
			if value == "" {
				continue
			}
			if cur.attrs == nil {
				cur.attrs = make(map[string]string)
			}
			if _, exists := cur.attrs[key]; !exists {
				cur.attrs[key] = value
			}
		}
	}
	flush()

	if len(out.records) == 0 {
		return decoded{}, eris.Errorf("no complete records among %d key/value pairs", len(matches))
	}
	return out, nil
}

// cleanValue trims whitespace and surrounding quotes and unescapes quotes.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return v
	}
	if q := v[0]; q == '"' || q == '\'' {
		v = v[1:]
		if strings.HasSuffix(v, string(q)) {
			v = v[:len(v)-1]
		}
	}
	v = strings.ReplaceAll(v, `\"`, `"`)
	return strings.TrimSpace(v)
}
