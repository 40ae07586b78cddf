package parser

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/entity-extractor/internal/model"
)

// decodeStrict accepts only a JSON array whose every element is a conforming
// record, with nothing but whitespace around it.
func decodeStrict(raw string) (decoded, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return decoded{}, eris.New("empty response")
	}
	if text[0] != '[' {
		return decoded{}, eris.New("response is not a JSON array")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var elems []json.RawMessage
	if err := dec.Decode(&elems); err != nil {
		return decoded{}, eris.Wrap(err, "decode array")
	}
	if _, err := dec.Token(); err != io.EOF {
		return decoded{}, eris.New("trailing data after array")
	}

	records := make([]model.EntityRecord, 0, len(elems))
	for i, elem := range elems {
		rec, err := decodeRecord(elem, false)
		if err != nil {
			return decoded{}, eris.Wrapf(err, "element %d", i)
		}
		records = append(records, rec)
	}
	return decoded{records: records}, nil
}

// decodeRecord decodes one JSON object into a record. name and type must be
// strings; attributes, if present, must be an object of scalars. Any other
// scalar fields are kept as attributes so descriptive extras survive. With
// dropNonScalar, an attribute holding an object or array is skipped instead
// of rejecting the record.
func decodeRecord(raw []byte, dropNonScalar bool) (model.EntityRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return model.EntityRecord{}, eris.Wrap(err, "decode record")
	}
	if fields == nil {
		return model.EntityRecord{}, eris.New("record is null")
	}

	name, ok := fields["name"].(string)
	if !ok {
		return model.EntityRecord{}, eris.New(`record missing string field "name"`)
	}
	typ, ok := fields["type"].(string)
	if !ok {
		return model.EntityRecord{}, eris.New(`record missing string field "type"`)
	}

	rec := model.EntityRecord{Name: name, Type: typ}

	if attrs, present := fields["attributes"]; present && attrs != nil {
		obj, ok := attrs.(map[string]any)
		if !ok {
			return model.EntityRecord{}, eris.New(`field "attributes" is not an object`)
		}
		for k, v := range obj {
			s, ok := scalarString(v)
			if !ok {
				if dropNonScalar {
					continue
				}
				return model.EntityRecord{}, eris.Errorf("attribute %q is not a scalar", k)
			}
			setAttribute(&rec, k, s)
		}
	}

	// Extra top-level scalars, in sorted order so explicit attributes win
	// deterministically.
	extras := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case "name", "type", "attributes":
			continue
		}
		extras = append(extras, k)
	}
	sort.Strings(extras)
	for _, k := range extras {
		s, ok := scalarString(fields[k])
		if !ok {
			continue
		}
		if _, exists := rec.Attributes[k]; !exists {
			setAttribute(&rec, k, s)
		}
	}

	return rec, nil
}

func setAttribute(rec *model.EntityRecord, key, value string) {
	if rec.Attributes == nil {
		rec.Attributes = make(map[string]string)
	}
	rec.Attributes[key] = value
}

// scalarString renders a decoded JSON scalar as a string. Objects and arrays
// are rejected; null becomes the empty string.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}
