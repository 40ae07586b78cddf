package parser

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// maxLenientCandidates bounds how many opening brackets are tried as the
// start of the embedded array.
const maxLenientCandidates = 16

// decodeLenient strips code fences and surrounding prose, then runs the
// strict decoder on the first complete array in the text. Opening brackets
// are tried left to right so a bracketed aside in the prose does not hide the
// array, and anything after the array is ignored. A lone outermost object is
// accepted as a one-element array.
func decodeLenient(raw string) (decoded, error) {
	text := stripCodeFences(raw)
	if text == "" {
		return decoded{}, eris.New("empty response")
	}

	var lastErr error
	tried := 0
	for start := strings.IndexByte(text, '['); start >= 0 && tried < maxLenientCandidates; tried++ {
		span, err := leadingArray(text[start:])
		if err == nil {
			var out decoded
			if out, err = decodeStrict(span); err == nil {
				return out, nil
			}
		}
		lastErr = eris.Wrap(err, "embedded array")

		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}

	// Only an outermost object is a candidate; an object inside a broken
	// array belongs to the repair strategy.
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	firstBracket := strings.IndexByte(text, '[')
	if start >= 0 && end > start && (firstBracket < 0 || start < firstBracket) {
		out, err := decodeStrict("[" + text[start:end+1] + "]")
		if err == nil {
			return out, nil
		}
		if lastErr == nil {
			lastErr = eris.Wrap(err, "embedded object")
		}
	}

	if lastErr != nil {
		return decoded{}, lastErr
	}
	return decoded{}, eris.New("no bracketed span found")
}

// leadingArray returns the complete JSON array at the start of text. Text
// after the array is not read.
func leadingArray(text string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return "", eris.Wrap(err, "decode array")
	}
	return text[:dec.InputOffset()], nil
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)

	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	body := text[open+3:]
	// Drop the language tag line (```json, ```JSON, ...).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "[{") {
		body = body[nl+1:]
	}
	if closeIdx := strings.LastIndex(body, "```"); closeIdx >= 0 {
		body = body[:closeIdx]
	}
	return strings.TrimSpace(body)
}
