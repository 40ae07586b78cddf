package main

import (
	"bufio"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/entity-extractor/internal/model"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// readChunks splits r into text chunks. Plain input is split on blank lines.
// With jsonl set every non-empty line must be a JSON string.
func readChunks(r io.Reader, jsonl bool) ([]model.TextChunk, error) {
	if jsonl {
		return readJSONLChunks(r)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "input: read")
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var chunks []model.TextChunk
	for _, para := range paragraphBreak.Split(text, -1) {
		if p := strings.TrimSpace(para); p != "" {
			chunks = append(chunks, model.TextChunk{Text: p})
		}
	}
	return chunks, nil
}

func readJSONLChunks(r io.Reader) ([]model.TextChunk, error) {
	var chunks []model.TextChunk
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var text string
		if err := json.Unmarshal([]byte(raw), &text); err != nil {
			return nil, eris.Wrapf(err, "input: line %d is not a JSON string", line)
		}
		chunks = append(chunks, model.TextChunk{Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "input: scan")
	}
	return chunks, nil
}

// writeResults renders results as indented JSON or YAML.
func writeResults(w io.Writer, results []model.ChunkResult, format string) error {
	switch format {
	case formatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(results), "output: encode json")
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return eris.Wrap(err, "output: encode yaml")
		}
		return eris.Wrap(enc.Close(), "output: close yaml")
	default:
		return eris.Errorf("output: unknown format %q", format)
	}
}
