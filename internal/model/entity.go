package model

import (
	"strings"
)

// TextChunk is a span of source text submitted for extraction.
type TextChunk struct {
	Text string `json:"text" yaml:"text"`
}

// Fingerprint returns the cache key for the chunk.
func (c TextChunk) Fingerprint() string {
	return Fingerprint(c.Text)
}

// EntityRecord is a typed, named item extracted from a chunk.
type EntityRecord struct {
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Key returns the normalized (name, type) identity of the record. Two records
// with the same key are considered equal.
func (r EntityRecord) Key() string {
	name := strings.ToLower(strings.Join(strings.Fields(r.Name), " "))
	return name + "\x00" + NormalizeType(r.Type)
}

// Equal reports whether two records refer to the same entity.
func (r EntityRecord) Equal(other EntityRecord) bool {
	return r.Key() == other.Key()
}

// Clone returns a deep copy of the record.
func (r EntityRecord) Clone() EntityRecord {
	out := EntityRecord{Name: r.Name, Type: r.Type}
	if r.Attributes != nil {
		out.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// NormalizeType canonicalizes an entity type label for allow-set checks.
func NormalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// ExtractionResult is the ordered set of records produced for one chunk. It
// may be empty.
type ExtractionResult []EntityRecord

// Clone returns a deep copy so cached values are never shared with callers.
func (r ExtractionResult) Clone() ExtractionResult {
	if r == nil {
		return nil
	}
	out := make(ExtractionResult, len(r))
	for i, rec := range r {
		out[i] = rec.Clone()
	}
	return out
}
