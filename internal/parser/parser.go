// Package parser turns raw language-model output into validated entity
// records. Strategies run in a fixed order, each more permissive than the
// last, and the first one that produces a structure wins:
//
//	strict   the whole response is a JSON array of records
//	lenient  prose and code fences around the array are stripped
//	repair   delimiters, separators and quotes are fixed before decoding
//	salvage  contiguous key/value runs are reassembled into records
//
// Records that fail validation are dropped without failing the parse.
package parser

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/model"
)

// DefaultEntityTypes is the allow-set used when none is configured.
var DefaultEntityTypes = []string{"PERSON", "ORG", "LOCATION", "EVENT", "PRODUCT", "DATE", "CONCEPT"}

// ParsingError is returned when every strategy failed to find any structure.
type ParsingError struct {
	Errors []model.StrategyError
}

func (e *ParsingError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		parts[i] = se.Strategy + ": " + se.Message
	}
	return "parse: all strategies failed (" + strings.Join(parts, "; ") + ")"
}

// decoded is a strategy's structural output before validation. Malformed
// counts fragments that looked like records but could not be decoded.
type decoded struct {
	records   []model.EntityRecord
	malformed int
}

type strategy struct {
	name   string
	decode func(raw string) (decoded, error)
}

// Parser is safe for concurrent use; it holds no mutable state.
type Parser struct {
	allowed    map[string]struct{}
	strategies []strategy
}

// New creates a Parser that accepts the given entity types. An empty list
// falls back to DefaultEntityTypes.
func New(allowedTypes []string) *Parser {
	if len(allowedTypes) == 0 {
		allowedTypes = DefaultEntityTypes
	}
	allowed := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		if n := model.NormalizeType(t); n != "" {
			allowed[n] = struct{}{}
		}
	}
	return &Parser{
		allowed: allowed,
		strategies: []strategy{
			{name: model.StrategyStrict, decode: decodeStrict},
			{name: model.StrategyLenient, decode: decodeLenient},
			{name: model.StrategyRepair, decode: decodeRepair},
			{name: model.StrategySalvage, decode: decodeSalvage},
		},
	}
}

// AllowedTypes returns the normalized allow-set in sorted order.
func (p *Parser) AllowedTypes() []string {
	out := make([]string, 0, len(p.allowed))
	for t := range p.allowed {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Parse converts raw model output into records. It returns a *ParsingError
// only when no strategy could find any structure; an empty valid result is a
// successful parse. Identical input always yields identical output.
func (p *Parser) Parse(raw string) (model.ExtractionResult, model.ParsingInfo, error) {
	var info model.ParsingInfo

	for _, s := range p.strategies {
		info.Attempts++
		out, err := s.decode(raw)
		if err != nil {
			info.Errors = append(info.Errors, model.StrategyError{
				Strategy: s.name,
				Message:  err.Error(),
			})
			continue
		}

		records := p.validate(out.records)
		info.StrategyUsed = s.name
		info.OriginalCount = len(out.records) + out.malformed
		info.ValidCount = len(records)

		if info.Attempts > 1 || info.ValidCount < info.OriginalCount {
			zap.L().Debug("parse: recovered response",
				zap.String("strategy", s.name),
				zap.Int("original", info.OriginalCount),
				zap.Int("valid", info.ValidCount),
			)
		}
		return records, info, nil
	}

	return nil, info, &ParsingError{Errors: info.Errors}
}

// validate keeps records with a non-empty name and an allowed type, and
// collapses duplicates by normalized (name, type). The first occurrence wins;
// later duplicates only contribute attributes the first one lacks.
func (p *Parser) validate(records []model.EntityRecord) model.ExtractionResult {
	out := make(model.ExtractionResult, 0, len(records))
	seen := make(map[string]int, len(records))

	for _, r := range records {
		name := strings.TrimSpace(r.Name)
		typ := model.NormalizeType(r.Type)
		if name == "" {
			continue
		}
		if _, ok := p.allowed[typ]; !ok {
			continue
		}

		rec := model.EntityRecord{Name: name, Type: typ, Attributes: r.Attributes}
		key := rec.Key()
		if idx, dup := seen[key]; dup {
			mergeAttributes(&out[idx], rec.Attributes)
			continue
		}
		seen[key] = len(out)
		out = append(out, rec.Clone())
	}
	return out
}

func mergeAttributes(dst *model.EntityRecord, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if dst.Attributes == nil {
		dst.Attributes = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, exists := dst.Attributes[k]; !exists {
			dst.Attributes[k] = v
		}
	}
}
