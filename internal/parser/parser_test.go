package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/entity-extractor/internal/model"
)

func names(records model.ExtractionResult) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Name
	}
	return out
}

func TestParse_StrictScenario(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"Alice","type":"PERSON"},{"name":"Bob","type":"PERSON"},{"name":"Acme","type":"ORG"}]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob", "Acme"}, names(records))
	assert.Equal(t, model.StrategyStrict, info.StrategyUsed)
	assert.Equal(t, 1, info.Attempts)
	assert.Equal(t, 3, info.OriginalCount)
	assert.Equal(t, 3, info.ValidCount)
	assert.Empty(t, info.Errors)
}

func TestParse_LenientStripsProse(t *testing.T) {
	p := New(nil)
	raw := `Here are the entities: [{"name":"Alice","type":"PERSON"}]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
	assert.Equal(t, 2, info.Attempts)
	require.Len(t, info.Errors, 1)
	assert.Equal(t, model.StrategyStrict, info.Errors[0].Strategy)
}

func TestParse_LenientCodeFence(t *testing.T) {
	p := New(nil)
	raw := "```json\n[{\"name\":\"Alice\",\"type\":\"PERSON\"}]\n```"

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
}

func TestParse_LenientWrappedArray(t *testing.T) {
	p := New(nil)
	raw := `{"entities": [{"name":"Acme","type":"ORG"}]}`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
}

func TestParse_LenientLoneObject(t *testing.T) {
	p := New(nil)
	raw := `Result: {"name":"Alice","type":"PERSON","aliases":["Al"]}`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
}

func TestParse_RepairTrailingSeparatorScenario(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"Alice","type":"PERSON"},{"name":"Bob","type":"PERSON",]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob"}, names(records))
	assert.Equal(t, model.StrategyRepair, info.StrategyUsed)
	assert.Equal(t, 2, info.ValidCount)
	assert.Less(t, info.ValidCount, info.OriginalCount)
	require.Len(t, info.Errors, 2)
	assert.Equal(t, model.StrategyStrict, info.Errors[0].Strategy)
	assert.Equal(t, model.StrategyLenient, info.Errors[1].Strategy)
}

func TestParse_RepairUnescapedQuotes(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"The "Big" Apple","type":"LOCATION"}]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, `The "Big" Apple`, records[0].Name)
	assert.Equal(t, model.StrategyRepair, info.StrategyUsed)
}

func TestParse_RepairTruncatedOutput(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"Alice","type":"PERSON"},{"name":"Bo`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(records))
	assert.Equal(t, model.StrategyRepair, info.StrategyUsed)
	assert.Equal(t, 2, info.OriginalCount)
	assert.Equal(t, 1, info.ValidCount)
}

func TestParse_RepairDropsNonConformingElement(t *testing.T) {
	p := New(nil)
	raw := `[{"name":7,"type":"PERSON"},{"name":"B","type":"PERSON"}]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, names(records))
	assert.Equal(t, model.StrategyRepair, info.StrategyUsed)
	assert.Equal(t, 2, info.OriginalCount)
	assert.Equal(t, 1, info.ValidCount)
}

func TestParse_RepairDropsNonScalarAttributes(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"Alice","type":"PERSON","attributes":{"roles":["a","b"],"team":"core"}}]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alice", records[0].Name)
	assert.Equal(t, map[string]string{"team": "core"}, records[0].Attributes)
	assert.Equal(t, model.StrategyRepair, info.StrategyUsed)
	assert.Equal(t, 1, info.ValidCount)
}

func TestParse_LenientIgnoresBracketsAfterArray(t *testing.T) {
	p := New(nil)
	raw := `[{"name":"Alice","type":"PERSON"}] (see [1])`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
}

func TestParse_LenientSkipsBracketedAsideBeforeArray(t *testing.T) {
	p := New(nil)
	raw := `As noted [1], the entities are: [{"name":"Acme","type":"ORG"}] and [more]`

	records, info, err := p.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, names(records))
	assert.Equal(t, model.StrategyLenient, info.StrategyUsed)
}

func TestParse_SalvageKeyValueRuns(t *testing.T) {
	p := New(nil)
	raw := "Entities found:\n- name: Alice\n  type: PERSON\n  role: engineer\n- name: Acme\n  type: ORG\n- name: Dangling\n"

	records, info, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Acme"}, names(records))
	assert.Equal(t, "engineer", records[0].Attributes["role"])
	assert.Equal(t, model.StrategySalvage, info.StrategyUsed)
	assert.Equal(t, 3, info.OriginalCount)
	assert.Equal(t, 2, info.ValidCount)
	assert.Len(t, info.Errors, 3)
}

func TestParse_AllStrategiesFail(t *testing.T) {
	p := New(nil)

	records, info, err := p.Parse("I could not find any entities in this text.")
	require.Error(t, err)

	var pe *ParsingError
	require.True(t, errors.As(err, &pe))
	assert.Nil(t, records)
	assert.Equal(t, 4, info.Attempts)
	assert.Empty(t, info.StrategyUsed)
	require.Len(t, pe.Errors, 4)
	assert.Equal(t, []string{"strict", "lenient", "bracket-repair", "field-salvage"}, []string{
		pe.Errors[0].Strategy, pe.Errors[1].Strategy, pe.Errors[2].Strategy, pe.Errors[3].Strategy,
	})
	assert.Contains(t, err.Error(), "all strategies failed")
}

func TestParse_EmptyResponseFails(t *testing.T) {
	_, _, err := New(nil).Parse("   ")
	var pe *ParsingError
	assert.True(t, errors.As(err, &pe))
}

func TestParse_EmptyArrayIsSuccess(t *testing.T) {
	records, info, err := New(nil).Parse("[]")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, model.StrategyStrict, info.StrategyUsed)
	assert.Equal(t, 0, info.OriginalCount)
}

func TestParse_EmptyNameDropped(t *testing.T) {
	raw := `[{"name":"","type":"PERSON"},{"name":"Bob","type":"PERSON"}]`

	records, info, err := New(nil).Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(records))
	assert.Equal(t, 2, info.OriginalCount)
	assert.Equal(t, 1, info.ValidCount)
}

func TestParse_DisallowedTypeDroppedNotFailed(t *testing.T) {
	records, info, err := New([]string{"PERSON"}).Parse(`[{"name":"Paris","type":"CITY"}]`)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 1, info.OriginalCount)
	assert.Equal(t, 0, info.ValidCount)
	assert.Equal(t, model.StrategyStrict, info.StrategyUsed)
}

func TestParse_TypeNormalized(t *testing.T) {
	records, _, err := New([]string{"person"}).Parse(`[{"name":" Alice ","type":"Person"}]`)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alice", records[0].Name)
	assert.Equal(t, "PERSON", records[0].Type)
}

func TestParse_DuplicatesCollapsed(t *testing.T) {
	raw := `[{"name":"Alice","type":"PERSON","attributes":{"role":"cto"}},` +
		`{"name":"alice","type":"person","attributes":{"role":"ceo","team":"core"}}]`

	records, info, err := New(nil).Parse(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"role": "cto", "team": "core"}, records[0].Attributes)
	assert.Equal(t, 2, info.OriginalCount)
	assert.Equal(t, 1, info.ValidCount)
}

func TestParse_ExtraScalarsBecomeAttributes(t *testing.T) {
	raw := `[{"name":"Acme","type":"ORG","founded":1999,"public":true,"tags":["a"],"attributes":{"hq":"Austin"}}]`

	records, _, err := New(nil).Parse(raw)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"founded": "1999", "public": "true", "hq": "Austin"}, records[0].Attributes)
}

func TestParse_Idempotent(t *testing.T) {
	p := New(nil)
	inputs := []string{
		`[{"name":"Alice","type":"PERSON","attributes":{"a":"1","b":"2"}}]`,
		`Here are the entities: [{"name":"Alice","type":"PERSON"}]`,
		`[{"name":"Alice","type":"PERSON"},{"name":"Bob","type":"PERSON",]`,
		"name: Alice\ntype: PERSON\nteam: core",
		"nothing useful",
	}
	for _, raw := range inputs {
		r1, i1, e1 := p.Parse(raw)
		r2, i2, e2 := p.Parse(raw)
		assert.Equal(t, r1, r2, raw)
		assert.Equal(t, i1, i2, raw)
		assert.Equal(t, e1, e2, raw)
	}
}

func TestNew_DefaultAllowSet(t *testing.T) {
	assert.Equal(t, []string{"CONCEPT", "DATE", "EVENT", "LOCATION", "ORG", "PERSON", "PRODUCT"}, New(nil).AllowedTypes())
	assert.Equal(t, []string{"ORG", "PERSON"}, New([]string{" person", "org", ""}).AllowedTypes())
}
