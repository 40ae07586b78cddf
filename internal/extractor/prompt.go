package extractor

import (
	"strings"
)

// Prompt is one request to the extraction service.
type Prompt struct {
	System string
	User   string
}

const systemTemplate = `You extract named entities from text.

Return ONLY a JSON array, with no prose and no code fences. Each element must be an object:
{"name": "<entity name>", "type": "<TYPE>", "attributes": {"<key>": "<value>"}}

Allowed types: %TYPES%.
Use only the allowed types. Omit "attributes" when there is nothing to add.
Attribute values must be strings. Return [] when the text contains no entities.`

// BuildPrompt renders the extraction prompt for a chunk. The system text
// depends only on the allowed types, so it is identical across chunks.
func BuildPrompt(text string, allowedTypes []string) Prompt {
	return Prompt{
		System: strings.Replace(systemTemplate, "%TYPES%", strings.Join(allowedTypes, ", "), 1),
		User:   text,
	}
}
