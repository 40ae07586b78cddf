package resilience

import (
	"time"

	"github.com/sells-group/entity-extractor/internal/model"
)

// DLQEntry represents a chunk that did not produce records and can be
// resubmitted later.
type DLQEntry struct {
	Index       int             `json:"index"`
	Fingerprint string          `json:"fingerprint"`
	Text        string          `json:"text"`
	ErrorKind   model.ErrorKind `json:"error_kind"`
	Cause       model.ErrorKind `json:"cause,omitempty"`
	Error       string          `json:"error"`
	Attempts    int             `json:"attempts"`
	FailedAt    time.Time       `json:"failed_at"`
}

// DeadLetters collects failed and cancelled chunks from an index-aligned
// result set.
func DeadLetters(chunks []model.TextChunk, results []model.ChunkResult, now time.Time) []DLQEntry {
	var out []DLQEntry
	for i, res := range results {
		if res.Outcome != model.OutcomeFailed && res.Outcome != model.OutcomeCancelled {
			continue
		}
		if i >= len(chunks) {
			break
		}
		e := DLQEntry{
			Index:       res.Index,
			Fingerprint: res.Fingerprint,
			Text:        chunks[i].Text,
			Attempts:    res.Debug.Attempts,
			FailedAt:    now,
		}
		if res.Debug.Error != nil {
			e.ErrorKind = res.Debug.Error.Kind
			e.Cause = res.Debug.Error.Cause
			e.Error = res.Debug.Error.Message
		}
		out = append(out, e)
	}
	return out
}
