package model

// Parsing strategy names, in the order they are attempted.
const (
	StrategyStrict  = "strict"
	StrategyLenient = "lenient"
	StrategyRepair  = "bracket-repair"
	StrategySalvage = "field-salvage"
)

// StrategyError records why one parsing strategy was rejected.
type StrategyError struct {
	Strategy string `json:"strategy" yaml:"strategy"`
	Message  string `json:"message" yaml:"message"`
}

// ParsingInfo describes how a raw response was turned into records.
type ParsingInfo struct {
	Attempts      int             `json:"attempts" yaml:"attempts"`
	Errors        []StrategyError `json:"errors,omitempty" yaml:"errors,omitempty"`
	StrategyUsed  string          `json:"strategy_used,omitempty" yaml:"strategy_used,omitempty"` // empty when every strategy failed
	OriginalCount int             `json:"original_count" yaml:"original_count"`
	ValidCount    int             `json:"valid_count" yaml:"valid_count"`
}

// Clone returns a deep copy of the parsing info.
func (p ParsingInfo) Clone() ParsingInfo {
	out := p
	if p.Errors != nil {
		out.Errors = append([]StrategyError(nil), p.Errors...)
	}
	return out
}

// ErrorKind tags the error variant carried by DebugInfo.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindService   ErrorKind = "service"
	ErrorKindExhausted ErrorKind = "exhausted"
	ErrorKindParsing   ErrorKind = "parsing"
	ErrorKindCancelled ErrorKind = "cancelled"
)

// ErrorInfo is the tagged error attached to a chunk's diagnostics.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	// Cause is the kind of the last underlying error for exhausted retries.
	Cause ErrorKind `json:"cause,omitempty" yaml:"cause,omitempty"`
}

// DebugInfo holds per-chunk diagnostics. Attempts is zero exactly when the
// result was served from cache.
type DebugInfo struct {
	Attempts    int         `json:"attempts" yaml:"attempts"`
	Success     bool        `json:"success" yaml:"success"`
	FromCache   bool        `json:"from_cache" yaml:"from_cache"`
	ParsingInfo ParsingInfo `json:"parsing_info" yaml:"parsing_info"`
	Error       *ErrorInfo  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Clone returns a deep copy of the debug info.
func (d DebugInfo) Clone() DebugInfo {
	out := d
	out.ParsingInfo = d.ParsingInfo.Clone()
	if d.Error != nil {
		e := *d.Error
		out.Error = &e
	}
	return out
}

// Outcome is the terminal state of one chunk in a batch run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCached    Outcome = "cached"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ChunkResult pairs a chunk's records with its diagnostics. Index is the
// chunk's position in the batch input.
type ChunkResult struct {
	Index       int              `json:"index" yaml:"index"`
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	Records     ExtractionResult `json:"records" yaml:"records"`
	Debug       DebugInfo        `json:"debug" yaml:"debug"`
	Outcome     Outcome          `json:"outcome" yaml:"outcome"`
}
