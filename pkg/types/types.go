// Package types defines the data model shared by every stage of the
// NL-to-answer query pipeline: requests, cache entries, SPARQL plans,
// bindings, triplestore responses, and the events streamed to the client.
package types

import "strings"

// MaxQueryLength is the maximum accepted length of NLRequest.Query.
const MaxQueryLength = 1000

// NLRequest is the inbound natural-language question.
type NLRequest struct {
	Query   string `json:"query" validate:"required,max=1000"`
	Context string `json:"context,omitempty"`
}

// EffectiveQuery returns Context ⧺ "\n\n" ⧺ Query when Context is present,
// otherwise Query alone.
func (r NLRequest) EffectiveQuery() string {
	if strings.TrimSpace(r.Context) == "" {
		return r.Query
	}
	return r.Context + "\n\n" + r.Query
}

// NormalizedKey is the lowercased, trimmed effective query used as the
// sole cache key.
type NormalizedKey string

// Normalize derives a NormalizedKey from an effective query.
func Normalize(effectiveQuery string) NormalizedKey {
	return NormalizedKey(strings.ToLower(strings.TrimSpace(effectiveQuery)))
}

// PayloadKind distinguishes the two shapes a SparqlPayload can take.
type PayloadKind int

const (
	// PayloadEmpty marks the no-data path: neither a single query nor a
	// sequential plan could be extracted from the model's response.
	PayloadEmpty PayloadKind = iota
	PayloadSingle
	PayloadSequential
)

// InjectionExpr is a free-form arithmetic expression found inside an
// INJECT(...) or INJECT_FROM_PREVIOUS(...) marker in a PlanStep's SPARQL
// body, along with the literal marker text it was extracted from.
type InjectionExpr struct {
	// Marker is the full matched text, e.g. "INJECT(total/2)".
	Marker string
	// Expr is the unwrapped expression, e.g. "total/2".
	Expr string
}

// PlanStep is one SPARQL query in a Sequential plan plus the injection
// markers present in its body, in the order they occur.
type PlanStep struct {
	SPARQL        string          `json:"sparql"`
	InjectMarkers []InjectionExpr `json:"-"`
}

// SparqlPayload is the normalized output of the Plan Parser: either a
// single SPARQL string or an ordered sequence of PlanSteps.
type SparqlPayload struct {
	Kind   PayloadKind
	Single string
	Steps  []PlanStep
}

// IsEmpty reports whether the payload carries no executable query.
func (p SparqlPayload) IsEmpty() bool {
	return p.Kind == PayloadEmpty
}

// CacheEntry is a stored cache record.
type CacheEntry struct {
	SPARQLRaw       string
	Count           int64
	OriginalQuery   string
	NormalizedQuery NormalizedKey
}

// BindingValue is one of the four primitive kinds a Binding can hold.
type BindingValue struct {
	IsNumeric bool
	Number    float64
	IsInt     bool
	Text      string
	IsBool    bool
	Bool      bool
}

// Bindings maps a BindingName to its current BindingValue, populated from
// the first result row of each executed step.
type Bindings map[string]BindingValue

// Clone returns a shallow copy of the Bindings map.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Cell is a single triplestore result cell, tagged by RDF term kind rather
// than inferred from shape.
type CellKind int

const (
	CellLiteral CellKind = iota
	CellURI
	CellBlank
)

type Cell struct {
	Kind     CellKind
	Value    string
	DataType string
}

// Row is one result row: variable name to cell.
type Row map[string]Cell

// TriplestoreResponse is a tagged sum type: Tabular xor Boolean.
type TriplestoreResponse struct {
	IsBoolean bool
	Boolean   bool

	// Columns preserves first-row column order for tabular responses.
	Columns []string
	Rows    []Row
}

// FirstRow returns the first row of a tabular response and true, or a nil
// row and false if there are no rows or the response is boolean.
func (r TriplestoreResponse) FirstRow() (Row, bool) {
	if r.IsBoolean || len(r.Rows) == 0 {
		return nil, false
	}
	return r.Rows[0], true
}

// RowCount returns a uniform "how many results" count across both shapes:
// 1 for a boolean response, len(Rows) for a tabular one.
func (r TriplestoreResponse) RowCount() int {
	if r.IsBoolean {
		return 1
	}
	return len(r.Rows)
}

// EventKind distinguishes the frames yielded to the HTTP client.
type EventKind int

const (
	EventStatus EventKind = iota
	EventHeartbeat
	EventAnswerChunk
	EventError
	EventDone
)

// PipelineEvent is one frame in the stream yielded back to the caller.
type PipelineEvent struct {
	Kind EventKind
	Text string
}

func Status(text string) PipelineEvent    { return PipelineEvent{Kind: EventStatus, Text: text} }
func Heartbeat(text string) PipelineEvent { return PipelineEvent{Kind: EventHeartbeat, Text: text} }
func AnswerChunk(text string) PipelineEvent {
	return PipelineEvent{Kind: EventAnswerChunk, Text: text}
}
func Error(text string) PipelineEvent { return PipelineEvent{Kind: EventError, Text: text} }
func Done() PipelineEvent             { return PipelineEvent{Kind: EventDone} }

// PopularQuery is one entry in the popularity ranking.
type PopularQuery struct {
	OriginalQuery   string `json:"original_query"`
	NormalizedQuery string `json:"normalized_query"`
	Count           int64  `json:"count"`
}
