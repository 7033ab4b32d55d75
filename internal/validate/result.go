package validate

import "canonkeeper/internal/store"

type Layer string

const (
	LayerSchema   Layer = "schema"
	LayerRule     Layer = "rule"
	LayerSemantic Layer = "semantic"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

const (
	CodeUnknownEntityType     = "unknown_entity_type"
	CodeMissingRequired       = "missing_required_attribute"
	CodeUnknownAttribute      = "unknown_attribute"
	CodeKindMismatch          = "attribute_kind_mismatch"
	CodeEnumInvalid           = "enum_value_invalid"
	CodeUnknownRelType        = "unknown_relationship_type"
	CodeEndpointsNotAllowed   = "relationship_endpoints_not_allowed"
	CodeEndpointMissing       = "relationship_endpoint_missing"
	CodeEndpointTombstoned    = "relationship_endpoint_tombstoned"
	CodeDuplicateValue        = "duplicate_attribute_value"
	CodeTemporalOrder         = "temporal_order_violation"
	CodeExclusiveHeld         = "exclusive_relationship_held"
	CodeSemanticConcern       = "semantic_concern"
	CodeOracleUnavailable     = "oracle_unavailable"
	CodeOracleSkipped         = "oracle_skipped"
)

// Message is one structured finding from a validation layer.
type Message struct {
	Code      string   `json:"code"`
	Severity  Severity `json:"severity"`
	Text      string   `json:"text"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// Result is the outcome of a single validation layer.
type Result struct {
	Layer    Layer     `json:"layer"`
	Status   Status    `json:"status"`
	Messages []Message `json:"messages,omitempty"`
}

// Report is the composite outcome of a full pipeline run: fail if any
// layer failed, warn if none failed but at least one warned, else pass.
type Report struct {
	Status  Status   `json:"status"`
	Results []Result `json:"results"`
}

// Candidate is a proposed canon write: an entity, accompanying
// relationships, or both. Entity is nil for relationship-only writes.
type Candidate struct {
	Entity        *store.Entity
	Relationships []store.Relationship
}

func (r *Report) append(result Result) {
	r.Results = append(r.Results, result)
	switch {
	case result.Status == StatusFail:
		r.Status = StatusFail
	case result.Status == StatusWarn && r.Status != StatusFail:
		r.Status = StatusWarn
	}
}

func (r *Report) Failed() bool { return r.Status == StatusFail }

// Messages flattens all layer findings in layer order.
func (r *Report) Messages() []Message {
	var messages []Message
	for _, result := range r.Results {
		messages = append(messages, result.Messages...)
	}
	return messages
}

func resultFromMessages(layer Layer, messages []Message) Result {
	status := StatusPass
	for _, msg := range messages {
		switch msg.Severity {
		case SeverityError:
			status = StatusFail
		case SeverityWarning:
			if status != StatusFail {
				status = StatusWarn
			}
		}
	}
	return Result{Layer: layer, Status: status, Messages: messages}
}
