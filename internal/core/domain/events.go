package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ProgressPhase string

const (
	ProgressIngest   ProgressPhase = "ingest"
	ProgressClarify  ProgressPhase = "clarify"
	ProgressRewrite  ProgressPhase = "rewrite"
	ProgressResearch ProgressPhase = "research"
	ProgressVerify   ProgressPhase = "verify"
	ProgressReport   ProgressPhase = "report"
)

// ProgressEvent is the UI-facing trail. Append-only; ordering by creation
// time is the only guarantee.
type ProgressEvent struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id,omitempty"`
	DocumentID string        `json:"document_id,omitempty"`
	Phase      ProgressPhase `json:"phase"`
	Message    string        `json:"message"`
	Progress   int           `json:"progress"`
	Payload    EventPayload  `json:"payload,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// MethodologyEntry is the durable audit trail, one entry per orchestration
// decision, independent of the UI-facing ProgressEvent text.
type MethodologyEntry struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Action    string       `json:"action"`
	Details   EventPayload `json:"details,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// EventPayload is the tagged union behind the payload/details columns, so
// consumers switch on the kind instead of probing loose JSON fields.
type EventPayload interface {
	PayloadKind() string
}

type IngestPayload struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
}

func (IngestPayload) PayloadKind() string { return "ingest" }

type IngestFailurePayload struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

func (IngestFailurePayload) PayloadKind() string { return "ingest_failure" }

type ClarifyPayload struct {
	TurnID        string `json:"turn_id"`
	PromptChars   int    `json:"prompt_chars"`
	ResponseChars int    `json:"response_chars"`
}

func (ClarifyPayload) PayloadKind() string { return "clarify" }

type RewritePayload struct {
	ClarificationCount int `json:"clarification_count"`
	RewrittenChars     int `json:"rewritten_chars"`
}

func (RewritePayload) PayloadKind() string { return "rewrite" }

type ResearchLaunchPayload struct {
	JobID string   `json:"job_id"`
	Tools []string `json:"tools"`
}

func (ResearchLaunchPayload) PayloadKind() string { return "research_launch" }

type ResearchCompletePayload struct {
	JobID         string `json:"job_id"`
	SectionID     string `json:"section_id,omitempty"`
	OutputChars   int    `json:"output_chars"`
	CitationCount int    `json:"citation_count"`
}

func (ResearchCompletePayload) PayloadKind() string { return "research_complete" }

type ResearchFailurePayload struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

func (ResearchFailurePayload) PayloadKind() string { return "research_failure" }

type VerifyPayload struct {
	SourceID         string  `json:"source_id"`
	ChunkCount       int     `json:"chunk_count"`
	ReliabilityScore float64 `json:"reliability_score"`
}

func (VerifyPayload) PayloadKind() string { return "verify" }

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serializes a payload with its kind tag. Nil encodes to nil.
func EncodePayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload data: %w", err)
	}
	raw, err := json.Marshal(payloadEnvelope{Kind: p.PayloadKind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal payload envelope: %w", err)
	}
	return raw, nil
}

// DecodePayload restores the concrete variant from its kind tag.
func DecodePayload(raw []byte) (EventPayload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal payload envelope: %w", err)
	}

	var p EventPayload
	switch env.Kind {
	case "ingest":
		p = &IngestPayload{}
	case "ingest_failure":
		p = &IngestFailurePayload{}
	case "clarify":
		p = &ClarifyPayload{}
	case "rewrite":
		p = &RewritePayload{}
	case "research_launch":
		p = &ResearchLaunchPayload{}
	case "research_complete":
		p = &ResearchCompletePayload{}
	case "research_failure":
		p = &ResearchFailurePayload{}
	case "verify":
		p = &VerifyPayload{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("unmarshal %q payload: %w", env.Kind, err)
	}
	return p, nil
}
