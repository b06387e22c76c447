package domain

import "time"

type RunStatus string

const (
	RunClarifying RunStatus = "clarifying"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Terminal reports whether no further phase operation may touch the run.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

type RunPhase string

const (
	PhaseClarify  RunPhase = "clarify"
	PhaseRewrite  RunPhase = "rewrite"
	PhaseResearch RunPhase = "research"
	PhaseVerify   RunPhase = "verify"
	PhaseReport   RunPhase = "report"
)

var phaseRank = map[RunPhase]int{
	PhaseClarify:  0,
	PhaseRewrite:  1,
	PhaseResearch: 2,
	PhaseVerify:   3,
	PhaseReport:   4,
}

// Before reports whether p precedes other in the fixed phase order.
func (p RunPhase) Before(other RunPhase) bool {
	return phaseRank[p] < phaseRank[other]
}

// ResearchRun is the orchestrated research job. Status and phase only
// advance forward through the fixed order; terminal states are
// completed/failed.
type ResearchRun struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Brief           string    `json:"brief"`
	RewrittenPrompt string    `json:"rewritten_prompt,omitempty"`
	Status          RunStatus `json:"status"`
	Phase           RunPhase  `json:"phase"`
	BackgroundJobID string    `json:"background_job_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
)

// ConversationTurn is one entry of the append-only clarification transcript.
type ConversationTurn struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Role      TurnRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Citation anchors a span of generated output to a web source.
type Citation struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

type SectionType string

const SectionReport SectionType = "report"

// ReportSection is a materialized block of the final report. At most one
// section of each type exists per run.
type ReportSection struct {
	ID          string      `json:"id"`
	RunID       string      `json:"run_id"`
	SectionType SectionType `json:"section_type"`
	Content     string      `json:"content"`
	Citations   []Citation  `json:"citations,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// BackgroundResult is the reasoning service's view of an asynchronous
// research job.
type BackgroundResult struct {
	State     JobState
	Output    string
	Citations []Citation
	Error     string
}

// ClarifyRequest carries the inputs of the clarification phase.
type ClarifyRequest struct {
	Title string
	Brief string
}

// RewriteRequest carries the inputs of the prompt-rewrite phase.
type RewriteRequest struct {
	Title          string
	Brief          string
	Clarifications []string
}

// ResearchRequest launches the long-running background research job.
type ResearchRequest struct {
	Title  string
	Prompt string
}
