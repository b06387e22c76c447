package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type SourceKind string

const (
	KindDocument   SourceKind = "document"
	KindTranscript SourceKind = "transcript"
)

// Document is an uploaded source file. Status moves pending -> processing ->
// ready/failed and takes no other edge; only the ingestion worker mutates
// status and page count after creation.
type Document struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id,omitempty"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Checksum    string         `json:"checksum"`
	Kind        SourceKind     `json:"kind"`
	Status      DocumentStatus `json:"status"`
	PageCount   int            `json:"page_count"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PageSlice is one page (or pseudo-page) of extracted text.
type PageSlice struct {
	PageNumber int
	Heading    string
	Text       string
}

// ChunkDescriptor is the chunker's output: a bounded slice of text with
// provenance and a stable citation key. Order is dense and zero-based per
// document.
type ChunkDescriptor struct {
	Order       int
	PageNumber  int
	Heading     string
	Text        string
	CitationKey string
}

// Chunk is a persisted ChunkDescriptor, immutable after ingestion.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	OrderIndex  int       `json:"order_index"`
	PageNumber  int       `json:"page_number,omitempty"`
	Heading     string    `json:"heading,omitempty"`
	Text        string    `json:"text"`
	CitationKey string    `json:"citation_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// Source is the citable identity of a document or transcript, one-to-one
// with the Document it was derived from.
type Source struct {
	ID               string     `json:"id"`
	DocumentID       string     `json:"document_id"`
	RunID            string     `json:"run_id,omitempty"`
	Kind             SourceKind `json:"kind"`
	Title            string     `json:"title"`
	ReliabilityScore float64    `json:"reliability_score"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TranscriptTurn is a single speaker turn parsed from a raw transcript.
type TranscriptTurn struct {
	Speaker string
	Text    string
	Order   int
}

// ReliabilityFromChunkCount maps chunk density to a heuristic confidence
// value. Sources that yielded no usable chunks bottom out at 0.1.
func ReliabilityFromChunkCount(chunks int) float64 {
	if chunks <= 0 {
		return 0.1
	}
	score := 0.35 + 0.05*float64(chunks)
	if score > 0.95 {
		return 0.95
	}
	return score
}
