// Package chunking turns extracted page text into ordered overlapping
// chunks with stable citation keys. The algorithm is pure and
// deterministic: the same pages and options always produce the same
// chunks.
package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

type Options struct {
	MaxCharsPerChunk int
	OverlapRatio     float64
	MinChunkChars    int
}

func DefaultOptions() Options {
	return Options{
		MaxCharsPerChunk: 1200,
		OverlapRatio:     0.1,
		MinChunkChars:    250,
	}
}

func (o Options) normalize() Options {
	def := DefaultOptions()
	if o.MaxCharsPerChunk <= 0 {
		o.MaxCharsPerChunk = def.MaxCharsPerChunk
	}
	if o.OverlapRatio < 0 || o.OverlapRatio >= 1 {
		o.OverlapRatio = def.OverlapRatio
	}
	if o.MinChunkChars <= 0 {
		o.MinChunkChars = def.MinChunkChars
	}
	return o
}

// overlapChars is floor(MaxCharsPerChunk * OverlapRatio).
func (o Options) overlapChars() int {
	return int(float64(o.MaxCharsPerChunk) * o.OverlapRatio)
}

// SourceRef identifies what the chunks cite.
type SourceRef struct {
	Kind domain.SourceKind
	ID   string
}

// CitationKey derives the globally unique key for a chunk from identity and
// order alone; it is never random.
func CitationKey(ref SourceRef, order int) string {
	prefix := "DOC"
	if ref.Kind == domain.KindTranscript {
		prefix = "TRANS"
	}
	return fmt.Sprintf("%s-%s-%d", prefix, ref.ID, order)
}

// Chunk accumulates page segments into a buffer and flushes it whenever the
// next segment would push it past MaxCharsPerChunk. A flushed buffer is
// emitted only when its trimmed length reaches MinChunkChars; either way the
// buffer restarts, seeded with the overlap tail of the emitted text so
// consecutive chunks share context. A single segment larger than the cap is
// still appended whole: the cap bounds accumulation, it never splits inside
// a segment.
func Chunk(pages []domain.PageSlice, ref SourceRef, opts Options) []domain.ChunkDescriptor {
	opts = opts.normalize()
	overlap := opts.overlapChars()

	var (
		out     []domain.ChunkDescriptor
		buffer  string
		page    int
		heading string
		stamped bool
		order   int
	)

	flush := func() {
		trimmed := strings.TrimSpace(buffer)
		seed := ""
		if utf8.RuneCountInString(trimmed) >= opts.MinChunkChars {
			out = append(out, domain.ChunkDescriptor{
				Order:       order,
				PageNumber:  page,
				Heading:     heading,
				Text:        trimmed,
				CitationKey: CitationKey(ref, order),
			})
			order++
			seed = tail(trimmed, overlap)
		}
		// Under-sized buffers are discarded outright; their tail must not
		// leak into the next chunk.
		buffer = seed
		stamped = false
	}

	for _, p := range pages {
		for _, segment := range splitSegments(p.Text) {
			if buffer != "" && joinedLen(buffer, segment) > opts.MaxCharsPerChunk {
				flush()
			}
			if !stamped {
				page = p.PageNumber
				heading = p.Heading
				stamped = true
			}
			if buffer == "" {
				buffer = segment
			} else {
				buffer = buffer + "\n\n" + segment
			}
		}
	}
	if strings.TrimSpace(buffer) != "" {
		flush()
	}
	return out
}

// splitSegments splits page text on blank-line boundaries into non-empty
// segments, preserving order.
func splitSegments(text string) []string {
	var segments []string
	var current []string
	emit := func() {
		if len(current) == 0 {
			return
		}
		segment := strings.TrimSpace(strings.Join(current, "\n"))
		if segment != "" {
			segments = append(segments, segment)
		}
		current = current[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			emit()
			continue
		}
		current = append(current, line)
	}
	emit()
	return segments
}

func joinedLen(buffer, segment string) int {
	return utf8.RuneCountInString(buffer) + 2 + utf8.RuneCountInString(segment)
}

func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
