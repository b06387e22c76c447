// Package transcript splits raw interview text into speaker turns. Turn
// boundaries are detected with a "Speaker Name:" line-prefix heuristic;
// leading lines with no recognized speaker are attributed to "Narrator".
package transcript

import (
	"regexp"
	"strings"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

const defaultSpeaker = "Narrator"

// speakerPrefix matches "Jane Doe:" or "INTERVIEWER:" at the start of a
// line, capped so prose containing a colon mid-sentence does not trip it.
var speakerPrefix = regexp.MustCompile(`^([A-Za-z][A-Za-z .'-]{0,40}):\s*(.*)$`)

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(text string) []domain.TranscriptTurn {
	var turns []domain.TranscriptTurn
	speaker := defaultSpeaker
	var lines []string

	emit := func() {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		if content == "" {
			lines = lines[:0]
			return
		}
		turns = append(turns, domain.TranscriptTurn{
			Speaker: speaker,
			Text:    content,
			Order:   len(turns),
		})
		lines = lines[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if m := speakerPrefix.FindStringSubmatch(line); m != nil {
			emit()
			speaker = strings.TrimSpace(m[1])
			if rest := strings.TrimSpace(m[2]); rest != "" {
				lines = append(lines, rest)
			}
			continue
		}
		lines = append(lines, line)
	}
	emit()
	return turns
}
