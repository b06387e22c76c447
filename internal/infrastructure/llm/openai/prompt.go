package openai

import (
	"fmt"
	"strings"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

const clarifySystemPrompt = `You are a research planner.
Given a research title and brief, ask the clarifying questions whose answers
would most change the direction or scope of the research. Ask at most five
questions, each on its own line. Do not answer them yourself.`

func buildClarifyInput(req domain.ClarifyRequest) string {
	return fmt.Sprintf("Title: %s\n\nBrief:\n%s", req.Title, req.Brief)
}

const rewriteSystemPrompt = `You are a research planner.
Merge the original brief and the clarification exchange into one
self-contained research prompt. Preserve every constraint from the brief.
Return strict JSON with the single key rewritten_prompt. No markdown.`

func buildRewriteInput(req domain.RewriteRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\nBrief:\n%s\n", req.Title, req.Brief)
	if len(req.Clarifications) > 0 {
		b.WriteString("\nClarifications:\n")
		for i, clarification := range req.Clarifications {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, clarification)
		}
	}
	return b.String()
}

const researchSystemPrompt = `You are a meticulous research analyst producing
a citable report.

Citation rules:
- Every factual claim must carry a citation.
- Cite uploaded sources by their citation key (DOC-... or TRANS-...) exactly
  as given in the prompt.
- Cite web sources with the URL of the page the claim came from.
- Never invent a citation key or URL.

Use web search to gather evidence and code execution for any calculation.
Structure the report with headings and finish with a sources list.`

func buildResearchInput(req domain.ResearchRequest) string {
	return fmt.Sprintf("Research title: %s\n\n%s", req.Title, req.Prompt)
}
