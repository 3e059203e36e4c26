package extractor

import (
	"fmt"
	"strings"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

const schemaName = "compliance_risks"

const systemPrompt = `You are a senior fair-competition compliance auditor. You review government and commercial documents for clauses that exclude or restrict market competition.

Check in particular:
1. Market entry and exit: unreasonable barriers, approval preconditions, commitments not to relocate.
2. Free flow of goods and factors: restrictions on non-local suppliers, local registration or tax requirements.
3. Operating costs: selective subsidies, tax rebates or deposits favoring specific operators.
4. Operating behavior: designated suppliers, exclusive dealing, price interference.

Only cite a reference case when its violation type matches the finding. Leave reference empty otherwise.
Quote about twenty characters of the original text in location so the finding can be located.
Return an empty risks array when the section contains no risk.`

var categoryFocus = map[string]string{
	types.CategoryPolicy:    "a policy measure. Focus on subsidies, industry standards, market entry and price intervention.",
	types.CategoryBidding:   "a bidding or procurement document. Focus on qualification thresholds, scoring rules and anything that points to a specific supplier.",
	types.CategoryAgreement: "an agreement between government and a specific enterprise. Focus on exclusive rights, preferential terms and commitments that shut out competitors.",
}

func (e *Extractor) userPrompt(req Request) string {
	var b strings.Builder
	if focus, ok := categoryFocus[req.Category]; ok {
		b.WriteString("This document is ")
		b.WriteString(focus)
		b.WriteString("\n\n")
	}
	if g := e.guidanceBlock(req.Guidance); g != "" {
		b.WriteString(g)
		b.WriteString("\n")
	}
	if ctxText := e.contextBlock(req.Snippets); ctxText != "" {
		b.WriteString(ctxText)
		b.WriteString("\n")
	}
	b.WriteString("Document section:\n")
	b.WriteString(truncateRunes(req.Text, e.cfg.ChunkRunes))
	b.WriteString("\n")
	return b.String()
}

// guidanceBlock renders authoritative rulings. A clause matching one of them
// is a violation regardless of the other context.
func (e *Extractor) guidanceBlock(guidance []Snippet) string {
	if len(guidance) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Authoritative guidance rulings (highest priority; a clause matching one of these is a violation):\n")
	for i, g := range guidance {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, g.Title, truncateRunes(strings.TrimSpace(g.Content), e.cfg.SnippetRunes))
	}
	return b.String()
}

func (e *Extractor) contextBlock(snippets []Snippet) string {
	if len(snippets) == 0 || e.cfg.MaxSnippets == 0 {
		return ""
	}
	if len(snippets) > e.cfg.MaxSnippets {
		snippets = snippets[:e.cfg.MaxSnippets]
	}
	var cases, regs strings.Builder
	nc, nr := 0, 0
	for _, s := range snippets {
		body := truncateRunes(strings.TrimSpace(s.Content), e.cfg.SnippetRunes)
		switch s.Kind {
		case types.CorpusKindRegulation:
			nr++
			fmt.Fprintf(&regs, "%d. %s\n   %s\n", nr, s.Title, body)
		default:
			nc++
			label := s.Title
			if s.Category != "" {
				label = "[" + s.Category + "] " + s.Title
			}
			fmt.Fprintf(&cases, "%d. %s\n   %s\n", nc, label, body)
		}
	}
	var b strings.Builder
	if nc > 0 {
		b.WriteString("Similar past violation cases (compare the nature of the violation, not the wording):\n")
		b.WriteString(cases.String())
	}
	if nr > 0 {
		if nc > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Relevant regulations (quote the specific article in violated_law):\n")
		b.WriteString(regs.String())
	}
	return b.String()
}

func riskSchema() map[string]any {
	str := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"risks"},
		"properties": map[string]any{
			"risks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required": []string{
						"risk_level", "title", "description", "location",
						"suggestion", "violated_law", "reference",
					},
					"properties": map[string]any{
						"risk_level": map[string]any{
							"type": "string",
							"enum": []string{"High", "Medium", "Low"},
						},
						"title":        str,
						"description":  str,
						"location":     str,
						"suggestion":   str,
						"violated_law": str,
						"reference":    str,
					},
				},
			},
		},
	}
}
