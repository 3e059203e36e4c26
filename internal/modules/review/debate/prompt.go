package debate

import (
	"fmt"
	"strings"

	"github.com/yungbote/riskreview-backend/internal/modules/review/extractor"
)

const (
	defenseSchemaName = "risk_defense"
	rulingSchemaName  = "risk_ruling"
)

const defenderSystemPrompt = `You represent the drafting authority of the document under review. An auditor has flagged a clause as restricting competition.

Argue the clause is lawful only when there is a concrete basis: an exemption in competition law, a statutory requirement the clause implements, or a reading of the text the auditor missed. Set has_defense to false when no honest defense exists.`

const judgeSystemPrompt = `You are the presiding reviewer. Weigh the auditor's finding against the defense and rule:

MAINTAIN when the finding stands as written.
DOWNGRADE when the clause is a problem but less severe than claimed.
DISMISS when the defense shows the clause is lawful.

Give confidence as an integer from 0 to 100. Leave the revised fields empty to keep the auditor's text.`

func findingPrompt(section string, c extractor.Candidate, defense string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document section:\n%s\n\n", section)
	fmt.Fprintf(&b, "Finding (%s): %s\n%s\n", c.Level, c.Title, c.Description)
	if c.Location != "" {
		fmt.Fprintf(&b, "Quoted text: %s\n", c.Location)
	}
	if c.ViolatedLaw != "" {
		fmt.Fprintf(&b, "Cited provision: %s\n", c.ViolatedLaw)
	}
	if defense != "" {
		fmt.Fprintf(&b, "\nDefense:\n%s\n", defense)
	}
	return b.String()
}

func defenseSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"has_defense", "defense"},
		"properties": map[string]any{
			"has_defense": map[string]any{"type": "boolean"},
			"defense":     map[string]any{"type": "string"},
		},
	}
}

func rulingSchema() map[string]any {
	s := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"final_decision", "confidence", "ruling_reason",
			"revised_risk_level", "revised_description", "revised_suggestion",
		},
		"properties": map[string]any{
			"final_decision": map[string]any{
				"type": "string",
				"enum": []string{string(Maintain), string(Downgrade), string(Dismiss)},
			},
			"confidence":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"ruling_reason": s,
			"revised_risk_level": map[string]any{
				"type": "string",
				"enum": []string{"High", "Medium", "Low", ""},
			},
			"revised_description": s,
			"revised_suggestion":  s,
		},
	}
}
