package screening

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

const radarSchemaName = "risk_radar"

const radarSystemPrompt = `You are a procurement integrity analyst. Given the high-severity findings of a bidding document review, decide whether they together point to a tailored tender: requirements written around one supplier, or a combination of thresholds that only a predetermined bidder can meet.

Raise an alert only when the findings reinforce each other. Isolated issues are not an alert.`

// maxRadarFindings bounds how many findings are offered to the model.
const maxRadarFindings = 10

type Radar struct {
	reasoner Reasoner
}

func NewRadar(reasoner Reasoner) *Radar {
	return &Radar{reasoner: reasoner}
}

// RadarApplies reports whether a finished review qualifies for a scan: a
// bidding document with at least one high-severity finding.
func RadarApplies(category string, risks []*types.ReviewRisk) bool {
	if category != types.CategoryBidding {
		return false
	}
	for _, r := range risks {
		if r != nil && r.Level == types.LevelHigh {
			return true
		}
	}
	return false
}

// Scan returns nil without error when the model sees no pattern.
func (r *Radar) Scan(ctx context.Context, fileName string, risks []*types.ReviewRisk) (*types.RadarAlert, error) {
	if r == nil || r.reasoner == nil {
		return nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n\nHigh-severity findings:\n", fileName)
	n := 0
	for _, risk := range risks {
		if risk == nil || risk.Level != types.LevelHigh {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n   %s\n", n, risk.Title, risk.Description)
		if n == maxRadarFindings {
			break
		}
	}
	if n == 0 {
		return nil, nil
	}
	out, err := r.reasoner.GenerateJSON(ctx, radarSystemPrompt, b.String(), radarSchemaName, radarSchema())
	if err != nil {
		return nil, err
	}
	if alert, _ := out["alert"].(bool); !alert {
		return nil, nil
	}
	title := str(out, "title")
	if title == "" {
		return nil, nil
	}
	level := types.LevelHigh
	if strings.EqualFold(str(out, "level"), "medium") {
		level = types.LevelMedium
	}
	return &types.RadarAlert{Level: level, Title: title, Description: str(out, "description")}, nil
}

func radarSchema() map[string]any {
	s := map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"alert", "level", "title", "description"},
		"properties": map[string]any{
			"alert": map[string]any{"type": "boolean"},
			"level": map[string]any{
				"type": "string",
				"enum": []string{"High", "Medium"},
			},
			"title":       s,
			"description": s,
		},
	}
}
