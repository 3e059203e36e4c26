package debate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/modules/review/extractor"
)

// courtroom answers by schema and by the finding title in the prompt.
type courtroom struct {
	mu       sync.Mutex
	defenses map[string]map[string]any
	rulings  map[string]map[string]any
	judged   []string
}

func (c *courtroom) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table := c.defenses
	if schemaName == rulingSchemaName {
		table = c.rulings
	}
	for title, out := range table {
		if !strings.Contains(user, ": "+title+"\n") {
			continue
		}
		if schemaName == rulingSchemaName {
			c.judged = append(c.judged, title)
			if !strings.Contains(user, "Defense:") {
				return nil, errors.New("judge called without defense")
			}
		}
		if out == nil {
			return nil, errors.New("model unavailable")
		}
		return out, nil
	}
	return map[string]any{"has_defense": false, "defense": ""}, nil
}

func defended(text string) map[string]any {
	return map[string]any{"has_defense": true, "defense": text}
}

func ruling(decision Decision, conf int, level string) map[string]any {
	return map[string]any{
		"final_decision":      string(decision),
		"confidence":          float64(conf),
		"ruling_reason":       "reason for " + string(decision),
		"revised_risk_level":  level,
		"revised_description": "",
		"revised_suggestion":  "",
	}
}

func TestReviewAppliesEachRuling(t *testing.T) {
	court := &courtroom{
		defenses: map[string]map[string]any{
			"dismissed": defended("statutory requirement"),
			"doubtful":  defended("partly justified"),
			"softened":  defended("limited scope"),
			"upheld":    defended("weak argument"),
		},
		rulings: map[string]map[string]any{
			"dismissed": ruling(Dismiss, 92, ""),
			"doubtful":  ruling(Dismiss, 60, ""),
			"softened":  ruling(Downgrade, 80, "Low"),
			"upheld":    ruling(Maintain, 75, ""),
		},
	}
	cands := []extractor.Candidate{
		{Level: types.LevelHigh, Title: "dismissed", Description: "d1"},
		{Level: types.LevelHigh, Title: "doubtful", Description: "d2"},
		{Level: types.LevelHigh, Title: "softened", Description: "d3"},
		{Level: types.LevelMedium, Title: "upheld", Description: "d4"},
		{Level: types.LevelMedium, Title: "undefended", Description: "d5"},
	}

	got, dismissed := New(court, DefaultConfig(), nil).Review(context.Background(), "section", cands)

	assert.Equal(t, 1, dismissed)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"doubtful", "softened", "upheld", "undefended"},
		[]string{got[0].Title, got[1].Title, got[2].Title, got[3].Title})

	assert.Equal(t, types.LevelLow, got[0].Level)
	assert.Contains(t, got[0].Description, "Ruling: reason for DISMISS")
	require.NotNil(t, got[0].Confidence)
	assert.Equal(t, 60, *got[0].Confidence)

	assert.Equal(t, types.LevelLow, got[1].Level)
	assert.Equal(t, "limited scope", got[1].Defense)
	assert.Equal(t, "reason for DOWNGRADE", got[1].RulingReason)

	assert.Equal(t, types.LevelMedium, got[2].Level)
	assert.Equal(t, "d4", got[2].Description)

	assert.Empty(t, got[3].Defense)
	assert.Nil(t, got[3].Confidence)
	assert.NotContains(t, court.judged, "undefended")
}

func TestReviewKeepsFindingWhenDebateFails(t *testing.T) {
	court := &courtroom{
		defenses: map[string]map[string]any{"a": nil, "b": defended("x")},
		rulings:  map[string]map[string]any{"b": nil},
	}
	cands := []extractor.Candidate{
		{Level: types.LevelHigh, Title: "a", Description: "da"},
		{Level: types.LevelHigh, Title: "b", Description: "db"},
	}

	got, dismissed := New(court, DefaultConfig(), nil).Review(context.Background(), "s", cands)

	assert.Zero(t, dismissed)
	require.Len(t, got, 2)
	assert.Equal(t, types.LevelHigh, got[0].Level)
	assert.Equal(t, types.LevelHigh, got[1].Level)
	assert.Nil(t, got[1].Confidence)
}

func TestApplyDowngradeStepsDownWhenRevisionIsNotLower(t *testing.T) {
	c := extractor.Candidate{Level: types.LevelMedium, Description: "orig", Suggestion: "fix"}
	r := Ruling{Decision: Downgrade, Confidence: 70, Level: types.LevelHigh, Description: "narrower", Suggestion: "narrow it"}

	got, keep := Apply(c, r, 85)

	assert.True(t, keep)
	assert.Equal(t, types.LevelLow, got.Level)
	assert.Equal(t, "narrower", got.Description)
	assert.Equal(t, "narrow it", got.Suggestion)

	got, keep = Apply(extractor.Candidate{Level: types.LevelHigh}, Ruling{Decision: Dismiss, Confidence: 85}, 85)
	assert.False(t, keep)
	assert.Equal(t, 85, *got.Confidence)
}

func TestNilPanelPassesThrough(t *testing.T) {
	var p *Panel
	cands := []extractor.Candidate{{Title: "x"}}
	got, n := p.Review(context.Background(), "s", cands)
	assert.Equal(t, cands, got)
	assert.Zero(t, n)
}

func TestConfidenceClamps(t *testing.T) {
	assert.Equal(t, 100, confidence(float64(140)))
	assert.Equal(t, 0, confidence(float64(-3)))
	assert.Equal(t, 0, confidence("high"))
}
