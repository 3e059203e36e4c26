package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/openai"
)

type fakeReasoner struct {
	out      map[string]any
	err      error
	lastUser string
	schema   map[string]any
}

func (f *fakeReasoner) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.lastUser = user
	f.schema = schema
	return f.out, f.err
}

func TestExtractParsesRisks(t *testing.T) {
	r := &fakeReasoner{out: map[string]any{
		"risks": []any{
			map[string]any{
				"risk_level":   "High",
				"title":        "Local registration required",
				"description":  "Bidders must be registered in the city.",
				"location":     "must be registered locally",
				"suggestion":   "Remove the registration requirement.",
				"violated_law": "Article 10",
				"reference":    "",
			},
			map[string]any{"risk_level": "critical-ish", "description": "Selective subsidy."},
			map[string]any{"risk_level": "Low", "description": "   "},
		},
	}}
	res := New(r, DefaultConfig()).Extract(context.Background(), Request{Text: "section text"})

	require.True(t, res.OK())
	require.Len(t, res.Risks, 2)
	assert.Equal(t, types.LevelHigh, res.Risks[0].Level)
	assert.Equal(t, "Local registration required", res.Risks[0].Title)
	assert.Equal(t, "Article 10", res.Risks[0].ViolatedLaw)
	assert.Equal(t, types.LevelMedium, res.Risks[1].Level)
	assert.Equal(t, "Selective subsidy.", res.Risks[1].Title)
}

func TestExtractMalformedShapes(t *testing.T) {
	cases := map[string]map[string]any{
		"nil object":      nil,
		"missing risks":   {"findings": []any{}},
		"risks not array": {"risks": "none"},
		"item not object": {"risks": []any{"oops"}},
	}
	for name, out := range cases {
		t.Run(name, func(t *testing.T) {
			res := New(&fakeReasoner{out: out}, DefaultConfig()).Extract(context.Background(), Request{Text: "x"})
			assert.Equal(t, OutcomeMalformed, res.Outcome)
			assert.Empty(t, res.Risks)
			assert.Error(t, res.Err)
		})
	}
}

func TestExtractClassifiesReasonerErrors(t *testing.T) {
	res := New(&fakeReasoner{err: fmt.Errorf("decode: %w", openai.ErrMalformedOutput)}, DefaultConfig()).
		Extract(context.Background(), Request{Text: "x"})
	assert.Equal(t, OutcomeMalformed, res.Outcome)

	res = New(&fakeReasoner{err: errors.New("503")}, DefaultConfig()).Extract(context.Background(), Request{Text: "x"})
	assert.Equal(t, OutcomeCallFailed, res.Outcome)

	res = New(nil, DefaultConfig()).Extract(context.Background(), Request{Text: "x"})
	assert.Equal(t, OutcomeCallFailed, res.Outcome)
}

func TestExtractEmptyRisksIsOK(t *testing.T) {
	res := New(&fakeReasoner{out: map[string]any{"risks": []any{}}}, DefaultConfig()).
		Extract(context.Background(), Request{Text: "x"})
	assert.True(t, res.OK())
	assert.Empty(t, res.Risks)
}

func TestExtractCapsRisksPerChunk(t *testing.T) {
	items := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, map[string]any{"description": fmt.Sprintf("risk %d", i)})
	}
	cfg := DefaultConfig()
	cfg.MaxRisksPerChunk = 2
	res := New(&fakeReasoner{out: map[string]any{"risks": items}}, cfg).Extract(context.Background(), Request{Text: "x"})
	require.True(t, res.OK())
	assert.Len(t, res.Risks, 2)
	assert.Equal(t, 3, res.Truncated)
	assert.Equal(t, "risk 1", res.Risks[1].Description)
}

func TestExtractDoesNotCountBlankCandidatesAsTruncated(t *testing.T) {
	items := []any{
		map[string]any{"description": "first"},
		map[string]any{"description": "  "},
		map[string]any{"description": "second"},
	}
	cfg := DefaultConfig()
	cfg.MaxRisksPerChunk = 1
	res := New(&fakeReasoner{out: map[string]any{"risks": items}}, cfg).Extract(context.Background(), Request{Text: "x"})
	assert.Len(t, res.Risks, 1)
	assert.Equal(t, 1, res.Truncated)
}

func TestPromptCarriesCategoryAndGuidance(t *testing.T) {
	r := &fakeReasoner{out: map[string]any{"risks": []any{}}}
	New(r, DefaultConfig()).Extract(context.Background(), Request{
		Text:     "the section",
		Category: types.CategoryBidding,
		Guidance: []Snippet{{Kind: types.CorpusKindGuidance, Title: "Local branch requirements", Content: "Requiring a local branch is a violation."}},
		Snippets: []Snippet{{Kind: types.CorpusKindCase, Title: "Case A", Content: "abc"}},
	})

	assert.Contains(t, r.lastUser, "bidding or procurement document")
	assert.Contains(t, r.lastUser, "1. Local branch requirements")
	assert.Less(t, strings.Index(r.lastUser, "Authoritative guidance"), strings.Index(r.lastUser, "Case A"))

	New(r, DefaultConfig()).Extract(context.Background(), Request{Text: "plain"})
	assert.NotContains(t, r.lastUser, "This document is")
	assert.NotContains(t, r.lastUser, "Authoritative guidance")
}

func TestPromptBoundsSnippets(t *testing.T) {
	r := &fakeReasoner{out: map[string]any{"risks": []any{}}}
	cfg := DefaultConfig()
	cfg.MaxSnippets = 2
	cfg.SnippetRunes = 5
	snippets := []Snippet{
		{Kind: types.CorpusKindCase, Title: "Case A", Category: "regional", Content: "abcdefghij"},
		{Kind: types.CorpusKindRegulation, Title: "Reg B", Content: "klmnopqrst"},
		{Kind: types.CorpusKindCase, Title: "Case C", Content: "never shown"},
	}
	New(r, cfg).Extract(context.Background(), Request{Text: "the section", Snippets: snippets})

	assert.Contains(t, r.lastUser, "[regional] Case A")
	assert.Contains(t, r.lastUser, "abcde…")
	assert.NotContains(t, r.lastUser, "abcdef")
	assert.Contains(t, r.lastUser, "Reg B")
	assert.NotContains(t, r.lastUser, "Case C")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(r.lastUser), "the section"))
	assert.Equal(t, "object", r.schema["type"])
}

func TestNormalizeLevel(t *testing.T) {
	cases := map[string]string{
		"High": types.LevelHigh, " CRITICAL ": types.LevelHigh, "高": types.LevelHigh,
		"low": types.LevelLow, "info": types.LevelLow, "低": types.LevelLow,
		"Medium": types.LevelMedium, "": types.LevelMedium, "unknown": types.LevelMedium,
	}
	for in, want := range cases {
		if got := NormalizeLevel(in); got != want {
			t.Fatalf("NormalizeLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
