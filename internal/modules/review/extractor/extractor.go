// Package extractor turns one chunk of document text plus its retrieved
// corpus context into candidate compliance risks via a reasoning model.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/openai"
)

// Reasoner is the slice of the model client the extractor needs.
type Reasoner interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Outcome string

const (
	OutcomeOK         Outcome = "ok"
	OutcomeMalformed  Outcome = "malformed"
	OutcomeCallFailed Outcome = "call_failed"
)

// Candidate is a parsed risk not yet bound to a job.
type Candidate struct {
	Level       string
	Title       string
	Description string
	Location    string
	Suggestion  string
	ViolatedLaw string
	Reference   string

	Defense      string
	RulingReason string
	Confidence   *int
}

// Result is the outcome of one extraction attempt. Risks is only meaningful
// when Outcome is OutcomeOK; Err explains the other two outcomes.
type Result struct {
	Outcome Outcome
	Risks   []Candidate
	// Truncated counts candidates dropped past MaxRisksPerChunk.
	Truncated int
	Err       error
}

// Request is one chunk plus the document-level context shared by every
// chunk of the same job.
type Request struct {
	Text     string
	Snippets []Snippet
	// Category is the document category; empty means unclassified.
	Category string
	// Guidance is rendered ahead of the corpus context and overrides it.
	Guidance []Snippet
}

func (r Result) OK() bool { return r.Outcome == OutcomeOK }

// Snippet is one retrieved corpus excerpt offered to the model.
type Snippet struct {
	Kind       string
	Title      string
	Category   string
	Content    string
	Similarity float64
}

type Config struct {
	MaxSnippets      int
	SnippetRunes     int
	ChunkRunes       int
	MaxRisksPerChunk int
	TitleRunes       int
}

func DefaultConfig() Config {
	return Config{
		MaxSnippets:      3,
		SnippetRunes:     600,
		ChunkRunes:       4000,
		MaxRisksPerChunk: 20,
		TitleRunes:       80,
	}
}

type Extractor struct {
	reasoner Reasoner
	cfg      Config
}

func New(reasoner Reasoner, cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.MaxSnippets < 0 {
		cfg.MaxSnippets = 0
	}
	if cfg.SnippetRunes <= 0 {
		cfg.SnippetRunes = def.SnippetRunes
	}
	if cfg.ChunkRunes <= 0 {
		cfg.ChunkRunes = def.ChunkRunes
	}
	if cfg.MaxRisksPerChunk <= 0 {
		cfg.MaxRisksPerChunk = def.MaxRisksPerChunk
	}
	if cfg.TitleRunes <= 0 {
		cfg.TitleRunes = def.TitleRunes
	}
	return &Extractor{reasoner: reasoner, cfg: cfg}
}

// Extract never returns an error; failures are folded into Result.
func (e *Extractor) Extract(ctx context.Context, req Request) Result {
	if e.reasoner == nil {
		return Result{Outcome: OutcomeCallFailed, Err: errors.New("no reasoner configured")}
	}
	out, err := e.reasoner.GenerateJSON(ctx, systemPrompt, e.userPrompt(req), schemaName, riskSchema())
	if err != nil {
		if errors.Is(err, openai.ErrMalformedOutput) {
			return Result{Outcome: OutcomeMalformed, Err: err}
		}
		return Result{Outcome: OutcomeCallFailed, Err: err}
	}
	risks, truncated, err := e.parse(out)
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Err: err}
	}
	return Result{Outcome: OutcomeOK, Risks: risks, Truncated: truncated}
}

// parse returns the accepted candidates and how many well-formed ones were
// cut off by MaxRisksPerChunk.
func (e *Extractor) parse(out map[string]any) ([]Candidate, int, error) {
	if out == nil {
		return nil, 0, errors.New("empty response object")
	}
	raw, ok := out["risks"]
	if !ok {
		return nil, 0, errors.New("response has no risks field")
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, 0, fmt.Errorf("risks is %T, want array", raw)
	}
	risks := make([]Candidate, 0, len(items))
	truncated := 0
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("risks[%d] is %T, want object", i, item)
		}
		desc := str(obj, "description")
		if desc == "" {
			continue
		}
		if len(risks) == e.cfg.MaxRisksPerChunk {
			truncated++
			continue
		}
		level := str(obj, "risk_level")
		if level == "" {
			level = str(obj, "level")
		}
		title := str(obj, "title")
		if title == "" {
			title = truncateRunes(desc, e.cfg.TitleRunes)
		}
		risks = append(risks, Candidate{
			Level:       NormalizeLevel(level),
			Title:       title,
			Description: desc,
			Location:    str(obj, "location"),
			Suggestion:  str(obj, "suggestion"),
			ViolatedLaw: str(obj, "violated_law"),
			Reference:   str(obj, "reference"),
		})
	}
	return risks, truncated, nil
}

// NormalizeLevel maps free-form severities onto high, medium or low.
func NormalizeLevel(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "critical", "severe", "major", "高", "高风险", "严重":
		return types.LevelHigh
	case "low", "minor", "info", "informational", "低", "低风险":
		return types.LevelLow
	default:
		return types.LevelMedium
	}
}

func str(obj map[string]any, key string) string {
	v, ok := obj[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
