// Package debate re-examines extracted findings before they are persisted.
// A defender argues the clause is lawful; a judge then maintains,
// downgrades or dismisses the finding.
package debate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/modules/review/extractor"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

// Reasoner is the slice of the model client the panel needs.
type Reasoner interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type Decision string

const (
	Maintain  Decision = "MAINTAIN"
	Downgrade Decision = "DOWNGRADE"
	Dismiss   Decision = "DISMISS"
)

type Config struct {
	// DismissConfidence is the minimum judge confidence (0-100) for a
	// dismissal to drop the finding. Below it the finding is downgraded.
	DismissConfidence int
	// ContextRunes bounds the section text shown to defender and judge.
	ContextRunes int
	Concurrency  int
}

func DefaultConfig() Config {
	return Config{DismissConfidence: 85, ContextRunes: 3000, Concurrency: 4}
}

type Panel struct {
	reasoner Reasoner
	cfg      Config
	log      *logger.Logger
}

func New(reasoner Reasoner, cfg Config, baseLog *logger.Logger) *Panel {
	def := DefaultConfig()
	if cfg.DismissConfidence <= 0 || cfg.DismissConfidence > 100 {
		cfg.DismissConfidence = def.DismissConfidence
	}
	if cfg.ContextRunes <= 0 {
		cfg.ContextRunes = def.ContextRunes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Panel{reasoner: reasoner, cfg: cfg, log: baseLog.With("component", "DebatePanel")}
}

// Review debates every candidate concurrently and returns the survivors in
// input order along with how many were dismissed. A candidate whose debate
// fails is kept unchanged.
func (p *Panel) Review(ctx context.Context, section string, cands []extractor.Candidate) ([]extractor.Candidate, int) {
	if p == nil || p.reasoner == nil || len(cands) == 0 {
		return cands, 0
	}
	section = head(section, p.cfg.ContextRunes)
	revised := make([]extractor.Candidate, len(cands))
	keep := make([]bool, len(cands))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i := range cands {
		g.Go(func() error {
			revised[i], keep[i] = p.decide(ctx, section, cands[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make([]extractor.Candidate, 0, len(cands))
	dismissed := 0
	for i := range revised {
		if !keep[i] {
			dismissed++
			continue
		}
		out = append(out, revised[i])
	}
	return out, dismissed
}

func (p *Panel) decide(ctx context.Context, section string, c extractor.Candidate) (extractor.Candidate, bool) {
	defense, err := p.defend(ctx, section, c)
	if err != nil {
		p.log.Warn("Defense failed; keeping finding", "title", c.Title, "error", err)
		return c, true
	}
	if defense == "" {
		return c, true
	}
	c.Defense = defense
	r, err := p.judge(ctx, section, c)
	if err != nil {
		p.log.Warn("Ruling failed; keeping finding", "title", c.Title, "error", err)
		return c, true
	}
	return Apply(c, r, p.cfg.DismissConfidence)
}

// Ruling is the judge's parsed verdict.
type Ruling struct {
	Decision    Decision
	Confidence  int
	Reason      string
	Level       string
	Description string
	Suggestion  string
}

// Apply folds a ruling into the candidate. The second result is false when
// the finding is dismissed.
func Apply(c extractor.Candidate, r Ruling, dismissConfidence int) (extractor.Candidate, bool) {
	conf := r.Confidence
	c.Confidence = &conf
	c.RulingReason = r.Reason

	switch r.Decision {
	case Dismiss:
		if conf >= dismissConfidence {
			return c, false
		}
		c.Level = types.LevelLow
		if r.Reason != "" {
			c.Description += "\n\nRuling: " + r.Reason
		}
		return c, true
	case Downgrade:
		if r.Level != "" && types.LevelRank(r.Level) < types.LevelRank(c.Level) {
			c.Level = r.Level
		} else {
			c.Level = lower(c.Level)
		}
	}
	if r.Description != "" {
		c.Description = r.Description
	}
	if r.Suggestion != "" {
		c.Suggestion = r.Suggestion
	}
	return c, true
}

func lower(level string) string {
	switch level {
	case types.LevelHigh:
		return types.LevelMedium
	default:
		return types.LevelLow
	}
}

func (p *Panel) defend(ctx context.Context, section string, c extractor.Candidate) (string, error) {
	out, err := p.reasoner.GenerateJSON(ctx, defenderSystemPrompt, findingPrompt(section, c, ""), defenseSchemaName, defenseSchema())
	if err != nil {
		return "", err
	}
	if ok, _ := out["has_defense"].(bool); !ok {
		return "", nil
	}
	return str(out, "defense"), nil
}

func (p *Panel) judge(ctx context.Context, section string, c extractor.Candidate) (Ruling, error) {
	out, err := p.reasoner.GenerateJSON(ctx, judgeSystemPrompt, findingPrompt(section, c, c.Defense), rulingSchemaName, rulingSchema())
	if err != nil {
		return Ruling{}, err
	}
	d := Decision(strings.ToUpper(str(out, "final_decision")))
	switch d {
	case Maintain, Downgrade, Dismiss:
	default:
		return Ruling{}, fmt.Errorf("unknown decision %q", d)
	}
	r := Ruling{
		Decision:    d,
		Confidence:  confidence(out["confidence"]),
		Reason:      str(out, "ruling_reason"),
		Description: str(out, "revised_description"),
		Suggestion:  str(out, "revised_suggestion"),
	}
	if lvl := str(out, "revised_risk_level"); lvl != "" {
		r.Level = extractor.NormalizeLevel(lvl)
	}
	return r, nil
}

func confidence(v any) int {
	var n int
	switch x := v.(type) {
	case float64:
		n = int(x)
	case int:
		n = x
	default:
		return 0
	}
	return max(0, min(100, n))
}

func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
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
