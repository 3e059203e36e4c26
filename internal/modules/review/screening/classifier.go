// Package screening holds the document-level model calls that bracket the
// per-section audit: a category classifier before it and the bidding
// radar after it.
package screening

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

// Reasoner is the slice of the model client screening needs.
type Reasoner interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

const classifySchemaName = "document_category"

const classifySystemPrompt = `You classify documents submitted for a fair-competition review.

POLICY: regulations, measures, notices or plans issued by a government body that apply to an industry or region.
BIDDING: tender notices, procurement documents, scoring rules or qualification requirements for a specific purchase.
AGREEMENT: contracts, cooperation agreements or memoranda between a government body and specific enterprises.

Pick the single closest category and give a one sentence reason.`

// Classification is the category of one document. Fallback is set when the
// model could not be consulted and the default category was assumed.
type Classification struct {
	Category string
	Reason   string
	Fallback bool
}

type Classifier struct {
	reasoner    Reasoner
	sampleRunes int
}

// NewClassifier builds a classifier that reads the first sampleRunes of the
// document. sampleRunes <= 0 uses 2000.
func NewClassifier(reasoner Reasoner, sampleRunes int) *Classifier {
	if sampleRunes <= 0 {
		sampleRunes = 2000
	}
	return &Classifier{reasoner: reasoner, sampleRunes: sampleRunes}
}

// Classify never fails. Any model error falls back to POLICY, the broadest
// audit focus, so the review itself always runs.
func (c *Classifier) Classify(ctx context.Context, fileName, text string) Classification {
	fallback := func(reason string) Classification {
		return Classification{Category: types.CategoryPolicy, Reason: reason, Fallback: true}
	}
	if c == nil || c.reasoner == nil {
		return fallback("classifier not configured")
	}
	user := fmt.Sprintf("File name: %s\n\nOpening text:\n%s\n", fileName, head(text, c.sampleRunes))
	out, err := c.reasoner.GenerateJSON(ctx, classifySystemPrompt, user, classifySchemaName, classifySchema())
	if err != nil {
		return fallback("classification failed: " + err.Error())
	}
	category := ParseCategory(str(out, "category"))
	if category == "" {
		return fallback("unrecognized category " + str(out, "category"))
	}
	return Classification{Category: category, Reason: str(out, "reason")}
}

// ParseCategory maps model or user input onto a known category. Unknown
// input yields "".
func ParseCategory(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "policy", "regulation", "measure":
		return types.CategoryPolicy
	case "bidding", "tender", "procurement":
		return types.CategoryBidding
	case "agreement", "contract":
		return types.CategoryAgreement
	default:
		return ""
	}
}

func classifySchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"category", "reason"},
		"properties": map[string]any{
			"category": map[string]any{
				"type": "string",
				"enum": []string{"POLICY", "BIDDING", "AGREEMENT"},
			},
			"reason": map[string]any{"type": "string"},
		},
	}
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
