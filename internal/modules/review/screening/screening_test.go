package screening

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/riskreview-backend/internal/domain"
)

type fakeReasoner struct {
	out      map[string]any
	err      error
	calls    int
	lastUser string
	schema   string
}

func (f *fakeReasoner) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	f.calls++
	f.lastUser = user
	f.schema = schemaName
	return f.out, f.err
}

func TestClassifyReadsOpeningOnly(t *testing.T) {
	r := &fakeReasoner{out: map[string]any{"category": "BIDDING", "reason": "tender notice"}}
	got := NewClassifier(r, 5).Classify(context.Background(), "notice.pdf", "招标公告第一章总则")

	assert.Equal(t, Classification{Category: types.CategoryBidding, Reason: "tender notice"}, got)
	assert.Equal(t, classifySchemaName, r.schema)
	assert.Contains(t, r.lastUser, "notice.pdf")
	assert.Contains(t, r.lastUser, "招标公告第")
	assert.NotContains(t, r.lastUser, "一章")
}

func TestClassifyFallsBackToPolicy(t *testing.T) {
	failing := &fakeReasoner{err: errors.New("upstream 503")}
	got := NewClassifier(failing, 0).Classify(context.Background(), "a.txt", "text")
	assert.Equal(t, types.CategoryPolicy, got.Category)
	assert.True(t, got.Fallback)
	assert.Contains(t, got.Reason, "upstream 503")

	odd := &fakeReasoner{out: map[string]any{"category": "MEMO"}}
	got = NewClassifier(odd, 0).Classify(context.Background(), "a.txt", "text")
	assert.Equal(t, types.CategoryPolicy, got.Category)
	assert.True(t, got.Fallback)

	var nilClassifier *Classifier
	assert.True(t, nilClassifier.Classify(context.Background(), "a.txt", "text").Fallback)
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, types.CategoryPolicy, ParseCategory(" Policy "))
	assert.Equal(t, types.CategoryBidding, ParseCategory("TENDER"))
	assert.Equal(t, types.CategoryAgreement, ParseCategory("agreement"))
	assert.Equal(t, "", ParseCategory("ignore"))
}

func TestRadarApplies(t *testing.T) {
	high := []*types.ReviewRisk{{Level: types.LevelLow}, {Level: types.LevelHigh}}
	medium := []*types.ReviewRisk{{Level: types.LevelMedium}}

	assert.True(t, RadarApplies(types.CategoryBidding, high))
	assert.False(t, RadarApplies(types.CategoryBidding, medium))
	assert.False(t, RadarApplies(types.CategoryPolicy, high))
}

func TestRadarScanRaisesAlert(t *testing.T) {
	r := &fakeReasoner{out: map[string]any{
		"alert":       true,
		"level":       "Medium",
		"title":       "Tailored qualification",
		"description": "Registered capital and local office thresholds combine.",
	}}
	risks := []*types.ReviewRisk{
		{Level: types.LevelHigh, Title: "Capital threshold", Description: "50M registered capital"},
		{Level: types.LevelLow, Title: "Typo", Description: "minor"},
	}
	alert, err := NewRadar(r).Scan(context.Background(), "tender.pdf", risks)

	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, types.LevelMedium, alert.Level)
	assert.Equal(t, "Tailored qualification", alert.Title)
	assert.Contains(t, r.lastUser, "Capital threshold")
	assert.NotContains(t, r.lastUser, "Typo")
}

func TestRadarScanQuietCases(t *testing.T) {
	high := []*types.ReviewRisk{{Level: types.LevelHigh, Title: "t", Description: "d"}}

	quiet := &fakeReasoner{out: map[string]any{"alert": false, "level": "High", "title": "x", "description": ""}}
	alert, err := NewRadar(quiet).Scan(context.Background(), "f", high)
	require.NoError(t, err)
	assert.Nil(t, alert)

	untitled := &fakeReasoner{out: map[string]any{"alert": true, "level": "High", "title": " ", "description": ""}}
	alert, err = NewRadar(untitled).Scan(context.Background(), "f", high)
	require.NoError(t, err)
	assert.Nil(t, alert)

	failing := &fakeReasoner{err: errors.New("boom")}
	_, err = NewRadar(failing).Scan(context.Background(), "f", high)
	assert.Error(t, err)

	unused := &fakeReasoner{}
	alert, err = NewRadar(unused).Scan(context.Background(), "f", []*types.ReviewRisk{{Level: types.LevelLow}})
	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.Zero(t, unused.calls)
}
