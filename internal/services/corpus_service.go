package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/riskreview-backend/internal/data/repos"
	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/modules/review/retriever"
	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

const (
	SearchModeHybrid  = "hybrid"
	SearchModeKeyword = "keyword"
)

type CorpusQuery struct {
	Text     string
	Kind     string
	Category string
	Limit    int
}

type CorpusHit struct {
	Entry *types.CorpusEntry
	// Similarity is set for entries ranked by the embedding.
	Similarity *float64
	Keyword    bool
}

type CorpusSearchResult struct {
	Mode string
	Hits []CorpusHit
}

type CorpusService interface {
	Search(ctx context.Context, q CorpusQuery) (*CorpusSearchResult, error)
}

type corpusService struct {
	log       *logger.Logger
	corpus    repos.CorpusEntryRepo
	retriever *retriever.Retriever
}

// NewCorpusService searches by keyword and, when rt is non-nil, merges in the
// nearest entries by embedding.
func NewCorpusService(baseLog *logger.Logger, corpus repos.CorpusEntryRepo, rt *retriever.Retriever) CorpusService {
	return &corpusService{
		log:       baseLog.With("service", "CorpusService"),
		corpus:    corpus,
		retriever: rt,
	}
}

func (s *corpusService) Search(ctx context.Context, q CorpusQuery) (*CorpusSearchResult, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.Kind = strings.ToLower(strings.TrimSpace(q.Kind))
	q.Category = strings.TrimSpace(q.Category)
	switch q.Kind {
	case "", types.CorpusKindCase, types.CorpusKindRegulation, types.CorpusKindGuidance:
	default:
		return nil, fmt.Errorf("%w: kind must be case, regulation or guidance", apierr.ErrValidation)
	}
	if q.Text == "" && q.Category == "" {
		return nil, fmt.Errorf("%w: q or category is required", apierr.ErrValidation)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	keyword, err := s.corpus.Search(dbctx.Context{Ctx: ctx}, repos.CorpusSearchQuery{
		Text: q.Text, Kind: q.Kind, Category: q.Category, Limit: q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	semantic, ok := s.semantic(ctx, q)
	if !ok {
		hits := make([]CorpusHit, 0, len(keyword))
		for _, e := range keyword {
			hits = append(hits, CorpusHit{Entry: e, Keyword: true})
		}
		return &CorpusSearchResult{Mode: SearchModeKeyword, Hits: hits}, nil
	}
	return &CorpusSearchResult{Mode: SearchModeHybrid, Hits: merge(keyword, semantic, q.Limit)}, nil
}

func (s *corpusService) semantic(ctx context.Context, q CorpusQuery) ([]retriever.Match, bool) {
	if s.retriever == nil || q.Text == "" {
		return nil, false
	}
	vec, err := s.retriever.EmbedQuery(ctx, q.Text)
	if err != nil {
		s.log.Warn("semantic search unavailable, using keyword only", "error", err)
		return nil, false
	}
	snap, err := s.retriever.Snapshot(ctx)
	if err != nil {
		s.log.Warn("corpus snapshot unavailable, using keyword only", "error", err)
		return nil, false
	}
	matches := snap.Search(vec, snap.Len(), retriever.Filter{Kind: q.Kind})
	out := make([]retriever.Match, 0, q.Limit)
	for _, m := range matches {
		if q.Category != "" && m.Entry.Category != q.Category {
			continue
		}
		if m.Similarity < s.retriever.MinSimilarity(m.Entry.Kind) {
			continue
		}
		out = append(out, m)
		if len(out) == q.Limit {
			break
		}
	}
	return out, true
}

// merge ranks entries found both ways first, then keyword-only entries by
// id, then embedding-only entries. Semantic matches have already cleared the
// per-kind similarity floor.
func merge(keyword []*types.CorpusEntry, semantic []retriever.Match, limit int) []CorpusHit {
	byID := make(map[int64]*CorpusHit, len(keyword)+len(semantic))
	order := make([]int64, 0, len(keyword)+len(semantic))
	for _, m := range semantic {
		sim := m.Similarity
		byID[m.Entry.ID] = &CorpusHit{Entry: m.Entry, Similarity: &sim}
		order = append(order, m.Entry.ID)
	}
	for _, e := range keyword {
		if h, ok := byID[e.ID]; ok {
			h.Keyword = true
			continue
		}
		byID[e.ID] = &CorpusHit{Entry: e, Keyword: true}
		order = append(order, e.ID)
	}

	hits := make([]CorpusHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, *byID[id])
	}
	rank := func(h CorpusHit) int {
		switch {
		case h.Keyword && h.Similarity != nil:
			return 0
		case h.Keyword:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		ri, rj := rank(hits[i]), rank(hits[j])
		if ri != rj {
			return ri < rj
		}
		if ri != 1 && *hits[i].Similarity != *hits[j].Similarity {
			return *hits[i].Similarity > *hits[j].Similarity
		}
		return hits[i].Entry.ID < hits[j].Entry.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
