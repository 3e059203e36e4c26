// Package retriever ranks corpus entries against a query embedding with a
// brute-force cosine scan over an in-memory snapshot of the corpus.
package retriever

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

var (
	ErrEmbedding = errors.New("query embedding failed")
	ErrCorpus    = errors.New("corpus unavailable")
)

const snapshotKey = "corpus:snapshot"

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Store interface {
	ListEmbedded(dbc dbctx.Context) ([]*types.CorpusEntry, error)
}

type Config struct {
	CasesPerChunk           int
	RegulationsPerChunk     int
	CaseMinSimilarity       float64
	RegulationMinSimilarity float64
	// GuidancePerDocument bounds the guidance rulings selected once per
	// document; 0 disables guidance.
	GuidancePerDocument   int
	GuidanceMinSimilarity float64
	// GuidanceSampleRunes is how much of the document opening is embedded
	// to select guidance.
	GuidanceSampleRunes int
	CacheTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		CasesPerChunk:           2,
		RegulationsPerChunk:     1,
		CaseMinSimilarity:       0.65,
		RegulationMinSimilarity: 0.60,
		GuidancePerDocument:     3,
		GuidanceMinSimilarity:   0.60,
		GuidanceSampleRunes:     3000,
		CacheTTL:                5 * time.Minute,
	}
}

type Filter struct {
	Kind          string
	MinSimilarity float64
}

type Match struct {
	Entry      *types.CorpusEntry
	Similarity float64
}

// Retrieved is the bounded corpus context attached to one chunk.
type Retrieved struct {
	Cases       []Match
	Regulations []Match
}

func (r Retrieved) Empty() bool { return len(r.Cases) == 0 && len(r.Regulations) == 0 }

type Retriever struct {
	log      *logger.Logger
	store    Store
	embedder Embedder
	cfg      Config
	cache    *cache.Cache
	group    singleflight.Group
}

func New(store Store, embedder Embedder, cfg Config, baseLog *logger.Logger) *Retriever {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Retriever{
		log:      baseLog.With("component", "Retriever"),
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Snapshot returns the decoded eligible corpus, loading it at most once per
// TTL window even under concurrent callers.
func (r *Retriever) Snapshot(ctx context.Context) (*Snapshot, error) {
	if v, ok := r.cache.Get(snapshotKey); ok {
		return v.(*Snapshot), nil
	}
	v, err, _ := r.group.Do(snapshotKey, func() (interface{}, error) {
		if v, ok := r.cache.Get(snapshotKey); ok {
			return v, nil
		}
		rows, err := r.store.ListEmbedded(dbctx.Context{Ctx: ctx})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorpus, err)
		}
		snap := NewSnapshot(rows)
		r.cache.SetDefault(snapshotKey, snap)
		r.log.Debug("corpus snapshot loaded", "entries", snap.Len(), "skipped", len(rows)-snap.Len())
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (r *Retriever) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrEmbedding)
	}
	vecs, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbedding)
	}
	return vecs[0], nil
}

// Retrieve embeds queryText and returns up to k nearest entries of any kind.
func (r *Retriever) Retrieve(ctx context.Context, queryText string, k int) ([]Match, error) {
	vec, err := r.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, err
	}
	snap, err := r.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Search(vec, k, Filter{}), nil
}

// ContextFor selects the per-chunk cases and regulations for an already
// embedded query.
func (r *Retriever) ContextFor(snap *Snapshot, vec []float32) Retrieved {
	return Retrieved{
		Cases: snap.Search(vec, r.cfg.CasesPerChunk, Filter{
			Kind: types.CorpusKindCase, MinSimilarity: r.cfg.CaseMinSimilarity,
		}),
		Regulations: snap.Search(vec, r.cfg.RegulationsPerChunk, Filter{
			Kind: types.CorpusKindRegulation, MinSimilarity: r.cfg.RegulationMinSimilarity,
		}),
	}
}

// Guidance selects the guidance rulings closest to the opening of the
// document. It returns nil when guidance is disabled or nothing clears the
// similarity floor.
func (r *Retriever) Guidance(ctx context.Context, snap *Snapshot, text string) ([]Match, error) {
	if r.cfg.GuidancePerDocument <= 0 || snap.Len() == 0 {
		return nil, nil
	}
	sample := text
	if n := r.cfg.GuidanceSampleRunes; n > 0 && utf8.RuneCountInString(sample) > n {
		sample = string([]rune(sample)[:n])
	}
	vec, err := r.EmbedQuery(ctx, sample)
	if err != nil {
		return nil, err
	}
	return snap.Search(vec, r.cfg.GuidancePerDocument, Filter{
		Kind: types.CorpusKindGuidance, MinSimilarity: r.cfg.GuidanceMinSimilarity,
	}), nil
}

// MinSimilarity is the relevance floor applied to entries of kind.
func (r *Retriever) MinSimilarity(kind string) float64 {
	switch kind {
	case types.CorpusKindCase:
		return r.cfg.CaseMinSimilarity
	case types.CorpusKindRegulation:
		return r.cfg.RegulationMinSimilarity
	case types.CorpusKindGuidance:
		return r.cfg.GuidanceMinSimilarity
	default:
		return min(r.cfg.CaseMinSimilarity, r.cfg.RegulationMinSimilarity)
	}
}

type indexed struct {
	entry *types.CorpusEntry
	vec   []float32
	norm  float64
}

// Snapshot is an immutable decoded view of the embedded corpus.
type Snapshot struct {
	items []indexed
}

// NewSnapshot decodes rows, dropping entries with no usable vector. Row
// content is kept, the raw embedding column is released.
func NewSnapshot(rows []*types.CorpusEntry) *Snapshot {
	items := make([]indexed, 0, len(rows))
	for _, row := range rows {
		vec, ok := row.Vector()
		if !ok {
			continue
		}
		n := norm(vec)
		if n == 0 {
			continue
		}
		entry := *row
		entry.Embedding = nil
		items = append(items, indexed{entry: &entry, vec: vec, norm: n})
	}
	return &Snapshot{items: items}
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Search returns up to k entries ordered by descending cosine similarity,
// ties by ascending id. Entries whose dimensionality differs from query are
// not eligible.
func (s *Snapshot) Search(query []float32, k int, f Filter) []Match {
	if s == nil || k <= 0 || len(query) == 0 {
		return nil
	}
	qn := norm(query)
	if qn == 0 {
		return nil
	}
	matches := make([]Match, 0, len(s.items))
	for _, it := range s.items {
		if len(it.vec) != len(query) {
			continue
		}
		if f.Kind != "" && it.entry.Kind != f.Kind {
			continue
		}
		sim := dot(query, it.vec) / (qn * it.norm)
		if f.MinSimilarity > 0 && sim < f.MinSimilarity {
			continue
		}
		matches = append(matches, Match{Entry: it.entry, Similarity: sim})
	}
	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Entry.ID, b.Entry.ID)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
