package retriever

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/domain/corpus"
	"github.com/yungbote/riskreview-backend/internal/platform/dbctx"
)

type fakeStore struct {
	rows  []*types.CorpusEntry
	err   error
	calls atomic.Int32
}

func (s *fakeStore) ListEmbedded(dbc dbctx.Context) ([]*types.CorpusEntry, error) {
	s.calls.Add(1)
	return s.rows, s.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return [][]float32{e.vec}, nil
}

func entry(id int64, kind string, vec ...float32) *types.CorpusEntry {
	return &types.CorpusEntry{ID: id, Kind: kind, Title: kind, Embedding: corpus.EncodeVector(vec)}
}

func ids(matches []Match) []int64 {
	out := make([]int64, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Entry.ID)
	}
	return out
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	snap := NewSnapshot([]*types.CorpusEntry{
		entry(1, types.CorpusKindCase, 1, 0),
		entry(2, types.CorpusKindCase, 0, 1),
		entry(3, types.CorpusKindCase, 0.9, 0.1),
	})

	got := snap.Search([]float32{1, 0}, 2, Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, []int64{1, 3}, ids(got))
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-9)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)
}

func TestSearchBreaksTiesByAscendingID(t *testing.T) {
	snap := NewSnapshot([]*types.CorpusEntry{
		entry(9, types.CorpusKindCase, 2, 0),
		entry(4, types.CorpusKindCase, 1, 0),
		entry(7, types.CorpusKindCase, 0.5, 0),
	})
	assert.Equal(t, []int64{4, 7, 9}, ids(snap.Search([]float32{3, 0}, 3, Filter{})))
}

func TestSearchKLargerThanEligibleReturnsEligibleSet(t *testing.T) {
	snap := NewSnapshot([]*types.CorpusEntry{
		entry(1, types.CorpusKindCase, 1, 0),
		entry(2, types.CorpusKindCase, -1, 0),
		entry(3, types.CorpusKindCase, 1, 0, 0),
		{ID: 4, Kind: types.CorpusKindCase},
		entry(5, types.CorpusKindCase, 0, 0),
	})
	got := snap.Search([]float32{1, 0}, 50, Filter{})
	assert.Equal(t, []int64{1, 2}, ids(got))
	assert.Equal(t, 3, snap.Len())
}

func TestSearchFilterByKindAndThreshold(t *testing.T) {
	snap := NewSnapshot([]*types.CorpusEntry{
		entry(1, types.CorpusKindCase, 1, 0),
		entry(2, types.CorpusKindRegulation, 1, 0),
		entry(3, types.CorpusKindCase, 0, 1),
	})
	got := snap.Search([]float32{1, 0}, 5, Filter{Kind: types.CorpusKindCase, MinSimilarity: 0.5})
	assert.Equal(t, []int64{1}, ids(got))
}

func TestSearchDegenerateInputs(t *testing.T) {
	snap := NewSnapshot([]*types.CorpusEntry{entry(1, types.CorpusKindCase, 1, 0)})
	assert.Empty(t, snap.Search([]float32{1, 0}, 0, Filter{}))
	assert.Empty(t, snap.Search([]float32{0, 0}, 1, Filter{}))
	assert.Empty(t, snap.Search(nil, 1, Filter{}))
	var nilSnap *Snapshot
	assert.Empty(t, nilSnap.Search([]float32{1, 0}, 1, Filter{}))
}

func TestSnapshotIsCachedAcrossCalls(t *testing.T) {
	store := &fakeStore{rows: []*types.CorpusEntry{entry(1, types.CorpusKindCase, 1, 0)}}
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, DefaultConfig(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestRetrieveEmbedsThenRanks(t *testing.T) {
	store := &fakeStore{rows: []*types.CorpusEntry{
		entry(1, types.CorpusKindCase, 0, 1),
		entry(2, types.CorpusKindRegulation, 1, 0),
	}}
	r := New(store, &fakeEmbedder{vec: []float32{1, 0}}, DefaultConfig(), nil)

	got, err := r.Retrieve(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
	assert.Nil(t, got[0].Entry.Embedding)
}

func TestRetrieveClassifiesFailures(t *testing.T) {
	r := New(&fakeStore{}, &fakeEmbedder{err: errors.New("quota")}, DefaultConfig(), nil)
	_, err := r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrEmbedding)

	r = New(&fakeStore{err: errors.New("db down")}, &fakeEmbedder{vec: []float32{1}}, DefaultConfig(), nil)
	_, err = r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrCorpus)
}

func TestContextForAppliesPerKindBudgets(t *testing.T) {
	store := &fakeStore{rows: []*types.CorpusEntry{
		entry(1, types.CorpusKindCase, 1, 0),
		entry(2, types.CorpusKindCase, 0.95, 0.05),
		entry(3, types.CorpusKindCase, 0.9, 0.1),
		entry(4, types.CorpusKindRegulation, 1, 0.2),
		entry(5, types.CorpusKindRegulation, 1, 0.1),
		entry(6, types.CorpusKindRegulation, 0, 1),
	}}
	r := New(store, nil, DefaultConfig(), nil)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	got := r.ContextFor(snap, []float32{1, 0})
	assert.Equal(t, []int64{1, 2}, ids(got.Cases))
	assert.Equal(t, []int64{5}, ids(got.Regulations))
	assert.False(t, got.Empty())
}

type recordingEmbedder struct {
	vec    []float32
	inputs []string
}

func (e *recordingEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	e.inputs = append(e.inputs, inputs...)
	return [][]float32{e.vec}, nil
}

func TestGuidanceSelectsClosestRulingsFromOpening(t *testing.T) {
	store := &fakeStore{rows: []*types.CorpusEntry{
		entry(1, types.CorpusKindGuidance, 1, 0),
		entry(2, types.CorpusKindGuidance, 0, 1),
		entry(3, types.CorpusKindCase, 1, 0),
		entry(4, types.CorpusKindGuidance, 0.9, 0.1),
	}}
	emb := &recordingEmbedder{vec: []float32{1, 0}}
	cfg := DefaultConfig()
	cfg.GuidanceSampleRunes = 4
	r := New(store, emb, cfg, nil)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	got, err := r.Guidance(context.Background(), snap, "投标人须在本地注册")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids(got))
	require.Len(t, emb.inputs, 1)
	assert.Equal(t, "投标人须", emb.inputs[0])
}

func TestGuidanceDisabledOrFailing(t *testing.T) {
	store := &fakeStore{rows: []*types.CorpusEntry{entry(1, types.CorpusKindGuidance, 1, 0)}}
	cfg := DefaultConfig()
	cfg.GuidancePerDocument = 0
	emb := &recordingEmbedder{vec: []float32{1, 0}}
	r := New(store, emb, cfg, nil)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)

	got, err := r.Guidance(context.Background(), snap, "text")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, emb.inputs)

	r = New(store, &fakeEmbedder{err: errors.New("quota")}, DefaultConfig(), nil)
	_, err = r.Guidance(context.Background(), snap, "text")
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestMinSimilarityPerKind(t *testing.T) {
	r := New(&fakeStore{}, nil, DefaultConfig(), nil)
	assert.Equal(t, 0.65, r.MinSimilarity(types.CorpusKindCase))
	assert.Equal(t, 0.60, r.MinSimilarity(types.CorpusKindRegulation))
	assert.Equal(t, 0.60, r.MinSimilarity(types.CorpusKindGuidance))
	assert.Equal(t, 0.60, r.MinSimilarity(""))
}
