// Package controller drives one review job from claim to a terminal state:
// load text, classify, chunk, retrieve corpus context, extract and debate
// risks chunk by chunk and persist them in section order with monotone
// progress.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/riskreview-backend/internal/domain"
	"github.com/yungbote/riskreview-backend/internal/jobs/runtime"
	"github.com/yungbote/riskreview-backend/internal/modules/review/chunker"
	"github.com/yungbote/riskreview-backend/internal/modules/review/debate"
	"github.com/yungbote/riskreview-backend/internal/modules/review/extractor"
	"github.com/yungbote/riskreview-backend/internal/modules/review/retriever"
	"github.com/yungbote/riskreview-backend/internal/modules/review/screening"
	"github.com/yungbote/riskreview-backend/internal/observability"
	"github.com/yungbote/riskreview-backend/internal/platform/apierr"
	"github.com/yungbote/riskreview-backend/internal/platform/httpx"
	"github.com/yungbote/riskreview-backend/internal/platform/logger"
)

// DocumentSource loads extracted text for jobs submitted by URI.
type DocumentSource interface {
	Load(ctx context.Context, uri string) (string, error)
}

type Metrics interface {
	ObserveChunk(outcome string, attempts int, d time.Duration)
	ObserveRisks(byLevel map[string]int, deduped int)
}

type Config struct {
	JobTimeout    time.Duration
	ChunkAttempts int
	RetryBase     time.Duration
	RetryMax      time.Duration
	// Concurrency is how many chunks of one job are in flight at once,
	// counting finished chunks still waiting for an earlier one to flush.
	Concurrency int
}

// Stages are the optional model passes around extraction. A nil field
// disables that pass.
type Stages struct {
	Classifier *screening.Classifier
	Panel      *debate.Panel
	Radar      *screening.Radar
}

func DefaultConfig() Config {
	return Config{
		JobTimeout:    15 * time.Minute,
		ChunkAttempts: 3,
		RetryBase:     2 * time.Second,
		RetryMax:      30 * time.Second,
		Concurrency:   1,
	}
}

type Controller struct {
	log       *logger.Logger
	cfg       Config
	chunker   *chunker.Chunker
	retriever *retriever.Retriever
	extractor *extractor.Extractor
	source    DocumentSource
	metrics   Metrics
	stages    Stages
	tracer    trace.Tracer
}

func New(baseLog *logger.Logger, cfg Config, ch *chunker.Chunker, rt *retriever.Retriever, ex *extractor.Extractor, source DocumentSource, metrics Metrics, stages Stages) *Controller {
	def := DefaultConfig()
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ChunkAttempts <= 0 {
		cfg.ChunkAttempts = def.ChunkAttempts
	}
	if cfg.RetryBase < 0 {
		cfg.RetryBase = 0
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Controller{
		log:       baseLog.With("component", "ReviewController"),
		cfg:       cfg,
		chunker:   ch,
		retriever: rt,
		extractor: ex,
		source:    source,
		metrics:   metrics,
		stages:    stages,
		tracer:    observability.Tracer("riskreview/review"),
	}
}

// runState carries per-run counters between chunk flushes.
type runState struct {
	total     int
	failed    int
	attempted int
	embedded  int
	seen      []string
	category  string
}

// document is the per-job context shared by every chunk.
type document struct {
	snap     *retriever.Snapshot
	category string
	guidance []extractor.Snippet
}

type chunkOutcome struct {
	risks     []extractor.Candidate
	failed    bool
	embedded  bool
	attempts  int
	last      extractor.Outcome
	err       error
	elapsed   time.Duration
	dismissed int
	// interrupted is set when the run context ended before the chunk
	// finished; nothing of it is flushed.
	interrupted bool
}

// Run implements runtime.Handler.
func (c *Controller) Run(jc *runtime.Context) error {
	job := jc.Job
	log := c.log.With("job_id", job.ID.String(), "attempt", job.Attempts)

	parent, span := c.tracer.Start(jc.Ctx, "review.job", trace.WithAttributes(
		attribute.String("review.job_id", job.ID.String()),
		attribute.Int("review.attempt", job.Attempts),
	))
	defer span.End()
	jc.Ctx = parent

	deadline := c.deadline(job)
	if !time.Now().Before(deadline) {
		return c.fail(jc, log, span, types.ErrorKindTimeout, c.timeoutReason())
	}
	runCtx, cancel := context.WithDeadline(parent, deadline)
	defer cancel()

	text, err := c.loadText(runCtx, job)
	if err != nil {
		if runCtx.Err() != nil {
			return c.interrupted(jc, log, span, parent)
		}
		log.Warn("document load failed", "error", err)
		return c.fail(jc, log, span, types.ErrorKindFatal, "document could not be loaded")
	}

	chunks := c.chunker.Split(text)
	st := &runState{total: len(chunks), failed: job.FailedChunks, category: job.Category}
	span.SetAttributes(attribute.Int("review.chunks", st.total))
	if st.total == 0 {
		log.Info("document has no reviewable text")
		return c.complete(runCtx, jc, log, span, st)
	}

	start := job.ProcessedChunks
	if start > st.total {
		start = st.total
	}
	if start > 0 {
		log.Info("resuming review", "processed_chunks", start, "total_chunks", st.total)
		existing, err := jc.ExistingRisks()
		if err != nil {
			return err
		}
		for _, r := range existing {
			st.seen = append(st.seen, r.Location)
		}
	}

	if err := jc.Progress(job.Progress, fmt.Sprintf("prepared %d sections", st.total), map[string]interface{}{
		"total_chunks": st.total,
	}); err != nil {
		return c.stopped(log, err)
	}

	if st.category == "" && c.stages.Classifier != nil {
		cls, err := await(runCtx, func(ctx context.Context) (screening.Classification, error) {
			return c.stages.Classifier.Classify(ctx, job.FileName, text), nil
		})
		if err != nil {
			return c.interrupted(jc, log, span, parent)
		}
		if cls.Fallback {
			log.Warn("document classification fell back", "category", cls.Category, "reason", cls.Reason)
		}
		if err := jc.Classify(cls.Category, cls.Reason); err != nil {
			return c.stopped(log, err)
		}
		st.category = cls.Category
	}
	span.SetAttributes(attribute.String("review.category", st.category))

	snap, err := c.retriever.Snapshot(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			return c.interrupted(jc, log, span, parent)
		}
		log.Error("corpus snapshot failed", "error", err)
		return c.fail(jc, log, span, types.ErrorKindFatal, "reference corpus unavailable")
	}
	doc := document{snap: snap, category: st.category}

	guidance, err := await(runCtx, func(ctx context.Context) ([]retriever.Match, error) {
		return c.retriever.Guidance(ctx, snap, text)
	})
	if err != nil {
		if runCtx.Err() != nil {
			return c.interrupted(jc, log, span, parent)
		}
		log.Warn("guidance lookup failed, reviewing without it", "error", err)
	}
	doc.guidance = toSnippets(guidance)

	interrupted, err := c.extractAll(runCtx, jc, log, st, doc, chunks, start)
	if err != nil {
		return c.stopped(log, err)
	}
	if interrupted {
		return c.interrupted(jc, log, span, parent)
	}

	if st.failed >= st.total {
		return c.fail(jc, log, span, types.ErrorKindFatal, "every section failed extraction")
	}
	if start == 0 && st.attempted == st.total && st.embedded == 0 {
		return c.fail(jc, log, span, types.ErrorKindFatal, "embedding service unavailable for every section")
	}
	return c.complete(runCtx, jc, log, span, st)
}

func (c *Controller) deadline(job *types.ReviewJob) time.Time {
	started := time.Now()
	if job.StartedAt != nil {
		started = *job.StartedAt
	}
	return started.Add(c.cfg.JobTimeout)
}

func (c *Controller) timeoutReason() string {
	return fmt.Sprintf("review exceeded its %s time budget", c.cfg.JobTimeout)
}

func (c *Controller) loadText(ctx context.Context, job *types.ReviewJob) (string, error) {
	if job.SourceURI == "" || strings.TrimSpace(job.SourceText) != "" {
		return job.SourceText, nil
	}
	if c.source == nil {
		return "", errors.New("no document source configured")
	}
	return await(ctx, func(ctx context.Context) (string, error) {
		return c.source.Load(ctx, job.SourceURI)
	})
}

/*
extractAll processes chunks[start:] with up to Concurrency chunks in flight
and flushes them strictly in index order: chunk i is persisted as soon as
chunks start..i are all done, so a deadline never discards finished work
that precedes the slowest chunk. A slot is released only when its chunk is
flushed, which keeps at most Concurrency outcomes buffered.

interrupted reports that runCtx ended before every chunk was flushed. err is
a persistence error from flush or progress.
*/
func (c *Controller) extractAll(runCtx context.Context, jc *runtime.Context, log *logger.Logger, st *runState, doc document, chunks []chunker.Chunk, start int) (interrupted bool, err error) {
	ctx, cancel := context.WithCancel(runCtx)
	results := make([]chan chunkOutcome, len(chunks))
	for i := start; i < len(chunks); i++ {
		results[i] = make(chan chunkOutcome, 1)
	}
	slots := make(chan struct{}, c.cfg.Concurrency)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		var g errgroup.Group
		for i := start; i < len(chunks); i++ {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				results[i] <- chunkOutcome{interrupted: true}
				continue
			}
			g.Go(func() error {
				results[i] <- c.processChunk(ctx, log, doc, chunks[i])
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		cancel()
		<-dispatched
	}()

	for i := start; i < len(chunks); i++ {
		if err := jc.Progress(jc.Job.Progress, fmt.Sprintf("analyzing section %d of %d", i+1, st.total), nil); err != nil {
			return false, err
		}
		out := <-results[i]
		if out.interrupted {
			return true, nil
		}
		if err := c.flush(jc, log, st, chunks[i], out); err != nil {
			return false, err
		}
		<-slots
	}
	return false, nil
}

// processChunk never fails the job. Embedding failure degrades to extraction
// without corpus context; extraction failure is retried with backoff and then
// reported as a failed chunk.
func (c *Controller) processChunk(ctx context.Context, log *logger.Logger, doc document, ch chunker.Chunk) (out chunkOutcome) {
	ctx, span := c.tracer.Start(ctx, "review.chunk", trace.WithAttributes(attribute.Int("review.chunk_index", ch.Index)))
	defer span.End()
	started := time.Now()
	defer func() { out.elapsed = time.Since(started) }()

	var snippets []extractor.Snippet
	vec, err := await(ctx, func(ctx context.Context) ([]float32, error) {
		return c.retriever.EmbedQuery(ctx, ch.Text)
	})
	if err != nil {
		log.Warn("chunk embedding failed, extracting without context", "chunk_index", ch.Index, "error", err)
	} else {
		out.embedded = true
		snippets = snippetsFrom(c.retriever.ContextFor(doc.snap, vec))
	}
	req := extractor.Request{Text: ch.Text, Snippets: snippets, Category: doc.category, Guidance: doc.guidance}

	for attempt := 1; attempt <= c.cfg.ChunkAttempts; attempt++ {
		out.attempts = attempt
		res, err := await(ctx, func(ctx context.Context) (extractor.Result, error) {
			return c.extractor.Extract(ctx, req), nil
		})
		if err != nil {
			out.err = err
			break
		}
		if res.OK() {
			if res.Truncated > 0 {
				log.Warn("chunk findings truncated", "chunk_index", ch.Index, "kept", len(res.Risks), "truncated", res.Truncated)
			}
			out.risks, out.last = c.debate(ctx, log, ch, extractor.MergeDuplicates(res.Risks), &out), res.Outcome
			span.SetAttributes(attribute.Int("review.risks", len(out.risks)))
			return out
		}
		out.last, out.err = res.Outcome, res.Err
		log.Warn("chunk extraction attempt failed",
			"chunk_index", ch.Index, "attempt", attempt, "outcome", string(res.Outcome), "error", res.Err)
		if attempt < c.cfg.ChunkAttempts {
			wait := httpx.JitterSleep(httpx.Backoff(c.cfg.RetryBase, attempt-1, c.cfg.RetryMax))
			if err := httpx.Sleep(ctx, wait); err != nil {
				out.err = err
				break
			}
		}
	}
	if ctx.Err() != nil {
		out.interrupted = true
		return out
	}
	out.failed = true
	span.SetStatus(codes.Error, "chunk extraction failed")
	log.Warn("chunk contributes no risks", "chunk_index", ch.Index, "attempts", out.attempts,
		"error", fmt.Errorf("%w: %v", apierr.ErrTransientExtraction, out.err))
	return out
}

// debate runs the panel over one chunk's findings. If ctx ends mid-debate
// the undebated findings are kept.
func (c *Controller) debate(ctx context.Context, log *logger.Logger, ch chunker.Chunk, cands []extractor.Candidate, out *chunkOutcome) []extractor.Candidate {
	if c.stages.Panel == nil || len(cands) == 0 {
		return cands
	}
	type verdict struct {
		kept      []extractor.Candidate
		dismissed int
	}
	v, err := await(ctx, func(ctx context.Context) (verdict, error) {
		kept, n := c.stages.Panel.Review(ctx, ch.Text, cands)
		return verdict{kept, n}, nil
	})
	if err != nil {
		return cands
	}
	if v.dismissed > 0 {
		log.Debug("debate dismissed findings", "chunk_index", ch.Index, "dismissed", v.dismissed)
	}
	out.dismissed = v.dismissed
	return v.kept
}

func (c *Controller) flush(jc *runtime.Context, log *logger.Logger, st *runState, ch chunker.Chunk, out chunkOutcome) error {
	st.attempted++
	if out.embedded {
		st.embedded++
	}
	if out.failed {
		st.failed++
	}

	kept, dropped := extractor.FilterSeen(out.risks, st.seen)
	rows := make([]*types.ReviewRisk, 0, len(kept))
	byLevel := map[string]int{}
	for _, cand := range kept {
		rows = append(rows, &types.ReviewRisk{
			ChunkIndex:  ch.Index,
			CharOffset:  locate(ch, cand.Location),
			Level:       cand.Level,
			Title:       cand.Title,
			Description: cand.Description,
			Location:    cand.Location,
			Suggestion:  cand.Suggestion,
			ViolatedLaw:  cand.ViolatedLaw,
			Reference:    cand.Reference,
			Defense:      cand.Defense,
			RulingReason: cand.RulingReason,
			Confidence:   cand.Confidence,
		})
		byLevel[cand.Level]++
	}
	if dropped > 0 {
		log.Debug("dropped duplicate findings", "chunk_index", ch.Index, "dropped", dropped)
	}

	done := ch.Index + 1
	progress := int(math.Round(float64(done) / float64(st.total) * 100))
	err := jc.AppendRisks(rows, progress, fmt.Sprintf("analyzed section %d of %d", done, st.total), map[string]interface{}{
		"processed_chunks": done,
		"failed_chunks":    st.failed,
	})
	if err != nil {
		return err
	}
	for _, cand := range kept {
		st.seen = append(st.seen, cand.Location)
	}

	if c.metrics != nil {
		label := string(extractor.OutcomeOK)
		if out.failed {
			label = "exhausted"
		}
		c.metrics.ObserveChunk(label, out.attempts, out.elapsed)
		c.metrics.ObserveRisks(byLevel, dropped)
	}
	return nil
}

func (c *Controller) complete(ctx context.Context, jc *runtime.Context, log *logger.Logger, span trace.Span, st *runState) error {
	risks, err := jc.ExistingRisks()
	if err != nil {
		return err
	}
	summary, counts := Summarize(risks)
	if st.failed > 0 {
		summary += fmt.Sprintf(" %d of %d sections could not be analyzed.", st.failed, st.total)
	}
	var alert *types.RadarAlert
	if c.stages.Radar != nil && screening.RadarApplies(st.category, risks) {
		alert, err = await(ctx, func(ctx context.Context) (*types.RadarAlert, error) {
			return c.stages.Radar.Scan(ctx, jc.Job.FileName, risks)
		})
		if err != nil {
			log.Warn("risk radar scan failed", "error", err)
			alert = nil
		}
	}
	if err := jc.Complete(summary, counts, alert); err != nil {
		return c.stopped(log, err)
	}
	span.SetAttributes(attribute.Int("review.risk_count", jc.Job.RiskCount))
	log.Info("review completed", "risk_count", jc.Job.RiskCount, "failed_chunks", st.failed, "total_chunks", st.total)
	return nil
}

func (c *Controller) fail(jc *runtime.Context, log *logger.Logger, span trace.Span, kind, reason string) error {
	sentinel := apierr.ErrFatalPipeline
	if kind == types.ErrorKindTimeout {
		sentinel = apierr.ErrTimeout
	}
	span.SetStatus(codes.Error, reason)
	log.Warn("review failed", "error_kind", kind, "error", fmt.Errorf("%w: %s", sentinel, reason))
	if err := jc.Fail(kind, reason); err != nil {
		return c.stopped(log, err)
	}
	return nil
}

// interrupted distinguishes the job's own deadline from shutdown of the
// worker. On shutdown the row stays processing and is reclaimed once its
// heartbeat goes stale.
func (c *Controller) interrupted(jc *runtime.Context, log *logger.Logger, span trace.Span, parent context.Context) error {
	if err := parent.Err(); err != nil {
		log.Info("review interrupted by shutdown", "processed_chunks", jc.Job.ProcessedChunks)
		return err
	}
	return c.fail(jc, log, span, types.ErrorKindTimeout, c.timeoutReason())
}

// stopped swallows ErrNotProcessing: somebody else (an admin ignore) already
// moved the job out of processing and this run has nothing left to do.
func (c *Controller) stopped(log *logger.Logger, err error) error {
	if errors.Is(err, runtime.ErrNotProcessing) {
		log.Info("job left processing state, stopping")
		return nil
	}
	return err
}

// Summarize counts persisted risks by severity and renders the job summary.
func Summarize(risks []*types.ReviewRisk) (string, map[string]int) {
	counts := map[string]int{types.LevelHigh: 0, types.LevelMedium: 0, types.LevelLow: 0}
	for _, r := range risks {
		counts[r.Level]++
	}
	if len(risks) == 0 {
		return "No compliance risks found.", counts
	}
	noun := "risks"
	if len(risks) == 1 {
		noun = "risk"
	}
	return fmt.Sprintf("Found %d %s: %d high, %d medium, %d low.",
		len(risks), noun, counts[types.LevelHigh], counts[types.LevelMedium], counts[types.LevelLow]), counts
}

func snippetsFrom(r retriever.Retrieved) []extractor.Snippet {
	if r.Empty() {
		return nil
	}
	out := toSnippets(r.Cases)
	return append(out, toSnippets(r.Regulations)...)
}

func toSnippets(matches []retriever.Match) []extractor.Snippet {
	if len(matches) == 0 {
		return nil
	}
	out := make([]extractor.Snippet, 0, len(matches))
	for _, m := range matches {
		out = append(out, extractor.Snippet{
			Kind:       m.Entry.Kind,
			Title:      m.Entry.Title,
			Category:   m.Entry.Category,
			Content:    m.Entry.Content,
			Similarity: m.Similarity,
		})
	}
	return out
}

// locate returns the rune offset of the quoted location within the source
// text, or the chunk start when the quote is not found verbatim.
func locate(ch chunker.Chunk, quote string) int {
	if quote == "" {
		return ch.Start
	}
	idx := strings.Index(ch.Text, quote)
	if idx < 0 {
		return ch.Start
	}
	return ch.Start + utf8.RuneCountInString(ch.Text[:idx])
}

// await runs fn and returns as soon as either fn finishes or ctx is done. A
// call still in flight at cancellation is abandoned, not waited for.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
