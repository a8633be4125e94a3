// Package picklist orchestrates picklist generation: request fingerprinting, result
// caching with one in-flight generation per fingerprint, single-shot or batched
// model calls, and reconciliation into complete rankings.
package picklist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/cache"
	"github.com/yourusername/frc-picklist/internal/config"
	"github.com/yourusername/frc-picklist/internal/encoding"
	"github.com/yourusername/frc-picklist/internal/llm"
	"github.com/yourusername/frc-picklist/internal/logger"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/models"
	"github.com/yourusername/frc-picklist/internal/parser"
	"github.com/yourusername/frc-picklist/internal/prompt"
	"github.com/yourusername/frc-picklist/internal/reconcile"
)

// Options holds generator tunables.
type Options struct {
	Prompt              prompt.Config
	Parser              parser.Config
	Fallback            reconcile.FallbackPolicy
	DigestLength        int
	GameContext         string
	Temperature         float64
	MaxConcurrentChunks int
	BatchOnOverflow     bool
	CallTimeout         time.Duration
	MaxAttempts         int
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	ResultTTL           time.Duration
	ErrorTTL            time.Duration
	ProgressRetention   time.Duration
}

// DefaultOptions returns the default generator options.
func DefaultOptions() Options {
	return Options{
		Prompt:              prompt.DefaultConfig(),
		Parser:              parser.Config{MaxReasonWords: 12, DuplicateThreshold: 0.4},
		Fallback:            reconcile.DefaultFallbackPolicy(),
		DigestLength:        encoding.DefaultDigestLength,
		MaxConcurrentChunks: 3,
		BatchOnOverflow:     true,
		CallTimeout:         3 * time.Minute,
		MaxAttempts:         3,
		BackoffBase:         time.Second,
		BackoffMax:          15 * time.Second,
		ErrorTTL:            time.Minute,
		ProgressRetention:   time.Hour,
	}
}

// OptionsFromConfig maps the picklist, cache and llm config sections.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Picklist
	opts := DefaultOptions()
	opts.Prompt = prompt.Config{
		MaxReasonWords:    p.MaxReasonWords,
		PromptTokenBudget: p.PromptTokenBudget,
		OutputTokenBudget: p.OutputTokenBudget,
		TokensPerEntry:    p.TokensPerEntry,
		MaxMetrics:        p.MaxMetrics,
		ReferenceTeams:    p.ReferenceTeams,
		MinChunkSize:      p.MinChunkSize,
	}
	opts.Parser = parser.Config{MaxReasonWords: p.MaxReasonWords, DuplicateThreshold: p.LoopDuplicateThreshold}
	opts.Fallback = reconcile.FallbackPolicy{Margin: p.FallbackMargin, Floor: p.FallbackFloor}
	opts.DigestLength = p.DigestLength
	opts.GameContext = p.GameContext
	opts.Temperature = cfg.LLM.Temperature
	opts.MaxConcurrentChunks = p.MaxConcurrentChunks
	opts.BatchOnOverflow = p.BatchOnOverflow
	opts.CallTimeout = p.CallTimeout()
	opts.MaxAttempts = p.MaxAttempts
	opts.BackoffBase = time.Duration(p.BackoffBaseMs) * time.Millisecond
	opts.BackoffMax = time.Duration(p.BackoffMaxMs) * time.Millisecond
	opts.ResultTTL = cfg.Cache.ResultTTL()
	opts.ErrorTTL = cfg.Cache.ErrorTTL()
	return opts
}

// Generator produces complete picklists.
type Generator struct {
	completer  llm.Completer
	store      cache.Store
	scorer     prompt.RelevanceScorer
	encoder    *encoding.Encoder
	builder    *prompt.Builder
	parser     *parser.Parser
	reconciler *reconcile.Reconciler
	progress   *ProgressTracker
	opts       Options
	logger     *logrus.Entry
	pipeline   *logger.PipelineLogger
	audit      *logger.AuditLogger
}

// NewGenerator wires a generator. A nil store uses an in-memory store.
func NewGenerator(completer llm.Completer, store cache.Store, opts Options, log *logrus.Logger) *Generator {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if store == nil {
		store = cache.NewMemoryStore(opts.ResultTTL)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.MaxConcurrentChunks <= 0 {
		opts.MaxConcurrentChunks = 1
	}
	if opts.ErrorTTL <= 0 {
		opts.ErrorTTL = time.Minute
	}

	pipeline := logger.NewPipelineLogger(log)
	builder := prompt.NewBuilder(opts.Prompt, log)
	opts.Prompt = builder.Config()

	return &Generator{
		completer:  completer,
		store:      store,
		scorer:     prompt.NewKeywordScorer(),
		encoder:    encoding.NewEncoder(nil, encoding.NewDigester(opts.DigestLength), log),
		builder:    builder,
		parser:     parser.NewParser(opts.Parser, pipeline),
		reconciler: reconcile.NewReconciler(opts.Fallback, pipeline),
		progress:   NewProgressTracker(opts.ProgressRetention),
		opts:       opts,
		logger:     log.WithField("component", "generator"),
		pipeline:   pipeline,
		audit:      logger.NewAuditLogger(log),
	}
}

// WithScorer replaces the metric relevance scorer.
func (g *Generator) WithScorer(scorer prompt.RelevanceScorer) *Generator {
	g.scorer = scorer
	return g
}

// Store returns the result store.
func (g *Generator) Store() cache.Store {
	return g.store
}

// Generate returns a complete picklist for req. It never returns nil: every failure
// is reported through the result's status and message.
func (g *Generator) Generate(ctx context.Context, req Request) *models.PicklistResult {
	start := time.Now()
	metrics.GenerationStarted()
	defer metrics.GenerationFinished()

	prep, err := req.prepare()
	if err != nil {
		result := models.NewErrorResult(models.TeamNumbers(req.Teams), err.Error())
		g.finish(result, start, g.pipeline)
		return result
	}

	fp := Fingerprint(req)
	plog := g.pipeline.WithFingerprint(fp)

	cached, owner := g.acquire(ctx, fp, plog)
	if cached != nil {
		cached.CacheHit = true
		return cached
	}
	if ctx.Err() != nil && !owner {
		result := models.NewErrorResult(prep.roster, fmt.Sprintf("generation cancelled: %v", ctx.Err()))
		result.Fingerprint = fp
		return result
	}

	saved := false
	if owner {
		defer func() {
			if !saved {
				g.release(fp, plog)
			}
		}()
	}

	result, panicked := g.guardedGenerate(ctx, fp, req, prep, plog)
	g.finish(result, start, plog)

	if owner && !panicked {
		g.save(ctx, fp, result, plog)
		saved = true
	}
	return result
}

// guardedGenerate runs generate and converts a panic into an uncacheable error result.
func (g *Generator) guardedGenerate(ctx context.Context, fp string, req Request, prep *prepared, plog *logger.PipelineLogger) (result *models.PicklistResult, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			g.logger.WithFields(logrus.Fields{
				"fingerprint": fp,
				"panic":       fmt.Sprint(r),
			}).Error("Picklist generation panicked")
			result = models.NewErrorResult(prep.roster, fmt.Sprintf("internal error during generation: %v", r))
			result.Fingerprint = fp
		}
	}()
	return g.generate(ctx, fp, req, prep, plog), false
}

func (g *Generator) release(fp string, plog *logger.PipelineLogger) {
	if err := g.store.Release(context.Background(), fp); err != nil {
		g.storeFailure("release", fp, err)
		return
	}
	plog.LogCacheEvent("released", fp)
}

// acquire returns a cached result, or reports whether this caller owns the generation.
// A store failure degrades to an uncached generation.
func (g *Generator) acquire(ctx context.Context, fp string, plog *logger.PipelineLogger) (*models.PicklistResult, bool) {
	for {
		cached, err := g.store.Get(ctx, fp)
		if err == nil {
			metrics.RecordCacheLookup("hit")
			plog.LogCacheEvent("hit", fp)
			return cached, false
		}
		if !errors.Is(err, cache.ErrMiss) {
			g.storeFailure("get", fp, err)
			return nil, false
		}

		claimed, err := g.store.Claim(ctx, fp)
		if err != nil {
			g.storeFailure("claim", fp, err)
			return nil, false
		}
		if claimed {
			metrics.RecordCacheLookup("miss")
			plog.LogCacheEvent("claimed", fp)
			return nil, true
		}

		metrics.RecordCacheLookup("wait")
		plog.LogCacheEvent("waiting", fp)
		cached, err = g.store.Wait(ctx, fp)
		if err == nil {
			return cached, false
		}
		if errors.Is(err, cache.ErrNotClaimed) || errors.Is(err, cache.ErrMiss) {
			continue
		}
		if ctx.Err() != nil {
			return nil, false
		}
		g.storeFailure("wait", fp, err)
		return nil, false
	}
}

// save caches the result of an owned generation, or releases the claim when the
// caller went away and the result only reflects the cancellation.
func (g *Generator) save(ctx context.Context, fp string, result *models.PicklistResult, plog *logger.PipelineLogger) {
	if ctx.Err() != nil {
		g.release(fp, plog)
		return
	}

	ttl := g.opts.ResultTTL
	if !result.IsOK() {
		ttl = g.opts.ErrorTTL
	}
	if err := g.store.Put(ctx, fp, result, ttl); err != nil {
		g.storeFailure("put", fp, err)
		g.release(fp, plog)
		return
	}
	plog.LogCacheEvent("stored", fp)
}

func (g *Generator) storeFailure(op, fp string, err error) {
	metrics.RecordCacheLookup("error")
	g.logger.WithFields(logrus.Fields{
		"operation":   op,
		"fingerprint": fp,
		"error":       err.Error(),
	}).Warn("Result cache unavailable; continuing without it")
}

// generate runs the pipeline for a prepared request.
func (g *Generator) generate(ctx context.Context, fp string, req Request, prep *prepared, plog *logger.PipelineLogger) *models.PicklistResult {
	result := &models.PicklistResult{
		ID:          uuid.New(),
		Fingerprint: fp,
		Mode:        models.ModeSingle,
		Entries:     []models.RankingEntry{},
		Roster:      append([]int(nil), prep.roster...),
		AutoAdded:   []int{},
	}

	selected := g.scorer.Select(models.MetricUniverse(prep.teams), req.Priorities, req.Strategy, g.opts.Prompt.MaxMetrics)
	enc, err := g.encoder.Encode(prep.teams, selected, req.Priorities)
	if err != nil {
		return g.fail(result, fmt.Sprintf("failed to encode team data: %v", err))
	}
	if enc.RawCodes {
		result.AddWarning("metric codes unavailable; sent raw metric names")
	}
	if len(enc.Fallbacks) > 0 {
		result.AddWarning(fmt.Sprintf("%d team(s) sent with raw metric names: %s", len(enc.Fallbacks), joinInts(enc.Fallbacks)))
	}

	preq := prompt.Request{
		Encoding:     enc,
		Roster:       prep.roster,
		PickPosition: req.position(),
		Priorities:   req.Priorities,
		Strategy:     req.Strategy,
		GameContext:  g.opts.GameContext,
	}
	plan, err := g.builder.Plan(preq)
	if err != nil {
		return g.fail(result, fmt.Sprintf("failed to build prompt: %v", err))
	}

	var out *rankOutcome
	if plan.Mode == models.ModeBatch {
		result.Mode = models.ModeBatch
		out = g.rankBatch(ctx, fp, preq, plan.ChunkSize, g.opts.Prompt.ReferenceTeams, plog)
	} else {
		g.progress.Start(fp, models.ModeSingle, 1)
		out = g.rankOnce(ctx, preq, plog)
		g.progress.ChunkDone(fp, out.status == models.StatusOK)

		if out.status == models.StatusOverflow && g.opts.BatchOnOverflow && len(prep.roster) > g.opts.Prompt.MinChunkSize {
			g.logger.WithFields(logrus.Fields{
				"fingerprint": fp,
				"teams":       len(prep.roster),
			}).Warn("Model signalled overflow; switching to batch mode")
			result.AddWarning("model could not fit the full roster; ranked in batches instead")
			result.Mode = models.ModeBatch
			chunkSize := plan.ChunkSize
			if chunkSize >= len(prep.roster) {
				chunkSize = max((len(prep.roster)+1)/2, g.opts.Prompt.MinChunkSize)
			}
			spent := out.tokens
			out = g.rankBatch(ctx, fp, preq, chunkSize, g.opts.Prompt.ReferenceTeams, plog)
			out.tokens += spent
		}
	}

	return g.complete(result, out, prep.roster, prep.teams, plog)
}

// complete turns a rank outcome into the final result.
func (g *Generator) complete(result *models.PicklistResult, out *rankOutcome, roster []int, teams []models.TeamRecord, plog *logger.PipelineLogger) *models.PicklistResult {
	result.Model = out.model
	result.TokensUsed = out.tokens
	result.LoopDetected = out.loop
	for _, w := range out.warnings {
		result.AddWarning(w)
	}

	switch out.status {
	case models.StatusOverflow:
		result.Status = models.StatusOverflow
		result.Message = fmt.Sprintf("model could not rank all %d teams in one reply; retry with a smaller roster or batch by priority", len(roster))
		return result
	case models.StatusError:
		result.RawResponse = out.raw
		return g.fail(result, out.message())
	}

	outcome, err := g.reconciler.WithLogger(plog).Reconcile(out.entries, roster)
	if err != nil {
		return g.fail(result, fmt.Sprintf("internal consistency error: %v", err))
	}
	result.Entries = outcome.Entries
	result.AutoAdded = outcome.AutoAdded
	if result.AutoAdded == nil {
		result.AutoAdded = []int{}
	}
	applyNicknames(result.Entries, teams)
	if n := len(result.AutoAdded); n > 0 {
		result.AddWarning(fmt.Sprintf("%d of %d teams were not ranked by the model and were auto-added at score %s",
			n, len(roster), formatScore(outcome.FallbackScore)))
	}
	result.Status = models.StatusOK
	return result
}

func (g *Generator) fail(result *models.PicklistResult, message string) *models.PicklistResult {
	result.Status = models.StatusError
	result.Message = message
	result.Entries = []models.RankingEntry{}
	result.AutoAdded = []int{}
	return result
}

// finish stamps timing, records metrics and closes progress tracking.
func (g *Generator) finish(result *models.PicklistResult, start time.Time, plog *logger.PipelineLogger) {
	result.GeneratedAt = time.Now()
	result.Duration = time.Since(start)
	mode := result.Mode
	if mode == "" {
		mode = models.ModeSingle
	}

	metrics.RecordGeneration(string(result.Status), string(mode), result.Duration.Seconds(), len(result.AutoAdded))
	if result.Fingerprint != "" {
		g.progress.Finish(result.Fingerprint, result.Status)
	}
	plog.LogGenerationComplete(string(result.Status), string(mode), len(result.Roster), len(result.AutoAdded),
		result.LoopDetected, float64(result.Duration.Milliseconds()))
}

// BatchStatus reports the progress of a generation. Finished generations that are no
// longer tracked are reported complete when their result is still cached.
func (g *Generator) BatchStatus(ctx context.Context, fingerprint string) (*BatchStatus, error) {
	if status, ok := g.progress.Get(fingerprint); ok {
		return &status, nil
	}
	result, err := g.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, fmt.Errorf("%w: no generation for %s", models.ErrNotFound, fingerprint)
		}
		return nil, err
	}
	state := StateComplete
	if !result.IsOK() {
		state = StateFailed
	}
	return &BatchStatus{
		Fingerprint: fingerprint,
		State:       state,
		Mode:        result.Mode,
		Message:     string(result.Status),
		UpdatedAt:   result.GeneratedAt,
	}, nil
}

// Invalidate drops the cached result for a fingerprint.
func (g *Generator) Invalidate(ctx context.Context, fingerprint, reason string) error {
	if err := g.store.Invalidate(ctx, fingerprint); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", fingerprint, err)
	}
	g.progress.Forget(fingerprint)
	g.audit.LogInvalidation(fingerprint, reason)
	return nil
}

// InvalidateAll drops every cached result.
func (g *Generator) InvalidateAll(ctx context.Context, reason string) error {
	if err := g.store.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	g.progress.Clear()
	g.audit.LogInvalidation("", reason)
	return nil
}

func applyNicknames(entries []models.RankingEntry, teams []models.TeamRecord) {
	names := make(map[int]string, len(teams))
	for _, t := range teams {
		names[t.TeamNumber] = t.Nickname
	}
	for i := range entries {
		if entries[i].Nickname == "" {
			entries[i].Nickname = names[entries[i].TeamNumber]
		}
	}
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
