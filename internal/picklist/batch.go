package picklist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/frc-picklist/internal/llm"
	"github.com/yourusername/frc-picklist/internal/logger"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/models"
	"github.com/yourusername/frc-picklist/internal/parser"
	"github.com/yourusername/frc-picklist/internal/prompt"
)

// rankOutcome is what one or more model calls produced before reconciliation.
// entries are unique, model-ranked and restricted to the roster that was asked for.
type rankOutcome struct {
	status   models.ResultStatus
	entries  []models.RankingEntry
	loop     bool
	warnings []string
	model    string
	tokens   int
	raw      string
	err      error
}

func (o *rankOutcome) message() string {
	if o.err == nil {
		return "ranking failed"
	}
	return fmt.Sprintf("ranking failed: %v", o.err)
}

func failedOutcome(err error) *rankOutcome {
	return &rankOutcome{status: models.StatusError, err: err}
}

// callModel runs one completion with a per-call deadline, retrying transient failures
// with capped exponential backoff.
func (g *Generator) callModel(ctx context.Context, p *prompt.Prompt, plog *logger.PipelineLogger) (*llm.Completion, error) {
	req := llm.CompletionRequest{
		System:          p.System,
		User:            p.User,
		MaxOutputTokens: p.MaxOutputTokens,
		Temperature:     g.opts.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if g.opts.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, g.opts.CallTimeout)
		}
		start := time.Now()
		completion, err := g.completer.Complete(callCtx, req)
		cancel()
		latency := float64(time.Since(start).Milliseconds())

		if err == nil {
			plog.LogLLMCall(completion.Model, completion.FinishReason, attempt,
				completion.InputTokens, completion.OutputTokens, latency, nil)
			return completion, nil
		}
		// A call deadline with a live parent context is a timeout worth retrying.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: no reply within %s", llm.ErrTimeout, g.opts.CallTimeout)
		}
		plog.LogLLMCall("", "", attempt, 0, 0, latency, err)
		lastErr = err

		if !llm.IsTransient(err) || attempt == g.opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(g.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (g *Generator) backoff(attempt int) time.Duration {
	d := g.opts.BackoffBase << (attempt - 1)
	if g.opts.BackoffMax > 0 && (d > g.opts.BackoffMax || d <= 0) {
		d = g.opts.BackoffMax
	}
	return d
}

// rankOnce builds, sends and parses one prompt.
func (g *Generator) rankOnce(ctx context.Context, preq prompt.Request, plog *logger.PipelineLogger) *rankOutcome {
	p, err := g.builder.Build(preq)
	if err != nil {
		return failedOutcome(err)
	}
	completion, err := g.callModel(ctx, p, plog)
	if err != nil {
		return failedOutcome(err)
	}

	parsed := g.parser.WithLogger(plog).Parse(parser.Input{
		Text:         completion.Text,
		FinishReason: completion.FinishReason,
		Roster:       preq.Roster,
	})
	out := &rankOutcome{
		status:   parsed.Status,
		entries:  parsed.Entries,
		loop:     parsed.LoopDetected(),
		warnings: parsed.Warnings,
		model:    completion.Model,
		tokens:   completion.InputTokens + completion.OutputTokens,
		err:      parsed.Err,
	}
	if parsed.Status == models.StatusError {
		out.raw = completion.Text
	}
	return out
}

// rankBatch ranks the roster in chunks. Reference teams are added to every chunk
// and used to shift each chunk onto the first chunk's scale. Chunk failures leave
// their teams unranked; the batch fails only when every chunk fails.
func (g *Generator) rankBatch(ctx context.Context, fp string, preq prompt.Request, chunkSize, referenceCount int, plog *logger.PipelineLogger) *rankOutcome {
	refs := referenceTeams(preq, referenceCount)
	chunks := partition(without(preq.Roster, refs), chunkSize)
	if len(chunks) == 0 {
		chunks = [][]int{{}}
	}
	g.progress.Start(fp, models.ModeBatch, len(chunks))

	results := make([]*rankOutcome, len(chunks))
	rosters := make([][]int, len(chunks))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.opts.MaxConcurrentChunks)
	for i, chunk := range chunks {
		roster := append(append([]int(nil), chunk...), refs...)
		rosters[i] = roster
		creq := preq
		creq.Roster = roster
		creq.ReferenceTeams = refs
		creq.Chunk = i + 1
		creq.Chunks = len(chunks)

		group.Go(func() error {
			out := g.rankChunk(groupCtx, creq, plog)
			results[i] = out
			ok := out.status == models.StatusOK
			g.progress.ChunkDone(fp, ok)
			metrics.RecordChunk(string(out.status))
			return nil
		})
	}
	_ = group.Wait()

	return g.combine(results, rosters, refs, plog)
}

// rankChunk ranks one chunk on a worker goroutine, where a panic would otherwise
// escape the generator's recovery.
func (g *Generator) rankChunk(ctx context.Context, req prompt.Request, plog *logger.PipelineLogger) (out *rankOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failedOutcome(fmt.Errorf("chunk %d panicked: %v", req.Chunk, r))
		}
	}()
	return g.rankOnce(ctx, req, plog)
}

// combine merges chunk outcomes in chunk order, independent of completion order.
func (g *Generator) combine(results []*rankOutcome, rosters [][]int, refs []int, plog *logger.PipelineLogger) *rankOutcome {
	total := len(results)
	isRef := make(map[int]bool, len(refs))
	for _, r := range refs {
		isRef[r] = true
	}

	baseline := -1
	for i, out := range results {
		if out.status == models.StatusOK && len(refScores(out.entries, isRef)) > 0 {
			baseline = i
			break
		}
	}
	var base map[int]float64
	if baseline >= 0 {
		base = refScores(results[baseline].entries, isRef)
	}

	combined := &rankOutcome{status: models.StatusError}
	seen := make(map[int]bool)
	var firstErr *rankOutcome
	for i, out := range results {
		combined.tokens += out.tokens
		combined.loop = combined.loop || out.loop
		if combined.model == "" {
			combined.model = out.model
		}
		combined.warnings = append(combined.warnings, out.warnings...)

		if out.status != models.StatusOK {
			if firstErr == nil {
				firstErr = out
			}
			reason := string(out.status)
			if out.err != nil {
				reason = out.err.Error()
			}
			combined.warnings = append(combined.warnings,
				fmt.Sprintf("chunk %d of %d failed (%s); its %d teams fall back to auto-added scores", i+1, total, reason, len(rosters[i])))
			plog.LogChunkComplete(i+1, total, len(rosters[i]), 0, 0, out.err)
			continue
		}
		combined.status = models.StatusOK

		offset := 0.0
		if base != nil && i != baseline {
			offset = calibrationOffset(base, refScores(out.entries, isRef))
		}
		plog.LogChunkComplete(i+1, total, len(rosters[i]), len(out.entries), offset, nil)

		// No chunk before the baseline ranked a reference team, so the first
		// occurrence of a reference team carries the baseline score.
		for _, e := range out.entries {
			if seen[e.TeamNumber] {
				continue
			}
			seen[e.TeamNumber] = true
			e.Score = shift(e.Score, offset)
			combined.entries = append(combined.entries, e)
		}
	}

	if combined.status != models.StatusOK {
		if firstErr != nil {
			combined.err = firstErr.err
			combined.raw = firstErr.raw
			if firstErr.status == models.StatusOverflow {
				combined.status = models.StatusOverflow
			}
		}
	}
	return combined
}

// referenceTeams picks calibration anchors: the top and bottom of the roster by
// prior heuristic score. Rosters too small to spare them get none.
func referenceTeams(preq prompt.Request, count int) []int {
	n := len(preq.Roster)
	if count <= 0 || n <= 2*count || preq.Encoding == nil {
		return nil
	}
	teams := preq.Encoding.Subset(preq.Roster)
	sort.SliceStable(teams, func(i, j int) bool {
		return teams[i].PriorScore > teams[j].PriorScore
	})

	top := (count + 1) / 2
	bottom := count - top
	refs := make([]int, 0, count)
	for _, t := range teams[:top] {
		refs = append(refs, t.TeamNumber)
	}
	for _, t := range teams[len(teams)-bottom:] {
		refs = append(refs, t.TeamNumber)
	}
	return refs
}

// partition splits roster into the fewest chunks of at most size teams, with
// chunk sizes differing by at most one.
func partition(roster []int, size int) [][]int {
	if len(roster) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(roster)
	}
	count := (len(roster) + size - 1) / size
	base, extra := len(roster)/count, len(roster)%count

	chunks := make([][]int, 0, count)
	start := 0
	for i := 0; i < count; i++ {
		n := base
		if i < extra {
			n++
		}
		chunks = append(chunks, append([]int(nil), roster[start:start+n]...))
		start += n
	}
	return chunks
}

func without(roster, drop []int) []int {
	skip := make(map[int]bool, len(drop))
	for _, t := range drop {
		skip[t] = true
	}
	out := make([]int, 0, len(roster))
	for _, t := range roster {
		if !skip[t] {
			out = append(out, t)
		}
	}
	return out
}

func refScores(entries []models.RankingEntry, isRef map[int]bool) map[int]float64 {
	scores := make(map[int]float64)
	for _, e := range entries {
		if isRef[e.TeamNumber] {
			scores[e.TeamNumber] = e.Score
		}
	}
	return scores
}

// calibrationOffset is the mean difference between baseline and chunk scores over
// the reference teams both ranked.
func calibrationOffset(base, chunk map[int]float64) float64 {
	sum := decimal.Zero
	n := 0
	for team, score := range chunk {
		b, ok := base[team]
		if !ok {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(b).Sub(decimal.NewFromFloat(score)))
		n++
	}
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
}

func shift(score, offset float64) float64 {
	if offset == 0 {
		return score
	}
	return decimal.NewFromFloat(score).Add(decimal.NewFromFloat(offset)).Round(2).InexactFloat64()
}
