package picklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/frc-picklist/internal/cache"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/models"
	"github.com/yourusername/frc-picklist/internal/prompt"
)

// Calibration context sent with a rank-missing prompt.
const (
	contextTopTeams    = 8
	contextBottomTeams = 4
)

// RankMissingTeams asks the model to rank only the auto-added teams of a prior result
// and merges them in. The prior result is looked up by the request fingerprint when
// existing is nil. The merged result replaces the cached one.
func (g *Generator) RankMissingTeams(ctx context.Context, req Request, existing *models.PicklistResult) *models.PicklistResult {
	start := time.Now()
	fp := Fingerprint(req)
	plog := g.pipeline.WithFingerprint(fp)

	prep, err := req.prepare()
	if err != nil {
		return models.NewErrorResult(models.TeamNumbers(req.Teams), err.Error())
	}

	if existing == nil {
		existing, err = g.store.Get(ctx, fp)
		if err != nil {
			msg := fmt.Sprintf("no prior picklist to extend: %v", err)
			if errors.Is(err, cache.ErrMiss) {
				msg = "no prior picklist to extend; generate one first"
			}
			result := models.NewErrorResult(prep.roster, msg)
			result.Fingerprint = fp
			return result
		}
	}
	if existing.Fingerprint != "" {
		fp = existing.Fingerprint
		plog = g.pipeline.WithFingerprint(fp)
	}

	if len(existing.AutoAdded) == 0 {
		out := existing.Clone()
		out.AddWarning("no auto-added teams to rank")
		return out
	}

	byNumber := make(map[int]models.TeamRecord, len(prep.teams))
	for _, t := range prep.teams {
		byNumber[t.TeamNumber] = t
	}
	var teams []models.TeamRecord
	var missing, noData []int
	for _, team := range existing.AutoAdded {
		if t, ok := byNumber[team]; ok {
			teams = append(teams, t)
			missing = append(missing, team)
		} else {
			noData = append(noData, team)
		}
	}
	if len(teams) == 0 {
		out := existing.Clone()
		out.Status = models.StatusError
		out.Message = "no team data for any auto-added team"
		return out
	}

	selected := g.scorer.Select(models.MetricUniverse(teams), req.Priorities, req.Strategy, g.opts.Prompt.MaxMetrics)
	enc, err := g.encoder.Encode(teams, selected, req.Priorities)
	if err != nil {
		out := existing.Clone()
		out.Status = models.StatusError
		out.Message = fmt.Sprintf("failed to encode team data: %v", err)
		return out
	}

	preq := prompt.Request{
		Encoding:      enc,
		Roster:        missing,
		PickPosition:  req.position(),
		Priorities:    req.Priorities,
		Strategy:      req.Strategy,
		GameContext:   g.opts.GameContext,
		RankedContext: rankedContext(existing.Entries),
	}
	plan, err := g.builder.Plan(preq)
	if err != nil {
		out := existing.Clone()
		out.Status = models.StatusError
		out.Message = fmt.Sprintf("failed to build prompt: %v", err)
		return out
	}

	var ranked *rankOutcome
	if plan.Mode == models.ModeBatch {
		ranked = g.rankBatch(ctx, fp, preq, plan.ChunkSize, 0, plog)
	} else {
		g.progress.Start(fp, models.ModeIncremental, 1)
		ranked = g.rankOnce(ctx, preq, plog)
		g.progress.ChunkDone(fp, ranked.status == models.StatusOK)
	}

	if ranked.status != models.StatusOK {
		out := existing.Clone()
		out.Status = models.StatusError
		out.Message = ranked.message()
		if ranked.status == models.StatusOverflow {
			out.Message = fmt.Sprintf("model could not rank the %d missing teams in one reply", len(missing))
		}
		out.RawResponse = ranked.raw
		g.progress.Finish(fp, out.Status)
		metrics.RecordGeneration(string(out.Status), string(models.ModeIncremental), time.Since(start).Seconds(), len(out.AutoAdded))
		return out
	}

	merged, stats, err := g.reconciler.WithLogger(plog).Merge(existing, ranked.entries)
	if err != nil {
		out := existing.Clone()
		out.Status = models.StatusError
		out.Message = fmt.Sprintf("internal consistency error: %v", err)
		return out
	}
	applyNicknames(merged.Entries, prep.teams)
	merged.Fingerprint = fp
	merged.Mode = models.ModeIncremental
	merged.Model = ranked.model
	merged.TokensUsed = existing.TokensUsed + ranked.tokens
	merged.LoopDetected = existing.LoopDetected || ranked.loop
	merged.RawResponse = ""
	merged.Duration = time.Since(start)
	for _, w := range ranked.warnings {
		merged.AddWarning(w)
	}
	if len(noData) > 0 {
		merged.AddWarning(fmt.Sprintf("no team data for %d auto-added team(s): %s", len(noData), joinInts(noData)))
	}
	if stats.StillAutoAdded > 0 {
		merged.AddWarning(fmt.Sprintf("%d team(s) remain auto-added", stats.StillAutoAdded))
	}

	g.audit.LogMerge(merged.ID.String(), stats.Replaced, stats.Ignored, stats.StillAutoAdded)
	g.progress.Finish(fp, merged.Status)
	metrics.RecordGeneration(string(merged.Status), string(models.ModeIncremental), merged.Duration.Seconds(), stats.StillAutoAdded)
	g.writeBack(ctx, fp, merged)
	return merged
}

// MergeAndUpdate merges caller-supplied ranked entries into a prior result and
// refreshes the cached copy when the result carries a fingerprint.
func (g *Generator) MergeAndUpdate(ctx context.Context, existing *models.PicklistResult, entries []models.RankingEntry) (*models.PicklistResult, error) {
	merged, stats, err := g.reconciler.Merge(existing, entries)
	if err != nil {
		return nil, err
	}
	g.audit.LogMerge(merged.ID.String(), stats.Replaced, stats.Ignored, stats.StillAutoAdded)
	if merged.Fingerprint != "" {
		g.writeBack(ctx, merged.Fingerprint, merged)
	}
	return merged, nil
}

func (g *Generator) writeBack(ctx context.Context, fp string, result *models.PicklistResult) {
	if err := g.store.Put(ctx, fp, result, g.opts.ResultTTL); err != nil {
		g.storeFailure("put", fp, err)
	}
}

// rankedContext returns the top and bottom model-ranked entries of a prior list.
func rankedContext(entries []models.RankingEntry) []models.RankingEntry {
	var ranked []models.RankingEntry
	for _, e := range entries {
		if !e.AutoAdded {
			ranked = append(ranked, e)
		}
	}
	if len(ranked) <= contextTopTeams+contextBottomTeams {
		return ranked
	}
	out := append([]models.RankingEntry(nil), ranked[:contextTopTeams]...)
	return append(out, ranked[len(ranked)-contextBottomTeams:]...)
}
