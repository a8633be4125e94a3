package picklist

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/frc-picklist/internal/cache"
	"github.com/yourusername/frc-picklist/internal/llm"
	"github.com/yourusername/frc-picklist/internal/models"
)

// fakeCompleter answers prompts with a scripted function and counts calls.
type fakeCompleter struct {
	calls   int32
	mu      sync.Mutex
	prompts []llm.CompletionRequest
	reply   func(call int, roster []int, req llm.CompletionRequest) (string, error)
	delay   time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	call := int(atomic.AddInt32(&f.calls, 1))
	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	text, err := f.reply(call, rosterOf(req.User), req)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: text, FinishReason: llm.FinishStop, Model: "fake-model", InputTokens: 100, OutputTokens: 50}, nil
}

func (f *fakeCompleter) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// rosterOf extracts the ROSTER line of a user prompt.
func rosterOf(user string) []int {
	for _, line := range strings.Split(user, "\n") {
		if !strings.HasPrefix(line, "ROSTER (") {
			continue
		}
		_, list, _ := strings.Cut(line, ": ")
		var out []int
		for _, s := range strings.Split(list, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				out = append(out, n)
			}
		}
		return out
	}
	return nil
}

// rankByNumber scores lower team numbers higher, on a fixed scale.
func rankByNumber(roster []int) string {
	parts := make([]string, 0, len(roster))
	for _, team := range roster {
		parts = append(parts, fmt.Sprintf(`[%d,%d,"AP %d"]`, team, 1000-team, team%50))
	}
	return `{"p":[` + strings.Join(parts, ",") + `],"s":"ok"}`
}

func makeTeams(n int) []models.TeamRecord {
	teams := make([]models.TeamRecord, n)
	for i := range teams {
		teams[i] = models.TeamRecord{
			TeamNumber: 101 + i,
			Nickname:   fmt.Sprintf("Team %d", 101+i),
			Metrics: map[string]float64{
				"auto_points":   float64(n - i),
				"teleop_points": float64(2*n - i),
			},
		}
	}
	return teams
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BackoffBase = time.Millisecond
	opts.BackoffMax = 5 * time.Millisecond
	opts.CallTimeout = time.Second
	return opts
}

func entryTeams(entries []models.RankingEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.TeamNumber
	}
	return out
}

func assertComplete(t *testing.T, result *models.PicklistResult) {
	t.Helper()
	seen := make(map[int]bool)
	for _, e := range result.Entries {
		assert.False(t, seen[e.TeamNumber], "team %d listed twice", e.TeamNumber)
		seen[e.TeamNumber] = true
	}
	assert.Len(t, result.Entries, len(result.Roster))
	for _, team := range result.Roster {
		assert.True(t, seen[team], "team %d missing", team)
	}
}

// TestGenerateEndToEnd tests the three-team first-pick scenario
func TestGenerateEndToEnd(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return `{"p":[[100,92,"AP 30.0 best auto"],[200,71,"AP 20.0 solid"],[300,40,"AP 10.0 weak"]],"s":"ok"}`, nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	req := Request{
		Teams: []models.TeamRecord{
			{TeamNumber: 300, Nickname: "Low", Metrics: map[string]float64{"auto_points": 10}},
			{TeamNumber: 100, Nickname: "High", Metrics: map[string]float64{"auto_points": 30}},
			{TeamNumber: 200, Nickname: "Mid", Metrics: map[string]float64{"auto_points": 20}},
		},
		Priorities:   []models.Priority{{Metric: "auto_points", Weight: 1.0}},
		PickPosition: models.PickFirst,
	}
	result := gen.Generate(context.Background(), req)

	require.Equal(t, models.StatusOK, result.Status, result.Message)
	assert.Equal(t, []int{100, 200, 300}, entryTeams(result.Entries))
	assert.Equal(t, "High", result.Entries[0].Nickname)
	assert.Empty(t, result.AutoAdded)
	assert.Equal(t, models.ModeSingle, result.Mode)
	assert.Equal(t, Fingerprint(req), result.Fingerprint)
	assert.Equal(t, 150, result.TokensUsed)
	assertComplete(t, result)

	require.Len(t, fake.prompts, 1)
	assert.Contains(t, fake.prompts[0].User, "auto_points(")
	assert.Contains(t, fake.prompts[0].System, "first pick")
}

// TestGenerateConcurrentIdenticalRequests tests that racing callers share one model call
func TestGenerateConcurrentIdenticalRequests(t *testing.T) {
	fake := &fakeCompleter{
		delay: 50 * time.Millisecond,
		reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
			return rankByNumber(roster), nil
		},
	}
	gen := NewGenerator(fake, cache.NewMemoryStore(0), testOptions(), nil)
	req := Request{Teams: makeTeams(6), Priorities: []models.Priority{{Metric: "auto_points", Weight: 1}}}

	const callers = 8
	results := make([]*models.PicklistResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = gen.Generate(context.Background(), req)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fake.Calls())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, models.StatusOK, r.Status)
		assert.Equal(t, results[0].ID, r.ID)
		assert.Equal(t, entryTeams(results[0].Entries), entryTeams(r.Entries))
	}
}

// TestGenerateCachedResult tests that a repeated request is served from the cache
func TestGenerateCachedResult(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(4), Strategy: "Need a  strong AUTO"}

	first := gen.Generate(context.Background(), req)
	req.Strategy = "need a strong auto"
	second := gen.Generate(context.Background(), req)

	assert.Equal(t, 1, fake.Calls())
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, gen.Invalidate(context.Background(), first.Fingerprint, "test"))
	third := gen.Generate(context.Background(), req)
	assert.Equal(t, 2, fake.Calls())
	assert.NotEqual(t, first.ID, third.ID)
}

// TestGeneratePartialRanking tests that unranked teams are auto-added below ranked ones
func TestGeneratePartialRanking(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return `{"p":[[102,80,"AP 9"],[101,60,"AP 10"]],"s":"ok"}`, nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(4)})

	require.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, []int{102, 101, 103, 104}, entryTeams(result.Entries))
	assert.Equal(t, []int{103, 104}, result.AutoAdded)
	assert.Equal(t, 55.0, result.Entries[2].Score)
	assert.True(t, result.Entries[3].AutoAdded)
	assertComplete(t, result)

	var found bool
	for _, w := range result.Warnings {
		if strings.Contains(w, "auto-added") {
			found = true
		}
	}
	assert.True(t, found, "expected an auto-added warning in %v", result.Warnings)
}

// TestGenerateExcludedTeams tests that excluded teams leave the roster
func TestGenerateExcludedTeams(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(4), ExcludedTeams: []int{102}})

	require.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, []int{101, 103, 104}, result.Roster)
	assert.Equal(t, []int{101, 103, 104}, rosterOf(fake.prompts[0].User))
	assertComplete(t, result)
}

// TestGenerateInvalidRequest tests that validation failures come back as error results
func TestGenerateInvalidRequest(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) { return "", nil }}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"no teams", Request{}},
		{"all excluded", Request{Teams: makeTeams(2), ExcludedTeams: []int{101, 102}}},
		{"bad position", Request{Teams: makeTeams(2), PickPosition: "fourth"}},
		{"negative weight", Request{Teams: makeTeams(2), Priorities: []models.Priority{{Metric: "auto_points", Weight: -1}}}},
		{"huge weight", Request{Teams: makeTeams(2), Priorities: []models.Priority{{Metric: "auto_points", Weight: 1e308}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gen.Generate(context.Background(), tt.req)
			require.NotNil(t, result)
			assert.Equal(t, models.StatusError, result.Status)
			assert.NotEmpty(t, result.Message)
			assert.Empty(t, result.Entries)
		})
	}
	assert.Equal(t, 0, fake.Calls())
}

// TestGeneratePanicReleasesClaim tests that a panic mid-generation becomes an error result
// and does not leave the fingerprint locked for later callers
func TestGeneratePanicReleasesClaim(t *testing.T) {
	fake := &fakeCompleter{reply: func(call int, roster []int, _ llm.CompletionRequest) (string, error) {
		if call == 1 {
			panic("cannot create a decimal from NaN")
		}
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	var first *models.PicklistResult
	require.NotPanics(t, func() {
		first = gen.Generate(context.Background(), req)
	})
	require.NotNil(t, first)
	assert.Equal(t, models.StatusError, first.Status)
	assert.Contains(t, first.Message, "internal error")
	assert.Equal(t, Fingerprint(req), first.Fingerprint)
	assert.Empty(t, first.Entries)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	second := gen.Generate(ctx, req)
	require.NoError(t, ctx.Err())
	assert.False(t, second.CacheHit)
	assert.Equal(t, models.StatusOK, second.Status, second.Message)
	assertComplete(t, second)
	assert.Equal(t, 2, fake.Calls())
}

// TestGenerateUnparseableReply tests that total parse failure surfaces an error with the raw reply
func TestGenerateUnparseableReply(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return "I'm sorry, I can't rank these teams.", nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	result := gen.Generate(context.Background(), req)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "ranking failed")
	assert.Equal(t, "I'm sorry, I can't rank these teams.", result.RawResponse)
	assert.Empty(t, result.Entries)

	again := gen.Generate(context.Background(), req)
	assert.True(t, again.CacheHit)
	assert.Equal(t, 1, fake.Calls())
}

// TestGenerateRetriesTransientErrors tests bounded retry of rate limits
func TestGenerateRetriesTransientErrors(t *testing.T) {
	fake := &fakeCompleter{reply: func(call int, roster []int, _ llm.CompletionRequest) (string, error) {
		if call == 1 {
			return "", fmt.Errorf("429: %w", llm.ErrRateLimited)
		}
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(3)})
	assert.Equal(t, models.StatusOK, result.Status)
	assert.Equal(t, 2, fake.Calls())
}

// TestGenerateDoesNotRetryPermanentErrors tests that auth failures are terminal
func TestGenerateDoesNotRetryPermanentErrors(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return "", fmt.Errorf("401: %w", llm.ErrAuth)
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(3)})
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "authentication")
	assert.Equal(t, 1, fake.Calls())
}

// TestGenerateCallTimeout tests that a hung model call times out and is retried a bounded number of times
func TestGenerateCallTimeout(t *testing.T) {
	fake := &fakeCompleter{
		delay: time.Hour,
		reply: func(int, []int, llm.CompletionRequest) (string, error) { return "", nil },
	}
	opts := testOptions()
	opts.CallTimeout = 20 * time.Millisecond
	opts.MaxAttempts = 2
	store := cache.NewMemoryStore(0)
	gen := NewGenerator(fake, store, opts, nil)

	start := time.Now()
	result := gen.Generate(context.Background(), Request{Teams: makeTeams(3)})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.StatusError, result.Status)
	assert.Contains(t, result.Message, "timed out")
	assert.Equal(t, 2, fake.Calls())
	assert.Equal(t, 0, store.Stats().InFlight)
}

// TestGenerateOverflowSurfaced tests overflow reporting when batch fallback is off
func TestGenerateOverflowSurfaced(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return `{"p":[],"s":"overflow"}`, nil
	}}
	opts := testOptions()
	opts.BatchOnOverflow = false
	gen := NewGenerator(fake, nil, opts, nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(20)})
	assert.Equal(t, models.StatusOverflow, result.Status)
	assert.Contains(t, result.Message, "smaller roster")
	assert.Equal(t, 1, fake.Calls())
}

// TestGenerateOverflowSwitchesToBatch tests the batch retry after a model overflow
func TestGenerateOverflowSwitchesToBatch(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		if len(roster) == 20 {
			return `{"p":[],"s":"overflow"}`, nil
		}
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(20)})

	require.Equal(t, models.StatusOK, result.Status, result.Message)
	assert.Equal(t, models.ModeBatch, result.Mode)
	assert.Greater(t, fake.Calls(), 2)
	assertComplete(t, result)
	assert.Empty(t, result.AutoAdded)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "batches")
}

// TestGenerateBatchMode tests chunked generation of a roster over the output budget
func TestGenerateBatchMode(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		return rankByNumber(roster), nil
	}}
	opts := testOptions()
	opts.Prompt.OutputTokenBudget = 400
	opts.Prompt.ReferenceTeams = 2
	gen := NewGenerator(fake, nil, opts, nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(40)})

	require.Equal(t, models.StatusOK, result.Status, result.Message)
	assert.Equal(t, models.ModeBatch, result.Mode)
	assertComplete(t, result)
	assert.Empty(t, result.AutoAdded)

	want := make([]int, 40)
	for i := range want {
		want[i] = 101 + i
	}
	assert.Equal(t, want, entryTeams(result.Entries))

	for _, p := range fake.prompts {
		roster := rosterOf(p.User)
		assert.LessOrEqual(t, len(roster), 14)
		assert.Contains(t, p.User, "REFERENCE: ")
	}

	status, err := gen.BatchStatus(context.Background(), result.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, status.State)
	assert.Equal(t, fake.Calls(), status.Chunks)
	assert.Equal(t, status.Chunks, status.Completed)
}

// TestGenerateBatchChunkFailure tests that a failed chunk auto-adds only its own teams
func TestGenerateBatchChunkFailure(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		for _, team := range roster {
			if team == 120 {
				return "garbage", nil
			}
		}
		return rankByNumber(roster), nil
	}}
	opts := testOptions()
	opts.Prompt.OutputTokenBudget = 400
	opts.Prompt.ReferenceTeams = 2
	opts.MaxConcurrentChunks = 1
	gen := NewGenerator(fake, nil, opts, nil)

	result := gen.Generate(context.Background(), Request{Teams: makeTeams(40)})

	require.Equal(t, models.StatusOK, result.Status, result.Message)
	assertComplete(t, result)
	assert.NotEmpty(t, result.AutoAdded)
	assert.Contains(t, result.AutoAdded, 120)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "failed")

	last := result.Entries[len(result.Entries)-1]
	assert.True(t, last.AutoAdded)
}

// TestRankMissingTeams tests ranking the auto-added subset and merging it back
func TestRankMissingTeams(t *testing.T) {
	fake := &fakeCompleter{reply: func(call int, roster []int, _ llm.CompletionRequest) (string, error) {
		if call == 1 {
			return `{"p":[[101,95,"AP 30"],[102,70,"AP 20"]],"s":"ok"}`, nil
		}
		return `{"p":[[103,75,"AP 25"]],"s":"ok"}`, nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	first := gen.Generate(context.Background(), req)
	require.Equal(t, []int{103}, first.AutoAdded)

	merged := gen.RankMissingTeams(context.Background(), req, nil)
	require.Equal(t, models.StatusOK, merged.Status, merged.Message)
	assert.Equal(t, []int{101, 103, 102}, entryTeams(merged.Entries))
	assert.Empty(t, merged.AutoAdded)
	assert.Equal(t, models.ModeIncremental, merged.Mode)
	assert.Equal(t, "Team 103", merged.Entries[1].Nickname)

	require.Len(t, fake.prompts, 2)
	assert.Equal(t, []int{103}, rosterOf(fake.prompts[1].User))
	assert.Contains(t, fake.prompts[1].User, "ALREADY RANKED (context only, do not include): [101,95],[102,70]")

	cached := gen.Generate(context.Background(), req)
	assert.True(t, cached.CacheHit)
	assert.Equal(t, models.ModeIncremental, cached.Mode)
	assert.Equal(t, 2, fake.Calls())
}

// TestRankMissingTeamsNothingToDo tests a prior result without auto-added teams
func TestRankMissingTeamsNothingToDo(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	gen.Generate(context.Background(), req)
	out := gen.RankMissingTeams(context.Background(), req, nil)

	assert.Equal(t, models.StatusOK, out.Status)
	assert.Contains(t, out.Warnings, "no auto-added teams to rank")
	assert.Equal(t, 1, fake.Calls())
}

// TestRankMissingTeamsWithoutPrior tests the error when nothing was generated yet
func TestRankMissingTeamsWithoutPrior(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) { return "", nil }}
	gen := NewGenerator(fake, nil, testOptions(), nil)

	out := gen.RankMissingTeams(context.Background(), Request{Teams: makeTeams(3)}, nil)
	assert.Equal(t, models.StatusError, out.Status)
	assert.Contains(t, out.Message, "generate one first")
}

// TestGeneratorMergeAndUpdate tests merging caller-supplied entries into a cached result
func TestGeneratorMergeAndUpdate(t *testing.T) {
	fake := &fakeCompleter{reply: func(int, []int, llm.CompletionRequest) (string, error) {
		return `{"p":[[102,90,"AP 20"],[103,85,"AP 18"]],"s":"ok"}`, nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	first := gen.Generate(context.Background(), req)
	require.Equal(t, []int{101}, first.AutoAdded)

	merged, err := gen.MergeAndUpdate(context.Background(), first, []models.RankingEntry{{TeamNumber: 101, Score: 88, Reasoning: "AP 22"}})
	require.NoError(t, err)
	assert.Equal(t, []int{102, 101, 103}, entryTeams(merged.Entries))
	assert.False(t, merged.Entries[1].AutoAdded)

	cached := gen.Generate(context.Background(), req)
	assert.Equal(t, []int{102, 101, 103}, entryTeams(cached.Entries))

	_, err = gen.MergeAndUpdate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidRequest)
}

// TestBatchStatusUnknown tests the not-found path
func TestBatchStatusUnknown(t *testing.T) {
	gen := NewGenerator(&fakeCompleter{}, nil, testOptions(), nil)
	_, err := gen.BatchStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// TestInvalidateAll tests that every cached result is dropped
func TestInvalidateAll(t *testing.T) {
	fake := &fakeCompleter{reply: func(_ int, roster []int, _ llm.CompletionRequest) (string, error) {
		return rankByNumber(roster), nil
	}}
	gen := NewGenerator(fake, nil, testOptions(), nil)
	req := Request{Teams: makeTeams(3)}

	gen.Generate(context.Background(), req)
	require.NoError(t, gen.InvalidateAll(context.Background(), "dataset refreshed"))
	gen.Generate(context.Background(), req)
	assert.Equal(t, 2, fake.Calls())
}
