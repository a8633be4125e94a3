// Package parser turns raw model replies into ranking entries through a staged
// direct, repair and salvage pipeline with repetition-loop detection.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yourusername/frc-picklist/internal/logger"
	"github.com/yourusername/frc-picklist/internal/metrics"
	"github.com/yourusername/frc-picklist/internal/models"
)

// FinishLength is the finish reason of a reply cut off by the output token limit.
const FinishLength = "length"

// Attempt outcomes
const (
	OutcomeSuccess = "success"
	OutcomeNext    = "next"
	OutcomeSkipped = "skipped"
)

// Config holds parser tunables.
type Config struct {
	MaxReasonWords     int
	DuplicateThreshold float64
	MinCycleRun        int
}

// Input is one model reply to parse against the roster it was asked to rank.
type Input struct {
	Text         string
	FinishReason string
	Roster       []int
}

// Attempt records one stage execution.
type Attempt struct {
	Stage   string `json:"stage"`
	Outcome string `json:"outcome"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
}

// Result is the parser output. Entries are unique, restricted to the roster and in reply order.
type Result struct {
	Entries           []models.RankingEntry
	Status            models.ResultStatus
	Stage             string
	Truncated         bool
	Loop              LoopReport
	Attempts          []Attempt
	Warnings          []string
	DuplicatesDropped int
	UnknownDropped    int
	UncitedReasoning  int
	Err               error
}

// LoopDetected reports whether the reply repeated itself.
func (r *Result) LoopDetected() bool {
	return r.Loop.Detected
}

// Parser runs the stage pipeline.
type Parser struct {
	stages   []Stage
	loops    *LoopDetector
	maxWords int
	logger   *logger.PipelineLogger
}

// NewParser creates a parser with the direct, repair and salvage stages.
func NewParser(cfg Config, log *logger.PipelineLogger) *Parser {
	loops := NewLoopDetector()
	if cfg.DuplicateThreshold > 0 {
		loops.DuplicateThreshold = cfg.DuplicateThreshold
	}
	if cfg.MinCycleRun > 0 {
		loops.MinCycleRun = cfg.MinCycleRun
	}
	if cfg.MaxReasonWords <= 0 {
		cfg.MaxReasonWords = 12
	}
	return &Parser{
		stages:   []Stage{DirectStage{}, RepairStage{}, SalvageStage{}},
		loops:    loops,
		maxWords: cfg.MaxReasonWords,
		logger:   log,
	}
}

// WithLogger returns a copy of the parser logging through log.
func (p *Parser) WithLogger(log *logger.PipelineLogger) *Parser {
	cp := *p
	cp.logger = log
	return &cp
}

// Parse extracts ranking entries from a reply. It never panics on malformed input;
// total failure is reported as StatusError with Err wrapping models.ErrNoRecords.
func (p *Parser) Parse(in Input) *Result {
	result := &Result{Status: models.StatusError}

	var out *stageOutput
	for _, stage := range p.stages {
		name := stage.Name()
		if name == StageDirect && in.FinishReason == FinishLength {
			p.record(result, name, OutcomeSkipped, 0, nil)
			continue
		}

		o, err := stage.Parse(in.Text)
		if err != nil {
			p.record(result, name, OutcomeNext, 0, err)
			continue
		}
		p.record(result, name, OutcomeSuccess, len(o.Entries), nil)
		result.Stage = name
		out = o
		break
	}

	if out == nil {
		result.Err = fmt.Errorf("%w: all parse stages failed", models.ErrNoRecords)
		return result
	}

	result.Truncated = in.FinishReason == FinishLength || (result.Stage == StageRepair && out.Status == "")
	if result.Truncated {
		result.Warnings = append(result.Warnings, "model reply was truncated; ranked the complete records before the cut")
	}

	p.normalize(result, out.Entries, in.Roster)

	if out.Status == "overflow" {
		result.Status = models.StatusOverflow
		return result
	}
	if len(result.Entries) == 0 {
		result.Err = fmt.Errorf("%w: no roster teams in reply", models.ErrNoRecords)
		return result
	}
	result.Status = models.StatusOK
	return result
}

func (p *Parser) record(result *Result, stage, outcome string, entries int, err error) {
	a := Attempt{Stage: stage, Outcome: outcome, Entries: entries}
	if err != nil {
		a.Error = err.Error()
	}
	result.Attempts = append(result.Attempts, a)
	metrics.RecordParseAttempt(stage, outcome)
	if p.logger != nil {
		p.logger.LogParseAttempt(stage, outcome, entries, err)
	}
}

// normalize filters to the roster, cuts loops, drops duplicates and trims reasoning.
func (p *Parser) normalize(result *Result, raw []rawEntry, roster []int) {
	inRoster := make(map[int]bool, len(roster))
	for _, t := range roster {
		inRoster[t] = true
	}

	known := make([]rawEntry, 0, len(raw))
	var unknown []int
	for _, e := range raw {
		if !inRoster[e.Team] {
			unknown = append(unknown, e.Team)
			continue
		}
		known = append(known, e)
	}
	result.UnknownDropped = len(unknown)
	if len(unknown) > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("ignored %d entries for teams outside the roster", len(unknown)))
	}

	teams := make([]int, len(known))
	for i, e := range known {
		teams[i] = e.Team
	}
	result.Loop = p.loops.Detect(teams)
	if result.Loop.Detected {
		kept := known[:result.Loop.CutIndex]
		metrics.RecordLoopDetected(result.Loop.Kind)
		if p.logger != nil {
			p.logger.LogLoopDetected(result.Loop.Kind, len(known), uniqueCount(kept), result.Loop.DuplicateRatio)
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"model output repeated itself (%s, %.0f%% duplicates); kept the first occurrence of each team",
			result.Loop.Kind, result.Loop.DuplicateRatio*100))
		known = kept
	}

	seen := make(map[int]bool, len(known))
	result.Entries = make([]models.RankingEntry, 0, len(known))
	for _, e := range known {
		if seen[e.Team] {
			result.DuplicatesDropped++
			continue
		}
		seen[e.Team] = true

		reason := TrimWords(e.Reasoning, p.maxWords)
		if !CitesValue(reason) {
			result.UncitedReasoning++
		}
		result.Entries = append(result.Entries, models.RankingEntry{
			TeamNumber: e.Team,
			Score:      e.Score,
			Reasoning:  reason,
		})
	}

	if result.UncitedReasoning > 0 {
		metrics.RecordUncitedReasoning(result.UncitedReasoning)
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d entries cite no metric value in their reasoning", result.UncitedReasoning))
	}
}

func uniqueCount(entries []rawEntry) int {
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		seen[e.Team] = true
	}
	return len(seen)
}

var numericValue = regexp.MustCompile(`\d`)

// CitesValue reports whether reasoning mentions a concrete number.
func CitesValue(reason string) bool {
	return numericValue.MatchString(reason)
}

// TrimWords keeps at most n words of s.
func TrimWords(s string, n int) string {
	words := strings.Fields(s)
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
