package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PickPosition is the draft role being filled.
type PickPosition string

const (
	PickFirst  PickPosition = "first"
	PickSecond PickPosition = "second"
	PickThird  PickPosition = "third"
)

// Valid reports whether p is a known pick position.
func (p PickPosition) Valid() bool {
	switch p {
	case PickFirst, PickSecond, PickThird:
		return true
	default:
		return false
	}
}

// ResultStatus is the terminal state of a picklist generation.
type ResultStatus string

const (
	StatusOK       ResultStatus = "ok"
	StatusOverflow ResultStatus = "overflow"
	StatusError    ResultStatus = "error"
)

// GenerationMode records how the roster was sent to the model.
type GenerationMode string

const (
	ModeSingle      GenerationMode = "single"
	ModeBatch       GenerationMode = "batch"
	ModeIncremental GenerationMode = "incremental"
)

// Priority is a user-declared metric weight.
type Priority struct {
	Metric string  `json:"metric" validate:"required"`
	Weight float64 `json:"weight" validate:"gte=0,lte=1000"`
	Reason string  `json:"reason,omitempty"`
}

// RankingEntry is one ranked team.
type RankingEntry struct {
	TeamNumber int     `json:"team_number"`
	Nickname   string  `json:"nickname,omitempty"`
	Score      float64 `json:"score"`
	Reasoning  string  `json:"reasoning"`
	AutoAdded  bool    `json:"auto_added"`
}

// PicklistResult is the outcome of a ranking request.
type PicklistResult struct {
	ID           uuid.UUID      `json:"id"`
	Fingerprint  string         `json:"fingerprint,omitempty"`
	Status       ResultStatus   `json:"status"`
	Message      string         `json:"message,omitempty"`
	Mode         GenerationMode `json:"mode,omitempty"`
	Entries      []RankingEntry `json:"entries"`
	Roster       []int          `json:"roster"`
	AutoAdded    []int          `json:"auto_added"`
	LoopDetected bool           `json:"loop_detected"`
	Warnings     []string       `json:"warnings,omitempty"`
	Model        string         `json:"model,omitempty"`
	TokensUsed   int            `json:"tokens_used"`
	RawResponse  string         `json:"raw_response,omitempty"`
	CacheHit     bool           `json:"cache_hit"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Duration     time.Duration  `json:"duration"`
}

// NewErrorResult builds a well-formed error result for roster.
func NewErrorResult(roster []int, message string) *PicklistResult {
	return &PicklistResult{
		ID:          uuid.New(),
		Status:      StatusError,
		Message:     message,
		Entries:     []RankingEntry{},
		Roster:      append([]int(nil), roster...),
		AutoAdded:   []int{},
		GeneratedAt: time.Now(),
	}
}

// IsOK reports whether the result carries a complete ranking.
func (r *PicklistResult) IsOK() bool {
	return r != nil && r.Status == StatusOK
}

// RankedCount returns the number of entries ranked by the model.
func (r *PicklistResult) RankedCount() int {
	n := 0
	for _, e := range r.Entries {
		if !e.AutoAdded {
			n++
		}
	}
	return n
}

// AddWarning appends a caller-visible warning, skipping exact duplicates.
func (r *PicklistResult) AddWarning(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}

// Clone returns a deep copy so cached results are never mutated by callers.
func (r *PicklistResult) Clone() *PicklistResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Entries = append([]RankingEntry(nil), r.Entries...)
	out.Roster = append([]int(nil), r.Roster...)
	out.AutoAdded = append([]int(nil), r.AutoAdded...)
	out.Warnings = append([]string(nil), r.Warnings...)
	return &out
}
