// Package prompt assembles token-bounded ranking prompts from encoded team data.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/encoding"
	"github.com/yourusername/frc-picklist/internal/models"
)

// ResponseSchema is the exact compact schema the model must return.
const ResponseSchema = `{"p":[[team,score,"reason"],...],"s":"ok"|"overflow"}`

// OverflowReply is the only acceptable reply when the full ranking does not fit.
const OverflowReply = `{"p":[],"s":"overflow"}`

var (
	// ErrEmptyRoster indicates a prompt with no teams to rank
	ErrEmptyRoster = errors.New("roster is empty")

	// ErrMissingEncoding indicates a roster team with no encoded data
	ErrMissingEncoding = errors.New("roster team missing from encoding")
)

// Config holds prompt sizing tunables.
type Config struct {
	MaxReasonWords    int
	PromptTokenBudget int
	OutputTokenBudget int
	TokensPerEntry    int
	MaxMetrics        int
	ReferenceTeams    int
	MinChunkSize      int
}

// DefaultConfig returns the default prompt sizing.
func DefaultConfig() Config {
	return Config{
		MaxReasonWords:    12,
		PromptTokenBudget: 12000,
		OutputTokenBudget: 4000,
		TokensPerEntry:    28,
		MaxMetrics:        DefaultMaxMetrics,
		ReferenceTeams:    4,
		MinChunkSize:      8,
	}
}

// Request describes one prompt: the teams to rank and the ranking objective.
type Request struct {
	Encoding       *encoding.Encoding
	Roster         []int
	PickPosition   models.PickPosition
	Priorities     []models.Priority
	Strategy       string
	GameContext    string
	ReferenceTeams []int
	RankedContext  []models.RankingEntry
	Chunk          int
	Chunks         int
}

// Prompt is a system/user prompt pair ready for a completion call.
type Prompt struct {
	System          string
	User            string
	Roster          []int
	EstimatedTokens int
	MaxOutputTokens int
}

// Plan is the single-shot vs batch decision for a roster.
type Plan struct {
	Mode            models.GenerationMode
	EstimatedTokens int
	EstimatedOutput int
	ChunkSize       int
}

// Builder builds prompts.
type Builder struct {
	config Config
	logger *logrus.Entry
}

// NewBuilder creates a prompt builder.
func NewBuilder(cfg Config, logger *logrus.Logger) *Builder {
	def := DefaultConfig()
	if cfg.MaxReasonWords <= 0 {
		cfg.MaxReasonWords = def.MaxReasonWords
	}
	if cfg.PromptTokenBudget <= 0 {
		cfg.PromptTokenBudget = def.PromptTokenBudget
	}
	if cfg.OutputTokenBudget <= 0 {
		cfg.OutputTokenBudget = def.OutputTokenBudget
	}
	if cfg.TokensPerEntry <= 0 {
		cfg.TokensPerEntry = def.TokensPerEntry
	}
	if cfg.MaxMetrics <= 0 {
		cfg.MaxMetrics = def.MaxMetrics
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	return &Builder{
		config: cfg,
		logger: logger.WithField("component", "prompt_builder"),
	}
}

// Config returns the builder's sizing configuration.
func (b *Builder) Config() Config {
	return b.config
}

// EstimateTokens approximates the token count of s at four characters per token.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Build assembles the system and user prompts for req.
func (b *Builder) Build(req Request) (*Prompt, error) {
	if len(req.Roster) == 0 {
		return nil, ErrEmptyRoster
	}
	if req.Encoding == nil {
		return nil, fmt.Errorf("%w: no encoding", ErrMissingEncoding)
	}

	teams := req.Encoding.Subset(req.Roster)
	if len(teams) != len(req.Roster) {
		return nil, fmt.Errorf("%w: %d of %d teams encoded", ErrMissingEncoding, len(teams), len(req.Roster))
	}

	system := b.systemPrompt(req)
	user, err := b.userPrompt(req, teams)
	if err != nil {
		return nil, err
	}

	p := &Prompt{
		System:          system,
		User:            user,
		Roster:          append([]int(nil), req.Roster...),
		EstimatedTokens: EstimateTokens(system) + EstimateTokens(user),
		MaxOutputTokens: b.outputTokens(len(req.Roster)),
	}

	b.logger.WithFields(logrus.Fields{
		"teams":             len(req.Roster),
		"estimated_tokens":  p.EstimatedTokens,
		"max_output_tokens": p.MaxOutputTokens,
		"chunk":             req.Chunk,
		"chunks":            req.Chunks,
	}).Debug("Built ranking prompt")

	return p, nil
}

// Plan decides between single-shot and batch generation for req.
// ChunkSize is always computed so callers can switch to batch mode after an overflow.
func (b *Builder) Plan(req Request) (Plan, error) {
	full, err := b.Build(req)
	if err != nil {
		return Plan{}, err
	}

	n := len(req.Roster)
	plan := Plan{
		Mode:            models.ModeSingle,
		EstimatedTokens: full.EstimatedTokens,
		EstimatedOutput: n * b.config.TokensPerEntry,
		ChunkSize:       n,
	}

	perTeam := 0
	for _, t := range req.Encoding.Subset(req.Roster) {
		line, err := json.Marshal(t)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to encode team %d: %w", t.TeamNumber, err)
		}
		perTeam += EstimateTokens(string(line)) + 2
	}
	perTeam = (perTeam + n - 1) / n
	overhead := full.EstimatedTokens - perTeam*n
	if overhead < 0 {
		overhead = 0
	}

	byPrompt := (b.config.PromptTokenBudget - overhead) / max(perTeam, 1)
	byOutput := b.config.OutputTokenBudget / b.config.TokensPerEntry
	size := min(byPrompt, byOutput) - b.config.ReferenceTeams
	if size < b.config.MinChunkSize {
		size = b.config.MinChunkSize
	}
	if size < n {
		plan.ChunkSize = size
	}

	if full.EstimatedTokens > b.config.PromptTokenBudget || plan.EstimatedOutput > b.config.OutputTokenBudget {
		plan.Mode = models.ModeBatch
		if plan.ChunkSize >= n {
			plan.ChunkSize = max((n+1)/2, 1)
		}
	}

	b.logger.WithFields(logrus.Fields{
		"mode":             plan.Mode,
		"teams":            n,
		"estimated_tokens": plan.EstimatedTokens,
		"estimated_output": plan.EstimatedOutput,
		"chunk_size":       plan.ChunkSize,
	}).Info("Planned picklist generation")

	return plan, nil
}

func (b *Builder) outputTokens(teams int) int {
	n := teams*b.config.TokensPerEntry + 64
	if n > b.config.OutputTokenBudget {
		return b.config.OutputTokenBudget
	}
	return n
}

func (b *Builder) systemPrompt(req Request) string {
	var sb strings.Builder
	position := req.PickPosition
	if !position.Valid() {
		position = models.PickFirst
	}

	fmt.Fprintf(&sb, "You are an FRC alliance selection analyst ranking teams for the %s pick.\n", position)
	sb.WriteString(pickGuidance[position])
	sb.WriteString("\n\nHARD RULES:\n")
	sb.WriteString("1. Rank every team number listed in ROSTER exactly once. No duplicates. No teams outside ROSTER.\n")
	fmt.Fprintf(&sb, "2. Reply with minified JSON only, no prose or code fences. Schema: %s\n", ResponseSchema)
	sb.WriteString("   team = team number (integer), score = 0-100 with higher meaning a better pick.\n")
	fmt.Fprintf(&sb, "3. reason is at most %d words and must cite at least one metric code with its value, e.g. \"AP 18.3 best auto\".\n", b.config.MaxReasonWords)
	sb.WriteString("4. Order \"p\" from best to worst pick.\n")
	fmt.Fprintf(&sb, "5. If the complete ranking cannot fit in your reply, respond exactly %s instead of a partial list.\n", OverflowReply)
	sb.WriteString("6. Never repeat a team. Stop after the last ROSTER team.")
	return sb.String()
}

var pickGuidance = map[models.PickPosition]string{
	models.PickFirst:  "First pick: the strongest all-around partner for the captain. Weight scoring output and reliability highest.",
	models.PickSecond: "Second pick: complement the captain and first pick. Prefer consistency and the declared priorities over raw ceiling.",
	models.PickThird:  "Third pick: playoff depth. Prefer reliable robots that fill a specific role the alliance lacks.",
}

func (b *Builder) userPrompt(req Request, teams []encoding.EncodedTeam) (string, error) {
	var sb strings.Builder
	table := req.Encoding.Table

	fmt.Fprintf(&sb, "LEGEND: %s\n", table.Legend())
	fmt.Fprintf(&sb, "FORMAT: [idx,team,nick,prior,[%s,notes]] null=no data, prior=heuristic 0-100. Verbose teams are objects with raw metric names.\n",
		strings.Join(table.Codes(), ","))

	if len(req.Priorities) > 0 {
		parts := make([]string, 0, len(req.Priorities))
		for _, p := range req.Priorities {
			label := p.Metric
			if code, ok := table.Code(p.Metric); ok {
				label = fmt.Sprintf("%s(%s)", p.Metric, code)
			}
			part := label + " w=" + strconv.FormatFloat(p.Weight, 'g', -1, 64)
			if p.Reason != "" {
				part += " " + p.Reason
			}
			parts = append(parts, part)
		}
		fmt.Fprintf(&sb, "PRIORITIES: %s\n", strings.Join(parts, "; "))
	}
	if s := strings.TrimSpace(req.Strategy); s != "" {
		fmt.Fprintf(&sb, "STRATEGY: %s\n", s)
	}
	if g := strings.TrimSpace(req.GameContext); g != "" {
		fmt.Fprintf(&sb, "GAME: %s\n", g)
	}
	if req.Chunks > 1 {
		fmt.Fprintf(&sb, "BATCH: %d of %d. Scores must be comparable across batches.\n", req.Chunk, req.Chunks)
	}
	if len(req.ReferenceTeams) > 0 {
		fmt.Fprintf(&sb, "REFERENCE: %s appear in every batch as calibration anchors. Score them on the same scale every time.\n",
			joinInts(req.ReferenceTeams))
	}
	if len(req.RankedContext) > 0 {
		parts := make([]string, 0, len(req.RankedContext))
		for _, e := range req.RankedContext {
			parts = append(parts, fmt.Sprintf("[%d,%s]", e.TeamNumber, strconv.FormatFloat(e.Score, 'f', -1, 64)))
		}
		fmt.Fprintf(&sb, "ALREADY RANKED (context only, do not include): %s\n", strings.Join(parts, ","))
	}

	fmt.Fprintf(&sb, "ROSTER (%d): %s\n", len(req.Roster), joinInts(req.Roster))
	sb.WriteString("TEAMS:\n")
	for _, t := range teams {
		line, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("failed to encode team %d: %w", t.TeamNumber, err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
