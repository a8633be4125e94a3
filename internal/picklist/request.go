package picklist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yourusername/frc-picklist/internal/models"
)

// Request is one picklist generation request.
type Request struct {
	Teams         []models.TeamRecord `json:"teams" validate:"required,min=1,dive"`
	Priorities    []models.Priority   `json:"priorities" validate:"dive"`
	PickPosition  models.PickPosition `json:"pick_position"`
	Strategy      string              `json:"strategy,omitempty"`
	ExcludedTeams []int               `json:"excluded_teams,omitempty"`
	// DatasetVersion is folded into the fingerprint when set, so a refreshed
	// dataset does not hit results ranked from stale metrics.
	DatasetVersion string `json:"dataset_version,omitempty"`
}

var requestValidator = validator.New()

// prepared is a validated request with exclusions applied.
type prepared struct {
	teams  []models.TeamRecord
	roster []int
}

// prepare validates the request and returns the teams to rank in input order.
// Duplicate team records keep the first occurrence.
func (r Request) prepare() (*prepared, error) {
	if err := requestValidator.Struct(r); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}
	if r.PickPosition != "" && !r.PickPosition.Valid() {
		return nil, fmt.Errorf("%w: unknown pick position %q", models.ErrInvalidRequest, r.PickPosition)
	}

	excluded := make(map[int]bool, len(r.ExcludedTeams))
	for _, t := range r.ExcludedTeams {
		excluded[t] = true
	}

	p := &prepared{}
	seen := make(map[int]bool, len(r.Teams))
	for _, team := range r.Teams {
		if excluded[team.TeamNumber] || seen[team.TeamNumber] {
			continue
		}
		seen[team.TeamNumber] = true
		p.teams = append(p.teams, team)
		p.roster = append(p.roster, team.TeamNumber)
	}
	if len(p.roster) == 0 {
		return nil, fmt.Errorf("%w: every team is excluded", models.ErrInvalidRequest)
	}
	return p, nil
}

func (r Request) position() models.PickPosition {
	if r.PickPosition == "" {
		return models.PickFirst
	}
	return r.PickPosition
}

type fingerprintPayload struct {
	Teams      []int               `json:"teams"`
	Priorities []models.Priority   `json:"priorities"`
	Position   models.PickPosition `json:"position"`
	Strategy   string              `json:"strategy"`
	Excluded   []int               `json:"excluded"`
	Dataset    string              `json:"dataset,omitempty"`
}

// Fingerprint returns the cache key of a request: a SHA-256 over the sorted team
// numbers, priorities, pick position, whitespace-normalized strategy text and
// sorted exclusions.
func Fingerprint(r Request) string {
	payload := fingerprintPayload{
		Teams:      sortedUnique(models.TeamNumbers(r.Teams)),
		Priorities: append([]models.Priority(nil), r.Priorities...),
		Position:   r.position(),
		Strategy:   strings.Join(strings.Fields(strings.ToLower(r.Strategy)), " "),
		Excluded:   sortedUnique(r.ExcludedTeams),
		Dataset:    r.DatasetVersion,
	}
	for i := range payload.Priorities {
		payload.Priorities[i].Metric = strings.TrimSpace(payload.Priorities[i].Metric)
		payload.Priorities[i].Reason = strings.TrimSpace(payload.Priorities[i].Reason)
	}
	sort.SliceStable(payload.Priorities, func(i, j int) bool {
		return payload.Priorities[i].Metric < payload.Priorities[j].Metric
	})

	// Marshalling plain slices and strings cannot fail.
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedUnique(values []int) []int {
	out := append([]int(nil), values...)
	sort.Ints(out)
	n := 0
	for i, v := range out {
		if i == 0 || v != out[n-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}
