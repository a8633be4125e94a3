package encoding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/frc-picklist/internal/models"
)

var (
	// ErrNonFiniteMetric indicates a NaN or infinite metric value
	ErrNonFiniteMetric = errors.New("non-finite metric value")

	// ErrShapeMismatch indicates an encoded value array that does not match its code table
	ErrShapeMismatch = errors.New("encoded team does not match code table")
)

// EncodedTeam is the compact form of a team:
// [index, teamNumber, nickname, priorScore, [values in code order..., text]].
// Teams that cannot be encoded compactly carry Verbose instead of Values.
type EncodedTeam struct {
	Index      int
	TeamNumber int
	Nickname   string
	PriorScore float64
	Values     []*float64
	Text       string
	Verbose    map[string]string
}

// IsVerbose reports whether the team uses the uncompressed fallback form.
func (e EncodedTeam) IsVerbose() bool {
	return e.Verbose != nil
}

type verboseTeam struct {
	Index      int               `json:"i"`
	TeamNumber int               `json:"t"`
	Nickname   string            `json:"n"`
	PriorScore float64           `json:"ps"`
	Raw        map[string]string `json:"raw"`
	Text       string            `json:"txt,omitempty"`
}

// MarshalJSON renders the positional array, or a keyed object for verbose teams.
func (e EncodedTeam) MarshalJSON() ([]byte, error) {
	if e.IsVerbose() {
		return json.Marshal(verboseTeam{
			Index:      e.Index,
			TeamNumber: e.TeamNumber,
			Nickname:   e.Nickname,
			PriorScore: e.PriorScore,
			Raw:        e.Verbose,
			Text:       e.Text,
		})
	}

	values := make([]interface{}, 0, len(e.Values)+1)
	for _, v := range e.Values {
		if v == nil {
			values = append(values, nil)
			continue
		}
		values = append(values, *v)
	}
	values = append(values, e.Text)
	return json.Marshal([]interface{}{e.Index, e.TeamNumber, e.Nickname, e.PriorScore, values})
}

// UnmarshalJSON accepts both the positional and verbose forms.
func (e *EncodedTeam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var v verboseTeam
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = EncodedTeam{
			Index:      v.Index,
			TeamNumber: v.TeamNumber,
			Nickname:   v.Nickname,
			PriorScore: v.PriorScore,
			Verbose:    v.Raw,
			Text:       v.Text,
		}
		if e.Verbose == nil {
			e.Verbose = map[string]string{}
		}
		return nil
	}

	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 5 {
		return fmt.Errorf("%w: expected 5 fields, got %d", ErrShapeMismatch, len(tuple))
	}
	var out EncodedTeam
	if err := json.Unmarshal(tuple[0], &out.Index); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &out.TeamNumber); err != nil {
		return fmt.Errorf("team number: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &out.Nickname); err != nil {
		return fmt.Errorf("nickname: %w", err)
	}
	if err := json.Unmarshal(tuple[3], &out.PriorScore); err != nil {
		return fmt.Errorf("prior score: %w", err)
	}

	var values []json.RawMessage
	if err := json.Unmarshal(tuple[4], &values); err != nil {
		return fmt.Errorf("values: %w", err)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: missing text slot", ErrShapeMismatch)
	}
	if err := json.Unmarshal(values[len(values)-1], &out.Text); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	out.Values = make([]*float64, len(values)-1)
	for i, raw := range values[:len(values)-1] {
		if string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		out.Values[i] = &f
	}
	*e = out
	return nil
}

// Decode recovers metric values using the code table the team was encoded with.
func (e EncodedTeam) Decode(table *CodeTable) (map[string]float64, error) {
	out := make(map[string]float64)
	if e.IsVerbose() {
		for name, raw := range e.Verbose {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			out[name] = v
		}
		return out, nil
	}

	if len(e.Values) != table.Len() {
		return nil, fmt.Errorf("%w: %d values for %d codes", ErrShapeMismatch, len(e.Values), table.Len())
	}
	for i, name := range table.names {
		if e.Values[i] != nil {
			out[name] = *e.Values[i]
		}
	}
	return out, nil
}

// Encoding is the output of one encoding session.
type Encoding struct {
	Table     *CodeTable
	Teams     []EncodedTeam
	Fallbacks []int
	// RawCodes is set when the table uses the metric names themselves as codes.
	RawCodes bool
}

// Team returns the encoded form of a team number.
func (enc *Encoding) Team(number int) (EncodedTeam, bool) {
	for _, t := range enc.Teams {
		if t.TeamNumber == number {
			return t, true
		}
	}
	return EncodedTeam{}, false
}

// Subset returns the encoded teams for the given team numbers, preserving the requested order.
func (enc *Encoding) Subset(numbers []int) []EncodedTeam {
	index := make(map[int]EncodedTeam, len(enc.Teams))
	for _, t := range enc.Teams {
		index[t.TeamNumber] = t
	}
	out := make([]EncodedTeam, 0, len(numbers))
	for _, n := range numbers {
		if t, ok := index[n]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Encoder turns team records into compact encoded teams.
type Encoder struct {
	generator CodeGenerator
	digester  *Digester
	logger    *logrus.Entry
}

// NewEncoder creates an encoder. A nil generator uses the mnemonic generator.
func NewEncoder(generator CodeGenerator, digester *Digester, logger *logrus.Logger) *Encoder {
	if generator == nil {
		generator = NewMnemonicGenerator()
	}
	if digester == nil {
		digester = NewDigester(DefaultDigestLength)
	}
	return &Encoder{
		generator: generator,
		digester:  digester,
		logger:    logger.WithField("component", "encoder"),
	}
}

// Encode builds a code table over metrics and encodes every team against it.
// Teams whose data cannot be encoded are passed through verbosely; no team is dropped.
func (e *Encoder) Encode(teams []models.TeamRecord, metrics []string, priorities []models.Priority) (*Encoding, error) {
	rawCodes := false
	table, err := e.generator.Generate(metrics)
	if err != nil {
		e.logger.WithError(err).Warn("Metric code generation failed; using raw metric names as codes")
		table, err = RawCodeTable(metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to build raw code table: %w", err)
		}
		rawCodes = true
	}

	priors := PriorScores(teams, priorities)
	enc := &Encoding{
		Table:    table,
		Teams:    make([]EncodedTeam, 0, len(teams)),
		RawCodes: rawCodes,
	}

	for i, team := range teams {
		encoded, err := e.encodeTeam(i+1, team, table, priors[team.TeamNumber])
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"team_number": team.TeamNumber,
				"error":       err.Error(),
			}).Warn("Falling back to verbose team encoding")
			encoded = e.verboseTeam(i+1, team, priors[team.TeamNumber])
			enc.Fallbacks = append(enc.Fallbacks, team.TeamNumber)
		}
		enc.Teams = append(enc.Teams, encoded)
	}

	e.logger.WithFields(logrus.Fields{
		"teams":     len(enc.Teams),
		"metrics":   table.Len(),
		"fallbacks": len(enc.Fallbacks),
	}).Debug("Encoded team data")

	return enc, nil
}

func (e *Encoder) encodeTeam(index int, team models.TeamRecord, table *CodeTable, prior float64) (EncodedTeam, error) {
	if team.TeamNumber <= 0 {
		return EncodedTeam{}, fmt.Errorf("invalid team number %d", team.TeamNumber)
	}

	values := make([]*float64, table.Len())
	for i, name := range table.names {
		v, ok := team.Metrics[name]
		if !ok {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return EncodedTeam{}, fmt.Errorf("%w: %s", ErrNonFiniteMetric, name)
		}
		values[i] = &v
	}

	return EncodedTeam{
		Index:      index,
		TeamNumber: team.TeamNumber,
		Nickname:   team.Nickname,
		PriorScore: prior,
		Values:     values,
		Text:       e.digester.Digest(team.Text),
	}, nil
}

func (e *Encoder) verboseTeam(index int, team models.TeamRecord, prior float64) EncodedTeam {
	raw := make(map[string]string, len(team.Metrics))
	for name, v := range team.Metrics {
		raw[name] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	keys := make([]string, 0, len(team.Text))
	for k := range team.Text {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var text bytes.Buffer
	for _, k := range keys {
		if text.Len() > 0 {
			text.WriteString(" | ")
		}
		text.WriteString(team.Text[k])
	}

	return EncodedTeam{
		Index:      index,
		TeamNumber: team.TeamNumber,
		Nickname:   team.Nickname,
		PriorScore: prior,
		Verbose:    raw,
		Text:       text.String(),
	}
}
