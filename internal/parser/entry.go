package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrNextStage signals that a stage could not produce entries and the next stage should run
	ErrNextStage = errors.New("try next stage")

	// ErrInvalidEntry indicates a ranking element that cannot be decoded
	ErrInvalidEntry = errors.New("invalid ranking entry")
)

// rawEntry is one decoded ranking element prior to roster filtering.
type rawEntry struct {
	Team      int
	Score     float64
	Reasoning string
}

// response is the compact reply schema plus tolerated aliases.
type response struct {
	P        []json.RawMessage `json:"p"`
	Picklist []json.RawMessage `json:"picklist"`
	S        string            `json:"s"`
	Status   string            `json:"status"`
}

func (r response) entries() []json.RawMessage {
	if r.P != nil {
		return r.P
	}
	return r.Picklist
}

func (r response) status() string {
	if r.S != "" {
		return strings.ToLower(r.S)
	}
	return strings.ToLower(r.Status)
}

var fencePattern = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*(.*?)\\s*(```\\s*)?$")

// stripFences removes a surrounding markdown code fence.
func stripFences(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}

// decodeEntries decodes every element it can, reporting how many were rejected.
func decodeEntries(items []json.RawMessage) ([]rawEntry, int) {
	out := make([]rawEntry, 0, len(items))
	rejected := 0
	for _, item := range items {
		e, err := decodeEntry(item)
		if err != nil {
			rejected++
			continue
		}
		out = append(out, e)
	}
	return out, rejected
}

// decodeEntry accepts [team,score,"reason"] tuples and keyed objects.
func decodeEntry(raw json.RawMessage) (rawEntry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return rawEntry{}, ErrInvalidEntry
	}

	switch raw[0] {
	case '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(raw, &tuple); err != nil {
			return rawEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		if len(tuple) < 2 {
			return rawEntry{}, fmt.Errorf("%w: tuple has %d fields", ErrInvalidEntry, len(tuple))
		}
		var e rawEntry
		var err error
		if e.Team, err = teamNumber(tuple[0]); err != nil {
			return rawEntry{}, err
		}
		if e.Score, err = score(tuple[1]); err != nil {
			return rawEntry{}, err
		}
		if len(tuple) > 2 {
			e.Reasoning = reasonText(tuple[2])
		}
		return e, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return rawEntry{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
		teamRaw := firstKey(obj, "t", "team", "team_number", "teamNumber")
		if teamRaw == nil {
			return rawEntry{}, fmt.Errorf("%w: no team field", ErrInvalidEntry)
		}
		var e rawEntry
		var err error
		if e.Team, err = teamNumber(teamRaw); err != nil {
			return rawEntry{}, err
		}
		if scoreRaw := firstKey(obj, "s", "score"); scoreRaw != nil {
			if e.Score, err = score(scoreRaw); err != nil {
				return rawEntry{}, err
			}
		} else {
			return rawEntry{}, fmt.Errorf("%w: no score field", ErrInvalidEntry)
		}
		if reasonRaw := firstKey(obj, "r", "reason", "reasoning"); reasonRaw != nil {
			e.Reasoning = reasonText(reasonRaw)
		}
		return e, nil
	}

	return rawEntry{}, fmt.Errorf("%w: unexpected %q", ErrInvalidEntry, raw[0])
}

func firstKey(obj map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

// teamNumber accepts 254, 254.0, "254" and "frc254".
func teamNumber(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, err := n.Float64()
		if err == nil && f == math.Trunc(f) && f > 0 {
			return int(f), nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "frc")
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: bad team number %s", ErrInvalidEntry, string(raw))
}

func score(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: bad score %s", ErrInvalidEntry, string(raw))
}

func reasonText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
