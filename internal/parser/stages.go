package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Stage names
const (
	StageDirect  = "direct"
	StageRepair  = "repair"
	StageSalvage = "salvage"
)

// stageOutput is what a successful stage hands back to the parser.
type stageOutput struct {
	Entries  []rawEntry
	Status   string
	Rejected int
}

// Stage is one step of the parse pipeline. A stage either returns entries
// or an error wrapping ErrNextStage.
type Stage interface {
	Name() string
	Parse(text string) (*stageOutput, error)
}

// DirectStage parses the reply as strict JSON.
type DirectStage struct{}

// Name returns the stage name.
func (DirectStage) Name() string { return StageDirect }

// Parse decodes the whole reply.
func (DirectStage) Parse(text string) (*stageOutput, error) {
	return parseDocument(stripFences(text))
}

// RepairStage balances brackets and drops a trailing incomplete element before re-parsing.
type RepairStage struct{}

// Name returns the stage name.
func (RepairStage) Name() string { return StageRepair }

// Parse repairs and decodes the reply.
func (RepairStage) Parse(text string) (*stageOutput, error) {
	repaired, err := Repair(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNextStage, err)
	}
	return parseDocument(repaired)
}

// SalvageStage extracts individual records by pattern, in order of appearance.
type SalvageStage struct{}

// Name returns the stage name.
func (SalvageStage) Name() string { return StageSalvage }

var (
	tuplePattern  = regexp.MustCompile(`\[\s*"?(?:frc)?(\d{1,5})"?\s*,\s*"?(-?\d+(?:\.\d+)?)"?\s*,\s*"((?:[^"\\]|\\.)*)"\s*\]`)
	objectPattern = regexp.MustCompile(`\{[^{}\[\]]*\}`)
	statusPattern = regexp.MustCompile(`"(?:s|status)"\s*:\s*"(ok|overflow)"`)
)

// Parse scans the reply for complete records.
func (SalvageStage) Parse(text string) (*stageOutput, error) {
	type located struct {
		pos   int
		entry rawEntry
	}
	var found []located

	for _, loc := range tuplePattern.FindAllStringIndex(text, -1) {
		e, err := decodeEntry(json.RawMessage(text[loc[0]:loc[1]]))
		if err != nil {
			continue
		}
		found = append(found, located{pos: loc[0], entry: e})
	}
	for _, loc := range objectPattern.FindAllStringIndex(text, -1) {
		e, err := decodeEntry(json.RawMessage(text[loc[0]:loc[1]]))
		if err != nil {
			continue
		}
		found = append(found, located{pos: loc[0], entry: e})
	}

	status := ""
	if m := statusPattern.FindStringSubmatch(text); m != nil {
		status = m[1]
	}

	if len(found) == 0 {
		if status == "overflow" {
			return &stageOutput{Status: status}, nil
		}
		return nil, fmt.Errorf("%w: no records found", ErrNextStage)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	out := &stageOutput{Status: status, Entries: make([]rawEntry, len(found))}
	for i, f := range found {
		out.Entries[i] = f.entry
	}
	return out, nil
}

// parseDocument decodes a complete reply document.
func parseDocument(text string) (*stageOutput, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrNextStage)
	}

	var items []json.RawMessage
	status := ""
	if text[0] == '[' {
		if err := json.Unmarshal([]byte(text), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNextStage, err)
		}
	} else {
		var resp response
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNextStage, err)
		}
		items = resp.entries()
		status = resp.status()
	}

	entries, rejected := decodeEntries(items)
	if len(entries) == 0 && status != "overflow" {
		return nil, fmt.Errorf("%w: no decodable entries (%d rejected)", ErrNextStage, rejected)
	}
	return &stageOutput{Entries: entries, Status: status, Rejected: rejected}, nil
}
