package parser

// Loop kinds
const (
	LoopCycle      = "cycle"
	LoopDuplicates = "duplicates"
)

// LoopReport describes repetition found in a team sequence.
type LoopReport struct {
	Detected       bool
	Kind           string
	CutIndex       int
	DuplicateRatio float64
}

// LoopDetector flags pathological repetition in model output.
type LoopDetector struct {
	// DuplicateThreshold is the duplicate fraction above which output counts as looping.
	DuplicateThreshold float64
	// MinCycleRun is how many consecutive records must repeat an earlier run to count as a cycle.
	MinCycleRun int
}

// NewLoopDetector creates a detector with the default thresholds.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{DuplicateThreshold: 0.4, MinCycleRun: 3}
}

// Detect inspects a team sequence in order of appearance. CutIndex is where usable
// records end: the start of the first repeated cycle, or len(teams) when only scattered
// duplicates were seen.
func (d *LoopDetector) Detect(teams []int) LoopReport {
	report := LoopReport{CutIndex: len(teams)}
	if len(teams) == 0 {
		return report
	}

	firstSeen := make(map[int]int, len(teams))
	dups := 0
	cycleAt := -1
	for i, team := range teams {
		j, seen := firstSeen[team]
		if !seen {
			firstSeen[team] = i
			continue
		}
		dups++
		if cycleAt < 0 && d.repeatsFrom(teams, j, i) {
			cycleAt = i
		}
	}
	report.DuplicateRatio = float64(dups) / float64(len(teams))

	if cycleAt >= 0 {
		report.Detected = true
		report.Kind = LoopCycle
		report.CutIndex = cycleAt
		return report
	}
	if report.DuplicateRatio > d.DuplicateThreshold {
		report.Detected = true
		report.Kind = LoopDuplicates
	}
	return report
}

// repeatsFrom reports whether the run starting at i replays the run starting at j.
func (d *LoopDetector) repeatsFrom(teams []int, j, i int) bool {
	need := d.MinCycleRun
	if remaining := len(teams) - i; remaining < need {
		// A short tail counts only if it is itself long enough to be a pattern.
		if remaining < 2 {
			return false
		}
		need = remaining
	}
	for k := 0; k < need; k++ {
		if teams[j+k] != teams[i+k] {
			return false
		}
	}
	return true
}
