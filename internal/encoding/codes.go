// Package encoding compacts team scouting records into token-efficient
// positional arrays with per-event metric code tables.
package encoding

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

var (
	// ErrCodeSpaceExhausted indicates no unique code could be generated for a metric
	ErrCodeSpaceExhausted = errors.New("metric code space exhausted")

	// ErrInvalidCodeTable indicates a table that is not a bijection
	ErrInvalidCodeTable = errors.New("invalid metric code table")
)

// CodeGenerator assigns short aliases to the metric names present for one event.
type CodeGenerator interface {
	Generate(metricNames []string) (*CodeTable, error)
}

// CodeTable is a bijective metric-name <-> code mapping with a fixed declaration order.
type CodeTable struct {
	names  []string
	codes  []string
	byName map[string]int
	byCode map[string]int
}

// NewCodeTable builds a table from parallel name/code slices.
func NewCodeTable(names, codes []string) (*CodeTable, error) {
	if len(names) != len(codes) {
		return nil, fmt.Errorf("%w: %d names for %d codes", ErrInvalidCodeTable, len(names), len(codes))
	}

	t := &CodeTable{
		names:  append([]string(nil), names...),
		codes:  append([]string(nil), codes...),
		byName: make(map[string]int, len(names)),
		byCode: make(map[string]int, len(codes)),
	}
	for i := range names {
		if names[i] == "" || codes[i] == "" {
			return nil, fmt.Errorf("%w: empty entry at position %d", ErrInvalidCodeTable, i)
		}
		if _, dup := t.byName[names[i]]; dup {
			return nil, fmt.Errorf("%w: duplicate metric %q", ErrInvalidCodeTable, names[i])
		}
		if _, dup := t.byCode[codes[i]]; dup {
			return nil, fmt.Errorf("%w: duplicate code %q", ErrInvalidCodeTable, codes[i])
		}
		t.byName[names[i]] = i
		t.byCode[codes[i]] = i
	}
	return t, nil
}

// Len returns the number of metrics in the table.
func (t *CodeTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Names returns metric names in declaration order.
func (t *CodeTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Codes returns codes in declaration order.
func (t *CodeTable) Codes() []string {
	return append([]string(nil), t.codes...)
}

// Code returns the code for a metric name.
func (t *CodeTable) Code(name string) (string, bool) {
	i, ok := t.byName[name]
	if !ok {
		return "", false
	}
	return t.codes[i], true
}

// Name returns the metric name for a code.
func (t *CodeTable) Name(code string) (string, bool) {
	i, ok := t.byCode[strings.ToUpper(code)]
	if !ok {
		return "", false
	}
	return t.names[i], true
}

// Position returns the positional index of a metric in encoded value arrays.
func (t *CodeTable) Position(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Legend renders the table as "AP=auto_points,TP=teleop_points".
func (t *CodeTable) Legend() string {
	parts := make([]string, len(t.names))
	for i := range t.names {
		parts[i] = t.codes[i] + "=" + t.names[i]
	}
	return strings.Join(parts, ",")
}

// commonMnemonics maps a normalized token signature to a two letter code.
// Only game-agnostic concepts belong here; event metrics get derived codes.
var commonMnemonics = map[string]string{
	"auto+points":    "AP",
	"points+teleop":  "TP",
	"endgame+points": "EP",
	"points+total":   "OP",
	"defense":        "DF",
	"driver":         "DR",
	"fouls":          "FL",
}

// tokenSynonyms folds spelling variants before signature matching.
var tokenSynonyms = map[string]string{
	"autonomous":   "auto",
	"auton":        "auto",
	"tele":         "teleop",
	"teleoperated": "teleop",
	"end":          "endgame",
	"pts":          "points",
	"point":        "points",
	"score":        "points",
	"overall":      "total",
	"foul":         "fouls",
	"penalty":      "fouls",
	"penalties":    "fouls",
	"defensive":    "defense",
	"driving":      "driver",
}

// stopTokens carry no meaning for abbreviation.
var stopTokens = map[string]bool{
	"avg": true, "average": true, "mean": true, "median": true, "per": true,
	"match": true, "matches": true, "the": true, "of": true, "and": true,
	"rating": true, "num": true, "count": true,
}

// MnemonicGenerator derives codes from metric names in three tiers:
// common mnemonics, token abbreviations, then generated 3-4 character codes
// with a disambiguating digit on collision.
type MnemonicGenerator struct {
	mnemonics map[string]string
}

// NewMnemonicGenerator creates a generator with the default common mnemonic set.
func NewMnemonicGenerator() *MnemonicGenerator {
	return &MnemonicGenerator{mnemonics: commonMnemonics}
}

// Generate builds a code table for the given metric names. Declaration order is sorted by name.
func (g *MnemonicGenerator) Generate(metricNames []string) (*CodeTable, error) {
	names := uniqueSorted(metricNames)
	codes := make([]string, len(names))
	taken := make(map[string]bool, len(names))

	for i, name := range names {
		if code, ok := g.mnemonics[Signature(name)]; ok && !taken[code] {
			codes[i] = code
			taken[code] = true
		}
	}

	for i, name := range names {
		if codes[i] != "" {
			continue
		}
		tokens := SignificantTokens(name)
		if code := abbreviate(tokens); code != "" && !taken[code] {
			codes[i] = code
			taken[code] = true
			continue
		}
		code, err := generateCode(name, tokens, taken)
		if err != nil {
			return nil, err
		}
		codes[i] = code
		taken[code] = true
	}

	return NewCodeTable(names, codes)
}

// RawCodeTable maps every metric name onto itself.
func RawCodeTable(metricNames []string) (*CodeTable, error) {
	names := uniqueSorted(metricNames)
	return NewCodeTable(names, names)
}

// IsCommon reports whether a metric name maps onto a common mnemonic.
func (g *MnemonicGenerator) IsCommon(name string) bool {
	_, ok := g.mnemonics[Signature(name)]
	return ok
}

// Tokens splits a metric name on separators and camelCase boundaries, lowercased.
func Tokens(name string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return tokens
}

// SignificantTokens returns normalized tokens with stop words removed.
func SignificantTokens(name string) []string {
	raw := Tokens(name)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if syn, ok := tokenSynonyms[tok]; ok {
			tok = syn
		}
		if stopTokens[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Signature is the order-independent normalized token set of a metric name.
func Signature(name string) string {
	tokens := SignificantTokens(name)
	sort.Strings(tokens)
	return strings.Join(dedupeStrings(tokens), "+")
}

// abbreviate builds a 2-3 character code from significant tokens.
func abbreviate(tokens []string) string {
	switch len(tokens) {
	case 0:
		return ""
	case 1:
		return abbreviateWord(tokens[0])
	}

	picked := tokens
	if len(tokens) > 3 {
		picked = []string{tokens[0], tokens[1], tokens[len(tokens)-1]}
	}

	var b strings.Builder
	for i, tok := range picked {
		b.WriteRune(tokenInitial(tok, i == 0))
	}
	return strings.ToUpper(b.String())
}

// tokenInitial returns the character a token contributes to an abbreviation.
// Tokens carrying a level or index ("l4") contribute their last digit.
func tokenInitial(tok string, leading bool) rune {
	runes := []rune(tok)
	if !leading {
		for i := len(runes) - 1; i >= 0; i-- {
			if unicode.IsDigit(runes[i]) {
				return runes[i]
			}
		}
	}
	for _, r := range runes {
		if unicode.IsLetter(r) {
			return r
		}
	}
	return runes[0]
}

// abbreviateWord keeps the first letter and the next consonant or digit.
func abbreviateWord(word string) string {
	runes := []rune(word)
	if len(runes) < 2 || !unicode.IsLetter(runes[0]) {
		return ""
	}
	for _, r := range runes[1:] {
		if unicode.IsDigit(r) || (unicode.IsLetter(r) && !strings.ContainsRune("aeiou", r)) {
			return strings.ToUpper(string([]rune{runes[0], r}))
		}
	}
	return strings.ToUpper(string(runes[:2]))
}

// generateCode produces a unique 3-4 character code, appending a digit on collision.
func generateCode(name string, tokens []string, taken map[string]bool) (string, error) {
	stem := codeStem(name, tokens)
	if !taken[stem] {
		return stem, nil
	}
	for d := 2; d <= 9; d++ {
		candidate := fmt.Sprintf("%s%d", stem, d)
		if !taken[candidate] {
			return candidate, nil
		}
	}
	for n := 10; n <= 99; n++ {
		candidate := fmt.Sprintf("%s%d", stem[:2], n)
		if !taken[candidate] {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrCodeSpaceExhausted, name)
}

// codeStem returns a three character stem: token initials padded from the token letters.
func codeStem(name string, tokens []string) string {
	var initials []rune
	var letters []rune
	for _, tok := range tokens {
		runes := []rune(tok)
		initials = append(initials, runes[0])
		letters = append(letters, runes[1:]...)
	}
	if len(tokens) == 0 {
		for _, r := range strings.ToLower(name) {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				letters = append(letters, r)
			}
		}
	}

	stem := append(initials, letters...)
	if len(initials) > 3 {
		stem = initials
	}
	for len(stem) < 3 {
		stem = append(stem, 'x')
	}
	if !unicode.IsLetter(stem[0]) {
		stem[0] = 'm'
	}
	return strings.ToUpper(string(stem[:3]))
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return dedupeStrings(out)
}

// dedupeStrings removes adjacent duplicates from a sorted slice.
func dedupeStrings(sorted []string) []string {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, s := range sorted[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
