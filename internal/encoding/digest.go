package encoding

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultDigestLength is the target size of a per-team text digest.
const DefaultDigestLength = 80

var phraseSplitter = regexp.MustCompile(`[.;!?\n\r|]+`)

var spaceCollapser = regexp.MustCompile(`\s+`)

// defaultSalientKeywords flag phrases that survive truncation first.
var defaultSalientKeywords = []string{
	"broke", "broken", "break", "disabled", "died", "dead", "tipped", "tip", "fell",
	"stuck", "jam", "jammed", "brownout", "disconnect", "comms", "penalt", "foul", "card",
	"defense", "defend", "fast", "slow", "consistent", "inconsistent", "reliable",
	"unreliable", "climb", "strategy", "driver", "mechanical", "issue", "problem",
	"fixed", "repair", "swerve", "tank", "accurate", "miss",
}

// defaultBoilerplate phrases carry no information and are dropped.
var defaultBoilerplate = map[string]bool{
	"": true, "n/a": true, "na": true, "none": true, "no comments": true, "no comment": true,
	"nothing": true, "nothing to note": true, "ok": true, "okay": true, "good": true,
	"fine": true, "-": true, "null": true, "nil": true, "no notes": true, "see above": true,
}

// abbreviations shorten frequent scouting words.
var abbreviations = map[string]string{
	"autonomous":    "auto",
	"teleoperated":  "tele",
	"defense":       "def",
	"defensive":     "def",
	"consistently":  "consist.",
	"consistent":    "consist.",
	"really":        "",
	"very":          "",
	"robot":         "bot",
	"extremely":     "",
	"mechanism":     "mech",
	"approximately": "~",
}

// Digester compresses free-text scouting fields into a short pipe-delimited digest.
type Digester struct {
	maxLength   int
	keywords    []string
	boilerplate map[string]bool
}

// NewDigester creates a digester producing digests of at most maxLength characters.
func NewDigester(maxLength int) *Digester {
	if maxLength <= 0 {
		maxLength = DefaultDigestLength
	}
	return &Digester{
		maxLength:   maxLength,
		keywords:    defaultSalientKeywords,
		boilerplate: defaultBoilerplate,
	}
}

// WithKeywords replaces the salient keyword list.
func (d *Digester) WithKeywords(keywords []string) *Digester {
	d.keywords = keywords
	return d
}

// Digest combines text fields (in key order) into one digest.
// Salient phrases are kept ahead of the rest; boilerplate and repeats are dropped.
func (d *Digester) Digest(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	var salient, plain []string
	for _, k := range keys {
		for _, raw := range phraseSplitter.Split(fields[k], -1) {
			phrase := d.normalize(raw)
			if d.boilerplate[phrase] || len(phrase) < 2 || seen[phrase] {
				continue
			}
			seen[phrase] = true
			if d.isSalient(phrase) {
				salient = append(salient, phrase)
			} else {
				plain = append(plain, phrase)
			}
		}
	}

	return d.pack(append(salient, plain...))
}

func (d *Digester) normalize(raw string) string {
	words := strings.Fields(strings.ToLower(raw))
	out := words[:0]
	for _, w := range words {
		trimmed := strings.Trim(w, ",:\"'()[]{}")
		if short, ok := abbreviations[trimmed]; ok {
			if short == "" {
				continue
			}
			w = short
		}
		out = append(out, w)
	}
	phrase := strings.Join(out, " ")
	phrase = strings.Trim(phrase, " ,:-")
	return spaceCollapser.ReplaceAllString(phrase, " ")
}

func (d *Digester) isSalient(phrase string) bool {
	for _, kw := range d.keywords {
		if strings.Contains(phrase, kw) {
			return true
		}
	}
	return false
}

// pack joins phrases with "|" without exceeding maxLength, cutting the last phrase on a word boundary.
func (d *Digester) pack(phrases []string) string {
	var b strings.Builder
	for _, p := range phrases {
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		room := d.maxLength - b.Len() - sep
		if room <= 0 {
			break
		}
		if len(p) > room {
			if room < 12 && b.Len() > 0 {
				break
			}
			p = truncateWords(p, room)
			if p == "" {
				break
			}
		}
		if sep == 1 {
			b.WriteByte('|')
		}
		b.WriteString(p)
	}
	return b.String()
}

// truncateWords cuts s to at most n bytes, preferring a word boundary.
func truncateWords(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	cut := s[:n]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,")
}
