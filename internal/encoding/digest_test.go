package encoding

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDigestDropsBoilerplate tests boilerplate removal and salient ordering
func TestDigestDropsBoilerplate(t *testing.T) {
	d := NewDigester(DefaultDigestLength)

	got := d.Digest(map[string]string{
		"comments": "Scores from far side. Really fast robot. No comments. Tipped over in Q12",
		"notes":    "n/a",
	})

	assert.Equal(t, "fast bot|tipped over in q12|scores from far side", got)
}

// TestDigestLengthBound tests that digests never exceed the configured length
func TestDigestLengthBound(t *testing.T) {
	d := NewDigester(80)
	long := strings.Repeat("drives around the field collecting game pieces quickly. ", 10)

	got := d.Digest(map[string]string{"a": long, "b": "intake jammed twice during eliminations"})

	assert.LessOrEqual(t, len(got), 80)
	assert.True(t, strings.HasPrefix(got, "intake jammed twice"))
}

// TestDigestDeduplicates tests repeated phrase removal across fields
func TestDigestDeduplicates(t *testing.T) {
	d := NewDigester(DefaultDigestLength)

	got := d.Digest(map[string]string{
		"a": "strong climber",
		"b": "Strong climber.",
	})
	assert.Equal(t, "strong climber", got)
}

// TestDigestEmpty tests empty input
func TestDigestEmpty(t *testing.T) {
	assert.Equal(t, "", NewDigester(0).Digest(nil))
}

// TestTruncateWordsUTF8 tests truncation never splits a rune
func TestTruncateWordsUTF8(t *testing.T) {
	got := truncateWords("héllo wörld", 8)
	assert.Equal(t, "héllo", got)
}
