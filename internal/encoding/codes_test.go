package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMnemonicGeneratorTiers tests common, abbreviated and generated codes
func TestMnemonicGeneratorTiers(t *testing.T) {
	gen := NewMnemonicGenerator()

	table, err := gen.Generate([]string{
		"teleop_coral_l4", "auto_points", "climb_rate", "barge",
		"defense_rating", "driver_skill", "teleop_cargo_l4",
	})
	require.NoError(t, err)

	expected := map[string]string{
		"auto_points":     "AP",
		"barge":           "BR",
		"climb_rate":      "CR",
		"defense_rating":  "DF",
		"driver_skill":    "DS",
		"teleop_cargo_l4": "TC4",
		"teleop_coral_l4": "TCL",
	}
	for name, code := range expected {
		got, ok := table.Code(name)
		require.True(t, ok, name)
		assert.Equal(t, code, got, name)
	}

	assert.Equal(t, []string{
		"auto_points", "barge", "climb_rate", "defense_rating",
		"driver_skill", "teleop_cargo_l4", "teleop_coral_l4",
	}, table.Names())
}

// TestMnemonicGeneratorCollision tests digit disambiguation
func TestMnemonicGeneratorCollision(t *testing.T) {
	table, err := NewMnemonicGenerator().Generate([]string{"teleop_coral_l4", "teleop_cargo_l4", "teleop_coin_l4"})
	require.NoError(t, err)

	assert.Equal(t, []string{"TC4", "TCL", "TCL2"}, table.Codes())
}

// TestMnemonicGeneratorSynonyms tests that spelling variants share a mnemonic
func TestMnemonicGeneratorSynonyms(t *testing.T) {
	gen := NewMnemonicGenerator()

	assert.True(t, gen.IsCommon("autonomous_pts"))
	assert.True(t, gen.IsCommon("avgTeleopPoints"))
	assert.True(t, gen.IsCommon("endgame_points_per_match"))
	assert.False(t, gen.IsCommon("algae_net"))
}

// TestMnemonicGeneratorDeterministic tests that input order does not matter
func TestMnemonicGeneratorDeterministic(t *testing.T) {
	gen := NewMnemonicGenerator()
	a, err := gen.Generate([]string{"b_metric", "a_metric", "c_metric", "a_metric"})
	require.NoError(t, err)
	b, err := gen.Generate([]string{"c_metric", "a_metric", "b_metric"})
	require.NoError(t, err)

	assert.Equal(t, a.Legend(), b.Legend())
	assert.Equal(t, 3, a.Len())
}

// TestCodeTableBijection tests lookups in both directions
func TestCodeTableBijection(t *testing.T) {
	names := []string{"auto_points", "algae_net", "cage_deep", "coral_l1", "coral_l2", "x"}
	table, err := NewMnemonicGenerator().Generate(names)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, name := range names {
		code, ok := table.Code(name)
		require.True(t, ok)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		assert.GreaterOrEqual(t, len(code), 2)
		assert.LessOrEqual(t, len(code), 4)

		back, ok := table.Name(code)
		require.True(t, ok)
		assert.Equal(t, name, back)
	}

	name, ok := table.Name("ap")
	assert.True(t, ok)
	assert.Equal(t, "auto_points", name)
}

// TestNewCodeTableRejectsDuplicates tests table validation
func TestNewCodeTableRejectsDuplicates(t *testing.T) {
	_, err := NewCodeTable([]string{"a", "b"}, []string{"X", "X"})
	assert.ErrorIs(t, err, ErrInvalidCodeTable)

	_, err = NewCodeTable([]string{"a"}, []string{"X", "Y"})
	assert.ErrorIs(t, err, ErrInvalidCodeTable)
}

// TestTokens tests metric name tokenization
func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"avg", "teleop", "points"}, Tokens("avgTeleopPoints"))
	assert.Equal(t, []string{"coral", "l4"}, Tokens("coral-L4"))
	assert.Equal(t, []string{"teleop", "coral"}, SignificantTokens("avg_tele_coral"))
}

// TestLegend tests legend rendering
func TestLegend(t *testing.T) {
	table, err := NewCodeTable([]string{"auto_points", "teleop_points"}, []string{"AP", "TP"})
	require.NoError(t, err)
	assert.Equal(t, "AP=auto_points,TP=teleop_points", table.Legend())
}
