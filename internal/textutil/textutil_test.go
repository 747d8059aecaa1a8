package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "Alice Johnson", CleanText("  Alice \t Johnson \n"))
	assert.Equal(t, "a b", CleanText("a\x00\x07   b"))
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "S00123", "S00123", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "S00123", "", 0.0},
		{"single substitution over six", "S0O123", "S00123", 1.0 - 1.0/6.0},
		{"name with dropped letter", "alice jonson", "alice johnson", 1.0 - 1.0/13.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 1e-9)
		})
	}
}

func TestFoldRatio(t *testing.T) {
	assert.InDelta(t, 1.0, FoldRatio("ALICE Johnson", "alice johnson"), 1e-9)
	// One dropped letter in a thirteen-rune name stays above the 0.8 default.
	assert.Greater(t, FoldRatio("Alice Jonson", "Alice Johnson"), 0.9)
}

func TestRatioSymmetric(t *testing.T) {
	assert.InDelta(t, Ratio("abcd", "abed"), Ratio("abed", "abcd"), 1e-9)
}
