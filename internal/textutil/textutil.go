package textutil

import (
	"strings"
	"unicode"
)

// CleanText normalises recognised text: drops non-printable runes and
// collapses runs of whitespace into single spaces.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPrint(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ratio returns a similarity in [0,1] between two strings based on
// normalised edit distance: 1 - levenshtein(a,b)/max(len(a),len(b)).
// Two empty strings are considered identical.
func Ratio(a, b string) float64 {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return 1.0
	}

	ar := []rune(a)
	br := []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(levenshtein(ar, br))/float64(maxLen)
}

// FoldRatio is Ratio after case folding, for name comparisons.
func FoldRatio(a, b string) float64 {
	return Ratio(strings.ToLower(a), strings.ToLower(b))
}

// levenshtein computes edit distance (insertion, deletion, substitution cost 1)
// using a single rolling row.
func levenshtein(a, b []rune) int {
	n, m := len(a), len(b)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}

	row := make([]int, m+1)
	for j := 0; j <= m; j++ {
		row[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= m; j++ {
			tmp := row[j]
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min3(row[j]+1, row[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return row[m]
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}
