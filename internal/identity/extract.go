package identity

import (
	"regexp"
	"strings"

	"github.com/abadealex/scriptmark/internal/textutil"
)

// Extracted holds the raw identifying tokens recovered from a segment's first
// page. Either field may be empty when nothing plausible was recognised.
type Extracted struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	idShape     = regexp.MustCompile(`^[A-Za-z0-9]+(?:[-/][A-Za-z0-9]+)*$`)
	hasDigit    = regexp.MustCompile(`\d`)
	namePattern = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
)

// formWords are cover-page labels that look like capitalised names but never
// are one.
var formWords = map[string]struct{}{
	"Student": {}, "Name": {}, "Signature": {}, "Date": {},
	"Examination": {}, "Exam": {}, "Index": {}, "Admission": {},
	"Number": {}, "Course": {}, "Subject": {},
}

// Extract scans recognised lines top to bottom for a candidate student ID
// (alphanumeric, length 5-12, optional hyphen or slash separators, at least
// one digit) and a candidate name (two or more capitalised words that are not
// form labels). Scanning stops as soon as both are found.
func Extract(lines []string) Extracted {
	var ex Extracted
	for _, line := range lines {
		line = textutil.CleanText(line)
		if line == "" {
			continue
		}

		if ex.ID == "" {
			ex.ID = findIDToken(line)
		}
		if ex.Name == "" {
			ex.Name = findName(line)
		}
		if ex.ID != "" && ex.Name != "" {
			break
		}
	}
	return ex
}

func findIDToken(line string) string {
	for _, token := range strings.FieldsFunc(line, func(r rune) bool {
		return !(r == '-' || r == '/' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}) {
		if len(token) < 5 || len(token) > 12 {
			continue
		}
		if !idShape.MatchString(token) || !hasDigit.MatchString(token) {
			continue
		}
		return token
	}
	return ""
}

func findName(line string) string {
	for _, match := range namePattern.FindAllString(line, -1) {
		words := strings.Fields(match)
		// Labels such as "Student Name" often run into the name itself on a
		// recognised line; strip them from the front before judging.
		for len(words) > 0 {
			if _, ok := formWords[words[0]]; !ok {
				break
			}
			words = words[1:]
		}
		if len(words) < 2 {
			continue
		}
		if containsFormWord(words) {
			continue
		}
		return strings.Join(words, " ")
	}
	return ""
}

func containsFormWord(words []string) bool {
	for _, word := range words {
		if _, ok := formWords[word]; ok {
			return true
		}
	}
	return false
}
