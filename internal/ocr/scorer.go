package ocr

import (
	"sort"
	"strings"

	"github.com/ironsheep/anpr-parking/internal/anpr"
)

// Confusable pairs, keyed both ways. Plates start with letters and continue
// with digits, so a character is pushed toward the class its position
// expects.
var (
	digitToLetter = map[byte]byte{'0': 'O', '1': 'I', '5': 'S', '8': 'B', '2': 'Z'}
	letterToDigit = map[byte]byte{'O': '0', 'I': '1', 'S': '5', 'B': '8', 'Z': '2'}
)

// letterPrefix is how many leading positions expect letters.
const letterPrefix = 2

// Normalize uppercases a reading and corrects confusable characters by
// position: within the first two characters digits become letters, after
// them letters become digits. Characters outside the confusable table are
// left as they are.
func Normalize(raw string) string {
	upper := []byte(strings.ToUpper(raw))
	for i, c := range upper {
		if i < letterPrefix {
			if l, ok := digitToLetter[c]; ok {
				upper[i] = l
			}
			continue
		}
		if d, ok := letterToDigit[c]; ok {
			upper[i] = d
		}
	}
	return string(upper)
}

// Score rates how closely a normalized reading fits the plate format.
//
//   - +5 when the length is exactly 6
//   - +3 when the length is 5 or 7
//   - +10 when characters 0-1 are letters and 2-5 are digits
//   - +3 when characters 0-1 are letters
func Score(text string) int {
	score := 0
	switch n := len(text); {
	case n == 6:
		score += 5
	case n >= 5 && n <= 7:
		score += 3
	}

	prefix := len(text) >= 2 && isLetter(text[0]) && isLetter(text[1])
	if prefix && len(text) >= 6 && allDigits(text[2:6]) {
		score += 10
	}
	if prefix {
		score += 3
	}
	return score
}

// Rank normalizes a candidate multiset and orders the distinct readings.
//
// Order is score descending with ties broken by first occurrence, so
// identical input always yields identical output. Count records how often
// each normalized reading occurred; RawText holds the first raw reading
// that normalized to it.
func Rank(raws []string) []anpr.PlateCandidate {
	type entry struct {
		candidate anpr.PlateCandidate
		first     int
	}

	byText := make(map[string]*entry)
	entries := make([]*entry, 0, len(raws))
	for i, raw := range raws {
		cleaned := Normalize(raw)
		if cleaned == "" {
			continue
		}
		if e, ok := byText[cleaned]; ok {
			e.candidate.Count++
			continue
		}
		e := &entry{
			candidate: anpr.PlateCandidate{
				RawText:     raw,
				CleanedText: cleaned,
				Score:       Score(cleaned),
				Count:       1,
			},
			first: i,
		}
		byText[cleaned] = e
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.candidate.Score != b.candidate.Score {
			return a.candidate.Score > b.candidate.Score
		}
		return a.first < b.first
	})

	ranked := make([]anpr.PlateCandidate, len(entries))
	for i, e := range entries {
		ranked[i] = e.candidate
	}
	return ranked
}

// Select returns the best reading, or "" for an empty multiset.
func Select(raws []string) string {
	ranked := Rank(raws)
	if len(ranked) == 0 {
		return ""
	}
	return ranked[0].CleanedText
}

func isLetter(c byte) bool { return c >= 'A' && c <= 'Z' }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
