package arbitrage

import "strings"

// stopwords carry no matching signal in market titles.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "in": {}, "is": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "will": {},
}

// normalizeTitle lowercases, strips punctuation and drops stopwords,
// returning the significant tokens of a market title.
func normalizeTitle(title string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if _, skip := stopwords[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// TitleSimilarity scores how likely two market titles describe the same
// event, in [0,1]. The score is the overlap coefficient over
// significant tokens: shared tokens divided by the smaller token set.
// Titles that disagree on any number (dates, price levels, thresholds)
// are forced to zero, because "above 40000" and "above 50000" markets
// must never pair.
func TitleSimilarity(a, b string) float64 {
	ta := normalizeTitle(a)
	tb := normalizeTitle(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		setB[t] = struct{}{}
	}

	if numbersDisagree(setA, setB) {
		return 0
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}

	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}

	return float64(shared) / float64(smaller)
}

// numbersDisagree reports whether either title contains a numeric token
// the other lacks.
func numbersDisagree(a, b map[string]struct{}) bool {
	return hasUnmatchedNumber(a, b) || hasUnmatchedNumber(b, a)
}

func hasUnmatchedNumber(from, against map[string]struct{}) bool {
	for t := range from {
		if !isNumeric(t) {
			continue
		}
		if _, ok := against[t]; !ok {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
