package coach

import (
	"regexp"
	"strconv"
	"strings"
)

// overallRe matches the "OVERALL SCORE: N/10" line the analysis prompt asks
// the model to emit. Decimal scores are accepted.
var overallRe = regexp.MustCompile(`(?i)OVERALL\s+SCORE:\s*(\d+(?:\.\d+)?)\s*/\s*10`)

// categoryRes is one pattern per scored category, matching lines like
// "DISCOVERY: 6/10". Underscores in category names may appear as spaces in
// model output.
var categoryRes = buildCategoryPatterns()

func buildCategoryPatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(Categories))
	for _, cat := range Categories {
		label := strings.ReplaceAll(cat, "_", `[ _]`)
		out[cat] = regexp.MustCompile(`(?i)` + label + `:\s*(\d+(?:\.\d+)?)\s*/\s*10`)
	}
	return out
}

// ParseScores extracts the overall and per-category scores from raw model
// output. Missing scores are simply absent: the overall score defaults to 0
// and unmatched categories are left out of the map. The full raw text is
// preserved as the rationale.
func ParseScores(raw string) Feedback {
	fb := Feedback{
		CategoryScores: make(map[string]float64),
		Rationale:      strings.TrimSpace(raw),
	}

	if m := overallRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			fb.OverallScore = clampScore(v)
		}
	}

	for cat, re := range categoryRes {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			fb.CategoryScores[cat] = clampScore(v)
		}
	}
	return fb
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
