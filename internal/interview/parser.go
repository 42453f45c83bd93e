package interview

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	scorePattern   = regexp.MustCompile(`(?i)\[?\s*(final\s+)?score\s*:\s*(\d+)(?:\s*/\s*(?:20|100))?\s*\]?`)
	summaryPattern = regexp.MustCompile(`(?is)\[comprehensive summary\](.+?)\[closing\b`)

	// Bracketless markers only count at the start of a line.
	plainSummaryPattern = regexp.MustCompile(`(?ims)^[ \t]*comprehensive summary\b:?(.+?)^[ \t]*\[?closing\b`)
)

// Reply holds what could be recovered from a generated reply.
type Reply struct {
	// Score is the literal number next to a score marker, clamped to [0,100].
	Score int
	// ScoreFound reports whether any score marker was present.
	ScoreFound bool
	// Final reports whether the marker was a "Final Score".
	Final bool
	// Summary is the text between the summary and closing markers.
	Summary string
}

// ResponseParser extracts structured fields from generated text. A missing
// marker yields a zero value, never an error.
type ResponseParser interface {
	Parse(text string) Reply
}

// MarkerParser is the regular-expression based ResponseParser.
type MarkerParser struct{}

func (MarkerParser) Parse(text string) Reply {
	var reply Reply

	// A "Final Score" wins over a per-answer score appearing before it.
	for _, m := range scorePattern.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		final := strings.TrimSpace(m[1]) != ""
		if !reply.ScoreFound || (final && !reply.Final) {
			reply.Score = clampScore(n)
			reply.ScoreFound = true
			reply.Final = final
		}
		if reply.Final {
			break
		}
	}

	for _, pattern := range []*regexp.Regexp{summaryPattern, plainSummaryPattern} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			reply.Summary = strings.TrimSpace(m[1])
			break
		}
	}

	return reply
}

// FinalScore returns the explicit final score, or 0 when the reply carries
// no "Final Score" marker.
func (r Reply) FinalScore() int {
	if !r.ScoreFound || !r.Final {
		return 0
	}
	return r.Score
}

// CumulativeScore approximates progress credit from the question index alone.
func CumulativeScore(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return clampScore(int(math.Round(float64(answered) / float64(total) * 100)))
}
