package evaluation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	DefaultScore      = 1
	DefaultConfidence = 0.5
	DefaultReason     = "Unable to parse response"

	labelScore      = "Score"
	labelConfidence = "Confidence"
	labelReason     = "Reason"
)

var (
	scorePattern      = regexp.MustCompile(`Score:\s*(\p{Nd}+)`)
	confidencePattern = regexp.MustCompile(`Confidence:\s*([0-9.]+)`)
	reasonPattern     = regexp.MustCompile(`Reason:\s*(.+)`)
)

// Reply is the normalized triple extracted from a model reply.
type Reply struct {
	Score      int
	Confidence float64
	Reason     string

	// Missing lists labels that were not found and got their default value.
	Missing []string
	// Err is set when extraction failed and the whole triple was reset.
	Err error
}

// Fallback reports whether the defaults replaced the extracted values.
func (r Reply) Fallback() bool { return r.Err != nil }

// ParseReply extracts score, confidence and reason from raw. It never fails:
// absent labels take their defaults, and a conversion error resets all three.
// Score is clamped to [MinScore, MaxScore] and confidence to [0, 1].
func ParseReply(raw string) Reply {
	text := strings.TrimSpace(raw)

	reply, err := extract(text)
	if err != nil {
		return Reply{
			Score:      DefaultScore,
			Confidence: DefaultConfidence,
			Reason:     DefaultReason,
			Err:        err,
		}
	}

	reply.Score = ClampScore(reply.Score)
	reply.Confidence = ClampConfidence(reply.Confidence)

	return reply
}

func extract(text string) (Reply, error) {
	reply := Reply{
		Score:      DefaultScore,
		Confidence: DefaultConfidence,
		Reason:     DefaultReason,
	}

	if m := scorePattern.FindStringSubmatch(text); m != nil {
		score, err := strconv.Atoi(asciiDigits(m[1]))
		switch {
		case errors.Is(err, strconv.ErrRange):
			score = MaxScore
		case err != nil:
			return reply, fmt.Errorf("parse score %q: %w", m[1], err)
		}
		reply.Score = score
	} else {
		reply.Missing = append(reply.Missing, labelScore)
	}

	if m := confidencePattern.FindStringSubmatch(text); m != nil {
		// ParseFloat returns ±Inf with ErrRange, which clamping handles
		confidence, err := strconv.ParseFloat(m[1], 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return reply, fmt.Errorf("parse confidence %q: %w", m[1], err)
		}
		reply.Confidence = confidence
	} else {
		reply.Missing = append(reply.Missing, labelConfidence)
	}

	if m := reasonPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		reply.Reason = strings.TrimSpace(m[1])
	} else {
		reply.Missing = append(reply.Missing, labelReason)
	}

	return reply, nil
}

// asciiDigits maps decimal digits of any script, such as fullwidth "７", to
// their ASCII form.
func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= unicode.MaxASCII || !unicode.IsDigit(r) {
			return r
		}
		// Decimal digits are encoded in contiguous runs of ten starting at zero.
		zero := r
		for unicode.IsDigit(zero - 1) {
			zero--
		}
		return '0' + (r-zero)%10
	}, s)
}

func ClampScore(score int) int {
	return max(MinScore, min(MaxScore, score))
}

func ClampConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) {
		return DefaultConfidence
	}
	return math.Max(0, math.Min(1, confidence))
}

// RoundConfidence rounds to two decimal places. Exact ties go to the even
// digit, so 0.125 becomes 0.12.
func RoundConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return confidence
	}
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(confidence, 'f', 2, 64), 64)
	if err != nil {
		return confidence
	}
	return rounded
}
