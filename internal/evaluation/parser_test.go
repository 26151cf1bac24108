package evaluation

import (
	"math"
	"strings"
	"testing"
)

func TestParseReply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		score      int
		confidence float64
		reason     string
		fallback   bool
		missing    []string
	}{
		{
			name:       "well formed reply",
			raw:        "Score: 7\nConfidence: 0.85\nReason: Good match",
			score:      7,
			confidence: 0.85,
			reason:     "Good match",
		},
		{
			name:       "no labels at all",
			raw:        "I cannot evaluate this.",
			score:      DefaultScore,
			confidence: DefaultConfidence,
			reason:     DefaultReason,
			missing:    []string{labelScore, labelConfidence, labelReason},
		},
		{
			name:       "values above range are clamped",
			raw:        "Score: 15\nConfidence: 2.0\nReason: x",
			score:      8,
			confidence: 1.0,
			reason:     "x",
		},
		{
			name:       "zero score survives clamping",
			raw:        "Score: 0\nConfidence: 0\nReason: page is blank",
			score:      0,
			confidence: 0,
			reason:     "page is blank",
		},
		{
			name:       "non ascii digits are read as numbers",
			raw:        "Score: ７\nConfidence: 0.6\nReason: fullwidth",
			score:      7,
			confidence: 0.6,
			reason:     "fullwidth",
		},
		{
			name:       "arabic indic digits",
			raw:        "Score: ٥\nConfidence: 0.6\nReason: arabic",
			score:      5,
			confidence: 0.6,
			reason:     "arabic",
		},
		{
			name:       "first match wins",
			raw:        "Score: 3\nScore: 6\nConfidence: 0.4\nConfidence: 0.9\nReason: first\nReason: second",
			score:      3,
			confidence: 0.4,
			reason:     "first",
		},
		{
			name:       "labels are case sensitive",
			raw:        "score: 6\nconfidence: 0.9\nreason: lower",
			score:      DefaultScore,
			confidence: DefaultConfidence,
			reason:     DefaultReason,
			missing:    []string{labelScore, labelConfidence, labelReason},
		},
		{
			name:       "reason is trimmed and single line",
			raw:        "Score: 5\nConfidence: 0.7\nReason:    spans   \nsecond line",
			score:      5,
			confidence: 0.7,
			reason:     "spans",
		},
		{
			name:       "only score present keeps other defaults",
			raw:        "Score: 6",
			score:      6,
			confidence: DefaultConfidence,
			reason:     DefaultReason,
			missing:    []string{labelConfidence, labelReason},
		},
		{
			name:       "malformed confidence resets the whole triple",
			raw:        "Score: 7\nConfidence: 0.8.5\nReason: Good match",
			score:      DefaultScore,
			confidence: DefaultConfidence,
			reason:     DefaultReason,
			fallback:   true,
		},
		{
			name:       "lone dot confidence resets the whole triple",
			raw:        "Score: 7\nConfidence: .\nReason: Good match",
			score:      DefaultScore,
			confidence: DefaultConfidence,
			reason:     DefaultReason,
			fallback:   true,
		},
		{
			name:       "oversized score clamps to max",
			raw:        "Score: 99999999999999999999999\nConfidence: 0.3\nReason: huge",
			score:      MaxScore,
			confidence: 0.3,
			reason:     "huge",
		},
		{
			name:       "negative sign is not part of the score",
			raw:        "Score: -3\nConfidence: 0.3\nReason: negative",
			score:      DefaultScore,
			confidence: 0.3,
			reason:     "negative",
			missing:    []string{labelScore},
		},
		{
			name:       "labels inside prose",
			raw:        "Sure! Here you go.\n**Score: 4** Confidence:0.65 Reason: weak overlap with the query",
			score:      4,
			confidence: 0.65,
			reason:     "weak overlap with the query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reply := ParseReply(tt.raw)
			if reply.Score != tt.score {
				t.Fatalf("expected score %d, got %d", tt.score, reply.Score)
			}
			if reply.Confidence != tt.confidence {
				t.Fatalf("expected confidence %v, got %v", tt.confidence, reply.Confidence)
			}
			if reply.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, reply.Reason)
			}
			if reply.Fallback() != tt.fallback {
				t.Fatalf("expected fallback %v, got %v (err: %v)", tt.fallback, reply.Fallback(), reply.Err)
			}
			if strings.Join(reply.Missing, ",") != strings.Join(tt.missing, ",") {
				t.Fatalf("expected missing %v, got %v", tt.missing, reply.Missing)
			}
		})
	}
}

func TestParseReplyBounds(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"Score: 0", "Score: 8", "Score: 9", "Score: 1000", "Score: 00012",
		"Confidence: 0.999", "Confidence: 1.0001", "Confidence: 42", "Confidence: 0.",
		"Confidence: " + strings.Repeat("9", 400),
	} {
		reply := ParseReply(raw)
		if reply.Score < MinScore || reply.Score > MaxScore {
			t.Fatalf("%q: score %d out of range", raw, reply.Score)
		}
		if reply.Confidence < 0 || reply.Confidence > 1 || math.IsNaN(reply.Confidence) {
			t.Fatalf("%q: confidence %v out of range", raw, reply.Confidence)
		}
		if reply.Reason == "" {
			t.Fatalf("%q: reason must always be populated", raw)
		}
	}
}

func TestRoundConfidence(t *testing.T) {
	t.Parallel()

	cases := map[float64]float64{
		0.854:  0.85,
		0.1:    0.1,
		1:      1,
		0:      0,
		0.3333: 0.33,
		0.125:  0.12,
		0.625:  0.62,
		0.375:  0.38,
		0.115:  0.12,
	}
	for in, want := range cases {
		if got := RoundConfidence(in); got != want {
			t.Fatalf("RoundConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestClampScore(t *testing.T) {
	t.Parallel()

	for in, want := range map[int]int{-5: 0, 0: 0, 4: 4, 8: 8, 9: 8, 1 << 30: 8} {
		if got := ClampScore(in); got != want {
			t.Fatalf("ClampScore(%d) = %d, want %d", in, got, want)
		}
	}
}
