package extract

import (
	"strings"

	"docpipe/internal/config"
)

// Confidence bounds: a document is never reported exactly certain nor
// exactly zero-confidence, so downstream thresholds stay meaningful.
const (
	confidenceMin = 0.05
	confidenceMax = 0.99
)

// Scorer derives an overall confidence score and per-field justifications
// from a validated result. The model is monotone and deterministic: start at
// 1.0, subtract a fixed penalty per correction round (floored), then scale
// by the fraction of schema fields the backend justified with located
// evidence. Justification text passes through verbatim, provenance only.
type Scorer struct {
	roundPenalty float64
	penaltyFloor float64
}

// NewScorer creates a Scorer from config, applying the documented defaults
// for unset values.
func NewScorer(cfg *config.ScoringConfig) *Scorer {
	penalty := cfg.RoundPenalty
	if penalty <= 0 {
		penalty = 0.15
	}
	floor := cfg.PenaltyFloor
	if floor <= 0 {
		floor = 0.1
	}
	return &Scorer{roundPenalty: penalty, penaltyFloor: floor}
}

// Score computes (confidence, justifications) for an accepted candidate.
// fieldNames is the schema's top-level field list; justifications for
// unknown fields are ignored for coverage but still passed through.
func (s *Scorer) Score(justifications map[string]string, correctionRounds int, fieldNames []string) (float64, map[string]string) {
	confidence := 1.0 - float64(correctionRounds)*s.roundPenalty
	if confidence < s.penaltyFloor {
		confidence = s.penaltyFloor
	}

	confidence *= coverage(justifications, fieldNames)

	if confidence < confidenceMin {
		confidence = confidenceMin
	}
	if confidence > confidenceMax {
		confidence = confidenceMax
	}

	out := make(map[string]string, len(justifications))
	for k, v := range justifications {
		out[k] = v
	}
	return confidence, out
}

// coverage is the fraction of schema fields with a non-blank justification.
func coverage(justifications map[string]string, fieldNames []string) float64 {
	if len(fieldNames) == 0 {
		return 1.0
	}
	located := 0
	for _, name := range fieldNames {
		if strings.TrimSpace(justifications[name]) != "" {
			located++
		}
	}
	return float64(located) / float64(len(fieldNames))
}
