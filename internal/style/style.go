// Package style implements two concerns: extracting a deterministic
// communication-style profile from the user's sent messages, and
// adapting that profile from engagement feedback, gated by
// confidence/interaction thresholds, a vent-mode freeze, and a decaying
// learning rate.
package style

import (
	"github.com/mnemocore/mnemocore/internal/store"
)

// Service wraps a store.Storer with style extraction and adaptation.
type Service struct {
	store store.Storer

	// MirrorLevel blends user and recipient style for prompt generation:
	// mirrored = (1-m)*user + m*recipient, m in [0.6, 0.8].
	MirrorLevel float64

	// MinConfidence and MinInteractions gate adaptation: requires at
	// least 30% confidence and 10 recorded interactions by default.
	MinConfidence   float64
	MinInteractions int

	// Weights is the engagement-score weighting; overridable per the
	// Config design (DESIGN.md Open Question 1).
	Weights EngagementWeights

	// VentModeCapsRatio is the caps-ratio freeze threshold (default
	// 0.3); see DESIGN.md Open Question 3 for the ratio's definition.
	VentModeCapsRatio float64

	// MaxDeltaPerAdaptation caps the absolute per-dimension change in one
	// adaptation (e.g. 0.01).
	MaxDeltaPerAdaptation float64

	// DriftThreshold and DriftSlack parameterize the CUSUM drift monitor
	// (DESIGN.md Open Question 2).
	DriftThreshold float64
	DriftSlack     float64
}

// EngagementWeights is the composite engagement-score weighting.
type EngagementWeights struct {
	EditRatio        float64
	ResponseSentiment float64
	ThreadContinuation float64
	ThreadLength     float64
	ExplicitAcceptance float64
}

// DefaultWeights returns the default engagement-score weighting.
func DefaultWeights() EngagementWeights {
	return EngagementWeights{
		EditRatio:          0.35,
		ResponseSentiment:  0.30,
		ThreadContinuation: 0.20,
		ThreadLength:       0.10,
		ExplicitAcceptance: 0.05,
	}
}

// New builds a Service with sane default thresholds.
func New(s store.Storer) *Service {
	return &Service{
		store:                 s,
		MirrorLevel:           0.7,
		MinConfidence:         0.30,
		MinInteractions:       10,
		Weights:               DefaultWeights(),
		VentModeCapsRatio:     0.3,
		MaxDeltaPerAdaptation: 0.01,
		DriftThreshold:        5.0,
		DriftSlack:            0.5,
	}
}
