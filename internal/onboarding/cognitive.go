package onboarding

import (
	"github.com/mnemocore/mnemocore/internal/behaviour"
	"github.com/mnemocore/mnemocore/internal/store"
)

// CognitiveProfile is a read-only synthesis over the style and rhythm
// data onboarding already computed, folding them into one summary
// rather than introducing a new persisted model (see DESIGN.md).
type CognitiveProfile struct {
	FormalityLabel string
	VerbosityLabel string
	PeakHour       int
	PeakWeekday    int
	TopValues      []string
}

func buildCognitiveProfile(user *store.UserStyleProfile, rhythm []*behaviour.RhythmCell, values []ValueSignal) *CognitiveProfile {
	cp := &CognitiveProfile{
		FormalityLabel: styleLabel(user.Formality, "formal", "balanced", "casual"),
		VerbosityLabel: styleLabel(user.Verbosity, "verbose", "moderate", "terse"),
	}

	var peak *behaviour.RhythmCell
	for _, c := range rhythm {
		if peak == nil || c.EventCount > peak.EventCount {
			peak = c
		}
	}
	if peak != nil {
		cp.PeakHour = peak.Hour
		cp.PeakWeekday = peak.Weekday
	}

	for i, v := range values {
		if i >= 5 {
			break
		}
		cp.TopValues = append(cp.TopValues, v.Value)
	}
	return cp
}

func styleLabel(score float64, high, mid, low string) string {
	switch {
	case score >= 0.66:
		return high
	case score >= 0.33:
		return mid
	default:
		return low
	}
}
