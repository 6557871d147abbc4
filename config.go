package mnemocore

import (
	"log"
	"time"

	"github.com/mnemocore/mnemocore/internal/style"
)

// Config is the single closed struct the core accepts; there is no
// generic option-bag or map[string]any variant. Every field has a
// DefaultConfig value.
type Config struct {
	// DBPath is the SQLite file path, or ":memory:" for an ephemeral
	// store.
	DBPath string

	// VectorDir is not read by Initialise; setting it has no effect on
	// which vector index the store uses.
	VectorDir string

	UserEmail string
	UserPhone string

	ProcessInterval   time.Duration
	ProactiveInterval time.Duration

	// MirrorLevel blends recipient style against user style, in [0.6, 0.8].
	MirrorLevel float64

	MinimumOnboardingMessages int

	EngagementWeights style.EngagementWeights

	// VentModeCapsRatio and the CUSUM/adaptation-step parameters below
	// are needed to construct internal/style.Service; see DESIGN.md
	// Open Questions 2 and 3.
	VentModeCapsRatio     float64
	MaxDeltaPerAdaptation float64
	DriftThreshold        float64
	DriftSlack            float64

	// ExtraNicknames extends the bundled nickname dictionary.
	ExtraNicknames map[string][]string

	// OpenAIAPIKey opts into model-backed extraction, arbitration and
	// embedding; empty keeps the always-available rule-based/no-op
	// fallbacks (collaborator interfaces are optional).
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIEmbeddingModel string

	// Logger receives background-worker progress and log-and-continue
	// failures; nil defaults to log.Default() (see DESIGN.md's Logging
	// entry for why this is the one stdlib-only ambient concern).
	Logger *log.Logger
}

// DefaultConfig returns a set of sane numeric defaults, with an
// in-memory store suitable for tests.
func DefaultConfig() Config {
	return Config{
		DBPath:                    ":memory:",
		ProcessInterval:           60 * time.Second,
		ProactiveInterval:         60 * time.Second,
		MirrorLevel:               0.7,
		MinimumOnboardingMessages: 50,
		EngagementWeights:         style.DefaultWeights(),
		VentModeCapsRatio:         0.3,
		MaxDeltaPerAdaptation:     0.01,
		DriftThreshold:            5.0,
		DriftSlack:                0.5,
	}
}
