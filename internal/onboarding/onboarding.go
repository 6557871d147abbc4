// Package onboarding runs the one-shot setup procedure: user-style
// extraction, per-recipient extraction, pattern detection, rhythm-matrix
// build, value extraction, and a cognitive-profile synthesis, gated
// behind a minimum message count and a completion marker so it does not
// silently re-run.
package onboarding

import (
	"sort"

	"github.com/mnemocore/mnemocore/internal/behaviour"
	"github.com/mnemocore/mnemocore/internal/mnerr"
	"github.com/mnemocore/mnemocore/internal/store"
	"github.com/mnemocore/mnemocore/internal/style"
)

// Step names one stage of the procedure, reported through Progress as
// each stage starts.
type Step string

const (
	StepUserStyle        Step = "user_style"
	StepRecipientStyle   Step = "recipient_style"
	StepPatternDetection Step = "pattern_detection"
	StepRhythmMatrix     Step = "rhythm_matrix"
	StepValueExtraction  Step = "value_extraction"
	StepCognitiveProfile Step = "cognitive_profile"
)

// Progress is called once per Step, in the fixed order above.
type Progress func(step Step)

const defaultMinMessages = 50

// Orchestrator runs the onboarding procedure over a store, reusing the
// same style and behaviour services the background scheduler uses.
type Orchestrator struct {
	store    store.Storer
	style    *style.Service
	detector *behaviour.Detector

	MinMessages int
}

func New(s store.Storer) *Orchestrator {
	return &Orchestrator{
		store:       s,
		style:       style.New(s),
		detector:    behaviour.New(s),
		MinMessages: defaultMinMessages,
	}
}

// Result summarises what Run produced. AlreadyCompleted is true when Run
// found a completion marker and skipped the procedure entirely; callers
// that want to force a re-run must call Reset first.
type Result struct {
	AlreadyCompleted bool
	UserStyle        *store.UserStyleProfile
	RecipientCount   int
	Values           []ValueSignal
	Cognitive        *CognitiveProfile
}

// Run executes every step in sequence, reporting progress as it goes. It
// refuses to run below MinMessages and refuses to re-run once completed;
// call Reset to clear the marker first.
func (o *Orchestrator) Run(now int64, progress Progress) (*Result, error) {
	completed, err := o.store.OnboardingCompleted()
	if err != nil {
		return nil, err
	}
	if completed {
		return &Result{AlreadyCompleted: true}, nil
	}

	count, err := o.store.CountMessages()
	if err != nil {
		return nil, err
	}
	if count < o.MinMessages {
		return nil, mnerr.New(mnerr.KindInputInvalid,
			"onboarding requires at least %d messages, have %d", o.MinMessages, count)
	}

	result := &Result{}
	report := func(s Step) {
		if progress != nil {
			progress(s)
		}
	}

	report(StepUserStyle)
	userProfile, err := o.style.ExtractUserStyle(now)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveUserStyle(userProfile); err != nil {
		return nil, err
	}
	result.UserStyle = userProfile

	report(StepRecipientStyle)
	recipients, err := o.store.ListEntities("person")
	if err != nil {
		return nil, err
	}
	for _, r := range recipients {
		profile, err := o.style.ExtractRecipientStyle(r.ID, now)
		if err != nil {
			return nil, err
		}
		if err := o.store.SaveRecipientStyle(profile); err != nil {
			return nil, err
		}
	}
	result.RecipientCount = len(recipients)

	report(StepPatternDetection)
	events, err := o.store.ListEventsSince(0)
	if err != nil {
		return nil, err
	}
	if err := o.detector.ProcessEvents(events, now); err != nil {
		return nil, err
	}

	report(StepRhythmMatrix)
	rhythm, err := o.detector.Rhythm()
	if err != nil {
		return nil, err
	}

	report(StepValueExtraction)
	values, err := o.extractValues(recipients)
	if err != nil {
		return nil, err
	}
	result.Values = values

	report(StepCognitiveProfile)
	result.Cognitive = buildCognitiveProfile(userProfile, rhythm, values)

	return result, o.store.MarkOnboardingComplete(now)
}

// Reset clears the completion marker so Run can execute again.
func (o *Orchestrator) Reset() error {
	return o.store.ResetOnboarding()
}

// ValueSignal is a recurring "prefers"-predicate assertion, taken as a
// cheap proxy for a stated preference or value ("value
// extraction" has no defined mechanism; see DESIGN.md).
type ValueSignal struct {
	Value      string
	Occurrences int
}

// extractValues scans current "prefers" assertions across every known
// person entity and ranks the distinct object literals by frequency.
func (o *Orchestrator) extractValues(people []*store.Entity) ([]ValueSignal, error) {
	counts := map[string]int{}
	for _, p := range people {
		assertions, err := o.store.CurrentAssertions(p.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range assertions {
			if a.Predicate != "prefers" || a.ObjectLiteral == "" {
				continue
			}
			counts[a.ObjectLiteral]++
		}
	}
	var out []ValueSignal
	for v, n := range counts {
		out = append(out, ValueSignal{Value: v, Occurrences: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}
