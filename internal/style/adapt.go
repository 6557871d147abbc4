package style

import (
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/mnemocore/mnemocore/internal/mnerr"
	"github.com/mnemocore/mnemocore/internal/store"
)

// ComputeEngagementScore returns the composite engagement score and a
// confidence in [0,1] equal to the fraction of the five signals that were
// actually present on the event ("requires >=30% confidence").
// Present signals are weight-normalized so a partially-populated event
// still yields a score in [0,1] rather than being dragged toward zero by
// signals that simply weren't recorded.
func ComputeEngagementScore(ev *store.EngagementEvent, w EngagementWeights) (score, confidence float64) {
	var weighted, totalWeight float64
	var present int

	if ev.EditRatio != nil {
		weighted += w.EditRatio * clamp01(1.0-*ev.EditRatio)
		totalWeight += w.EditRatio
		present++
	}
	if ev.ResponseSentiment != nil {
		weighted += w.ResponseSentiment * clamp01((*ev.ResponseSentiment+1)/2)
		totalWeight += w.ResponseSentiment
		present++
	}
	if ev.ThreadContinued != nil {
		v := 0.0
		if *ev.ThreadContinued {
			v = 1.0
		}
		weighted += w.ThreadContinuation * v
		totalWeight += w.ThreadContinuation
		present++
	}
	if ev.ThreadLength != nil {
		weighted += w.ThreadLength * clamp01(float64(*ev.ThreadLength)/10.0)
		totalWeight += w.ThreadLength
		present++
	}
	// Explicit acceptance has no dedicated field; an unedited draft
	// (edit ratio exactly 0) is treated as the user explicitly accepting
	// it as written.
	if ev.EditRatio != nil && *ev.EditRatio == 0 {
		weighted += w.ExplicitAcceptance * 1.0
		totalWeight += w.ExplicitAcceptance
		present++
	}

	if totalWeight == 0 {
		return 0, 0
	}
	return weighted / totalWeight, float64(present) / 5.0
}

// CapsRatio is the chosen definition for vent-mode's caps-ratio signal
// (DESIGN.md Open Question 3): uppercase letters over all alphabetic
// letters in the text.
func CapsRatio(text string) float64 {
	var upper, alpha int
	for _, r := range text {
		if !isLetter(r) {
			continue
		}
		alpha++
		if isUpper(r) {
			upper++
		}
	}
	if alpha == 0 {
		return 0
	}
	return float64(upper) / float64(alpha)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

// VentCheck is the input the freeze policy needs beyond the event itself:
// recent-sentiment window average, and a message-velocity estimate
// (messages/minute), both of which the caller (the background worker or
// the façade) is better positioned to compute from raw timestamps/text
// than this package is from an EngagementEvent alone.
type VentCheck struct {
	RecentSentiment float64
	ThreadLength    int
	CapsRatio       float64
	VelocityPerMin  float64
}

// IsVentMode implements freeze policy: recent-sentiment <=
// -0.5 AND (thread length >= 8 OR caps ratio >= threshold OR velocity >=
// 5/min).
func (s *Service) IsVentMode(v VentCheck) bool {
	if v.RecentSentiment > -0.5 {
		return false
	}
	return v.ThreadLength >= 8 || v.CapsRatio >= s.VentModeCapsRatio || v.VelocityPerMin >= 5.0
}

// LearningRate implements decay: alpha(N) = max(0.05, 0.30 *
// 0.9^(N/10)). Monotonically non-increasing in N.
func LearningRate(n int) float64 {
	rate := 0.30 * math.Pow(0.9, float64(n)/10.0)
	if rate < 0.05 {
		return 0.05
	}
	return rate
}

// Adapt records ev and, if gating and the freeze policy allow it, nudges
// the user's global style a step toward the style of the recipient the
// event concerns (if any) — treating a well-engaged interaction with a
// recipient as evidence that style is worth leaning toward, and a poorly
// engaged one as evidence against it. Every changed dimension appends a
// PersonalityEvolutionEntry. Returns whether an adaptation was applied.
func (s *Service) Adapt(ev *store.EngagementEvent, vent VentCheck, now int64) (bool, error) {
	score, confidence := ComputeEngagementScore(ev, s.Weights)

	profile, err := s.store.GetUserStyle()
	if err != nil {
		return false, err
	}

	applied := false
	defer func() {
		ev.AdaptationApplied = applied
		_ = s.store.InsertEngagementEvent(ev)
	}()

	if confidence < s.MinConfidence || profile.InteractionCount < s.MinInteractions {
		return false, nil
	}
	if s.IsVentMode(vent) {
		return false, nil
	}
	if ev.RecipientEntityID == nil {
		return false, nil
	}

	recipient, err := s.store.GetRecipientStyle(*ev.RecipientEntityID)
	if mnerr.Is(err, mnerr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	alpha := LearningRate(profile.InteractionCount)
	// A low score means the current style didn't land; pull away from
	// the recipient's style instead of toward it.
	direction := 1.0
	if score < 0.5 {
		direction = -1.0
	}

	dims := []struct {
		name string
		cur  *float64
		tgt  float64
	}{
		{"formality", &profile.Formality, recipient.Formality},
		{"verbosity", &profile.Verbosity, recipient.Verbosity},
		{"emoji_density", &profile.EmojiDensity, recipient.EmojiDensity},
	}

	// Every changed dimension's evolution entry and the resulting
	// UserStyle save land together under one write transaction: either
	// all of it commits, or none of it does.
	var delta float64
	err = s.store.WithTx(func(tx store.Storer) error {
		for _, d := range dims {
			old := *d.cur
			change := alpha * direction * (d.tgt - old)
			if change > s.MaxDeltaPerAdaptation {
				change = s.MaxDeltaPerAdaptation
			}
			if change < -s.MaxDeltaPerAdaptation {
				change = -s.MaxDeltaPerAdaptation
			}
			if change == 0 {
				continue
			}
			*d.cur = clamp01(old + change)
			delta += change
			if err := tx.InsertEvolutionEntry(&store.PersonalityEvolutionEntry{
				ID: uuid.NewString(), Dimension: d.name, OldValue: old, NewValue: *d.cur,
				TriggerEventID: ev.ID, LearningRate: alpha, CreatedAt: now,
			}); err != nil {
				return err
			}
			applied = true
		}

		if applied {
			profile.InteractionCount++
			profile.UpdatedAt = now
			if err := tx.SaveUserStyle(profile); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		applied = false
		return false, err
	}

	if applied {
		ev.Delta = &delta
	}
	return applied, nil
}

// DetectDrift runs a two-sided CUSUM over the last 40 evolution entries
// for dimension, using the first half as the reference window. Reports
// drift without blocking anything; callers decide what to do
// with it.
func (s *Service) DetectDrift(dimension string) (bool, error) {
	entries, err := s.store.ListEvolutionEntries(dimension, 40)
	if err != nil {
		return false, err
	}
	if len(entries) < 10 {
		return false, nil
	}

	// ListEvolutionEntries returns most-recent-first; CUSUM wants
	// chronological order.
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[len(entries)-1-i] = e.NewValue
	}

	refEnd := len(values) / 2
	mean := stat.Mean(values[:refEnd], nil)
	std := stat.StdDev(values[:refEnd], nil)
	if std == 0 {
		std = 1e-6
	}

	var pos, neg float64
	for _, v := range values[refEnd:] {
		diff := v - mean
		pos = math.Max(0, pos+diff-s.DriftSlack*std)
		neg = math.Min(0, neg+diff+s.DriftSlack*std)
		if pos > s.DriftThreshold*std || -neg > s.DriftThreshold*std {
			return true, nil
		}
	}
	return false, nil
}

// MirrorPrompt is what the (out-of-scope) downstream composer needs: tone
// targets blended between the user's global style and one recipient's
// style, plus exemplar phrases.
type MirrorPrompt struct {
	Formality       float64
	Verbosity       float64
	EmojiDensity    float64
	Greetings       []string
	SignOffs        []string
	ExemplarPhrases []string
}

// GenerateMirrorPrompt blends user and recipient style at s.MirrorLevel
// (mirrored = (1-m)*user + m*recipient, m in [0.6, 0.8]).
func (s *Service) GenerateMirrorPrompt(entityID string) (*MirrorPrompt, error) {
	user, err := s.store.GetUserStyle()
	if err != nil {
		return nil, err
	}
	recipient, err := s.store.GetRecipientStyle(entityID)
	if mnerr.Is(err, mnerr.KindNotFound) {
		recipient = &store.RecipientStyleProfile{}
	} else if err != nil {
		return nil, err
	}

	m := s.MirrorLevel
	if m == 0 {
		m = 0.7
	}
	prompt := &MirrorPrompt{
		Formality:       (1-m)*user.Formality + m*recipient.Formality,
		Verbosity:       (1-m)*user.Verbosity + m*recipient.Verbosity,
		EmojiDensity:    (1-m)*user.EmojiDensity + m*recipient.EmojiDensity,
		Greetings:       preferRecipient(recipient.Greetings, user.Greetings),
		SignOffs:        preferRecipient(recipient.SignOffs, user.SignOffs),
		ExemplarPhrases: recipient.ExampleMessages,
	}
	return prompt, nil
}

func preferRecipient(recipient, user []string) []string {
	if len(recipient) > 0 {
		return recipient
	}
	return user
}
