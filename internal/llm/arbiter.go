package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ModelArbiter asks a Completer for a structured judgement between
// identity-resolution candidates, in the same prompt/parse shape the
// extractor uses: plain-text prompt in, JSON (possibly fenced) out.
type ModelArbiter struct {
	completer Completer
}

// NewModelArbiter wraps a Completer as an Arbiter.
func NewModelArbiter(c Completer) *ModelArbiter {
	return &ModelArbiter{completer: c}
}

const arbiterSystemPrompt = `You resolve ambiguous person references to a specific known identity.
Given a name and a list of candidate identities, decide if exactly one candidate is clearly the
same person. Respond with JSON only: {"decisive": bool, "entityId": string, "reason": string}.
If you are not confident, set decisive to false.`

func (m *ModelArbiter) Arbitrate(ctx context.Context, candidates []ArbiterCandidate, probeName string) (Verdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Name to resolve: %q\nCandidates:\n", probeName)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%q priorScore=%.2f\n", c.EntityID, c.Name, c.Score)
	}

	raw, err := m.completer.Complete(ctx, arbiterSystemPrompt, b.String(), GenerationParams{})
	if err != nil {
		return Verdict{}, err
	}

	var v struct {
		Decisive bool   `json:"decisive"`
		EntityID string `json:"entityId"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(strings.TrimSpace(raw))), &v); err != nil {
		return Verdict{Decisive: false}, nil
	}
	return Verdict{Decisive: v.Decisive, EntityID: v.EntityID, Reason: v.Reason}, nil
}

var _ Arbiter = (*ModelArbiter)(nil)
