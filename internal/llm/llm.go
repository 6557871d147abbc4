// Package llm defines the core's optional collaboration points with a
// language model: structured arbitration for identity resolution, and fact
// extraction for the background worker. Extraction has an always-available
// rule-based implementation and an opt-in LLM-backed one; arbitration has
// only the LLM-backed implementation, and without it stage 4 is skipped.
package llm

import "context"

// GenerationParams mirrors the knobs a chat-completion call typically
// exposes; a Completer is free to ignore fields it doesn't support.
type GenerationParams struct {
	Temperature *float32
	MaxTokens   *int
}

// Completer is the minimal surface the core needs from a language model:
// one non-streaming call with a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error)
}

// ArbiterCandidate is one fuzzy-match candidate stage 4 must choose among.
type ArbiterCandidate struct {
	EntityID string
	Name     string
	Score    float64
}

// Verdict is the structured judgement stage 4 asks for.
type Verdict struct {
	Decisive bool
	EntityID string
	Reason   string
}

// Arbiter performs model-assisted identity arbitration (stage 4).
type Arbiter interface {
	Arbitrate(ctx context.Context, candidates []ArbiterCandidate, probeName string) (Verdict, error)
}

// ExtractedFact is one subject/predicate/object triple surfaced by an
// Extractor, prior to identity resolution of the subject/object names.
type ExtractedFact struct {
	SubjectName    string  `json:"subject"`
	Predicate      string  `json:"predicate"`
	ObjectName     string  `json:"object,omitempty"`
	ObjectLiteral  string  `json:"objectLiteral,omitempty"`
	Confidence     float64 `json:"confidence"`
	SourceSentence string  `json:"sourceSentence,omitempty"`
}

// ExtractedRelation is a co-mention-independent relationship between two
// named entities, destined for the relationship graph rather than the
// assertion store.
type ExtractedRelation struct {
	FromName   string  `json:"from"`
	ToName     string  `json:"to"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is what the background worker derives from one message
// body before identity resolution maps names to entity ids.
type ExtractionResult struct {
	Facts     []ExtractedFact     `json:"facts"`
	Relations []ExtractedRelation `json:"relations"`
}

// Extractor derives facts and relations from a message body.
// RuleBasedExtractor is always available; ModelExtractor wraps a Completer
// when one is configured.
type Extractor interface {
	Extract(ctx context.Context, body string) (*ExtractionResult, error)
}

// Embedder turns text into a fixed-length, unit-norm vector. It is
// optional throughout the core (glossary): retrieval's semantic
// scorer and assertion embedding both degrade gracefully when nil.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dims() int
}
