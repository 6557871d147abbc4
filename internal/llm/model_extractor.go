package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const extractionMaxChars = 8000

const extractionSystemPrompt = `You extract personal facts and relationships from one message body.
Return ONLY a valid JSON object with two arrays: "facts" and "relations". No markdown, no
explanation. Start with { and end with }.`

func buildExtractionPrompt(body string) string {
	truncated := body
	if len(truncated) > extractionMaxChars {
		truncated = truncated[:extractionMaxChars]
	}
	var b strings.Builder
	b.WriteString("Extract facts and relations from this message.\n\n")
	b.WriteString("Each fact object:\n")
	b.WriteString(`- "subject": the person or thing the fact is about (string)` + "\n")
	b.WriteString(`- "predicate": a short snake_case relation name, e.g. works_at, lives_in, prefers` + "\n")
	b.WriteString(`- "object": a named entity this fact points at, if any (string, optional)` + "\n")
	b.WriteString(`- "objectLiteral": a literal value (date, place, preference), if the object isn't an entity` + "\n")
	b.WriteString(`- "confidence": 0.0-1.0` + "\n")
	b.WriteString(`- "sourceSentence": the sentence the fact came from` + "\n\n")
	b.WriteString("Each relation object:\n")
	b.WriteString(`- "from", "to": entity names` + "\n")
	b.WriteString(`- "kind": a short snake_case relationship kind, e.g. colleague_of, reports_to, friend_of` + "\n")
	b.WriteString(`- "confidence": 0.0-1.0` + "\n\n")
	b.WriteString("MESSAGE:\n")
	b.WriteString(truncated)
	return b.String()
}

// ModelExtractor asks a Completer to extract facts and relations, parsing
// the response the same defensive way pkg/extraction parses entity/relation
// JSON: strip code fences, unmarshal, and drop malformed rows rather than
// fail outright.
type ModelExtractor struct {
	completer Completer
}

func NewModelExtractor(c Completer) *ModelExtractor {
	return &ModelExtractor{completer: c}
}

func (m *ModelExtractor) Extract(ctx context.Context, body string) (*ExtractionResult, error) {
	if strings.TrimSpace(body) == "" {
		return &ExtractionResult{}, nil
	}
	raw, err := m.completer.Complete(ctx, extractionSystemPrompt, buildExtractionPrompt(body), GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("llm: extraction call failed: %w", err)
	}
	return parseExtractionResponse(raw)
}

func parseExtractionResponse(raw string) (*ExtractionResult, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return &ExtractionResult{}, nil
	}
	var result ExtractionResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("llm: failed to parse extraction response: %w", err)
	}
	return filterExtraction(&result), nil
}

func filterExtraction(r *ExtractionResult) *ExtractionResult {
	out := &ExtractionResult{
		Facts:     make([]ExtractedFact, 0, len(r.Facts)),
		Relations: make([]ExtractedRelation, 0, len(r.Relations)),
	}
	for _, f := range r.Facts {
		f.SubjectName = strings.TrimSpace(f.SubjectName)
		f.Predicate = strings.ToLower(strings.TrimSpace(f.Predicate))
		if f.SubjectName == "" || f.Predicate == "" {
			continue
		}
		if f.Confidence <= 0 {
			f.Confidence = 0.6
		}
		out.Facts = append(out.Facts, f)
	}
	for _, rel := range r.Relations {
		rel.FromName = strings.TrimSpace(rel.FromName)
		rel.ToName = strings.TrimSpace(rel.ToName)
		rel.Kind = strings.ToLower(strings.TrimSpace(rel.Kind))
		if rel.FromName == "" || rel.ToName == "" || rel.Kind == "" {
			continue
		}
		if rel.Confidence <= 0 {
			rel.Confidence = 0.6
		}
		out.Relations = append(out.Relations, rel)
	}
	return out
}

var _ Extractor = (*ModelExtractor)(nil)
