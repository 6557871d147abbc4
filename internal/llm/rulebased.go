package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/coregx/ahocorasick"
)

// trigger maps a surface phrase to the predicate or relation kind it
// implies, plus which side of the phrase the subject/object sit on.
type trigger struct {
	phrase    string
	predicate string
	// subjectBefore is true when the subject precedes the phrase
	// ("Maria works at Initech") and false when it follows it. Every
	// trigger in the tables below has the subject first.
	subjectBefore bool
}

var factTriggers = []trigger{
	{"works at", "works_at", true},
	{"works for", "works_at", true},
	{"employed at", "works_at", true},
	{"lives in", "lives_in", true},
	{"moved to", "lives_in", true},
	{"based in", "lives_in", true},
	{"married to", "married_to", true},
	{"studies at", "studies_at", true},
	{"studied at", "studies_at", true},
	{"graduated from", "studies_at", true},
	{"born in", "born_in", true},
	{"allergic to", "allergic_to", true},
	{"prefers", "prefers", true},
	{"favorite", "prefers", true},
	{"birthday is", "birthday", true},
}

var relationTriggers = []trigger{
	{"colleague of", "colleague_of", true},
	{"works with", "colleague_of", true},
	{"reports to", "reports_to", true},
	{"manages", "manages", true},
	{"married to", "spouse_of", true},
	{"friend of", "friend_of", true},
	{"friends with", "friend_of", true},
	{"sibling of", "sibling_of", true},
	{"brother of", "sibling_of", true},
	{"sister of", "sibling_of", true},
	{"parent of", "parent_of", true},
	{"child of", "child_of", true},
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// RuleBasedExtractor derives facts and relations from trigger-phrase
// matches rather than a model call. It is always available, with no
// external dependency beyond the automaton, and is the extractor used
// when no Completer is configured.
type RuleBasedExtractor struct {
	facts     *ahocorasick.Automaton
	relations *ahocorasick.Automaton
}

// NewRuleBasedExtractor builds the trigger-phrase automatons once; the
// returned extractor is safe for concurrent use.
func NewRuleBasedExtractor() *RuleBasedExtractor {
	return &RuleBasedExtractor{
		facts:     buildAutomaton(factTriggers),
		relations: buildAutomaton(relationTriggers),
	}
}

func buildAutomaton(triggers []trigger) *ahocorasick.Automaton {
	patterns := make([]string, len(triggers))
	for i, t := range triggers {
		patterns[i] = t.phrase
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		// Patterns are a fixed literal slice above; a build failure here
		// means the slice is malformed, which is a programmer error.
		panic("llm: failed to build trigger automaton: " + err.Error())
	}
	return ac
}

func (r *RuleBasedExtractor) Extract(ctx context.Context, body string) (*ExtractionResult, error) {
	result := &ExtractionResult{}
	for _, sentence := range sentenceSplit.Split(body, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		result.Facts = append(result.Facts, extractFacts(sentence, lower, r.facts)...)
		result.Relations = append(result.Relations, extractRelations(sentence, lower, r.relations)...)
	}
	return result, nil
}

func extractFacts(sentence, lower string, ac *ahocorasick.Automaton) []ExtractedFact {
	var out []ExtractedFact
	for _, m := range ac.FindAllOverlapping([]byte(lower)) {
		t := factTriggers[m.PatternID]
		subject, object := splitOnMatch(sentence, int(m.Start), int(m.End), t.subjectBefore)
		if subject == "" || object == "" {
			continue
		}
		out = append(out, ExtractedFact{
			SubjectName:    subject,
			Predicate:      t.predicate,
			ObjectLiteral:  object,
			Confidence:     0.55,
			SourceSentence: sentence,
		})
	}
	return out
}

func extractRelations(sentence, lower string, ac *ahocorasick.Automaton) []ExtractedRelation {
	var out []ExtractedRelation
	for _, m := range ac.FindAllOverlapping([]byte(lower)) {
		t := relationTriggers[m.PatternID]
		from, to := splitOnMatch(sentence, int(m.Start), int(m.End), t.subjectBefore)
		if from == "" || to == "" {
			continue
		}
		out = append(out, ExtractedRelation{
			FromName:   from,
			ToName:     to,
			Kind:       t.predicate,
			Confidence: 0.5,
		})
	}
	return out
}

// splitOnMatch takes the raw text either side of a matched trigger phrase
// and trims it to a short candidate name: the trailing words before the
// match, or the leading words after it. This is deliberately crude; it
// exists to give identity resolution something to work with, not to be a
// parser.
func splitOnMatch(sentence string, start, end int, subjectBefore bool) (string, string) {
	before := strings.TrimSpace(sentence[:min(start, len(sentence))])
	var after string
	if end < len(sentence) {
		after = strings.TrimSpace(sentence[end:])
	}
	left := lastWords(before, 4)
	right := firstWords(after, 6)
	if subjectBefore {
		return left, right
	}
	return right, left
}

func lastWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Trim(strings.Join(fields, " "), ",;:")
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Trim(strings.Join(fields, " "), ",;:")
}

var _ Extractor = (*RuleBasedExtractor)(nil)
