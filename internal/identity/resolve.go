// Package identity implements the four-stage entity resolution pipeline:
// exact attribute match, fuzzy name match, graph disambiguation, and
// optional model-assisted arbitration with a quarantine fallback.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/mnemocore/mnemocore/internal/llm"
	"github.com/mnemocore/mnemocore/internal/mnerr"
	"github.com/mnemocore/mnemocore/internal/store"
)

// Probe is what the caller wants resolved to an entity id.
type Probe struct {
	CanonicalName string
	Email         string
	Phone         string
	Alias         string
	Kind          string // defaults to "person" when an entity must be created

	// Context is the set of entity ids co-mentioned in the same message,
	// used by stage 3 (graph disambiguation).
	Context []string
}

// Resolution describes how a probe was resolved.
type Resolution struct {
	EntityID string
	Stage    string // exact, fuzzy, graph, model, quarantined
	Created  bool   // true if a brand new entity was created
}

// Resolver is the four-stage pipeline described above. FuzzyThreshold,
// NeighbourMinShared and NeighbourStrength are tunable; Arbiter is optional.
type Resolver struct {
	store              store.Storer
	FuzzyThreshold     float64
	NeighbourMinShared int
	NeighbourStrength  float64
	Arbiter            llm.Arbiter // nil disables stage 4

	// ExtraNicknames extends the bundled nickname table without waiting
	// on a bigger default list ("the nickname table... is not
	// enumerated; the implementation may bundle a reasonable default").
	ExtraNicknames map[string][]string
}

// New builds a Resolver with sane default thresholds.
func New(s store.Storer, arbiter llm.Arbiter) *Resolver {
	return &Resolver{
		store:              s,
		FuzzyThreshold:     0.82,
		NeighbourMinShared: 2,
		NeighbourStrength:  0.2,
		Arbiter:            arbiter,
	}
}

// WithStore returns a shallow copy of r bound to a different store, so a
// caller can run resolution against a transaction-scoped Storer (e.g. the
// tx argument of store.Storer.WithTx) while keeping every other setting.
func (r *Resolver) WithStore(s store.Storer) *Resolver {
	clone := *r
	clone.store = s
	return &clone
}

// Resolve runs the four stages in order, returning on the first hit.
func (r *Resolver) Resolve(ctx context.Context, now int64, probe Probe) (*Resolution, error) {
	if res, err := r.exactMatch(probe); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}

	candidates, err := r.fuzzyCandidates(probe)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 1 && candidates[0].score >= r.FuzzyThreshold {
		return &Resolution{EntityID: candidates[0].id, Stage: "fuzzy"}, nil
	}

	if len(candidates) > 1 {
		if res, err := r.graphDisambiguate(candidates, probe); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}
	}

	if len(candidates) > 0 {
		if r.Arbiter != nil {
			verdict, err := r.Arbiter.Arbitrate(ctx, arbiterCandidates(candidates), probe.CanonicalName)
			if err == nil && verdict.Decisive {
				return &Resolution{EntityID: verdict.EntityID, Stage: "model"}, nil
			}
		}
		return r.quarantine(now, probe, "ambiguous after fuzzy+graph stages")
	}

	return r.createEntity(now, probe)
}

func (r *Resolver) exactMatch(probe Probe) (*Resolution, error) {
	if probe.Email != "" {
		if e, err := r.store.FindEntityByAttribute("email", normalizeContact(probe.Email)); err != nil {
			return nil, err
		} else if e != nil {
			return &Resolution{EntityID: e.ID, Stage: "exact"}, nil
		}
	}
	if probe.Phone != "" {
		if e, err := r.store.FindEntityByAttribute("phone", normalizeContact(probe.Phone)); err != nil {
			return nil, err
		} else if e != nil {
			return &Resolution{EntityID: e.ID, Stage: "exact"}, nil
		}
	}
	return nil, nil
}

type candidate struct {
	id    string
	name  string
	score float64
}

func (r *Resolver) fuzzyCandidates(probe Probe) ([]candidate, error) {
	if probe.CanonicalName == "" && probe.Alias == "" {
		return nil, nil
	}
	name := probe.CanonicalName
	if name == "" {
		name = probe.Alias
	}
	normalized := normalizeName(name)

	entities, err := r.store.ListEntities("")
	if err != nil {
		return nil, err
	}
	var out []candidate
	for _, e := range entities {
		score := r.nameSimilarity(normalized, normalizeName(e.CanonicalName))
		if score >= r.FuzzyThreshold*0.7 {
			out = append(out, candidate{id: e.ID, name: e.CanonicalName, score: score})
		}
	}
	return out, nil
}

// nameSimilarity combines a Levenshtein ratio with nickname equivalence.
// An exact nickname match on the first token is treated as a strong boost.
func (r *Resolver) nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	ratio := 1.0 - float64(dist)/float64(maxLen)

	aFirst, bFirst := firstToken(a), firstToken(b)
	if r.nicknameMatch(aFirst, bFirst) {
		rest := 1.0 - levenshteinRatio(strings.TrimPrefix(a, aFirst), strings.TrimPrefix(b, bFirst))
		boosted := 0.5 + 0.5*rest
		if boosted > ratio {
			ratio = boosted
		}
	}
	return ratio
}

func levenshteinRatio(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(maxLen)
}

func firstToken(s string) string {
	if idx := strings.IndexByte(s, ' '); idx >= 0 {
		return s[:idx]
	}
	return s
}

// normalizeName lowercases, strips diacritics and common honorifics.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = stripDiacritics(name)
	for _, h := range []string{"mr.", "mr", "mrs.", "mrs", "ms.", "ms", "dr.", "dr", "prof.", "prof"} {
		name = strings.TrimPrefix(name, h+" ")
	}
	return strings.Join(strings.Fields(name), " ")
}

func stripDiacritics(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return normalizeASCIIApprox(b.String())
}

// normalizeASCIIApprox folds a handful of common accented runes to their
// plain-ASCII base letter. Full Unicode NFD decomposition is not pulled in
// here since stripDiacritics already removes combining marks for inputs
// that were already decomposed; this catches the common precomposed cases.
func normalizeASCIIApprox(s string) string {
	replacer := strings.NewReplacer(
		"é", "e", "è", "e", "ê", "e", "ë", "e",
		"á", "a", "à", "a", "â", "a", "ä", "a", "ã", "a",
		"í", "i", "ì", "i", "î", "i", "ï", "i",
		"ó", "o", "ò", "o", "ô", "o", "ö", "o", "õ", "o",
		"ú", "u", "ù", "u", "û", "u", "ü", "u",
		"ñ", "n", "ç", "c",
	)
	return replacer.Replace(s)
}

func normalizeContact(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *Resolver) graphDisambiguate(candidates []candidate, probe Probe) (*Resolution, error) {
	if len(probe.Context) == 0 {
		return nil, nil
	}
	contextSet := make(map[string]bool, len(probe.Context))
	for _, id := range probe.Context {
		contextSet[id] = true
	}

	var best *candidate
	var bestShared int
	for i := range candidates {
		c := &candidates[i]
		neighbours, err := r.store.NeighboursOf(c.id, "", r.NeighbourStrength)
		if err != nil {
			return nil, err
		}
		shared := 0
		for _, n := range neighbours {
			if contextSet[n.ToEntityID] {
				shared++
			}
		}
		if shared >= r.NeighbourMinShared && shared > bestShared {
			best, bestShared = c, shared
		}
	}
	if best != nil {
		return &Resolution{EntityID: best.id, Stage: "graph"}, nil
	}
	return nil, nil
}

func (r *Resolver) quarantine(now int64, probe Probe, reason string) (*Resolution, error) {
	probeJSON := fmt.Sprintf(`{"canonicalName":%q,"email":%q,"phone":%q,"alias":%q}`,
		probe.CanonicalName, probe.Email, probe.Phone, probe.Alias)
	q := &store.QuarantinedProbe{
		ID:        uuid.NewString(),
		ProbeJSON: probeJSON,
		Reason:    reason,
		CreatedAt: now,
	}
	if err := r.store.QuarantineProbe(q); err != nil {
		return nil, err
	}
	return nil, mnerr.New(mnerr.KindResolverAmbiguous, "probe quarantined: %s", reason)
}

func (r *Resolver) createEntity(now int64, probe Probe) (*Resolution, error) {
	kind := probe.Kind
	if kind == "" {
		kind = "person"
	}
	name := probe.CanonicalName
	if name == "" {
		name = probe.Alias
	}
	if name == "" {
		name = probe.Email
	}
	e := &store.Entity{
		ID:            uuid.NewString(),
		CanonicalName: name,
		Kind:          kind,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.CreateEntity(e); err != nil {
		return nil, err
	}
	if probe.Email != "" {
		if err := r.store.UpsertAttribute(&store.EntityAttribute{
			ID: uuid.NewString(), EntityID: e.ID, Kind: "email", Value: normalizeContact(probe.Email), Confidence: 1.0, CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	if probe.Phone != "" {
		if err := r.store.UpsertAttribute(&store.EntityAttribute{
			ID: uuid.NewString(), EntityID: e.ID, Kind: "phone", Value: normalizeContact(probe.Phone), Confidence: 1.0, CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	if probe.Alias != "" && probe.Alias != name {
		if err := r.store.UpsertAttribute(&store.EntityAttribute{
			ID: uuid.NewString(), EntityID: e.ID, Kind: "alias", Value: probe.Alias, Confidence: 0.8, CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	return &Resolution{EntityID: e.ID, Stage: "created", Created: true}, nil
}

func arbiterCandidates(cands []candidate) []llm.ArbiterCandidate {
	out := make([]llm.ArbiterCandidate, len(cands))
	for i, c := range cands {
		out[i] = llm.ArbiterCandidate{EntityID: c.id, Name: c.name, Score: c.score}
	}
	return out
}

// Merge absorbs loser into survivor: attributes are deduplicated and moved,
// every message/assertion/edge reference is rewritten, loser's id is
// recorded in survivor's merge history, and loser is retired. This package
// has no operation that undoes a merge.
func Merge(s store.Storer, survivorID, loserID string, now int64) error {
	return s.WithTx(func(tx store.Storer) error {
		if err := tx.RewriteAttributeOwner(loserID, survivorID); err != nil {
			return err
		}
		if err := tx.RewriteAssertionSubject(loserID, survivorID); err != nil {
			return err
		}
		if err := tx.RewriteAssertionObject(loserID, survivorID); err != nil {
			return err
		}
		if err := tx.RewriteEdgeEndpoint(loserID, survivorID); err != nil {
			return err
		}
		if err := tx.RewriteMessageParticipant(loserID, survivorID); err != nil {
			return err
		}
		return tx.RetireEntity(loserID, survivorID)
	})
}

// mergeReversalWindow is a 30-day duration that no code in this package
// reads; Merge does not consult it.
const mergeReversalWindow = 30 * 24 * time.Hour
