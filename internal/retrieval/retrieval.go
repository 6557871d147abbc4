// Package retrieval fuses three independent scorers — lexical (BM25 full
// text), semantic (embedding cosine top-k) and graph (entity-mention walk)
// — with reciprocal rank fusion.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/mnemocore/mnemocore/internal/graph"
	"github.com/mnemocore/mnemocore/internal/llm"
	"github.com/mnemocore/mnemocore/internal/store"
)

// rrfK is the reciprocal-rank-fusion constant named for this layer.
const rrfK = 60

// graphWalkHops bounds the entity-mention walk.
const graphWalkHops = 2

// Query is a free-text search plus filters.
type Query struct {
	Text         string
	Limit        int
	FilterKind   string // message source_kind, empty means any
	TimeRangeMin int64  // 0 means unbounded
	TimeRangeMax int64  // 0 means unbounded
}

// Result is one fused hit, with provenance of which scorers contributed.
type Result struct {
	MessageID string
	Score     float64
	Scorers   []string
	Timestamp int64
}

// Engine wires the three scorers over a store and an optional embedder.
// Embedder may be nil, in which case the semantic scorer contributes
// nothing (graceful degradation).
type Engine struct {
	store    store.Storer
	graph    *graph.Graph
	embedder llm.Embedder
}

func New(s store.Storer, embedder llm.Embedder) *Engine {
	return &Engine{store: s, graph: graph.New(s), embedder: embedder}
}

// Search runs all three scorers and fuses their rankings.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	ranked := map[string][]string{} // scorer name -> message ids in rank order

	lexical, err := e.lexicalScore(q, limit)
	if err != nil {
		return nil, err
	}
	ranked["lexical"] = lexical

	semantic, err := e.semanticScore(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	ranked["semantic"] = semantic

	graphHits, err := e.graphScore(q, limit)
	if err != nil {
		return nil, err
	}
	ranked["graph"] = graphHits

	fused := fuse(ranked)
	fused = e.applyFilters(fused, q)

	if err := e.attachTimestamps(fused); err != nil {
		return nil, err
	}
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Timestamp > fused[j].Timestamp
	})
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

func (e *Engine) lexicalScore(q Query, limit int) ([]string, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	return e.store.SearchFTS(q.Text, limit)
}

func (e *Engine) semanticScore(ctx context.Context, q Query, limit int) ([]string, error) {
	if e.embedder == nil || strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, nil // embedder failure degrades gracefully
	}
	vi := e.store.VectorIndex()
	if vi == nil || vi.Len() == 0 {
		return nil, nil
	}
	matches, err := vi.TopK(vec, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids, nil
}

func (e *Engine) graphScore(q Query, limit int) ([]string, error) {
	mentioned, err := e.mentionedEntities(q.Text)
	if err != nil {
		return nil, err
	}
	if len(mentioned) == 0 {
		return nil, nil
	}

	scores := make(map[string]float64, len(mentioned))
	for _, id := range mentioned {
		scores[id] = 1.0
	}
	frontier := mentioned
	for hop := 0; hop < graphWalkHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			edges, err := e.graph.NeighboursOf(id, "", 0)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				gained := scores[id] * edge.Strength
				if gained <= 0 {
					continue
				}
				if _, seen := scores[edge.ToEntityID]; !seen {
					next = append(next, edge.ToEntityID)
				}
				scores[edge.ToEntityID] += gained
			}
		}
		frontier = next
	}

	messageScore := map[string]float64{}
	for entityID, score := range scores {
		ids, err := e.store.MessagesByParticipant(entityID, limit)
		if err != nil {
			return nil, err
		}
		for _, mid := range ids {
			messageScore[mid] += score
		}
	}
	return rankByScore(messageScore), nil
}

// mentionedEntities finds entities whose canonical name or alias appears
// as a substring of the query text (exact name/alias match).
func (e *Engine) mentionedEntities(text string) ([]string, error) {
	lower := strings.ToLower(text)
	if lower == "" {
		return nil, nil
	}
	entities, err := e.store.ListEntities("")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, ent := range entities {
		if ent.CanonicalName != "" && strings.Contains(lower, strings.ToLower(ent.CanonicalName)) {
			ids = append(ids, ent.ID)
			continue
		}
		attrs, err := e.store.ListAttributes(ent.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range attrs {
			if a.Kind == "alias" && a.Value != "" && strings.Contains(lower, strings.ToLower(a.Value)) {
				ids = append(ids, ent.ID)
				break
			}
		}
	}
	return ids, nil
}

func rankByScore(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })
	return ids
}

// fuse computes reciprocal rank fusion across scorers, recording which
// scorers contributed to each document (provenance).
func fuse(ranked map[string][]string) []Result {
	scores := map[string]float64{}
	provenance := map[string][]string{}
	for scorer, ids := range ranked {
		for rank, id := range ids {
			scores[id] += 1.0 / float64(rrfK+rank+1)
			provenance[id] = append(provenance[id], scorer)
		}
	}
	out := make([]Result, 0, len(scores))
	for id, score := range scores {
		out = append(out, Result{MessageID: id, Score: score, Scorers: provenance[id]})
	}
	return out
}

func (e *Engine) applyFilters(results []Result, q Query) []Result {
	if q.FilterKind == "" && q.TimeRangeMin == 0 && q.TimeRangeMax == 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		msg, err := e.store.GetMessage(r.MessageID)
		if err != nil {
			continue
		}
		if q.FilterKind != "" && msg.SourceKind != q.FilterKind {
			continue
		}
		if q.TimeRangeMin != 0 && msg.Timestamp < q.TimeRangeMin {
			continue
		}
		if q.TimeRangeMax != 0 && msg.Timestamp > q.TimeRangeMax {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) attachTimestamps(results []Result) error {
	for i := range results {
		msg, err := e.store.GetMessage(results[i].MessageID)
		if err != nil {
			continue
		}
		results[i].Timestamp = msg.Timestamp
	}
	return nil
}
