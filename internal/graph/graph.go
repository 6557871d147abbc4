// Package graph is a thin query layer over the relationship edges held in
// internal/store: neighbour lookups, bounded shortest-path, and bounded
// reachability, plus the two edge producers (extracted relationships and
// message co-occurrence).
package graph

import (
	"github.com/mnemocore/mnemocore/internal/store"
)

// defaultMaxHops bounds every traversal in this package regardless of what
// a caller asks for, matching the "graph queries cap at 3 hops by default"
// rule: callers can ask for fewer hops, never more.
const defaultMaxHops = 3

// communicatesWithStrength is the confidence each message contributes to a
// sender/recipient pair's communicates_with edge. It goes through the same
// UpsertEdge rule as extracted relationships, so each message adds
// 0.1*0.05 = 0.005 strength.
const communicatesWithStrength = 0.05

// Graph wraps a store.Storer with relationship-graph operations.
type Graph struct {
	store store.Storer
}

func New(s store.Storer) *Graph {
	return &Graph{store: s}
}

// RecordRelationship upserts an edge derived from the extraction/assertion
// pipeline: a named relation between two already-resolved entities.
func (g *Graph) RecordRelationship(fromID, toID, kind string, confidence float64, now int64) (*store.GraphEdge, error) {
	return g.store.UpsertEdge(fromID, toID, kind, confidence, now)
}

// RecordCommunication upserts the small-weight communicates_with edge that
// every sender/recipient pair in a message earns, in both directions.
func (g *Graph) RecordCommunication(senderID string, recipientIDs []string, now int64) error {
	for _, rid := range recipientIDs {
		if rid == senderID || rid == "" {
			continue
		}
		if _, err := g.store.UpsertEdge(senderID, rid, "communicates_with", communicatesWithStrength, now); err != nil {
			return err
		}
		if _, err := g.store.UpsertEdge(rid, senderID, "communicates_with", communicatesWithStrength, now); err != nil {
			return err
		}
	}
	return nil
}

// NeighboursOf returns the edges leaving entityID, optionally filtered by
// kind and a minimum strength.
func (g *Graph) NeighboursOf(entityID, kind string, minStrength float64) ([]*store.GraphEdge, error) {
	return g.store.NeighboursOf(entityID, kind, minStrength)
}

// ShortestPath does a breadth-first search from a to b, bounded by maxHops
// (clamped to defaultMaxHops). Returns nil, nil if no path exists within
// the bound.
func (g *Graph) ShortestPath(a, b string, maxHops int) ([]string, error) {
	if maxHops <= 0 || maxHops > defaultMaxHops {
		maxHops = defaultMaxHops
	}
	if a == b {
		return []string{a}, nil
	}

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{a: true}
	queue := []frame{{id: a, path: []string{a}}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(cur.path)-1 >= maxHops {
			continue
		}
		edges, err := g.store.NeighboursOf(cur.id, "", 0)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if visited[e.ToEntityID] {
				continue
			}
			next := append(append([]string{}, cur.path...), e.ToEntityID)
			if e.ToEntityID == b {
				return next, nil
			}
			visited[e.ToEntityID] = true
			queue = append(queue, frame{id: e.ToEntityID, path: next})
		}
	}
	return nil, nil
}

// ConnectedWithin returns every entity id reachable from entityID within
// hops steps (clamped to defaultMaxHops), excluding entityID itself.
func (g *Graph) ConnectedWithin(entityID string, hops int) ([]string, error) {
	if hops <= 0 || hops > defaultMaxHops {
		hops = defaultMaxHops
	}
	visited := map[string]bool{entityID: true}
	frontier := []string{entityID}
	var reached []string

	for step := 0; step < hops && len(frontier) > 0; step++ {
		var next []string
		for _, id := range frontier {
			edges, err := g.store.NeighboursOf(id, "", 0)
			if err != nil {
				return nil, err
			}
			for _, e := range edges {
				if visited[e.ToEntityID] {
					continue
				}
				visited[e.ToEntityID] = true
				reached = append(reached, e.ToEntityID)
				next = append(next, e.ToEntityID)
			}
		}
		frontier = next
	}
	return reached, nil
}
