package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemocore/mnemocore/internal/store"
)

func mustStore(t *testing.T) store.Storer {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustEntity(t *testing.T, s store.Storer, id, name string) {
	t.Helper()
	require.NoError(t, s.CreateEntity(&store.Entity{ID: id, CanonicalName: name, Kind: "person", CreatedAt: 1, UpdatedAt: 1}))
}

func TestRecordCommunicationIsBidirectionalAndExcludesSelf(t *testing.T) {
	s := mustStore(t)
	mustEntity(t, s, "alice", "Alice")
	mustEntity(t, s, "bob", "Bob")
	mustEntity(t, s, "carol", "Carol")

	g := New(s)
	require.NoError(t, g.RecordCommunication("alice", []string{"bob", "carol", "alice"}, 100))

	out, err := g.NeighboursOf("alice", "communicates_with", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)

	back, err := g.NeighboursOf("bob", "communicates_with", 0)
	require.NoError(t, err)
	require.Len(t, back, 1)
	require.Equal(t, "alice", back[0].ToEntityID)
}

func TestRecordRelationshipDiminishingReturns(t *testing.T) {
	s := mustStore(t)
	mustEntity(t, s, "alice", "Alice")
	mustEntity(t, s, "bob", "Bob")

	g := New(s)
	e, err := g.RecordRelationship("alice", "bob", "colleague_of", 0.9, 1)
	require.NoError(t, err)
	require.InDelta(t, 0.09, e.Strength, 1e-9)

	e, err = g.RecordRelationship("alice", "bob", "colleague_of", 0.9, 2)
	require.NoError(t, err)
	require.InDelta(t, 0.18, e.Strength, 1e-9)
	require.Equal(t, 2, e.EvidenceCount)
}

func TestShortestPathWithinHops(t *testing.T) {
	s := mustStore(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		mustEntity(t, s, id, id)
	}
	g := New(s)
	_, err := g.RecordRelationship("a", "b", "knows", 0.5, 1)
	require.NoError(t, err)
	_, err = g.RecordRelationship("b", "c", "knows", 0.5, 1)
	require.NoError(t, err)
	_, err = g.RecordRelationship("c", "d", "knows", 0.5, 1)
	require.NoError(t, err)

	path, err := g.ShortestPath("a", "d", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, path)

	path, err = g.ShortestPath("a", "d", 2)
	require.NoError(t, err)
	require.Nil(t, path)
}

func TestConnectedWithinExcludesOriginAndBoundsHops(t *testing.T) {
	s := mustStore(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		mustEntity(t, s, id, id)
	}
	g := New(s)
	_, err := g.RecordRelationship("a", "b", "knows", 0.5, 1)
	require.NoError(t, err)
	_, err = g.RecordRelationship("b", "c", "knows", 0.5, 1)
	require.NoError(t, err)
	_, err = g.RecordRelationship("c", "d", "knows", 0.5, 1)
	require.NoError(t, err)

	within1, err := g.ConnectedWithin("a", 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b"}, within1)

	within3, err := g.ConnectedWithin("a", 3)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c", "d"}, within3)
	require.NotContains(t, within3, "a")
}
