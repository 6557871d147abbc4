package assertion

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

func TestAssertSupersedesOnLaterInstantAndEqualOrHigherConfidence(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "e1", CanonicalName: "Jordan", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))

	a := New(s)

	first, err := a.Assert(100, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Austin",
		Confidence: 0.8, SourceKind: "message", SourceID: "m1", SourceInstant: 10,
	})
	require.NoError(t, err)

	current, err := a.Current("e1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	require.Equal(t, first.ID, current[0].ID)

	second, err := a.Assert(200, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Denver",
		Confidence: 0.8, SourceKind: "message", SourceID: "m2", SourceInstant: 20,
	})
	require.NoError(t, err)

	current, err = a.Current("e1")
	require.NoError(t, err)
	require.Len(t, current, 1)
	require.Equal(t, second.ID, current[0].ID)
	require.Equal(t, "Denver", current[0].ObjectLiteral)
}

func TestAssertDoesNotSupersedeOnLowerConfidence(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "e1", CanonicalName: "Jordan", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))

	a := New(s)
	_, err := a.Assert(100, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Austin",
		Confidence: 0.9, SourceKind: "message", SourceID: "m1", SourceInstant: 10,
	})
	require.NoError(t, err)

	_, err = a.Assert(200, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Denver",
		Confidence: 0.4, SourceKind: "message", SourceID: "m2", SourceInstant: 20,
	})
	require.NoError(t, err)

	current, err := a.Current("e1")
	require.NoError(t, err)
	require.Len(t, current, 2)
}

func TestAssertionsAsOfReflectsHistoricalBelief(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "e1", CanonicalName: "Jordan", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))

	a := New(s)
	_, err := a.Assert(100, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Austin",
		Confidence: 0.8, SourceKind: "message", SourceID: "m1", SourceInstant: 10,
	})
	require.NoError(t, err)

	_, err = a.Assert(200, Input{
		SubjectEntityID: "e1", Predicate: "lives_in", ObjectLiteral: "Denver",
		Confidence: 0.8, SourceKind: "message", SourceID: "m2", SourceInstant: 20,
	})
	require.NoError(t, err)

	before, err := a.AsOf("e1", 150)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Equal(t, "Austin", before[0].ObjectLiteral)

	after, err := a.AsOf("e1", 250)
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, "Denver", after[0].ObjectLiteral)
}

func TestConflictKeyDistinguishesObjectEntity(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "e1", CanonicalName: "Jordan", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "acme", CanonicalName: "Acme", Kind: "org", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "globex", CanonicalName: "Globex", Kind: "org", CreatedAt: 1, UpdatedAt: 1}))

	a := New(s)
	_, err := a.Assert(100, Input{
		SubjectEntityID: "e1", Predicate: "works_with", ObjectEntityID: "acme",
		Confidence: 0.8, SourceKind: "message", SourceID: "m1", SourceInstant: 10,
	})
	require.NoError(t, err)
	_, err = a.Assert(100, Input{
		SubjectEntityID: "e1", Predicate: "works_with", ObjectEntityID: "globex",
		Confidence: 0.8, SourceKind: "message", SourceID: "m2", SourceInstant: 10,
	})
	require.NoError(t, err)

	current, err := a.Current("e1")
	require.NoError(t, err)
	require.Len(t, current, 2)
}
