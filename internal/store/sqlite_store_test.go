package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEntityCRUD(t *testing.T) {
	s := mustStore(t)

	e := &Entity{ID: "e1", CanonicalName: "Jordan Avery", Kind: "person", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, s.CreateEntity(e))

	got, err := s.GetEntity("e1")
	require.NoError(t, err)
	require.Equal(t, "Jordan Avery", got.CanonicalName)
	require.False(t, got.Retired)

	matches, err := s.FindEntitiesByName("Avery")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	n, err := s.CountEntities()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestEntityMergeRewritesAttributesAndEdges(t *testing.T) {
	s := mustStore(t)

	survivor := &Entity{ID: "keep", CanonicalName: "J. Avery", Kind: "person", CreatedAt: 1, UpdatedAt: 1}
	loser := &Entity{ID: "drop", CanonicalName: "Jordan A", Kind: "person", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, s.CreateEntity(survivor))
	require.NoError(t, s.CreateEntity(loser))

	require.NoError(t, s.UpsertAttribute(&EntityAttribute{ID: "a1", EntityID: "drop", Kind: "email", Value: "jordan@example.com", Confidence: 1, CreatedAt: 1}))

	other := &Entity{ID: "other", CanonicalName: "Sam", Kind: "person", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, s.CreateEntity(other))
	_, err := s.UpsertEdge("drop", "other", "colleague_of", 0.8, 10)
	require.NoError(t, err)

	require.NoError(t, s.RewriteAttributeOwner("drop", "keep"))
	require.NoError(t, s.RewriteEdgeEndpoint("drop", "keep"))
	require.NoError(t, s.RetireEntity("drop", "keep"))

	attrs, err := s.ListAttributes("keep")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
	require.Equal(t, "jordan@example.com", attrs[0].Value)

	edge, err := s.GetEdge("keep", "other", "colleague_of")
	require.NoError(t, err)
	require.NotNil(t, edge)

	retired, err := s.GetEntity("drop")
	require.NoError(t, err)
	require.True(t, retired.Retired)
	require.Equal(t, "keep", retired.MergedInto)

	survived, err := s.GetEntity("keep")
	require.NoError(t, err)
	require.Contains(t, survived.MergeHistory, "drop")
}

func TestAssertionSupersessionIsBitemporal(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&Entity{ID: "e1", CanonicalName: "Alex", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))

	old := &Assertion{
		ID: "a1", SubjectEntityID: "e1", Predicate: "works_at", ObjectLiteral: "Acme",
		Confidence: 0.9, SourceKind: "mail", SourceID: "m1", SourceInstant: 100, ExtractionInstant: 100,
	}
	require.NoError(t, s.InsertAssertion(old))

	current, err := s.FindCurrentByConflictKey(old.ConflictKey())
	require.NoError(t, err)
	require.Equal(t, "a1", current.ID)

	newer := &Assertion{
		ID: "a2", SubjectEntityID: "e1", Predicate: "works_at", ObjectLiteral: "Globex",
		Confidence: 0.95, SourceKind: "mail", SourceID: "m2", SourceInstant: 200, ExtractionInstant: 200,
		SupersedesID: "a1",
	}
	require.NoError(t, s.InsertAssertion(newer))
	require.NoError(t, s.SupersedeAssertion("a1", "a2"))

	liveNow, err := s.CurrentAssertions("e1")
	require.NoError(t, err)
	require.Len(t, liveNow, 1)
	require.Equal(t, "a2", liveNow[0].ID)

	// As of an instant before the supersession, the old fact is what was
	// known — supersession never rewrites history, only adds to it.
	asOf150, err := s.AssertionsAsOf("e1", 150)
	require.NoError(t, err)
	require.Len(t, asOf150, 1)
	require.Equal(t, "a1", asOf150[0].ID)

	asOf250, err := s.AssertionsAsOf("e1", 250)
	require.NoError(t, err)
	require.Len(t, asOf250, 1)
	require.Equal(t, "a2", asOf250[0].ID)
}

func TestEdgeStrengthDiminishingReturns(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&Entity{ID: "a", CanonicalName: "A", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, s.CreateEntity(&Entity{ID: "b", CanonicalName: "B", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))

	e, err := s.UpsertEdge("a", "b", "friend_of", 1.0, 10)
	require.NoError(t, err)
	require.InDelta(t, 0.1, e.Strength, 1e-9)
	require.Equal(t, 1, e.EvidenceCount)

	for i := 0; i < 20; i++ {
		e, err = s.UpsertEdge("a", "b", "friend_of", 1.0, int64(20+i))
		require.NoError(t, err)
	}
	require.LessOrEqual(t, e.Strength, 1.0)
	require.Equal(t, 21, e.EvidenceCount)
}

func TestMessageInsertIsIdempotentBySource(t *testing.T) {
	s := mustStore(t)
	m := &Message{ID: "m1", SourceKind: "mail", SourceID: "mail-123", BodyText: "hello there", Timestamp: 1}
	require.NoError(t, s.InsertMessage(m))

	exists, err := s.MessageExists("mail", "mail-123")
	require.NoError(t, err)
	require.True(t, exists)

	dup := &Message{ID: "m2", SourceKind: "mail", SourceID: "mail-123", BodyText: "hello there again", Timestamp: 2}
	require.Error(t, s.InsertMessage(dup))
}

func TestFullTextSearchMatchesStoredBody(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.InsertMessage(&Message{ID: "m1", SourceKind: "mail", SourceID: "s1", Subject: "Project kickoff", BodyText: "let's meet about the roadmap", Timestamp: 1}))
	require.NoError(t, s.InsertMessage(&Message{ID: "m2", SourceKind: "mail", SourceID: "s2", Subject: "Lunch", BodyText: "want to grab tacos", Timestamp: 2}))

	ids, err := s.SearchFTS("roadmap", 10)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids)
}

func TestExportImportRoundTripsEntities(t *testing.T) {
	s := mustStore(t)
	e := &Entity{ID: "e1", CanonicalName: "Riley", Kind: "person", CreatedAt: 1, UpdatedAt: 1}
	require.NoError(t, s.CreateEntity(e))
	require.NoError(t, s.UpsertAttribute(&EntityAttribute{ID: "a1", EntityID: "e1", Kind: "email", Value: "riley@example.com", Confidence: 1, CreatedAt: 1}))

	data, err := s.Export()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	s2 := mustStore(t)
	require.NoError(t, s2.Import(data))

	restored, err := s2.GetEntity("e1")
	require.NoError(t, err)
	require.Equal(t, "Riley", restored.CanonicalName)

	attrs, err := s2.ListAttributes("e1")
	require.NoError(t, err)
	require.Len(t, attrs, 1)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := mustStore(t)
	boom := fmt.Errorf("boom")
	err := s.WithTx(func(tx Storer) error {
		if cErr := tx.CreateEntity(&Entity{ID: "e1", CanonicalName: "Temp", Kind: "person", CreatedAt: 1, UpdatedAt: 1}); cErr != nil {
			return cErr
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, countErr := s.CountEntities()
	require.NoError(t, countErr)
	require.Equal(t, 0, n)
}
