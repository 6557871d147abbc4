package retrieval

import (
	"context"
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

func insertMessage(t *testing.T, s store.Storer, id, sourceID, sender string, recipients []string, subject, body string, ts int64) {
	t.Helper()
	require.NoError(t, s.InsertMessage(&store.Message{
		ID: id, SourceKind: "mail", SourceID: sourceID, SenderEntityID: sender,
		RecipientEntityIDs: recipients, Subject: subject, BodyText: body, Timestamp: ts,
	}))
}

func TestLexicalScoringFindsFTSMatch(t *testing.T) {
	s := mustStore(t)
	insertMessage(t, s, "msg1", "s1", "", nil, "Roadmap", "Here's the Q3 roadmap draft", 100)
	insertMessage(t, s, "msg2", "s2", "", nil, "Lunch", "Let's grab lunch", 200)

	e := New(s, nil)
	results, err := e.Search(context.Background(), Query{Text: "roadmap"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "msg1", results[0].MessageID)
	require.Contains(t, results[0].Scorers, "lexical")
}

func TestGraphScoringWalksMentionedEntity(t *testing.T) {
	s := mustStore(t)
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "jordan", CanonicalName: "Jordan Avery", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, s.CreateEntity(&store.Entity{ID: "riley", CanonicalName: "Riley Park", Kind: "person", CreatedAt: 1, UpdatedAt: 1}))
	_, err := s.UpsertEdge("jordan", "riley", "colleague_of", 0.9, 1)
	require.NoError(t, err)

	insertMessage(t, s, "msg1", "s1", "riley", nil, "standup notes", "no interesting keywords here", 100)

	e := New(s, nil)
	results, err := e.Search(context.Background(), Query{Text: "following up with Jordan Avery"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "msg1", results[0].MessageID)
	require.Contains(t, results[0].Scorers, "graph")
}

func TestSearchDegradesWithoutEmbedderOrVectors(t *testing.T) {
	s := mustStore(t)
	insertMessage(t, s, "msg1", "s1", "", nil, "Roadmap", "quarterly roadmap", 100)

	e := New(s, nil)
	results, err := e.Search(context.Background(), Query{Text: "roadmap"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.NotContains(t, r.Scorers, "semantic")
	}
}

func TestFilterByKindAndTimeRange(t *testing.T) {
	s := mustStore(t)
	insertMessage(t, s, "msg1", "s1", "", nil, "Roadmap", "quarterly roadmap plan", 100)
	require.NoError(t, s.InsertMessage(&store.Message{
		ID: "msg2", SourceKind: "slack", SourceID: "s2", Subject: "Roadmap", BodyText: "quarterly roadmap chat", Timestamp: 500,
	}))

	e := New(s, nil)
	results, err := e.Search(context.Background(), Query{Text: "roadmap", FilterKind: "mail"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "msg1", results[0].MessageID)

	results, err = e.Search(context.Background(), Query{Text: "roadmap", TimeRangeMin: 400})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "msg2", results[0].MessageID)
}
