package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/store"
)

func mustStore(t *testing.T) store.Storer {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// failingStore wraps a Storer and fails one named method, to exercise
// rollback paths without reaching into the SQLite driver. WithTx wraps the
// transaction-scoped Storer it's handed the same way, so the injected
// failure still fires on the tx-bound store a caller receives inside
// WithTx.
type failingStore struct {
	store.Storer
	failMethod string
}

func (f *failingStore) InsertEvent(e *store.Event) error {
	if f.failMethod == "InsertEvent" {
		return fmt.Errorf("injected failure in %s", f.failMethod)
	}
	return f.Storer.InsertEvent(e)
}

func (f *failingStore) WithTx(fn func(tx store.Storer) error) error {
	return f.Storer.WithTx(func(tx store.Storer) error {
		return fn(&failingStore{Storer: tx, failMethod: f.failMethod})
	})
}

func TestIngestCreatesEntitiesAndEvent(t *testing.T) {
	s := mustStore(t)
	p := New(s, identity.New(s, nil))

	res := p.Ingest(context.Background(), 100, []RawMessage{
		{
			SourceKind: "mail", SourceID: "m1",
			Sender:     Participant{Name: "Jordan Avery", Email: "jordan@initech.com"},
			Recipients: []Participant{{Name: "Riley Park", Email: "riley@initech.com"}},
			Subject:    "Q3 plan", BodyText: "let's sync tomorrow", Timestamp: 100, FromUser: true,
		},
	})

	require.Equal(t, 1, res.Ingested)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 2, res.EntitiesCreated)
	require.Empty(t, res.Errors)

	n, err := s.CountMessages()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestIngestSkipsDuplicateSource(t *testing.T) {
	s := mustStore(t)
	p := New(s, identity.New(s, nil))

	msg := RawMessage{
		SourceKind: "mail", SourceID: "dup1",
		Sender: Participant{Name: "Jordan Avery", Email: "jordan@initech.com"},
		Timestamp: 100, FromUser: true,
	}
	res1 := p.Ingest(context.Background(), 100, []RawMessage{msg})
	require.Equal(t, 1, res1.Ingested)

	res2 := p.Ingest(context.Background(), 200, []RawMessage{msg})
	require.Equal(t, 0, res2.Ingested)
	require.Equal(t, 1, res2.Skipped)

	n, err := s.CountMessages()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestIngestLearnsSecondEmailForSameName(t *testing.T) {
	s := mustStore(t)
	p := New(s, identity.New(s, nil))

	res1 := p.Ingest(context.Background(), 100, []RawMessage{
		{SourceKind: "mail", SourceID: "m1",
			Sender: Participant{Name: "Sarah Chen", Email: "sarah@work.example"},
			Timestamp: 100, FromUser: false},
	})
	require.Equal(t, 1, res1.EntitiesCreated)

	res2 := p.Ingest(context.Background(), 200, []RawMessage{
		{SourceKind: "mail", SourceID: "m2",
			Sender: Participant{Name: "Sarah Chen", Email: "sallychen@gmail.com"},
			Timestamp: 200, FromUser: false},
	})
	require.Equal(t, 0, res2.EntitiesCreated)
	require.Equal(t, 1, res2.EntitiesMerged)

	entities, err := s.FindEntitiesByName("Sarah")
	require.NoError(t, err)
	require.Len(t, entities, 1)

	attrs, err := s.ListAttributes(entities[0].ID)
	require.NoError(t, err)
	var emails []string
	for _, a := range attrs {
		if a.Kind == "email" {
			emails = append(emails, a.Value)
		}
	}
	require.ElementsMatch(t, []string{"sarah@work.example", "sallychen@gmail.com"}, emails)
}

func TestIngestRecordsCommunicatesWithEdges(t *testing.T) {
	s := mustStore(t)
	p := New(s, identity.New(s, nil))

	p.Ingest(context.Background(), 100, []RawMessage{
		{SourceKind: "mail", SourceID: "m1",
			Sender:     Participant{Name: "Jordan Avery", Email: "jordan@initech.com"},
			Recipients: []Participant{{Name: "Riley Park", Email: "riley@initech.com"}},
			Timestamp:  100, FromUser: true},
	})

	entities, err := s.FindEntitiesByName("Jordan")
	require.NoError(t, err)
	require.Len(t, entities, 1)

	edges, err := s.NeighboursOf(entities[0].ID, "communicates_with", 0)
	require.NoError(t, err)
	require.Len(t, edges, 1)
}

func TestIngestRollsBackWholeMessageOnEventFailure(t *testing.T) {
	s := mustStore(t)
	fs := &failingStore{Storer: s, failMethod: "InsertEvent"}
	p := New(fs, identity.New(fs, nil))

	res := p.Ingest(context.Background(), 100, []RawMessage{
		{
			SourceKind: "mail", SourceID: "m1",
			Sender:     Participant{Name: "Jordan Avery", Email: "jordan@initech.com"},
			Recipients: []Participant{{Name: "Riley Park", Email: "riley@initech.com"}},
			Subject:    "Q3 plan", BodyText: "let's sync tomorrow", Timestamp: 100, FromUser: true,
		},
	})

	require.Equal(t, 0, res.Ingested)
	require.Len(t, res.Errors, 1)

	n, err := s.CountMessages()
	require.NoError(t, err)
	require.Equal(t, 0, n, "message insert must roll back along with the failed event")

	entities, err := s.CountEntities()
	require.NoError(t, err)
	require.Equal(t, 0, entities, "entities resolved inside the failed transaction must roll back too")

	edges, err := s.CountEdges()
	require.NoError(t, err)
	require.Equal(t, 0, edges, "the communication edge recorded inside the failed transaction must roll back too")
}

func TestInferContextPrefersPersonalDomain(t *testing.T) {
	require.Equal(t, "personal", inferContext("someone@gmail.com", 2))
	require.Equal(t, "work", inferContext("someone@initech.com", 1))
	require.Equal(t, "", inferContext("", 0))
}
