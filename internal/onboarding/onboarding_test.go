package onboarding

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mnemocore/mnemocore/internal/mnerr"
	"github.com/mnemocore/mnemocore/internal/store"
)

func mustStore(t *testing.T) store.Storer {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertMessages(t *testing.T, s store.Storer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.InsertMessage(&store.Message{
			ID:         uuid.NewString(),
			SourceKind: "mail",
			SourceID:   uuid.NewString(),
			BodyText:   "Hi there, talk soon.",
			Timestamp:  int64(1000 + i),
			FromUser:   true,
		}))
	}
}

func TestRunRejectsBelowMinimumMessages(t *testing.T) {
	s := mustStore(t)
	o := New(s)
	o.MinMessages = 50

	insertMessages(t, s, 10)

	_, err := o.Run(2000, nil)
	require.Error(t, err)
	require.True(t, mnerr.Is(err, mnerr.KindInputInvalid))
}

func TestRunCompletesAndRecordsMarker(t *testing.T) {
	s := mustStore(t)
	o := New(s)
	o.MinMessages = 5

	insertMessages(t, s, 5)
	entity := &store.Entity{ID: uuid.NewString(), CanonicalName: "Jordan Avery", Kind: "person", CreatedAt: 1000, UpdatedAt: 1000}
	require.NoError(t, s.CreateEntity(entity))

	var steps []Step
	result, err := o.Run(2000, func(step Step) { steps = append(steps, step) })
	require.NoError(t, err)
	require.False(t, result.AlreadyCompleted)
	require.NotNil(t, result.UserStyle)
	require.Equal(t, 1, result.RecipientCount)
	require.NotNil(t, result.Cognitive)
	require.Equal(t,
		[]Step{StepUserStyle, StepRecipientStyle, StepPatternDetection, StepRhythmMatrix, StepValueExtraction, StepCognitiveProfile},
		steps)

	completed, err := s.OnboardingCompleted()
	require.NoError(t, err)
	require.True(t, completed)
}

func TestRunSkipsWhenAlreadyCompleted(t *testing.T) {
	s := mustStore(t)
	o := New(s)
	o.MinMessages = 5
	insertMessages(t, s, 5)

	_, err := o.Run(2000, nil)
	require.NoError(t, err)

	result, err := o.Run(2000, nil)
	require.NoError(t, err)
	require.True(t, result.AlreadyCompleted)
}

func TestResetAllowsRerun(t *testing.T) {
	s := mustStore(t)
	o := New(s)
	o.MinMessages = 5
	insertMessages(t, s, 5)

	_, err := o.Run(2000, nil)
	require.NoError(t, err)

	require.NoError(t, o.Reset())

	result, err := o.Run(3000, nil)
	require.NoError(t, err)
	require.False(t, result.AlreadyCompleted)
}

func TestExtractValuesRanksByFrequency(t *testing.T) {
	s := mustStore(t)
	o := New(s)

	e1 := &store.Entity{ID: uuid.NewString(), CanonicalName: "Alex", Kind: "person", CreatedAt: 1000, UpdatedAt: 1000}
	e2 := &store.Entity{ID: uuid.NewString(), CanonicalName: "Sam", Kind: "person", CreatedAt: 1000, UpdatedAt: 1000}
	require.NoError(t, s.CreateEntity(e1))
	require.NoError(t, s.CreateEntity(e2))

	require.NoError(t, s.InsertAssertion(&store.Assertion{
		ID: uuid.NewString(), SubjectEntityID: e1.ID, Predicate: "prefers", ObjectLiteral: "tea",
		Confidence: 0.6, SourceKind: "mail", SourceID: "m1", SourceInstant: 1000, ExtractionInstant: 1000,
	}))
	require.NoError(t, s.InsertAssertion(&store.Assertion{
		ID: uuid.NewString(), SubjectEntityID: e2.ID, Predicate: "prefers", ObjectLiteral: "tea",
		Confidence: 0.6, SourceKind: "mail", SourceID: "m2", SourceInstant: 1000, ExtractionInstant: 1000,
	}))
	require.NoError(t, s.InsertAssertion(&store.Assertion{
		ID: uuid.NewString(), SubjectEntityID: e1.ID, Predicate: "prefers", ObjectLiteral: "coffee",
		Confidence: 0.6, SourceKind: "mail", SourceID: "m3", SourceInstant: 1000, ExtractionInstant: 1000,
	}))

	values, err := o.extractValues([]*store.Entity{e1, e2})
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, "tea", values[0].Value)
	require.Equal(t, 2, values[0].Occurrences)
}
