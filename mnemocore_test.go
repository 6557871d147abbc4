package mnemocore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/ingest"
	"github.com/mnemocore/mnemocore/internal/retrieval"
	"github.com/mnemocore/mnemocore/internal/store"
	"github.com/mnemocore/mnemocore/internal/style"
)

func identityProbe(name, email string) identity.Probe {
	return identity.Probe{CanonicalName: name, Email: email}
}

func mustHandle(t *testing.T) *Handle {
	t.Helper()
	h := Construct(DefaultConfig())
	require.NoError(t, h.Initialise())
	t.Cleanup(func() { h.Close() })
	return h
}

func TestInitialiseIsIdempotent(t *testing.T) {
	h := mustHandle(t)
	store1 := h.store
	require.NoError(t, h.Initialise())
	require.Same(t, store1, h.store)
}

func TestIngestThenSearchRoundTrips(t *testing.T) {
	h := mustHandle(t)
	ctx := context.Background()

	res := h.Ingest(ctx, []ingest.RawMessage{
		{
			SourceKind: "mail",
			SourceID:   "m1",
			Sender:     ingest.Participant{Name: "Jordan Avery", Email: "jordan@example.com"},
			Recipients: []ingest.Participant{{Name: "Me", Email: "me@example.com"}},
			Subject:    "project update",
			BodyText:   "Jordan Avery works at Initech and prefers tea over coffee.",
			Timestamp:  1000,
			FromUser:   false,
		},
	})
	require.Equal(t, 1, res.Ingested)
	require.Empty(t, res.Errors)

	results, err := h.Search(ctx, retrieval.Query{Text: "Initech", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestSearchScreensFiltersToScreenCapture(t *testing.T) {
	h := mustHandle(t)
	ctx := context.Background()

	h.Ingest(ctx, []ingest.RawMessage{
		{SourceKind: "screen-capture", SourceID: "s1", Sender: ingest.Participant{Name: "Me"}, BodyText: "quarterly roadmap screenshot", Timestamp: 2000, FromUser: true},
		{SourceKind: "mail", SourceID: "m2", Sender: ingest.Participant{Name: "Me"}, BodyText: "quarterly roadmap email", Timestamp: 2001, FromUser: true},
	})

	results, err := h.SearchScreens(ctx, "quarterly roadmap", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestResolveEntityCreatesThenReusesEntity(t *testing.T) {
	h := mustHandle(t)
	ctx := context.Background()

	res1, err := h.ResolveEntity(ctx, identityProbe("Jordan Avery", "jordan@example.com"))
	require.NoError(t, err)
	require.True(t, res1.Created)

	res2, err := h.ResolveEntity(ctx, identityProbe("Jordan Avery", "jordan@example.com"))
	require.NoError(t, err)
	require.Equal(t, res1.EntityID, res2.EntityID)
	require.False(t, res2.Created)

	e, err := h.GetEntity(res1.EntityID)
	require.NoError(t, err)
	require.Equal(t, "Jordan Avery", e.CanonicalName)
}

func TestEngagementRecordingAndLearning(t *testing.T) {
	h := mustHandle(t)

	require.NoError(t, h.RecordDraftSent("draft-1", "", 120, "work"))
	require.NoError(t, h.RecordDraftEdited("draft-1", 80, 0.2))
	require.NoError(t, h.RecordUserResponse("draft-1", 0.6, 4, true))

	summary, err := h.GetEngagementSummary(10)
	require.NoError(t, err)
	require.Equal(t, 3, summary.EventCount)

	stats, err := h.GetLearningStats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.InteractionCount)

	sentiment := 0.5
	threadLen := 3
	ev := &store.EngagementEvent{
		ID:                "ev-1",
		DraftID:           "draft-1",
		Kind:              "response_received",
		ResponseSentiment: &sentiment,
		ThreadLength:      &threadLen,
		CreatedAt:         1000,
	}
	applied, err := h.LearnFromInteraction(ev, style.VentCheck{})
	require.NoError(t, err)
	require.False(t, applied, "below MinInteractions, adaptation should not apply yet")
}

func TestRunOnboardingGatesOnMessageCount(t *testing.T) {
	h := mustHandle(t)
	_, err := h.RunOnboarding(nil)
	require.Error(t, err)
}

func TestGetStatsReflectsIngestedData(t *testing.T) {
	h := mustHandle(t)
	ctx := context.Background()

	h.Ingest(ctx, []ingest.RawMessage{
		{SourceKind: "mail", SourceID: "m1", Sender: ingest.Participant{Name: "Me"}, BodyText: "hello", Timestamp: 1, FromUser: true},
	})

	stats, err := h.GetStats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.MessageCount)
	require.False(t, stats.OnboardingCompleted)
}

func TestProcessingWorkerLifecycleStartStop(t *testing.T) {
	h := mustHandle(t)
	h.StartProcessingWorker()
	h.StopProcessingWorker()
	h.StartProactiveService()
	h.StopProactiveService()
}

func TestGetEntityStateAsOfCombinesEntityAndAssertions(t *testing.T) {
	h := mustHandle(t)
	ctx := context.Background()

	res, err := h.ResolveEntity(ctx, identityProbe("Jordan Avery", "jordan@example.com"))
	require.NoError(t, err)

	state, err := h.GetEntityStateAsOf(res.EntityID, 999999)
	require.NoError(t, err)
	require.Equal(t, res.EntityID, state.Entity.ID)
}

func TestCloseIsSafeToCallTwice(t *testing.T) {
	h := Construct(DefaultConfig())
	require.NoError(t, h.Initialise())
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
