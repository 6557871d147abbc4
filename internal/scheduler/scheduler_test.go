package scheduler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/llm"
	"github.com/mnemocore/mnemocore/internal/store"
)

func mustStore(t *testing.T) store.Storer {
	t.Helper()
	s, err := store.NewSQLiteStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixedClock(now int64) Clock { return func() int64 { return now } }

func TestProcessingWorkerExtractsAndMarksProcessed(t *testing.T) {
	s := mustStore(t)
	resolver := identity.New(s, nil)
	worker := NewProcessingWorker(s, resolver, llm.NewRuleBasedExtractor(), 0, fixedClock(1000), nil)

	require.NoError(t, s.InsertMessage(&store.Message{
		ID: uuid.NewString(), SourceKind: "mail", SourceID: "m1",
		BodyText: "Jordan Avery works at Initech.", Timestamp: 1000, FromUser: false,
	}))

	require.NoError(t, worker.RunOnce(context.Background()))

	pending, err := s.ListUnprocessedMessages(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessingWorkerDetectsEventsAndGeneratesPredictions(t *testing.T) {
	s := mustStore(t)
	resolver := identity.New(s, nil)
	worker := NewProcessingWorker(s, resolver, llm.NewRuleBasedExtractor(), 0, fixedClock(1704186000), nil)
	worker.BatchSize = 50

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertEvent(&store.Event{
			ID: uuid.NewString(), Kind: "message_sent", Instant: 1704186000 + int64(i)*7*24*3600, Payload: "{}",
		}))
	}

	require.NoError(t, worker.RunOnce(context.Background()))

	patterns, err := s.ListPatterns("habit", 0)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
}

func TestProactiveServiceFiresMeetingPrep(t *testing.T) {
	s := mustStore(t)
	svc := NewProactiveService(s, 0, fixedClock(1000), nil)

	payload, _ := json.Marshal(commitmentPayload{At: 1000 + 180}) // 3 minutes out, within the 5-minute lead
	require.NoError(t, s.InsertEvent(&store.Event{
		ID: uuid.NewString(), Kind: "calendar_event", Instant: 1000, Payload: string(payload),
	}))

	require.NoError(t, svc.RunOnce())

	triggers, err := s.ListPendingTriggers(1000)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "meeting_prep", triggers[0].Kind)
}

func TestProactiveServiceFiresDeadlineWarning(t *testing.T) {
	s := mustStore(t)
	svc := NewProactiveService(s, 0, fixedClock(1000), nil)

	dueAt := int64(1000 + 20*3600) // 20 hours out, within the 24-hour lead
	payload, _ := json.Marshal(commitmentPayload{At: dueAt})
	require.NoError(t, s.InsertEvent(&store.Event{
		ID: uuid.NewString(), Kind: "deadline", Instant: 1000, Payload: string(payload),
	}))

	require.NoError(t, svc.RunOnce())

	triggers, err := s.ListPendingTriggers(1000)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	require.Equal(t, "deadline_warning", triggers[0].Kind)
}

func TestProactiveServiceSkipsFarFutureCommitments(t *testing.T) {
	s := mustStore(t)
	svc := NewProactiveService(s, 0, fixedClock(1000), nil)

	payload, _ := json.Marshal(commitmentPayload{At: 1000 + 48*3600})
	require.NoError(t, s.InsertEvent(&store.Event{
		ID: uuid.NewString(), Kind: "deadline", Instant: 1000, Payload: string(payload),
	}))

	require.NoError(t, svc.RunOnce())

	triggers, err := s.ListPendingTriggers(1000)
	require.NoError(t, err)
	require.Empty(t, triggers)
}

func TestProactiveAcknowledgeAndAcceptanceRate(t *testing.T) {
	s := mustStore(t)
	svc := NewProactiveService(s, 0, fixedClock(1000), nil)

	require.NoError(t, s.InsertTrigger(&store.ProactiveTrigger{ID: "t1", Kind: "meeting_prep", FireAt: 1000, CreatedAt: 1000}))
	require.NoError(t, s.InsertTrigger(&store.ProactiveTrigger{ID: "t2", Kind: "meeting_prep", FireAt: 1000, CreatedAt: 1000}))

	require.NoError(t, svc.Acknowledge("t1", 1001))

	rate, err := svc.AcceptanceRate("meeting_prep")
	require.NoError(t, err)
	require.InDelta(t, 0.5, rate, 1e-9)
}
