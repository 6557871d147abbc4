package behaviour

import (
	"testing"

	"github.com/google/uuid"
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

// Tuesday 2024-01-02 09:00:00 UTC.
const tue9am int64 = 1704186000

func ev(kind string, instant int64) *store.Event {
	return &store.Event{ID: uuid.NewString(), Kind: kind, Instant: instant, Payload: "{}"}
}

func TestDetectHabitsAboveFloor(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	var events []*store.Event
	for i := 0; i < 5; i++ {
		events = append(events, ev("message_sent", tue9am+int64(i)*7*24*3600))
	}
	require.NoError(t, d.ProcessEvents(events, tue9am+1000))

	patterns, err := s.ListPatterns("habit", 0)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	require.Contains(t, patterns[0].Descriptor, "message_sent")
}

func TestDetectHabitsBelowMinObservationsDiscarded(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	events := []*store.Event{ev("message_sent", tue9am), ev("message_sent", tue9am+3600)}
	require.NoError(t, d.ProcessEvents(events, tue9am))

	patterns, err := s.ListPatterns("habit", 0)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestDetectSequenceWithinWindow(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	var events []*store.Event
	for i := 0; i < 4; i++ {
		base := tue9am + int64(i)*7*24*3600
		events = append(events,
			ev("message_received", base),
			ev("draft_sent", base+300),
			ev("message_sent", base+600),
		)
	}
	require.NoError(t, d.ProcessEvents(events, tue9am))

	patterns, err := s.ListPatterns("sequence", 0)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
}

func TestDetectTriggerResponse(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	var events []*store.Event
	for i := 0; i < 4; i++ {
		base := tue9am + int64(i)*3600
		events = append(events, ev("message_received", base), ev("draft_sent", base+30))
	}
	require.NoError(t, d.ProcessEvents(events, tue9am))

	patterns, err := s.ListPatterns("trigger_response", 0)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
}

func TestDetectTriggerResponseOutsideWindowIgnored(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	var events []*store.Event
	for i := 0; i < 4; i++ {
		base := tue9am + int64(i)*3600
		events = append(events, ev("message_received", base), ev("draft_sent", base+120))
	}
	require.NoError(t, d.ProcessEvents(events, tue9am))

	patterns, err := s.ListPatterns("trigger_response", 0)
	require.NoError(t, err)
	require.Empty(t, patterns)
}

func TestProcessEventsMarksProcessedAndBumpsRhythm(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	events := []*store.Event{ev("message_sent", tue9am)}
	require.NoError(t, s.InsertEvent(events[0]))
	require.NoError(t, d.ProcessEvents(events, tue9am))

	rhythm, err := d.Rhythm()
	require.NoError(t, err)
	var found bool
	for _, c := range rhythm {
		if c.Hour == 9 && c.Weekday == 2 && c.EventCount == 1 {
			found = true
		}
	}
	require.True(t, found)

	pending, err := s.ListUnprocessedEvents(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGenerateAndResolvePredictions(t *testing.T) {
	s := mustStore(t)
	d := New(s)

	var events []*store.Event
	for i := 0; i < 5; i++ {
		events = append(events, ev("message_sent", tue9am+int64(i)*7*24*3600))
	}
	require.NoError(t, d.ProcessEvents(events, tue9am))
	require.NoError(t, d.GeneratePredictions(tue9am))

	pending, err := s.ListPendingPredictions(tue9am)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	later := pending[0].WindowEnd + 1
	matchingEvent := []*store.Event{ev("message_sent", pending[0].WindowStart+60)}
	require.NoError(t, d.ResolvePendingPredictions(later, matchingEvent))

	acc, err := d.Accuracy("next_action", 10)
	require.NoError(t, err)
	require.Equal(t, 1.0, acc)
}
