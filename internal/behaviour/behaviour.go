// Package behaviour implements a pattern detector and daily rhythm
// matrix: four families of candidate pattern mined from the event
// log, a 24x7 density grid with focus/energy heuristics, and a
// prediction queue with accuracy tracking.
package behaviour

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mnemocore/mnemocore/internal/store"
)

const (
	sequenceWindow       = 30 * time.Minute
	triggerResponseWindow = 60 * time.Second
)

// externalKinds are event kinds considered triggers; responseKinds are
// the user actions a trigger-response pattern looks for within 60s.
var externalKinds = map[string]bool{
	"message_received": true,
	"calendar_event":   true,
}
var responseKinds = map[string]bool{
	"draft_sent":   true,
	"message_sent": true,
}

// Detector mines behavioural patterns and predictions from the event
// log.
type Detector struct {
	store store.Storer

	// MinObservations is the occurrence floor before a candidate is even
	// considered ("occurring >= N times").
	MinObservations int

	// ConfidenceFloor discards candidates below this confidence
	// ("patterns below a floor are discarded").
	ConfidenceFloor float64
}

func New(s store.Storer) *Detector {
	return &Detector{store: s, MinObservations: 3, ConfidenceFloor: 0.3}
}

// confidence climbs with observation count, saturating toward 1 — more
// observations strengthen a pattern without ever fully certifying it.
func confidence(occurrences int) float64 {
	return 1 - math.Exp(-float64(occurrences)/5.0)
}

type descriptor map[string]any

func encodeDescriptor(d descriptor) string {
	b, _ := json.Marshal(d)
	return string(b)
}

// ProcessEvents feeds one batch of (already-fetched) events into every
// detector family and bumps the rhythm matrix, then marks each event
// processed.
func (d *Detector) ProcessEvents(events []*store.Event, now int64) error {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]*store.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Instant < sorted[j].Instant })

	for _, e := range sorted {
		t := time.Unix(e.Instant, 0).UTC()
		if err := d.store.BumpRhythmCell(t.Hour(), int(t.Weekday())); err != nil {
			return err
		}
	}

	if err := d.detectHabits(sorted, now); err != nil {
		return err
	}
	if err := d.detectDayOfWeek(sorted, now); err != nil {
		return err
	}
	if err := d.detectSequences(sorted, now); err != nil {
		return err
	}
	if err := d.detectTriggerResponse(sorted, now); err != nil {
		return err
	}

	for _, e := range sorted {
		if err := d.store.MarkEventProcessed(e.ID); err != nil {
			return err
		}
	}
	return nil
}

// detectHabits groups by (kind, hour-of-day).
func (d *Detector) detectHabits(events []*store.Event, now int64) error {
	counts := map[string]int{}
	kindByKey := map[string]string{}
	hourByKey := map[string]int{}
	for _, e := range events {
		hour := time.Unix(e.Instant, 0).UTC().Hour()
		key := e.Kind + "|" + strconv.Itoa(hour)
		counts[key]++
		kindByKey[key] = e.Kind
		hourByKey[key] = hour
	}
	for key, n := range counts {
		if n < d.MinObservations {
			continue
		}
		c := confidence(n)
		if c < d.ConfidenceFloor {
			continue
		}
		p := &store.BehaviouralPattern{
			ID:   uuid.NewString(),
			Kind: "habit",
			Descriptor: encodeDescriptor(descriptor{
				"eventKind": kindByKey[key], "hour": hourByKey[key],
			}),
			Confidence:  c,
			Occurrences: n,
			CreatedAt:   now,
		}
		if err := d.store.UpsertPattern(p, now); err != nil {
			return err
		}
	}
	return nil
}

// detectDayOfWeek flags (kind, weekday) pairs whose density is above the
// average density for that kind across all weekdays.
func (d *Detector) detectDayOfWeek(events []*store.Event, now int64) error {
	perKindWeekday := map[string]map[int]int{}
	for _, e := range events {
		weekday := int(time.Unix(e.Instant, 0).UTC().Weekday())
		if perKindWeekday[e.Kind] == nil {
			perKindWeekday[e.Kind] = map[int]int{}
		}
		perKindWeekday[e.Kind][weekday]++
	}
	for kind, byWeekday := range perKindWeekday {
		var total int
		for _, n := range byWeekday {
			total += n
		}
		avg := float64(total) / 7.0
		for weekday, n := range byWeekday {
			if n < d.MinObservations || float64(n) <= avg {
				continue
			}
			c := confidence(n)
			if c < d.ConfidenceFloor {
				continue
			}
			p := &store.BehaviouralPattern{
				ID:          uuid.NewString(),
				Kind:        "day_of_week",
				Descriptor:  encodeDescriptor(descriptor{"eventKind": kind, "weekday": weekday}),
				Confidence:  c,
				Occurrences: n,
				CreatedAt:   now,
			}
			if err := d.store.UpsertPattern(p, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// detectSequences looks for A->B->C triples where each consecutive gap
// is within the 30-minute window.
func (d *Detector) detectSequences(events []*store.Event, now int64) error {
	counts := map[string]int{}
	kinds := map[string][3]string{}
	for i := 0; i+2 < len(events); i++ {
		a, b, c := events[i], events[i+1], events[i+2]
		if time.Duration(b.Instant-a.Instant)*time.Second > sequenceWindow {
			continue
		}
		if time.Duration(c.Instant-b.Instant)*time.Second > sequenceWindow {
			continue
		}
		key := a.Kind + ">" + b.Kind + ">" + c.Kind
		counts[key]++
		kinds[key] = [3]string{a.Kind, b.Kind, c.Kind}
	}
	for key, n := range counts {
		if n < d.MinObservations {
			continue
		}
		c := confidence(n)
		if c < d.ConfidenceFloor {
			continue
		}
		seq := kinds[key]
		p := &store.BehaviouralPattern{
			ID:   uuid.NewString(),
			Kind: "sequence",
			Descriptor: encodeDescriptor(descriptor{
				"a": seq[0], "b": seq[1], "c": seq[2],
			}),
			Confidence:  c,
			Occurrences: n,
			CreatedAt:   now,
		}
		if err := d.store.UpsertPattern(p, now); err != nil {
			return err
		}
	}
	return nil
}

// detectTriggerResponse looks for an external event followed by a user
// action within 60s.
func (d *Detector) detectTriggerResponse(events []*store.Event, now int64) error {
	counts := map[string]int{}
	kinds := map[string][2]string{}
	for i, trigger := range events {
		if !externalKinds[trigger.Kind] {
			continue
		}
		for j := i + 1; j < len(events); j++ {
			response := events[j]
			gap := time.Duration(response.Instant-trigger.Instant) * time.Second
			if gap > triggerResponseWindow {
				break
			}
			if responseKinds[response.Kind] {
				key := trigger.Kind + ">" + response.Kind
				counts[key]++
				kinds[key] = [2]string{trigger.Kind, response.Kind}
				break
			}
		}
	}
	for key, n := range counts {
		if n < d.MinObservations {
			continue
		}
		c := confidence(n)
		if c < d.ConfidenceFloor {
			continue
		}
		pair := kinds[key]
		p := &store.BehaviouralPattern{
			ID:          uuid.NewString(),
			Kind:        "trigger_response",
			Descriptor:  encodeDescriptor(descriptor{"trigger": pair[0], "response": pair[1]}),
			Confidence:  c,
			Occurrences: n,
			CreatedAt:   now,
		}
		if err := d.store.UpsertPattern(p, now); err != nil {
			return err
		}
	}
	return nil
}
