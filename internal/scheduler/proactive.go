package scheduler

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mnemocore/mnemocore/internal/behaviour"
	"github.com/mnemocore/mnemocore/internal/store"
)

const (
	meetingPrepLead   = 5 * time.Minute
	deadlineWarnLead  = 24 * time.Hour
	commitmentLookAhead = 25 * time.Hour // covers the deadline-warning lead plus slack
)

// commitmentPayload is the opaque payload shape calendar_event and
// deadline events carry.
type commitmentPayload struct {
	At int64 `json:"at"`
}

// ProactiveService runs the second timer: meeting-prep,
// deadline-warning, and pattern-based suggestion triggers.
type ProactiveService struct {
	store    store.Storer
	detector *behaviour.Detector
	clock    Clock

	Interval time.Duration

	cron   *cron.Cron
	logger *log.Logger
}

func NewProactiveService(s store.Storer, interval time.Duration, clock Clock, logger *log.Logger) *ProactiveService {
	if logger == nil {
		logger = log.Default()
	}
	return &ProactiveService{
		store:    s,
		detector: behaviour.New(s),
		clock:    clock,
		Interval: interval,
		logger:   logger,
	}
}

func (p *ProactiveService) Start() {
	if p.cron != nil {
		return
	}
	p.cron = cron.New()
	_, err := p.cron.AddFunc(everySpec(p.Interval), func() {
		if err := p.RunOnce(); err != nil {
			p.logger.Printf("proactive cycle failed: %v", err)
		}
	})
	if err != nil {
		panic(err)
	}
	p.cron.Start()
}

func (p *ProactiveService) Stop() {
	if p.cron == nil {
		return
	}
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.cron = nil
}

// RunOnce fires whichever triggers are due: meeting-prep 5 minutes
// before a calendar_event, deadline-warning 24 hours before a deadline,
// and a pattern-based suggestion when the current hour/weekday matches a
// confident habit.
func (p *ProactiveService) RunOnce() error {
	now := p.clock()

	events, err := p.store.ListEventsSince(now - int64(commitmentLookAhead.Seconds()))
	if err != nil {
		return err
	}
	for _, e := range events {
		var payload commitmentPayload
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			continue
		}
		switch e.Kind {
		case "calendar_event":
			if due(now, payload.At, meetingPrepLead) {
				if err := p.fire("meeting_prep", now, e.Payload); err != nil {
					return err
				}
			}
		case "deadline":
			if due(now, payload.At, deadlineWarnLead) {
				if err := p.fire("deadline_warning", now, e.Payload); err != nil {
					return err
				}
			}
		}
	}

	return p.firePatternSuggestions(now)
}

// due reports whether at is within [now, now+lead] — i.e. the trigger's
// lead window has just opened for this event.
func due(now, at int64, lead time.Duration) bool {
	windowStart := at - int64(lead.Seconds())
	return now >= windowStart && now <= at
}

func (p *ProactiveService) firePatternSuggestions(now int64) error {
	hour := time.Unix(now, 0).UTC().Hour()
	weekday := int(time.Unix(now, 0).UTC().Weekday())

	patterns, err := p.store.ListPatterns("day_of_week", 0.5)
	if err != nil {
		return err
	}
	for _, pat := range patterns {
		var desc struct {
			EventKind string `json:"eventKind"`
			Weekday   int    `json:"weekday"`
		}
		if err := json.Unmarshal([]byte(pat.Descriptor), &desc); err != nil {
			continue
		}
		if desc.Weekday != weekday {
			continue
		}
		if err := p.fire("pattern_suggestion", now, pat.Descriptor); err != nil {
			return err
		}
	}

	habits, err := p.store.ListPatterns("habit", 0.5)
	if err != nil {
		return err
	}
	for _, pat := range habits {
		var desc struct {
			EventKind string `json:"eventKind"`
			Hour      int    `json:"hour"`
		}
		if err := json.Unmarshal([]byte(pat.Descriptor), &desc); err != nil {
			continue
		}
		if desc.Hour != hour {
			continue
		}
		if err := p.fire("pattern_suggestion", now, pat.Descriptor); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProactiveService) fire(kind string, now int64, payload string) error {
	return p.store.InsertTrigger(&store.ProactiveTrigger{
		ID:        uuid.NewString(),
		Kind:      kind,
		FireAt:    now,
		Payload:   payload,
		CreatedAt: now,
	})
}

// Acknowledge marks a trigger acknowledged at now. AcceptanceRate counts
// every acknowledged trigger as accepted; a dismissal is not recorded
// separately.
func (p *ProactiveService) Acknowledge(triggerID string, now int64) error {
	return p.store.AcknowledgeTrigger(triggerID, now)
}

// AcceptanceRate returns the acceptance rate for a trigger kind.
func (p *ProactiveService) AcceptanceRate(kind string) (float64, error) {
	return p.store.TriggerAcceptanceRate(kind)
}
