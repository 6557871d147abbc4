// Package scheduler runs the two background timers: a processing cycle
// that turns unprocessed messages and events
// into entities, assertions, relationships, and behavioural patterns,
// and a proactive service that fires meeting-prep, deadline-warning, and
// pattern-based suggestion triggers. Each is independently
// start/stoppable, matching the façade's separate processing-worker and
// proactive-service controls.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mnemocore/mnemocore/internal/assertion"
	"github.com/mnemocore/mnemocore/internal/behaviour"
	"github.com/mnemocore/mnemocore/internal/graph"
	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/llm"
	"github.com/mnemocore/mnemocore/internal/store"
)

const defaultBatchSize = 25

// Clock abstracts "now" so the cron-driven loop stays testable without
// waiting on a real timer.
type Clock func() int64

// ProcessingWorker runs the first timer: extraction, behavioural
// detection, and prediction regeneration, one cycle at a time.
type ProcessingWorker struct {
	store     store.Storer
	resolver  *identity.Resolver
	assertion *assertion.Store
	graph     *graph.Graph
	detector  *behaviour.Detector
	extractor llm.Extractor
	clock     Clock

	BatchSize int
	Interval  time.Duration

	cron   *cron.Cron
	logger *log.Logger
}

func NewProcessingWorker(
	s store.Storer,
	resolver *identity.Resolver,
	extractor llm.Extractor,
	interval time.Duration,
	clock Clock,
	logger *log.Logger,
) *ProcessingWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ProcessingWorker{
		store:     s,
		resolver:  resolver,
		assertion: assertion.New(s),
		graph:     graph.New(s),
		detector:  behaviour.New(s),
		extractor: extractor,
		clock:     clock,
		BatchSize: defaultBatchSize,
		Interval:  interval,
		logger:    logger,
	}
}

// Start schedules RunOnce on an "@every" cron spec and returns
// immediately; call Stop to end it. Panics only on a malformed
// interval, which a caller controls via Config.
func (w *ProcessingWorker) Start() {
	if w.cron != nil {
		return
	}
	w.cron = cron.New()
	_, err := w.cron.AddFunc(everySpec(w.Interval), func() {
		if err := w.RunOnce(context.Background()); err != nil {
			w.logger.Printf("processing cycle failed: %v", err)
		}
	})
	if err != nil {
		panic(err)
	}
	w.cron.Start()
}

// Stop waits for any in-flight cycle to finish, then ends the timer
// ("stop() returns after the current item completes").
func (w *ProcessingWorker) Stop() {
	if w.cron == nil {
		return
	}
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.cron = nil
}

// RunOnce executes one processing cycle synchronously: extraction over
// unprocessed messages, behavioural detection over unprocessed events,
// then prediction regeneration. Callers (tests, a manual trigger) can
// invoke this directly without a running timer.
func (w *ProcessingWorker) RunOnce(ctx context.Context) error {
	now := w.clock()

	messages, err := w.store.ListUnprocessedMessages(w.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if err := w.extractMessage(ctx, m, now); err != nil {
			w.logger.Printf("extraction failed for message %s, leaving unprocessed: %v", m.ID, err)
			continue
		}
		if err := w.store.MarkMessageProcessed(m.ID); err != nil {
			return err
		}
	}

	events, err := w.store.ListUnprocessedEvents(w.BatchSize)
	if err != nil {
		return err
	}
	if err := w.detector.ProcessEvents(events, now); err != nil {
		return err
	}

	if err := w.detector.ResolvePendingPredictions(now, events); err != nil {
		return err
	}
	return w.detector.GeneratePredictions(now)
}

func (w *ProcessingWorker) extractMessage(ctx context.Context, m *store.Message, now int64) error {
	result, err := w.extractor.Extract(ctx, m.BodyText)
	if err != nil {
		return err
	}

	for _, fact := range result.Facts {
		subjectID, err := w.resolveName(ctx, fact.SubjectName, now)
		if err != nil {
			continue
		}
		var objectID string
		if fact.ObjectName != "" {
			objectID, err = w.resolveName(ctx, fact.ObjectName, now)
			if err != nil {
				objectID = ""
			}
		}
		if _, err := w.assertion.Assert(now, assertion.Input{
			SubjectEntityID: subjectID,
			Predicate:       fact.Predicate,
			ObjectEntityID:  objectID,
			ObjectLiteral:   fact.ObjectLiteral,
			Confidence:      fact.Confidence,
			SourceKind:      m.SourceKind,
			SourceID:        m.SourceID,
			SourceInstant:   m.Timestamp,
		}); err != nil {
			return err
		}
	}

	for _, rel := range result.Relations {
		fromID, err := w.resolveName(ctx, rel.FromName, now)
		if err != nil {
			continue
		}
		toID, err := w.resolveName(ctx, rel.ToName, now)
		if err != nil {
			continue
		}
		if _, err := w.graph.RecordRelationship(fromID, toID, rel.Kind, rel.Confidence, now); err != nil {
			return err
		}
	}
	return nil
}

func (w *ProcessingWorker) resolveName(ctx context.Context, name string, now int64) (string, error) {
	res, err := w.resolver.Resolve(ctx, now, identity.Probe{CanonicalName: name})
	if err != nil {
		return "", err
	}
	return res.EntityID, nil
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		d = 60 * time.Second
	}
	return "@every " + d.String()
}
