// Package mnemocore is the public façade: a single opaque handle
// exposing construct, initialise, close, and every core operation. No
// other surface is part of the contract.
package mnemocore

import (
	"context"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemocore/mnemocore/internal/assertion"
	"github.com/mnemocore/mnemocore/internal/graph"
	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/ingest"
	"github.com/mnemocore/mnemocore/internal/llm"
	"github.com/mnemocore/mnemocore/internal/onboarding"
	"github.com/mnemocore/mnemocore/internal/retrieval"
	"github.com/mnemocore/mnemocore/internal/scheduler"
	"github.com/mnemocore/mnemocore/internal/store"
	"github.com/mnemocore/mnemocore/internal/style"
)

// Handle is the single opaque entry point into the core. A caller never
// reaches into internal/ directly.
type Handle struct {
	cfg Config

	store      store.Storer
	resolver   *identity.Resolver
	assertions *assertion.Store
	graph      *graph.Graph
	ingest     *ingest.Pipeline
	retrieval  *retrieval.Engine
	style      *style.Service
	onboarding *onboarding.Orchestrator
	processing *scheduler.ProcessingWorker
	proactive  *scheduler.ProactiveService
}

// Construct stores a Config without checking it; it performs no I/O. Call
// Initialise to actually open the store and wire its components.
func Construct(cfg Config) *Handle {
	return &Handle{cfg: cfg}
}

// Initialise opens the configured store, migrates it if needed, and wires
// every component. Safe to call once; a second call is a no-op.
func (h *Handle) Initialise() error {
	if h.store != nil {
		return nil
	}

	s, err := store.NewSQLiteStoreWithDSN(h.cfg.DBPath)
	if err != nil {
		return err
	}

	extractor, arbiter, embedder := h.buildCollaborators()

	resolver := identity.New(s, arbiter)
	resolver.ExtraNicknames = h.cfg.ExtraNicknames

	styleSvc := style.New(s)
	styleSvc.MirrorLevel = h.cfg.MirrorLevel
	styleSvc.Weights = h.cfg.EngagementWeights
	styleSvc.VentModeCapsRatio = h.cfg.VentModeCapsRatio
	styleSvc.MaxDeltaPerAdaptation = h.cfg.MaxDeltaPerAdaptation
	styleSvc.DriftThreshold = h.cfg.DriftThreshold
	styleSvc.DriftSlack = h.cfg.DriftSlack

	onboard := onboarding.New(s)
	if h.cfg.MinimumOnboardingMessages > 0 {
		onboard.MinMessages = h.cfg.MinimumOnboardingMessages
	}

	h.store = s
	h.resolver = resolver
	h.assertions = assertion.New(s)
	h.graph = graph.New(s)
	h.ingest = ingest.New(s, resolver)
	h.retrieval = retrieval.New(s, embedder)
	h.style = styleSvc
	h.onboarding = onboard
	h.processing = scheduler.NewProcessingWorker(s, resolver, extractor, h.cfg.ProcessInterval, h.clock, h.cfg.Logger)
	h.proactive = scheduler.NewProactiveService(s, h.cfg.ProactiveInterval, h.clock, h.cfg.Logger)
	return nil
}

// buildCollaborators returns the always-available rule-based extractor
// and nil arbiter/embedder, or their go-openai-backed counterparts when
// Config.OpenAIAPIKey is set (collaborator interfaces are
// optional throughout).
func (h *Handle) buildCollaborators() (llm.Extractor, llm.Arbiter, llm.Embedder) {
	if h.cfg.OpenAIAPIKey == "" {
		return llm.NewRuleBasedExtractor(), nil, nil
	}
	completer := llm.NewOpenAIAdapter(h.cfg.OpenAIAPIKey, h.cfg.OpenAIModel, h.cfg.OpenAIBaseURL)
	var embedder llm.Embedder
	if h.cfg.OpenAIEmbeddingModel != "" {
		embedder = llm.NewOpenAIEmbedder(h.cfg.OpenAIAPIKey, h.cfg.OpenAIBaseURL, openai.EmbeddingModel(h.cfg.OpenAIEmbeddingModel), 0)
	}
	return llm.NewModelExtractor(completer), llm.NewModelArbiter(completer), embedder
}

func (h *Handle) clock() int64 { return time.Now().Unix() }

// Close stops any running background timers and closes the store.
func (h *Handle) Close() error {
	if h.processing != nil {
		h.processing.Stop()
	}
	if h.proactive != nil {
		h.proactive.Stop()
	}
	if h.store == nil {
		return nil
	}
	return h.store.Close()
}

// Ingest runs the ingestion pipeline over a batch of normalised messages.
func (h *Handle) Ingest(ctx context.Context, messages []ingest.RawMessage) ingest.Result {
	return h.ingest.Ingest(ctx, h.clock(), messages)
}

// Search runs hybrid retrieval.
func (h *Handle) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	return h.retrieval.Search(ctx, q)
}

// SearchScreens is Search scoped to screen-capture-wrapped messages.
func (h *Handle) SearchScreens(ctx context.Context, text string, limit int) ([]retrieval.Result, error) {
	return h.retrieval.Search(ctx, retrieval.Query{Text: text, Limit: limit, FilterKind: "screen-capture"})
}

// ResolveEntity runs the four-stage identity resolution pipeline on probe.
func (h *Handle) ResolveEntity(ctx context.Context, probe identity.Probe) (*identity.Resolution, error) {
	return h.resolver.Resolve(ctx, h.clock(), probe)
}

func (h *Handle) GetEntity(id string) (*store.Entity, error) {
	return h.store.GetEntity(id)
}

func (h *Handle) FindEntities(nameFragment string) ([]*store.Entity, error) {
	return h.store.FindEntitiesByName(nameFragment)
}

// EntityGraph is entityID's direct relationship edges plus every entity
// reachable within hops (graph queries cap at 3 hops by default).
type EntityGraph struct {
	Edges             []*store.GraphEdge
	ConnectedEntities []string
}

func (h *Handle) GetEntityGraph(entityID string, hops int) (*EntityGraph, error) {
	edges, err := h.graph.NeighboursOf(entityID, "", 0)
	if err != nil {
		return nil, err
	}
	connected, err := h.graph.ConnectedWithin(entityID, hops)
	if err != nil {
		return nil, err
	}
	return &EntityGraph{Edges: edges, ConnectedEntities: connected}, nil
}

func (h *Handle) GetUserStyle() (*store.UserStyleProfile, error) {
	return h.store.GetUserStyle()
}

func (h *Handle) GetRecipientStyle(entityID string) (*store.RecipientStyleProfile, error) {
	return h.store.GetRecipientStyle(entityID)
}

func (h *Handle) GenerateMirrorPrompt(entityID string) (*style.MirrorPrompt, error) {
	return h.style.GenerateMirrorPrompt(entityID)
}

// RecordDraftSent logs the first half of an engagement interaction: a
// draft was produced for a recipient. No adaptation happens until the
// response/edit signals arrive (LearnFromInteraction does that).
func (h *Handle) RecordDraftSent(draftID, recipientEntityID string, aiDraftLength int, contextTag string) error {
	now := h.clock()
	ev := &store.EngagementEvent{
		ID:        uuid.NewString(),
		DraftID:   draftID,
		Kind:      "draft_sent",
		CreatedAt: now,
	}
	if aiDraftLength > 0 {
		ev.AIDraftLength = &aiDraftLength
	}
	if recipientEntityID != "" {
		ev.RecipientEntityID = &recipientEntityID
	}
	if contextTag != "" {
		ev.ContextTag = &contextTag
	}
	return h.store.InsertEngagementEvent(ev)
}

func (h *Handle) RecordDraftEdited(draftID string, userFinalLength int, editRatio float64) error {
	now := h.clock()
	return h.store.InsertEngagementEvent(&store.EngagementEvent{
		ID:              uuid.NewString(),
		DraftID:         draftID,
		Kind:            "draft_edited",
		UserFinalLength: &userFinalLength,
		EditRatio:       &editRatio,
		CreatedAt:       now,
	})
}

func (h *Handle) RecordUserResponse(draftID string, responseSentiment float64, threadLength int, threadContinued bool) error {
	now := h.clock()
	return h.store.InsertEngagementEvent(&store.EngagementEvent{
		ID:                uuid.NewString(),
		DraftID:           draftID,
		Kind:              "response_received",
		ResponseSentiment: &responseSentiment,
		ThreadLength:      &threadLength,
		ThreadContinued:   &threadContinued,
		CreatedAt:         now,
	})
}

// LearnFromInteraction runs the adaptation step over one engagement
// event: scoring, gating, vent-mode freeze, and (when it proceeds) a
// capped nudge of the user style profile, logged to the evolution trail.
func (h *Handle) LearnFromInteraction(ev *store.EngagementEvent, vent style.VentCheck) (bool, error) {
	return h.style.Adapt(ev, vent, h.clock())
}

// EngagementSummary aggregates recent engagement events for the caller's
// dashboard surface; nothing here is persisted, it's derived on read.
type EngagementSummary struct {
	EventCount        int
	AverageScore      float64
	AdaptationCount   int
}

func (h *Handle) GetEngagementSummary(limit int) (*EngagementSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := h.store.ListRecentEngagementEvents(limit)
	if err != nil {
		return nil, err
	}
	summary := &EngagementSummary{EventCount: len(events)}
	var totalScore float64
	for _, ev := range events {
		score, _ := style.ComputeEngagementScore(ev, h.cfg.EngagementWeights)
		totalScore += score
		if ev.AdaptationApplied {
			summary.AdaptationCount++
		}
	}
	if len(events) > 0 {
		summary.AverageScore = totalScore / float64(len(events))
	}
	return summary, nil
}

// LearningStats reports the current decayed learning rate and the
// configured adaptation gates.
type LearningStats struct {
	CurrentLearningRate float64
	MinConfidence       float64
	MinInteractions     int
	InteractionCount    int
}

func (h *Handle) GetLearningStats() (*LearningStats, error) {
	profile, err := h.store.GetUserStyle()
	if err != nil {
		return nil, err
	}
	return &LearningStats{
		CurrentLearningRate: style.LearningRate(profile.InteractionCount),
		MinConfidence:       h.style.MinConfidence,
		MinInteractions:     h.style.MinInteractions,
		InteractionCount:    profile.InteractionCount,
	}, nil
}

func (h *Handle) DetectPersonalityDrift(dimension string) (bool, error) {
	return h.style.DetectDrift(dimension)
}

func (h *Handle) GetPersonalityEvolution(dimension string, limit int) ([]*store.PersonalityEvolutionEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return h.store.ListEvolutionEntries(dimension, limit)
}

// Stats is a cheap aggregate snapshot of the core's state.
type Stats struct {
	EntityCount         int
	MessageCount        int
	EdgeCount           int
	OnboardingCompleted bool
}

func (h *Handle) GetStats() (*Stats, error) {
	entities, err := h.store.CountEntities()
	if err != nil {
		return nil, err
	}
	messages, err := h.store.CountMessages()
	if err != nil {
		return nil, err
	}
	edges, err := h.store.CountEdges()
	if err != nil {
		return nil, err
	}
	completed, err := h.store.OnboardingCompleted()
	if err != nil {
		return nil, err
	}
	return &Stats{EntityCount: entities, MessageCount: messages, EdgeCount: edges, OnboardingCompleted: completed}, nil
}

func (h *Handle) RunOnboarding(progress onboarding.Progress) (*onboarding.Result, error) {
	return h.onboarding.Run(h.clock(), progress)
}

func (h *Handle) StartProcessingWorker() { h.processing.Start() }
func (h *Handle) StopProcessingWorker()  { h.processing.Stop() }
func (h *Handle) StartProactiveService() { h.proactive.Start() }
func (h *Handle) StopProactiveService()  { h.proactive.Stop() }

func (h *Handle) GetAssertionsAsOf(subjectEntityID string, asOf int64) ([]*store.Assertion, error) {
	return h.assertions.AsOf(subjectEntityID, asOf)
}

// EntityState is an entity's record plus every assertion about it visible
// at asOf (bi-temporal query property).
type EntityState struct {
	Entity     *store.Entity
	Assertions []*store.Assertion
}

func (h *Handle) GetEntityStateAsOf(entityID string, asOf int64) (*EntityState, error) {
	e, err := h.store.GetEntity(entityID)
	if err != nil {
		return nil, err
	}
	assertions, err := h.assertions.AsOf(entityID, asOf)
	if err != nil {
		return nil, err
	}
	return &EntityState{Entity: e, Assertions: assertions}, nil
}
