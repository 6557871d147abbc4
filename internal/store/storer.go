package store

// Storer is the full persistence contract the rest of the core depends on.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Entities
	CreateEntity(e *Entity) error
	GetEntity(id string) (*Entity, error)
	FindEntitiesByName(nameFragment string) ([]*Entity, error)
	ListEntities(kind string) ([]*Entity, error)
	CountEntities() (int, error)
	RetireEntity(id, mergedInto string) error

	// Entity attributes
	UpsertAttribute(a *EntityAttribute) error
	GetAttribute(entityID, kind, value string) (*EntityAttribute, error)
	FindEntityByAttribute(kind, value string) (*Entity, error)
	ListAttributes(entityID string) ([]*EntityAttribute, error)
	RewriteAttributeOwner(fromEntityID, toEntityID string) error

	// Assertions
	InsertAssertion(a *Assertion) error
	GetAssertion(id string) (*Assertion, error)
	SupersedeAssertion(oldID, newID string) error
	CurrentAssertions(subjectEntityID string) ([]*Assertion, error)
	AssertionsAsOf(subjectEntityID string, asOf int64) ([]*Assertion, error)
	FindCurrentByConflictKey(conflictKey string) (*Assertion, error)
	RewriteAssertionSubject(fromEntityID, toEntityID string) error
	RewriteAssertionObject(fromEntityID, toEntityID string) error

	// Graph edges
	UpsertEdge(fromID, toID, kind string, confidence float64, now int64) (*GraphEdge, error)
	GetEdge(fromID, toID, kind string) (*GraphEdge, error)
	NeighboursOf(entityID, kind string, minStrength float64) ([]*GraphEdge, error)
	RewriteEdgeEndpoint(fromEntityID, toEntityID string) error
	CountEdges() (int, error)

	// Messages
	InsertMessage(m *Message) error
	MessageExists(sourceKind, sourceID string) (bool, error)
	GetMessage(id string) (*Message, error)
	ListUnprocessedMessages(limit int) ([]*Message, error)
	ListMessagesFromUser(limit int) ([]*Message, error)
	MarkMessageProcessed(id string) error
	RewriteMessageParticipant(fromEntityID, toEntityID string) error
	SearchFTS(query string, limit int) ([]string, error) // returns message ids ranked by bm25
	MessagesByParticipant(entityID string, limit int) ([]string, error)
	CountMessages() (int, error)

	// Events
	InsertEvent(e *Event) error
	ListUnprocessedEvents(limit int) ([]*Event, error)
	MarkEventProcessed(id string) error
	ListEventsSince(since int64) ([]*Event, error)

	// Style
	GetUserStyle() (*UserStyleProfile, error)
	SaveUserStyle(p *UserStyleProfile) error
	GetRecipientStyle(entityID string) (*RecipientStyleProfile, error)
	SaveRecipientStyle(p *RecipientStyleProfile) error
	ListRecipientStyles() ([]*RecipientStyleProfile, error)

	// Engagement / evolution
	InsertEngagementEvent(e *EngagementEvent) error
	ListRecentEngagementEvents(limit int) ([]*EngagementEvent, error)
	InsertEvolutionEntry(e *PersonalityEvolutionEntry) error
	ListEvolutionEntries(dimension string, limit int) ([]*PersonalityEvolutionEntry, error)

	// Behavioural layer
	UpsertPattern(p *BehaviouralPattern, now int64) error
	ListPatterns(kind string, minConfidence float64) ([]*BehaviouralPattern, error)
	BumpRhythmCell(hour, weekday int) error
	GetRhythm() ([]*DailyRhythmCell, error)
	InsertPrediction(p *Prediction) error
	ListPendingPredictions(windowStart int64) ([]*Prediction, error)
	ResolvePrediction(id, outcome string) error
	PredictionAccuracy(kind string, window int) (float64, error)

	// Proactive triggers
	InsertTrigger(t *ProactiveTrigger) error
	ListPendingTriggers(before int64) ([]*ProactiveTrigger, error)
	AcknowledgeTrigger(id string, now int64) error
	TriggerAcceptanceRate(kind string) (float64, error)

	// Quarantine
	QuarantineProbe(p *QuarantinedProbe) error
	ListQuarantinedProbes() ([]*QuarantinedProbe, error)

	// Onboarding
	OnboardingCompleted() (bool, error)
	MarkOnboardingComplete(now int64) error
	ResetOnboarding() error

	// Vector index (optional backing; see vector.go)
	VectorIndex() VectorIndex

	// Lifecycle
	WithTx(fn func(tx Storer) error) error
	Export() ([]byte, error)
	Import(data []byte) error
	Close() error
}
