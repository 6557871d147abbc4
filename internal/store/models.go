// Package store provides SQLite-backed persistence for the memory engine.
// It owns every row in the system: entities, attributes, assertions,
// relationship edges, messages, behavioural events, and the style and
// engagement aggregates. References between rows are by id, never by
// pointer.
package store

// Entity is the canonical identity record. Kind never changes after
// creation; a merged entity is retired and its id recorded in the
// survivor's MergeHistory.
type Entity struct {
	ID            string   `json:"id"`
	CanonicalName string   `json:"canonicalName"`
	Kind          string   `json:"kind"` // person, organisation, place, thing
	Retired       bool     `json:"retired"`
	MergedInto    string   `json:"mergedInto,omitempty"`
	MergeHistory  []string `json:"mergeHistory"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// EntityAttribute is a typed fact about an entity: (entity_id, kind, value)
// is unique.
type EntityAttribute struct {
	ID           string  `json:"id"`
	EntityID     string  `json:"entityId"`
	Kind         string  `json:"kind"` // email, phone, alias, title, company, ...
	Value        string  `json:"value"`
	Confidence   float64 `json:"confidence"`
	ProvenanceID string  `json:"provenanceId,omitempty"` // assertion id that sourced it
	CreatedAt    int64   `json:"createdAt"`
}

// Assertion is an immutable subject-predicate-object record, bi-temporal,
// with optional supersession.
type Assertion struct {
	ID                string  `json:"id"`
	SubjectEntityID    string  `json:"subjectEntityId"`
	Predicate          string  `json:"predicate"`
	ObjectEntityID     string  `json:"objectEntityId,omitempty"`
	ObjectLiteral      string  `json:"objectLiteral,omitempty"`
	Confidence         float64 `json:"confidence"`
	SourceKind         string  `json:"sourceKind"`
	SourceID           string  `json:"sourceId"`
	SourceInstant      int64   `json:"sourceInstant"`     // when the fact became true in the world
	ExtractionInstant  int64   `json:"extractionInstant"` // when the system observed it
	SupersedesID       string  `json:"supersedesId,omitempty"`
	Superseded         bool    `json:"superseded"`
	EmbeddingID        string  `json:"embeddingId,omitempty"`
}

// ConflictKey is the tuple supersession is resolved on: (subject, predicate)
// or (subject, predicate, object_entity_id) when the object is an entity.
func (a *Assertion) ConflictKey() string {
	if a.ObjectEntityID != "" {
		return a.SubjectEntityID + "\x00" + a.Predicate + "\x00" + a.ObjectEntityID
	}
	return a.SubjectEntityID + "\x00" + a.Predicate
}

// GraphEdge is a directed, aggregated relationship between two live
// entities. (from, to, kind) is unique.
type GraphEdge struct {
	ID             string  `json:"id"`
	FromEntityID   string  `json:"fromEntityId"`
	ToEntityID     string  `json:"toEntityId"`
	EdgeKind       string  `json:"edgeKind"`
	Strength       float64 `json:"strength"`
	EvidenceCount  int     `json:"evidenceCount"`
	LastEvidenceAt int64   `json:"lastEvidenceAt"`
}

// Message is a normalised communication event. (source_kind, source_id) is
// unique.
type Message struct {
	ID                 string   `json:"id"`
	SourceKind         string   `json:"sourceKind"` // mail, short-message, slack, screen-capture
	SourceID           string   `json:"sourceId"`
	ThreadID           string   `json:"threadId,omitempty"`
	SenderEntityID     string   `json:"senderEntityId"`
	RecipientEntityIDs []string `json:"recipientEntityIds"`
	Subject            string   `json:"subject,omitempty"`
	BodyText           string   `json:"bodyText"`
	BodyRaw            string   `json:"bodyRaw,omitempty"`
	Timestamp          int64    `json:"timestamp"`
	FromUser           bool     `json:"fromUser"`
	Processed          bool     `json:"processed"`
	ContextTag         string   `json:"contextTag,omitempty"` // work, personal
}

// Event is a behavioural marker emitted by ingestion and workers.
type Event struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"` // message_sent, message_received, draft_sent, draft_edited, response_received, calendar_event, ...
	Instant    int64  `json:"instant"`
	Payload    string `json:"payload"` // opaque JSON
	ContextTag string `json:"contextTag,omitempty"`
	Processed  bool   `json:"processed"`
}

// UserStyleProfile is the single-row aggregate describing the user's global
// communication style.
type UserStyleProfile struct {
	Formality        float64  `json:"formality"`
	Verbosity        float64  `json:"verbosity"`
	EmojiDensity     float64  `json:"emojiDensity"`
	AvgMessageLength int      `json:"avgMessageLength"`
	Greetings        []string `json:"greetings"`
	SignOffs         []string `json:"signOffs"`
	Signatures       []string `json:"signatures"`
	InteractionCount int      `json:"interactionCount"`
	UpdatedAt        int64    `json:"updatedAt"`
}

// RecipientStyleProfile mirrors UserStyleProfile scoped to one resolved
// recipient entity.
type RecipientStyleProfile struct {
	EntityID             string   `json:"entityId"`
	Formality            float64  `json:"formality"`
	Verbosity            float64  `json:"verbosity"`
	EmojiDensity         float64  `json:"emojiDensity"`
	AvgMessageLength     int      `json:"avgMessageLength"`
	Greetings            []string `json:"greetings"`
	SignOffs             []string `json:"signOffs"`
	Signatures           []string `json:"signatures"`
	RelationshipKind     string   `json:"relationshipKind"`
	Warmth               float64  `json:"warmth"`
	EmojiUsage           float64  `json:"emojiUsage"`
	AvgResponseTimeHours float64  `json:"avgResponseTimeHours"`
	ExampleMessages      []string `json:"exampleMessages"`
	MessageCount         int      `json:"messageCount"`
	UpdatedAt            int64    `json:"updatedAt"`
}

// EngagementEvent records one draft interaction, optionally driving
// adaptation.
type EngagementEvent struct {
	ID                string   `json:"id"`
	DraftID           string   `json:"draftId"`
	Kind              string   `json:"kind"` // draft_sent, draft_edited, response_received, thread_continued
	AIDraftLength     *int     `json:"aiDraftLength,omitempty"`
	UserFinalLength   *int     `json:"userFinalLength,omitempty"`
	EditRatio         *float64 `json:"editRatio,omitempty"`
	ResponseSentiment *float64 `json:"responseSentiment,omitempty"`
	ThreadLength      *int     `json:"threadLength,omitempty"`
	ThreadContinued   *bool    `json:"threadContinued,omitempty"`
	RecipientEntityID *string  `json:"recipientEntityId,omitempty"`
	ContextTag        *string  `json:"contextTag,omitempty"`
	AdaptationApplied bool     `json:"adaptationApplied"`
	Delta             *float64 `json:"delta,omitempty"`
	CreatedAt         int64    `json:"createdAt"`
}

// PersonalityEvolutionEntry is an audit row for one style-dimension change.
type PersonalityEvolutionEntry struct {
	ID             string  `json:"id"`
	Dimension      string  `json:"dimension"`
	OldValue       float64 `json:"oldValue"`
	NewValue       float64 `json:"newValue"`
	TriggerEventID string  `json:"triggerEventId"`
	LearningRate   float64 `json:"learningRate"`
	CreatedAt      int64   `json:"createdAt"`
}

// BehaviouralPattern is a derived summary candidate (habit, sequence,
// day-of-week, trigger-response).
type BehaviouralPattern struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Descriptor  string  `json:"descriptor"` // opaque JSON key describing the pattern instance
	Confidence  float64 `json:"confidence"`
	Occurrences int     `json:"occurrences"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// DailyRhythmCell is one (hour, weekday) bucket of the 24x7 grid.
type DailyRhythmCell struct {
	Hour        int     `json:"hour"`    // 0-23
	Weekday     int     `json:"weekday"` // 0-6, Sunday=0
	EventCount  int     `json:"eventCount"`
	FocusScore  float64 `json:"focusScore"`
	EnergyLevel float64 `json:"energyLevel"`
}

// Prediction is a forward-looking behavioural forecast.
type Prediction struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"` // next_action, need_surfaced, context_switch, deadline_warning
	WindowStart int64   `json:"windowStart"`
	WindowEnd   int64   `json:"windowEnd"`
	Confidence  float64 `json:"confidence"`
	Outcome     string  `json:"outcome"` // pending, correct, incorrect
	CreatedAt   int64   `json:"createdAt"`
}

// ProactiveTrigger is a fired, acknowledgeable suggestion.
type ProactiveTrigger struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"` // meeting_prep, deadline_warning, pattern_suggestion
	FireAt         int64  `json:"fireAt"`
	Payload        string `json:"payload"`
	Acknowledged   bool   `json:"acknowledged"`
	AcknowledgedAt int64  `json:"acknowledgedAt,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// QuarantinedProbe is a resolver probe stage 4 refused to commit to.
type QuarantinedProbe struct {
	ID        string `json:"id"`
	ProbeJSON string `json:"probeJson"`
	Reason    string `json:"reason"`
	CreatedAt int64  `json:"createdAt"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
