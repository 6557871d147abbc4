package store

// schema defines every table the memory engine owns. Migrations are
// numbered; schemaVersion is the version this binary knows how to produce.
// Applying schema is idempotent (CREATE TABLE IF NOT EXISTS) so opening an
// already-current database is a no-op beyond the version check in
// migrate().
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    canonical_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    retired INTEGER NOT NULL DEFAULT 0,
    merged_into TEXT,
    merge_history TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(canonical_name);
CREATE INDEX IF NOT EXISTS idx_entities_live ON entities(id) WHERE retired = 0;

CREATE TABLE IF NOT EXISTS entity_attributes (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    value TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 1.0,
    provenance_id TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(entity_id, kind, value)
);
CREATE INDEX IF NOT EXISTS idx_attrs_entity ON entity_attributes(entity_id);
CREATE INDEX IF NOT EXISTS idx_attrs_value ON entity_attributes(kind, value);

CREATE TABLE IF NOT EXISTS assertions (
    id TEXT PRIMARY KEY,
    subject_entity_id TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object_entity_id TEXT,
    object_literal TEXT,
    confidence REAL NOT NULL,
    source_kind TEXT NOT NULL,
    source_id TEXT NOT NULL,
    source_instant INTEGER NOT NULL,
    extraction_instant INTEGER NOT NULL,
    supersedes_id TEXT,
    superseded INTEGER NOT NULL DEFAULT 0,
    embedding_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_assertions_subject ON assertions(subject_entity_id, predicate);
CREATE INDEX IF NOT EXISTS idx_assertions_current ON assertions(subject_entity_id, predicate) WHERE superseded = 0;
CREATE INDEX IF NOT EXISTS idx_assertions_extraction ON assertions(extraction_instant);

CREATE TABLE IF NOT EXISTS graph_edges (
    id TEXT PRIMARY KEY,
    from_entity_id TEXT NOT NULL,
    to_entity_id TEXT NOT NULL,
    edge_kind TEXT NOT NULL,
    strength REAL NOT NULL DEFAULT 0,
    evidence_count INTEGER NOT NULL DEFAULT 0,
    last_evidence_at INTEGER NOT NULL,
    UNIQUE(from_entity_id, to_entity_id, edge_kind)
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON graph_edges(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON graph_edges(to_entity_id);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    source_kind TEXT NOT NULL,
    source_id TEXT NOT NULL,
    thread_id TEXT,
    sender_entity_id TEXT,
    recipient_entity_ids TEXT NOT NULL DEFAULT '[]',
    subject TEXT,
    body_text TEXT NOT NULL,
    body_raw TEXT,
    timestamp INTEGER NOT NULL,
    from_user INTEGER NOT NULL DEFAULT 0,
    processed INTEGER NOT NULL DEFAULT 0,
    context_tag TEXT,
    UNIQUE(source_kind, source_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_entity_id);
CREATE INDEX IF NOT EXISTS idx_messages_unprocessed ON messages(id) WHERE processed = 0;
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    message_id UNINDEXED,
    subject,
    body,
    content='',
    tokenize='unicode61 remove_diacritics 1'
);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    instant INTEGER NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    context_tag TEXT,
    processed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_events_unprocessed ON events(id) WHERE processed = 0;
CREATE INDEX IF NOT EXISTS idx_events_kind_instant ON events(kind, instant);

CREATE TABLE IF NOT EXISTS user_style_profile (
    singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
    formality REAL NOT NULL DEFAULT 0.5,
    verbosity REAL NOT NULL DEFAULT 0.5,
    emoji_density REAL NOT NULL DEFAULT 0,
    avg_message_length INTEGER NOT NULL DEFAULT 0,
    greetings TEXT NOT NULL DEFAULT '[]',
    sign_offs TEXT NOT NULL DEFAULT '[]',
    signatures TEXT NOT NULL DEFAULT '[]',
    interaction_count INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS recipient_style_profiles (
    entity_id TEXT PRIMARY KEY,
    formality REAL NOT NULL DEFAULT 0.5,
    verbosity REAL NOT NULL DEFAULT 0.5,
    emoji_density REAL NOT NULL DEFAULT 0,
    avg_message_length INTEGER NOT NULL DEFAULT 0,
    greetings TEXT NOT NULL DEFAULT '[]',
    sign_offs TEXT NOT NULL DEFAULT '[]',
    signatures TEXT NOT NULL DEFAULT '[]',
    relationship_kind TEXT,
    warmth REAL NOT NULL DEFAULT 0,
    emoji_usage REAL NOT NULL DEFAULT 0,
    avg_response_time_hours REAL NOT NULL DEFAULT 0,
    example_messages TEXT NOT NULL DEFAULT '[]',
    message_count INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS engagement_events (
    id TEXT PRIMARY KEY,
    draft_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    ai_draft_length INTEGER,
    user_final_length INTEGER,
    edit_ratio REAL,
    response_sentiment REAL,
    thread_length INTEGER,
    thread_continued INTEGER,
    recipient_entity_id TEXT,
    context_tag TEXT,
    adaptation_applied INTEGER NOT NULL DEFAULT 0,
    delta REAL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_engagement_recipient ON engagement_events(recipient_entity_id);
CREATE INDEX IF NOT EXISTS idx_engagement_created ON engagement_events(created_at);

CREATE TABLE IF NOT EXISTS personality_evolution (
    id TEXT PRIMARY KEY,
    dimension TEXT NOT NULL,
    old_value REAL NOT NULL,
    new_value REAL NOT NULL,
    trigger_event_id TEXT NOT NULL,
    learning_rate REAL NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evolution_dimension ON personality_evolution(dimension, created_at);

CREATE TABLE IF NOT EXISTS behavioural_patterns (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    descriptor TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0,
    occurrences INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(kind, descriptor)
);

CREATE TABLE IF NOT EXISTS daily_rhythm (
    hour INTEGER NOT NULL,
    weekday INTEGER NOT NULL,
    event_count INTEGER NOT NULL DEFAULT 0,
    focus_score REAL NOT NULL DEFAULT 0,
    energy_level REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (hour, weekday)
);

CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    window_start INTEGER NOT NULL,
    window_end INTEGER NOT NULL,
    confidence REAL NOT NULL,
    outcome TEXT NOT NULL DEFAULT 'pending',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_window ON predictions(window_start, window_end);

CREATE TABLE IF NOT EXISTS proactive_triggers (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    fire_at INTEGER NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    acknowledged INTEGER NOT NULL DEFAULT 0,
    acknowledged_at INTEGER,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_triggers_pending ON proactive_triggers(fire_at) WHERE acknowledged = 0;

CREATE TABLE IF NOT EXISTS quarantined_probes (
    id TEXT PRIMARY KEY,
    probe_json TEXT NOT NULL,
    reason TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS onboarding_marker (
    singleton INTEGER PRIMARY KEY CHECK (singleton = 1),
    completed_at INTEGER NOT NULL
);

`

// currentSchemaVersion is the version this binary's schema constant
// produces. Bump alongside any migration added to migrate().
const currentSchemaVersion = 1
