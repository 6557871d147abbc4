// Package store: SQLite-backed implementation of Storer.
// Uses ncruces/go-sqlite3/driver, a pure-Go database/sql driver with no
// cgo dependency, plus the sqlite-vec extension for the optional vector
// index (falling back to an in-memory brute-force index when it cannot be
// loaded).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/mnemocore/mnemocore/internal/mnerr"
)

// execer abstracts over *sql.DB and *sql.Tx so the same query helpers work
// both outside and inside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SQLiteStore is the sole Storer implementation. One writer at a time is
// enforced by mu; concurrent readers are allowed. A store produced by
// WithTx shares db and vector with its parent but routes queries (c)
// through the open transaction instead.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	c      execer
	vector VectorIndex
}

// NewSQLiteStore opens an in-memory database, handy for tests.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN opens (and migrates) the database at dsn.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer substrate

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &SQLiteStore{db: db, c: db}
	s.vector = s.openVectorIndex()
	return s, nil
}

// openVectorIndex attempts the sqlite-vec-backed index, falling back to the
// process-local in-memory index if the extension's virtual table module is
// unavailable on this platform.
func (s *SQLiteStore) openVectorIndex() VectorIndex {
	idx := newSQLiteVecIndex(s.db)
	if err := idx.ensureTable(1); err != nil {
		return NewMemoryVectorIndex()
	}
	// Probe table is harmless at dims=1; real upserts fix the true
	// dimension on first use as long as no probe row exists.
	_, _ = s.db.Exec(`DROP TABLE IF EXISTS vec_items`)
	_, _ = s.db.Exec(`DROP TABLE IF EXISTS vec_rowid_map`)
	idx.ready = false
	idx.dims = 0
	return idx
}

func migrate(db *sql.DB) error {
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
		return err
	}
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", version, currentSchemaVersion)
	}
	// No migrations beyond version 1 yet; future numbered steps append here.
	if version < currentSchemaVersion {
		_, err = db.Exec(`UPDATE schema_version SET version = ?`, currentSchemaVersion)
		return err
	}
	return nil
}

func (s *SQLiteStore) VectorIndex() VectorIndex { return s.vector }

// WithTx runs fn against a tx-scoped Storer; writes inside fn are committed
// atomically, matching the message-atomic ingestion guarantee required by
// the ingestion pipeline (one message, its participants, and its event land
// together or not at all).
func (s *SQLiteStore) WithTx(fn func(tx Storer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	txStore := &SQLiteStore{db: s.db, c: tx, vector: s.vector}
	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// =============================================================================
// Entities
// =============================================================================

func (s *SQLiteStore) CreateEntity(e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEntity(s.c, e)
}

func createEntity(c execer, e *Entity) error {
	if e.MergeHistory == nil {
		e.MergeHistory = []string{}
	}
	hist, err := json.Marshal(e.MergeHistory)
	if err != nil {
		return err
	}
	_, err = c.Exec(`
		INSERT INTO entities (id, canonical_name, kind, retired, merged_into, merge_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CanonicalName, e.Kind, boolToInt(e.Retired), nullableString(e.MergedInto), string(hist), e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetEntity(id string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanEntity(s.c.QueryRow(`
		SELECT id, canonical_name, kind, retired, merged_into, merge_history, created_at, updated_at
		FROM entities WHERE id = ?`, id))
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var retired int
	var mergedInto sql.NullString
	var hist string
	if err := row.Scan(&e.ID, &e.CanonicalName, &e.Kind, &retired, &mergedInto, &hist, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, mnerr.New(mnerr.KindNotFound, "entity not found")
		}
		return nil, err
	}
	e.Retired = retired != 0
	e.MergedInto = mergedInto.String
	_ = json.Unmarshal([]byte(hist), &e.MergeHistory)
	return &e, nil
}

func (s *SQLiteStore) FindEntitiesByName(nameFragment string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, canonical_name, kind, retired, merged_into, merge_history, created_at, updated_at
		FROM entities WHERE retired = 0 AND canonical_name LIKE ? ORDER BY canonical_name`, "%"+nameFragment+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (s *SQLiteStore) ListEntities(kind string) ([]*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows *sql.Rows
	var err error
	if kind == "" {
		rows, err = s.c.Query(`
			SELECT id, canonical_name, kind, retired, merged_into, merge_history, created_at, updated_at
			FROM entities WHERE retired = 0 ORDER BY canonical_name`)
	} else {
		rows, err = s.c.Query(`
			SELECT id, canonical_name, kind, retired, merged_into, merge_history, created_at, updated_at
			FROM entities WHERE retired = 0 AND kind = ? ORDER BY canonical_name`, kind)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]*Entity, error) {
	var out []*Entity
	for rows.Next() {
		var e Entity
		var retired int
		var mergedInto sql.NullString
		var hist string
		if err := rows.Scan(&e.ID, &e.CanonicalName, &e.Kind, &retired, &mergedInto, &hist, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Retired = retired != 0
		e.MergedInto = mergedInto.String
		_ = json.Unmarshal([]byte(hist), &e.MergeHistory)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountEntities() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.c.QueryRow(`SELECT count(*) FROM entities WHERE retired = 0`).Scan(&n)
	return n, err
}

// RetireEntity marks id as merged into mergedInto. Callers are responsible
// for rewriting referencing rows beforehand (see the identity resolver's
// Merge, which sequences this with the Rewrite* calls inside one
// transaction).
func (s *SQLiteStore) RetireEntity(id, mergedInto string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE entities SET retired = 1, merged_into = ? WHERE id = ?`, mergedInto, id)
	if err != nil {
		return err
	}
	var hist string
	if err := s.c.QueryRow(`SELECT merge_history FROM entities WHERE id = ?`, mergedInto).Scan(&hist); err != nil {
		return err
	}
	var list []string
	_ = json.Unmarshal([]byte(hist), &list)
	list = append(list, id)
	encoded, err := json.Marshal(list)
	if err != nil {
		return err
	}
	_, err = s.c.Exec(`UPDATE entities SET merge_history = ? WHERE id = ?`, string(encoded), mergedInto)
	return err
}

// =============================================================================
// Entity attributes
// =============================================================================

func (s *SQLiteStore) UpsertAttribute(a *EntityAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO entity_attributes (id, entity_id, kind, value, confidence, provenance_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, kind, value) DO UPDATE SET confidence = excluded.confidence, provenance_id = excluded.provenance_id`,
		a.ID, a.EntityID, a.Kind, a.Value, a.Confidence, nullableString(a.ProvenanceID), a.CreatedAt)
	return err
}

func (s *SQLiteStore) GetAttribute(entityID, kind, value string) (*EntityAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanAttribute(s.c.QueryRow(`
		SELECT id, entity_id, kind, value, confidence, provenance_id, created_at
		FROM entity_attributes WHERE entity_id = ? AND kind = ? AND value = ?`, entityID, kind, value))
}

func scanAttribute(row *sql.Row) (*EntityAttribute, error) {
	var a EntityAttribute
	var prov sql.NullString
	if err := row.Scan(&a.ID, &a.EntityID, &a.Kind, &a.Value, &a.Confidence, &prov, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, mnerr.New(mnerr.KindNotFound, "attribute not found")
		}
		return nil, err
	}
	a.ProvenanceID = prov.String
	return &a, nil
}

func (s *SQLiteStore) FindEntityByAttribute(kind, value string) (*Entity, error) {
	entityID, err := func() (string, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var id string
		err := s.c.QueryRow(`
			SELECT ea.entity_id FROM entity_attributes ea
			JOIN entities e ON e.id = ea.entity_id
			WHERE ea.kind = ? AND ea.value = ? AND e.retired = 0 LIMIT 1`, kind, value).Scan(&id)
		return id, err
	}()
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetEntity(entityID)
}

func (s *SQLiteStore) ListAttributes(entityID string) ([]*EntityAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, entity_id, kind, value, confidence, provenance_id, created_at
		FROM entity_attributes WHERE entity_id = ?`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EntityAttribute
	for rows.Next() {
		var a EntityAttribute
		var prov sql.NullString
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Kind, &a.Value, &a.Confidence, &prov, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ProvenanceID = prov.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// RewriteAttributeOwner moves every attribute of fromEntityID to
// toEntityID, deduplicating on the (entity_id, kind, value) unique index by
// preferring the destination's existing row.
func (s *SQLiteStore) RewriteAttributeOwner(fromEntityID, toEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		UPDATE OR IGNORE entity_attributes SET entity_id = ? WHERE entity_id = ?`, toEntityID, fromEntityID)
	if err != nil {
		return err
	}
	_, err = s.c.Exec(`DELETE FROM entity_attributes WHERE entity_id = ?`, fromEntityID)
	return err
}

// =============================================================================
// Assertions
// =============================================================================

func (s *SQLiteStore) InsertAssertion(a *Assertion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAssertion(s.c, a)
}

func insertAssertion(c execer, a *Assertion) error {
	_, err := c.Exec(`
		INSERT INTO assertions (id, subject_entity_id, predicate, object_entity_id, object_literal,
			confidence, source_kind, source_id, source_instant, extraction_instant, supersedes_id, superseded, embedding_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SubjectEntityID, a.Predicate, nullableString(a.ObjectEntityID), nullableString(a.ObjectLiteral),
		a.Confidence, a.SourceKind, a.SourceID, a.SourceInstant, a.ExtractionInstant,
		nullableString(a.SupersedesID), boolToInt(a.Superseded), nullableString(a.EmbeddingID))
	return err
}

func (s *SQLiteStore) GetAssertion(id string) (*Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanAssertionRow(s.c.QueryRow(`
		SELECT id, subject_entity_id, predicate, object_entity_id, object_literal, confidence,
			source_kind, source_id, source_instant, extraction_instant, supersedes_id, superseded, embedding_id
		FROM assertions WHERE id = ?`, id))
}

func scanAssertionRow(row *sql.Row) (*Assertion, error) {
	var a Assertion
	var objEntity, objLiteral, supersedes, embedding sql.NullString
	var superseded int
	if err := row.Scan(&a.ID, &a.SubjectEntityID, &a.Predicate, &objEntity, &objLiteral, &a.Confidence,
		&a.SourceKind, &a.SourceID, &a.SourceInstant, &a.ExtractionInstant, &supersedes, &superseded, &embedding); err != nil {
		if err == sql.ErrNoRows {
			return nil, mnerr.New(mnerr.KindNotFound, "assertion not found")
		}
		return nil, err
	}
	a.ObjectEntityID = objEntity.String
	a.ObjectLiteral = objLiteral.String
	a.SupersedesID = supersedes.String
	a.Superseded = superseded != 0
	a.EmbeddingID = embedding.String
	return &a, nil
}

// SupersedeAssertion marks oldID as superseded by newID. The old row
// remains queryable by id (supersession monotonicity).
func (s *SQLiteStore) SupersedeAssertion(oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE assertions SET superseded = 1 WHERE id = ?`, oldID)
	if err != nil {
		return err
	}
	_, err = s.c.Exec(`UPDATE assertions SET supersedes_id = ? WHERE id = ?`, oldID, newID)
	return err
}

func (s *SQLiteStore) CurrentAssertions(subjectEntityID string) ([]*Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, subject_entity_id, predicate, object_entity_id, object_literal, confidence,
			source_kind, source_id, source_instant, extraction_instant, supersedes_id, superseded, embedding_id
		FROM assertions WHERE subject_entity_id = ? AND superseded = 0
		ORDER BY extraction_instant DESC`, subjectEntityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssertions(rows)
}

// AssertionsAsOf returns every assertion visible at asOf: extracted at or
// before asOf, and not yet superseded as of asOf (a row superseded strictly
// after asOf is still visible, per the bi-temporal testable property).
func (s *SQLiteStore) AssertionsAsOf(subjectEntityID string, asOf int64) ([]*Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT a.id, a.subject_entity_id, a.predicate, a.object_entity_id, a.object_literal, a.confidence,
			a.source_kind, a.source_id, a.source_instant, a.extraction_instant, a.supersedes_id, a.superseded, a.embedding_id
		FROM assertions a
		WHERE a.subject_entity_id = ? AND a.extraction_instant <= ?
		AND NOT EXISTS (
			SELECT 1 FROM assertions newer
			WHERE newer.supersedes_id = a.id AND newer.extraction_instant <= ?
		)
		ORDER BY a.extraction_instant DESC`, subjectEntityID, asOf, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssertions(rows)
}

func scanAssertions(rows *sql.Rows) ([]*Assertion, error) {
	var out []*Assertion
	for rows.Next() {
		var a Assertion
		var objEntity, objLiteral, supersedes, embedding sql.NullString
		var superseded int
		if err := rows.Scan(&a.ID, &a.SubjectEntityID, &a.Predicate, &objEntity, &objLiteral, &a.Confidence,
			&a.SourceKind, &a.SourceID, &a.SourceInstant, &a.ExtractionInstant, &supersedes, &superseded, &embedding); err != nil {
			return nil, err
		}
		a.ObjectEntityID = objEntity.String
		a.ObjectLiteral = objLiteral.String
		a.SupersedesID = supersedes.String
		a.Superseded = superseded != 0
		a.EmbeddingID = embedding.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindCurrentByConflictKey(conflictKey string) (*Assertion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, subject_entity_id, predicate, object_entity_id, object_literal, confidence,
			source_kind, source_id, source_instant, extraction_instant, supersedes_id, superseded, embedding_id
		FROM assertions WHERE superseded = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanAssertions(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range all {
		if a.ConflictKey() == conflictKey {
			return a, nil
		}
	}
	return nil, nil
}

func (s *SQLiteStore) RewriteAssertionSubject(fromEntityID, toEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE assertions SET subject_entity_id = ? WHERE subject_entity_id = ?`, toEntityID, fromEntityID)
	return err
}

func (s *SQLiteStore) RewriteAssertionObject(fromEntityID, toEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE assertions SET object_entity_id = ? WHERE object_entity_id = ?`, toEntityID, fromEntityID)
	return err
}

// =============================================================================
// Graph edges
// =============================================================================

// UpsertEdge applies the diminishing-returns strength rule:
// evidence_count += 1; strength <- min(1, strength + 0.1*confidence).
func (s *SQLiteStore) UpsertEdge(fromID, toID, kind string, confidence float64, now int64) (*GraphEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := getEdge(s.c, fromID, toID, kind)
	if err != nil && !mnerr.Is(err, mnerr.KindNotFound) {
		return nil, err
	}
	if existing == nil {
		e := &GraphEdge{
			ID: fmt.Sprintf("edge-%s-%s-%s-%d", fromID, toID, kind, now),
			FromEntityID: fromID, ToEntityID: toID, EdgeKind: kind,
			Strength: min1(0.1 * confidence), EvidenceCount: 1, LastEvidenceAt: now,
		}
		_, err := s.c.Exec(`
			INSERT INTO graph_edges (id, from_entity_id, to_entity_id, edge_kind, strength, evidence_count, last_evidence_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, e.ID, e.FromEntityID, e.ToEntityID, e.EdgeKind, e.Strength, e.EvidenceCount, e.LastEvidenceAt)
		return e, err
	}
	existing.Strength = min1(existing.Strength + 0.1*confidence)
	existing.EvidenceCount++
	existing.LastEvidenceAt = now
	_, err = s.c.Exec(`
		UPDATE graph_edges SET strength = ?, evidence_count = ?, last_evidence_at = ? WHERE id = ?`,
		existing.Strength, existing.EvidenceCount, existing.LastEvidenceAt, existing.ID)
	return existing, err
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func (s *SQLiteStore) GetEdge(fromID, toID, kind string) (*GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEdge(s.c, fromID, toID, kind)
}

func getEdge(c execer, fromID, toID, kind string) (*GraphEdge, error) {
	var e GraphEdge
	err := c.QueryRow(`
		SELECT id, from_entity_id, to_entity_id, edge_kind, strength, evidence_count, last_evidence_at
		FROM graph_edges WHERE from_entity_id = ? AND to_entity_id = ? AND edge_kind = ?`, fromID, toID, kind).Scan(
		&e.ID, &e.FromEntityID, &e.ToEntityID, &e.EdgeKind, &e.Strength, &e.EvidenceCount, &e.LastEvidenceAt)
	if err == sql.ErrNoRows {
		return nil, mnerr.New(mnerr.KindNotFound, "edge not found")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) NeighboursOf(entityID, kind string, minStrength float64) ([]*GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT id, from_entity_id, to_entity_id, edge_kind, strength, evidence_count, last_evidence_at
		FROM graph_edges WHERE from_entity_id = ? AND strength >= ?`
	args := []any{entityID, minStrength}
	if kind != "" {
		q += ` AND edge_kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY strength DESC`
	rows, err := s.c.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*GraphEdge
	for rows.Next() {
		var e GraphEdge
		if err := rows.Scan(&e.ID, &e.FromEntityID, &e.ToEntityID, &e.EdgeKind, &e.Strength, &e.EvidenceCount, &e.LastEvidenceAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RewriteEdgeEndpoint(fromEntityID, toEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.c.Exec(`UPDATE OR IGNORE graph_edges SET from_entity_id = ? WHERE from_entity_id = ?`, toEntityID, fromEntityID); err != nil {
		return err
	}
	if _, err := s.c.Exec(`UPDATE OR IGNORE graph_edges SET to_entity_id = ? WHERE to_entity_id = ?`, toEntityID, fromEntityID); err != nil {
		return err
	}
	if _, err := s.c.Exec(`DELETE FROM graph_edges WHERE from_entity_id = ? OR to_entity_id = ?`, fromEntityID, fromEntityID); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) CountEdges() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.c.QueryRow(`SELECT count(*) FROM graph_edges`).Scan(&n)
	return n, err
}

// =============================================================================
// Messages
// =============================================================================

func (s *SQLiteStore) InsertMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMessage(s.c, m)
}

func insertMessage(c execer, m *Message) error {
	if m.RecipientEntityIDs == nil {
		m.RecipientEntityIDs = []string{}
	}
	recips, err := json.Marshal(m.RecipientEntityIDs)
	if err != nil {
		return err
	}
	_, err = c.Exec(`
		INSERT INTO messages (id, source_kind, source_id, thread_id, sender_entity_id, recipient_entity_ids,
			subject, body_text, body_raw, timestamp, from_user, processed, context_tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SourceKind, m.SourceID, nullableString(m.ThreadID), nullableString(m.SenderEntityID), string(recips),
		nullableString(m.Subject), m.BodyText, nullableString(m.BodyRaw), m.Timestamp, boolToInt(m.FromUser), boolToInt(m.Processed),
		nullableString(m.ContextTag))
	if err != nil {
		return err
	}
	_, err = c.Exec(`INSERT INTO messages_fts (rowid, message_id, subject, body)
		VALUES ((SELECT rowid FROM messages WHERE id = ?), ?, ?, ?)`, m.ID, m.ID, m.Subject, m.BodyText)
	return err
}

func (s *SQLiteStore) MessageExists(sourceKind, sourceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.c.QueryRow(`SELECT count(*) FROM messages WHERE source_kind = ? AND source_id = ?`, sourceKind, sourceID).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) GetMessage(id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanMessageRow(s.c.QueryRow(`
		SELECT id, source_kind, source_id, thread_id, sender_entity_id, recipient_entity_ids,
			subject, body_text, body_raw, timestamp, from_user, processed, context_tag
		FROM messages WHERE id = ?`, id))
}

func scanMessageRow(row *sql.Row) (*Message, error) {
	var m Message
	var thread, sender, subject, bodyRaw, ctx sql.NullString
	var recips string
	var fromUser, processed int
	if err := row.Scan(&m.ID, &m.SourceKind, &m.SourceID, &thread, &sender, &recips,
		&subject, &m.BodyText, &bodyRaw, &m.Timestamp, &fromUser, &processed, &ctx); err != nil {
		if err == sql.ErrNoRows {
			return nil, mnerr.New(mnerr.KindNotFound, "message not found")
		}
		return nil, err
	}
	m.ThreadID, m.SenderEntityID, m.Subject, m.BodyRaw, m.ContextTag = thread.String, sender.String, subject.String, bodyRaw.String, ctx.String
	m.FromUser, m.Processed = fromUser != 0, processed != 0
	_ = json.Unmarshal([]byte(recips), &m.RecipientEntityIDs)
	return &m, nil
}

func (s *SQLiteStore) ListUnprocessedMessages(limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, source_kind, source_id, thread_id, sender_entity_id, recipient_entity_ids,
			subject, body_text, body_raw, timestamp, from_user, processed, context_tag
		FROM messages WHERE processed = 0 ORDER BY timestamp LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m, err := scanMessageFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessageFromRows(rows *sql.Rows) (*Message, error) {
	var m Message
	var thread, sender, subject, bodyRaw, ctx sql.NullString
	var recips string
	var fromUser, processed int
	if err := rows.Scan(&m.ID, &m.SourceKind, &m.SourceID, &thread, &sender, &recips,
		&subject, &m.BodyText, &bodyRaw, &m.Timestamp, &fromUser, &processed, &ctx); err != nil {
		return nil, err
	}
	m.ThreadID, m.SenderEntityID, m.Subject, m.BodyRaw, m.ContextTag = thread.String, sender.String, subject.String, bodyRaw.String, ctx.String
	m.FromUser, m.Processed = fromUser != 0, processed != 0
	_ = json.Unmarshal([]byte(recips), &m.RecipientEntityIDs)
	return &m, nil
}

// ListMessagesFromUser returns every message sent by the user (from_user
// = 1), most recent first, bounded by limit. Unlike
// ListUnprocessedMessages this ignores the extraction-processed flag,
// since style extraction needs the whole sent corpus, not just the
// background worker's pending queue.
func (s *SQLiteStore) ListMessagesFromUser(limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, source_kind, source_id, thread_id, sender_entity_id, recipient_entity_ids,
			subject, body_text, body_raw, timestamp, from_user, processed, context_tag
		FROM messages WHERE from_user = 1 ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		m, err := scanMessageFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkMessageProcessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE messages SET processed = 1 WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) RewriteMessageParticipant(fromEntityID, toEntityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.c.Exec(`UPDATE messages SET sender_entity_id = ? WHERE sender_entity_id = ?`, toEntityID, fromEntityID); err != nil {
		return err
	}
	rows, err := s.c.Query(`SELECT id, recipient_entity_ids FROM messages WHERE recipient_entity_ids LIKE ?`, "%"+fromEntityID+"%")
	if err != nil {
		return err
	}
	type upd struct {
		id   string
		recs []string
	}
	var updates []upd
	for rows.Next() {
		var id, recips string
		if err := rows.Scan(&id, &recips); err != nil {
			rows.Close()
			return err
		}
		var list []string
		_ = json.Unmarshal([]byte(recips), &list)
		changed := false
		for i, r := range list {
			if r == fromEntityID {
				list[i] = toEntityID
				changed = true
			}
		}
		if changed {
			updates = append(updates, upd{id, list})
		}
	}
	rows.Close()
	for _, u := range updates {
		encoded, err := json.Marshal(u.recs)
		if err != nil {
			return err
		}
		if _, err := s.c.Exec(`UPDATE messages SET recipient_entity_ids = ? WHERE id = ?`, string(encoded), u.id); err != nil {
			return err
		}
	}
	return nil
}

// SearchFTS runs the lexical scorer: BM25 ranking over subject+body.
func (s *SQLiteStore) SearchFTS(query string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT m.id FROM messages_fts JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ? ORDER BY bm25(messages_fts) LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MessagesByParticipant returns message ids, most recent first, where
// entityID is the sender or among the recipients. Recipients are matched
// with a LIKE over the JSON-encoded array, which is adequate at the scale
// this store targets (a single-writer, single-user substrate) and avoids
// a separate participants join table.
func (s *SQLiteStore) MessagesByParticipant(entityID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id FROM messages
		WHERE sender_entity_id = ? OR recipient_entity_ids LIKE ?
		ORDER BY timestamp DESC LIMIT ?`, entityID, "%\""+entityID+"\"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) CountMessages() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.c.QueryRow(`SELECT count(*) FROM messages`).Scan(&n)
	return n, err
}

// =============================================================================
// Events
// =============================================================================

func (s *SQLiteStore) InsertEvent(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertEvent(s.c, e)
}

func insertEvent(c execer, e *Event) error {
	if e.Payload == "" {
		e.Payload = "{}"
	}
	_, err := c.Exec(`
		INSERT INTO events (id, kind, instant, payload, context_tag, processed)
		VALUES (?, ?, ?, ?, ?, ?)`, e.ID, e.Kind, e.Instant, e.Payload, nullableString(e.ContextTag), boolToInt(e.Processed))
	return err
}

func (s *SQLiteStore) ListUnprocessedEvents(limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, kind, instant, payload, context_tag, processed FROM events
		WHERE processed = 0 ORDER BY instant LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLiteStore) ListEventsSince(since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, kind, instant, payload, context_tag, processed FROM events
		WHERE instant >= ? ORDER BY instant`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		var e Event
		var ctx sql.NullString
		var processed int
		if err := rows.Scan(&e.ID, &e.Kind, &e.Instant, &e.Payload, &ctx, &processed); err != nil {
			return nil, err
		}
		e.ContextTag = ctx.String
		e.Processed = processed != 0
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkEventProcessed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE events SET processed = 1 WHERE id = ?`, id)
	return err
}

// =============================================================================
// Style
// =============================================================================

func (s *SQLiteStore) GetUserStyle() (*UserStyleProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p UserStyleProfile
	var greetings, signOffs, signatures string
	err := s.c.QueryRow(`
		SELECT formality, verbosity, emoji_density, avg_message_length, greetings, sign_offs, signatures, interaction_count, updated_at
		FROM user_style_profile WHERE singleton = 1`).Scan(
		&p.Formality, &p.Verbosity, &p.EmojiDensity, &p.AvgMessageLength, &greetings, &signOffs, &signatures, &p.InteractionCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return &UserStyleProfile{Formality: 0.5, Verbosity: 0.5}, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(greetings), &p.Greetings)
	_ = json.Unmarshal([]byte(signOffs), &p.SignOffs)
	_ = json.Unmarshal([]byte(signatures), &p.Signatures)
	return &p, nil
}

func (s *SQLiteStore) SaveUserStyle(p *UserStyleProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	greetings, _ := json.Marshal(orEmpty(p.Greetings))
	signOffs, _ := json.Marshal(orEmpty(p.SignOffs))
	signatures, _ := json.Marshal(orEmpty(p.Signatures))
	_, err := s.c.Exec(`
		INSERT INTO user_style_profile (singleton, formality, verbosity, emoji_density, avg_message_length, greetings, sign_offs, signatures, interaction_count, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			formality = excluded.formality, verbosity = excluded.verbosity, emoji_density = excluded.emoji_density,
			avg_message_length = excluded.avg_message_length, greetings = excluded.greetings, sign_offs = excluded.sign_offs,
			signatures = excluded.signatures, interaction_count = excluded.interaction_count, updated_at = excluded.updated_at`,
		p.Formality, p.Verbosity, p.EmojiDensity, p.AvgMessageLength, string(greetings), string(signOffs), string(signatures), p.InteractionCount, p.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetRecipientStyle(entityID string) (*RecipientStyleProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var p RecipientStyleProfile
	var greetings, signOffs, signatures, examples string
	var relKind sql.NullString
	err := s.c.QueryRow(`
		SELECT entity_id, formality, verbosity, emoji_density, avg_message_length, greetings, sign_offs, signatures,
			relationship_kind, warmth, emoji_usage, avg_response_time_hours, example_messages, message_count, updated_at
		FROM recipient_style_profiles WHERE entity_id = ?`, entityID).Scan(
		&p.EntityID, &p.Formality, &p.Verbosity, &p.EmojiDensity, &p.AvgMessageLength, &greetings, &signOffs, &signatures,
		&relKind, &p.Warmth, &p.EmojiUsage, &p.AvgResponseTimeHours, &examples, &p.MessageCount, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, mnerr.New(mnerr.KindNotFound, "recipient style not found")
	}
	if err != nil {
		return nil, err
	}
	p.RelationshipKind = relKind.String
	_ = json.Unmarshal([]byte(greetings), &p.Greetings)
	_ = json.Unmarshal([]byte(signOffs), &p.SignOffs)
	_ = json.Unmarshal([]byte(signatures), &p.Signatures)
	_ = json.Unmarshal([]byte(examples), &p.ExampleMessages)
	return &p, nil
}

func (s *SQLiteStore) SaveRecipientStyle(p *RecipientStyleProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	greetings, _ := json.Marshal(orEmpty(p.Greetings))
	signOffs, _ := json.Marshal(orEmpty(p.SignOffs))
	signatures, _ := json.Marshal(orEmpty(p.Signatures))
	examples, _ := json.Marshal(orEmpty(p.ExampleMessages))
	_, err := s.c.Exec(`
		INSERT INTO recipient_style_profiles (entity_id, formality, verbosity, emoji_density, avg_message_length,
			greetings, sign_offs, signatures, relationship_kind, warmth, emoji_usage, avg_response_time_hours,
			example_messages, message_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			formality = excluded.formality, verbosity = excluded.verbosity, emoji_density = excluded.emoji_density,
			avg_message_length = excluded.avg_message_length, greetings = excluded.greetings, sign_offs = excluded.sign_offs,
			signatures = excluded.signatures, relationship_kind = excluded.relationship_kind, warmth = excluded.warmth,
			emoji_usage = excluded.emoji_usage, avg_response_time_hours = excluded.avg_response_time_hours,
			example_messages = excluded.example_messages, message_count = excluded.message_count, updated_at = excluded.updated_at`,
		p.EntityID, p.Formality, p.Verbosity, p.EmojiDensity, p.AvgMessageLength, string(greetings), string(signOffs),
		string(signatures), nullableString(p.RelationshipKind), p.Warmth, p.EmojiUsage, p.AvgResponseTimeHours,
		string(examples), p.MessageCount, p.UpdatedAt)
	return err
}

func (s *SQLiteStore) ListRecipientStyles() ([]*RecipientStyleProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT entity_id, formality, verbosity, emoji_density, avg_message_length, greetings, sign_offs, signatures,
			relationship_kind, warmth, emoji_usage, avg_response_time_hours, example_messages, message_count, updated_at
		FROM recipient_style_profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RecipientStyleProfile
	for rows.Next() {
		var p RecipientStyleProfile
		var greetings, signOffs, signatures, examples string
		var relKind sql.NullString
		if err := rows.Scan(&p.EntityID, &p.Formality, &p.Verbosity, &p.EmojiDensity, &p.AvgMessageLength, &greetings, &signOffs,
			&signatures, &relKind, &p.Warmth, &p.EmojiUsage, &p.AvgResponseTimeHours, &examples, &p.MessageCount, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.RelationshipKind = relKind.String
		_ = json.Unmarshal([]byte(greetings), &p.Greetings)
		_ = json.Unmarshal([]byte(signOffs), &p.SignOffs)
		_ = json.Unmarshal([]byte(signatures), &p.Signatures)
		_ = json.Unmarshal([]byte(examples), &p.ExampleMessages)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// =============================================================================
// Engagement / evolution
// =============================================================================

func (s *SQLiteStore) InsertEngagementEvent(e *EngagementEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO engagement_events (id, draft_id, kind, ai_draft_length, user_final_length, edit_ratio,
			response_sentiment, thread_length, thread_continued, recipient_entity_id, context_tag, adaptation_applied, delta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DraftID, e.Kind, e.AIDraftLength, e.UserFinalLength, e.EditRatio, e.ResponseSentiment,
		e.ThreadLength, nullableBoolPtr(e.ThreadContinued), nullableStringPtr(e.RecipientEntityID),
		nullableStringPtr(e.ContextTag), boolToInt(e.AdaptationApplied), e.Delta, e.CreatedAt)
	return err
}

func (s *SQLiteStore) ListRecentEngagementEvents(limit int) ([]*EngagementEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, draft_id, kind, ai_draft_length, user_final_length, edit_ratio, response_sentiment, thread_length,
			thread_continued, recipient_entity_id, context_tag, adaptation_applied, delta, created_at
		FROM engagement_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*EngagementEvent
	for rows.Next() {
		e, err := scanEngagementEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEngagementEvent(rows *sql.Rows) (*EngagementEvent, error) {
	var e EngagementEvent
	var threadContinued sql.NullBool
	var recipient, ctx sql.NullString
	var adaptationApplied int
	if err := rows.Scan(&e.ID, &e.DraftID, &e.Kind, &e.AIDraftLength, &e.UserFinalLength, &e.EditRatio, &e.ResponseSentiment,
		&e.ThreadLength, &threadContinued, &recipient, &ctx, &adaptationApplied, &e.Delta, &e.CreatedAt); err != nil {
		return nil, err
	}
	if threadContinued.Valid {
		v := threadContinued.Bool
		e.ThreadContinued = &v
	}
	if recipient.Valid {
		v := recipient.String
		e.RecipientEntityID = &v
	}
	if ctx.Valid {
		v := ctx.String
		e.ContextTag = &v
	}
	e.AdaptationApplied = adaptationApplied != 0
	return &e, nil
}

func (s *SQLiteStore) InsertEvolutionEntry(e *PersonalityEvolutionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO personality_evolution (id, dimension, old_value, new_value, trigger_event_id, learning_rate, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, e.ID, e.Dimension, e.OldValue, e.NewValue, e.TriggerEventID, e.LearningRate, e.CreatedAt)
	return err
}

func (s *SQLiteStore) ListEvolutionEntries(dimension string, limit int) ([]*PersonalityEvolutionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, dimension, old_value, new_value, trigger_event_id, learning_rate, created_at
		FROM personality_evolution WHERE dimension = ? ORDER BY created_at DESC LIMIT ?`, dimension, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*PersonalityEvolutionEntry
	for rows.Next() {
		var e PersonalityEvolutionEntry
		if err := rows.Scan(&e.ID, &e.Dimension, &e.OldValue, &e.NewValue, &e.TriggerEventID, &e.LearningRate, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// =============================================================================
// Behavioural layer
// =============================================================================

func (s *SQLiteStore) UpsertPattern(p *BehaviouralPattern, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO behavioural_patterns (id, kind, descriptor, confidence, occurrences, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, descriptor) DO UPDATE SET
			confidence = excluded.confidence, occurrences = behavioural_patterns.occurrences + 1, updated_at = excluded.updated_at`,
		p.ID, p.Kind, p.Descriptor, p.Confidence, p.Occurrences, p.CreatedAt, now)
	return err
}

func (s *SQLiteStore) ListPatterns(kind string, minConfidence float64) ([]*BehaviouralPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT id, kind, descriptor, confidence, occurrences, created_at, updated_at FROM behavioural_patterns WHERE confidence >= ?`
	args := []any{minConfidence}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	rows, err := s.c.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*BehaviouralPattern
	for rows.Next() {
		var p BehaviouralPattern
		if err := rows.Scan(&p.ID, &p.Kind, &p.Descriptor, &p.Confidence, &p.Occurrences, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) BumpRhythmCell(hour, weekday int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO daily_rhythm (hour, weekday, event_count) VALUES (?, ?, 1)
		ON CONFLICT(hour, weekday) DO UPDATE SET event_count = daily_rhythm.event_count + 1`, hour, weekday)
	return err
}

func (s *SQLiteStore) GetRhythm() ([]*DailyRhythmCell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`SELECT hour, weekday, event_count, focus_score, energy_level FROM daily_rhythm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DailyRhythmCell
	for rows.Next() {
		var c DailyRhythmCell
		if err := rows.Scan(&c.Hour, &c.Weekday, &c.EventCount, &c.FocusScore, &c.EnergyLevel); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertPrediction(p *Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Outcome == "" {
		p.Outcome = "pending"
	}
	_, err := s.c.Exec(`
		INSERT INTO predictions (id, kind, window_start, window_end, confidence, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, p.ID, p.Kind, p.WindowStart, p.WindowEnd, p.Confidence, p.Outcome, p.CreatedAt)
	return err
}

func (s *SQLiteStore) ListPendingPredictions(windowStart int64) ([]*Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, kind, window_start, window_end, confidence, outcome, created_at
		FROM predictions WHERE outcome = 'pending' AND window_start <= ?`, windowStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.Kind, &p.WindowStart, &p.WindowEnd, &p.Confidence, &p.Outcome, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResolvePrediction(id, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE predictions SET outcome = ? WHERE id = ?`, outcome, id)
	return err
}

func (s *SQLiteStore) PredictionAccuracy(kind string, window int) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT outcome FROM predictions WHERE kind = ? AND outcome != 'pending' ORDER BY created_at DESC LIMIT ?`, kind, window)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var total, correct int
	for rows.Next() {
		var outcome string
		if err := rows.Scan(&outcome); err != nil {
			return 0, err
		}
		total++
		if outcome == "correct" {
			correct++
		}
	}
	if total == 0 {
		return 0, rows.Err()
	}
	return float64(correct) / float64(total), rows.Err()
}

// =============================================================================
// Proactive triggers
// =============================================================================

func (s *SQLiteStore) InsertTrigger(t *ProactiveTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Payload == "" {
		t.Payload = "{}"
	}
	_, err := s.c.Exec(`
		INSERT INTO proactive_triggers (id, kind, fire_at, payload, acknowledged, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`, t.ID, t.Kind, t.FireAt, t.Payload, t.CreatedAt)
	return err
}

func (s *SQLiteStore) ListPendingTriggers(before int64) ([]*ProactiveTrigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`
		SELECT id, kind, fire_at, payload, acknowledged, acknowledged_at, created_at
		FROM proactive_triggers WHERE acknowledged = 0 AND fire_at <= ? ORDER BY fire_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ProactiveTrigger
	for rows.Next() {
		var t ProactiveTrigger
		var ackAt sql.NullInt64
		var acked int
		if err := rows.Scan(&t.ID, &t.Kind, &t.FireAt, &t.Payload, &acked, &ackAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Acknowledged = acked != 0
		t.AcknowledgedAt = ackAt.Int64
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AcknowledgeTrigger(id string, now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`UPDATE proactive_triggers SET acknowledged = 1, acknowledged_at = ? WHERE id = ?`, now, id)
	return err
}

func (s *SQLiteStore) TriggerAcceptanceRate(kind string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, acked int
	if err := s.c.QueryRow(`SELECT count(*) FROM proactive_triggers WHERE kind = ?`, kind).Scan(&total); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	if err := s.c.QueryRow(`SELECT count(*) FROM proactive_triggers WHERE kind = ? AND acknowledged = 1`, kind).Scan(&acked); err != nil {
		return 0, err
	}
	return float64(acked) / float64(total), nil
}

// =============================================================================
// Quarantine
// =============================================================================

func (s *SQLiteStore) QuarantineProbe(p *QuarantinedProbe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO quarantined_probes (id, probe_json, reason, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.ProbeJSON, p.Reason, p.CreatedAt)
	return err
}

func (s *SQLiteStore) ListQuarantinedProbes() ([]*QuarantinedProbe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.c.Query(`SELECT id, probe_json, reason, created_at FROM quarantined_probes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*QuarantinedProbe
	for rows.Next() {
		var p QuarantinedProbe
		if err := rows.Scan(&p.ID, &p.ProbeJSON, &p.Reason, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// =============================================================================
// Onboarding
// =============================================================================

func (s *SQLiteStore) OnboardingCompleted() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.c.QueryRow(`SELECT count(*) FROM onboarding_marker WHERE singleton = 1`).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) MarkOnboardingComplete(now int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`
		INSERT INTO onboarding_marker (singleton, completed_at) VALUES (1, ?)
		ON CONFLICT(singleton) DO UPDATE SET completed_at = excluded.completed_at`, now)
	return err
}

func (s *SQLiteStore) ResetOnboarding() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.Exec(`DELETE FROM onboarding_marker`)
	return err
}

// =============================================================================
// Export / Import — JSON snapshot round-trip of live entities and their
// attributes. Messages, assertions, edges, events and every other table
// are not included; the snapshot's Messages field is never filled.
// =============================================================================

type snapshot struct {
	Entities     []*Entity                `json:"entities"`
	Attributes   map[string][]*EntityAttribute `json:"attributes"`
	Messages     []*Message               `json:"messages"`
}

func (s *SQLiteStore) Export() ([]byte, error) {
	entities, err := s.ListEntities("")
	if err != nil {
		return nil, err
	}
	attrs := make(map[string][]*EntityAttribute, len(entities))
	for _, e := range entities {
		list, err := s.ListAttributes(e.ID)
		if err != nil {
			return nil, err
		}
		attrs[e.ID] = list
	}
	snap := snapshot{Entities: entities, Attributes: attrs}
	return json.Marshal(snap)
}

func (s *SQLiteStore) Import(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	for _, e := range snap.Entities {
		if err := s.CreateEntity(e); err != nil {
			return err
		}
	}
	for _, attrs := range snap.Attributes {
		for _, a := range attrs {
			if err := s.UpsertAttribute(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// helpers
// =============================================================================

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableBoolPtr(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Storer = (*SQLiteStore)(nil)
