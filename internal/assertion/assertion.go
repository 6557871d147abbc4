// Package assertion layers the bi-temporal supersession rule over the
// append-only assertion store: a new assertion about the same (subject,
// predicate[, object]) supersedes the prior one only when it arrives with
// a later source-instant and a confidence at least as high.
package assertion

import (
	"github.com/google/uuid"

	"github.com/mnemocore/mnemocore/internal/store"
)

// Store layers supersession semantics over store.Storer's append-only
// assertion rows.
type Store struct {
	store store.Storer
}

func New(s store.Storer) *Store {
	return &Store{store: s}
}

// Input is what a caller (the ingestion pipeline, the onboarding import)
// supplies to assert a fact; ID, ExtractionInstant and supersession
// bookkeeping are filled in here.
type Input struct {
	SubjectEntityID string
	Predicate       string
	ObjectEntityID  string
	ObjectLiteral   string
	Confidence      float64
	SourceKind      string
	SourceID        string
	SourceInstant   int64
	EmbeddingID     string
}

// Assert inserts a new assertion and, when an existing current assertion
// shares its conflict key, supersedes it if and only if the new one has a
// later source-instant and at least as much confidence. The
// old row is never deleted or mutated beyond its superseded flag.
func (s *Store) Assert(now int64, in Input) (*store.Assertion, error) {
	a := &store.Assertion{
		ID:                uuid.NewString(),
		SubjectEntityID:   in.SubjectEntityID,
		Predicate:         in.Predicate,
		ObjectEntityID:    in.ObjectEntityID,
		ObjectLiteral:     in.ObjectLiteral,
		Confidence:        in.Confidence,
		SourceKind:        in.SourceKind,
		SourceID:          in.SourceID,
		SourceInstant:     in.SourceInstant,
		ExtractionInstant: now,
		EmbeddingID:       in.EmbeddingID,
	}

	prior, err := s.store.FindCurrentByConflictKey(a.ConflictKey())
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertAssertion(a); err != nil {
		return nil, err
	}

	if prior != nil && a.SourceInstant > prior.SourceInstant && a.Confidence >= prior.Confidence {
		if err := s.store.SupersedeAssertion(prior.ID, a.ID); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Current returns the non-superseded assertions for an entity.
func (s *Store) Current(subjectEntityID string) ([]*store.Assertion, error) {
	return s.store.CurrentAssertions(subjectEntityID)
}

// AsOf reconstructs what was believed true about an entity at a past
// instant, honouring supersession as it stood at that time.
func (s *Store) AsOf(subjectEntityID string, asOf int64) ([]*store.Assertion, error) {
	return s.store.AssertionsAsOf(subjectEntityID, asOf)
}
