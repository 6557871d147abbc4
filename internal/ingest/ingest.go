// Package ingest implements the per-message ingestion pipeline: parse,
// resolve participants, insert the message, record the communication
// edge, emit an event. Each message runs under its own write
// transaction, so a message is either fully persisted (message,
// resolved participants, and event) or not persisted at all. Fact and
// relationship extraction is deliberately not performed here; the
// background worker does that asynchronously.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mnemocore/mnemocore/internal/graph"
	"github.com/mnemocore/mnemocore/internal/identity"
	"github.com/mnemocore/mnemocore/internal/mnerr"
	"github.com/mnemocore/mnemocore/internal/store"
)

// personalDomains is a small bundled list of consumer email providers used
// to bias the work/personal context heuristic; best-effort and never
// required for correctness.
var personalDomains = map[string]bool{
	"gmail.com": true, "yahoo.com": true, "hotmail.com": true,
	"outlook.com": true, "icloud.com": true, "aol.com": true,
	"proton.me": true, "protonmail.com": true,
}

// Participant is one side of a message (sender or recipient), prior to
// identity resolution.
type Participant struct {
	Name  string
	Email string
	Phone string
	Alias string
}

// RawMessage is a message in its normalised shape, ready to resolve and
// store.
type RawMessage struct {
	SourceKind string // mail, short-message, slack, screen-capture
	SourceID   string
	ThreadID   string
	Sender     Participant
	Recipients []Participant
	Subject    string
	BodyText   string
	BodyRaw    string
	Timestamp  int64
	FromUser   bool
}

// Result is the return shape named for this layer.
type Result struct {
	Ingested        int
	Skipped         int
	EntitiesCreated int
	EntitiesMerged  int
	Errors          []string
}

// Pipeline runs ingestion over a resolver and the store it shares. Each
// message is ingested under its own write transaction, so the graph
// helper is constructed fresh, tx-scoped, per message rather than held
// as a field.
type Pipeline struct {
	store    store.Storer
	resolver *identity.Resolver
}

func New(s store.Storer, resolver *identity.Resolver) *Pipeline {
	return &Pipeline{store: s, resolver: resolver}
}

// Ingest processes each message independently: one message's failure is
// recorded in Errors and does not stop the rest.
func (p *Pipeline) Ingest(ctx context.Context, now int64, messages []RawMessage) Result {
	var res Result
	for _, m := range messages {
		if err := p.ingestOne(ctx, now, m, &res); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}
	return res
}

// ingestOne resolves participants, inserts the message, records the
// communication edge, and emits the event under a single write
// transaction: either all four land, or none do.
func (p *Pipeline) ingestOne(ctx context.Context, now int64, m RawMessage, res *Result) error {
	exists, err := p.store.MessageExists(m.SourceKind, m.SourceID)
	if err != nil {
		return err
	}
	if exists {
		res.Skipped++
		return nil
	}

	return p.store.WithTx(func(tx store.Storer) error {
		resolver := p.resolver.WithStore(tx)
		txGraph := graph.New(tx)

		senderID, err := p.resolveParticipant(ctx, resolver, tx, now, m.Sender, nil, res)
		if err != nil {
			return fmt.Errorf("resolve sender: %w", err)
		}

		contextIDs := []string{senderID}
		recipientIDs := make([]string, 0, len(m.Recipients))
		for _, rp := range m.Recipients {
			rid, err := p.resolveParticipant(ctx, resolver, tx, now, rp, contextIDs, res)
			if err != nil {
				return fmt.Errorf("resolve recipient %q: %w", rp.Name, err)
			}
			recipientIDs = append(recipientIDs, rid)
			contextIDs = append(contextIDs, rid)
		}

		msg := &store.Message{
			ID:                 uuid.NewString(),
			SourceKind:         m.SourceKind,
			SourceID:           m.SourceID,
			ThreadID:           m.ThreadID,
			SenderEntityID:     senderID,
			RecipientEntityIDs: recipientIDs,
			Subject:            m.Subject,
			BodyText:           m.BodyText,
			BodyRaw:            m.BodyRaw,
			Timestamp:          m.Timestamp,
			FromUser:           m.FromUser,
			ContextTag:         inferContext(m.Sender.Email, len(m.Recipients)),
		}
		if err := tx.InsertMessage(msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if err := txGraph.RecordCommunication(senderID, recipientIDs, now); err != nil {
			return fmt.Errorf("record communication: %w", err)
		}

		kind := "message_received"
		if m.FromUser {
			kind = "message_sent"
		}
		event := &store.Event{
			ID:         uuid.NewString(),
			Kind:       kind,
			Instant:    now,
			Payload:    fmt.Sprintf(`{"messageId":%q}`, msg.ID),
			ContextTag: msg.ContextTag,
		}
		if err := tx.InsertEvent(event); err != nil {
			return fmt.Errorf("emit event: %w", err)
		}

		res.Ingested++
		return nil
	})
}

// resolveParticipant resolves one participant and folds in any contact
// identifier the probe carries that the resolved entity didn't already
// have. Learning a second identifier for an already-known entity (e.g. a
// personal email alongside a work one) is counted as a merge: two
// previously distinct identity signals now point at one entity.
func (p *Pipeline) resolveParticipant(ctx context.Context, resolver *identity.Resolver, tx store.Storer, now int64, part Participant, context []string, res *Result) (string, error) {
	probe := identity.Probe{
		CanonicalName: part.Name,
		Email:         part.Email,
		Phone:         part.Phone,
		Alias:         part.Alias,
		Context:       context,
	}
	resolution, err := resolver.Resolve(ctx, now, probe)
	if err != nil {
		return "", err
	}
	if resolution.Created {
		res.EntitiesCreated++
		return resolution.EntityID, nil
	}
	if learned, err := p.learnAttributes(tx, resolution.EntityID, part, now); err != nil {
		return "", err
	} else if learned {
		res.EntitiesMerged++
	}
	return resolution.EntityID, nil
}

func (p *Pipeline) learnAttributes(tx store.Storer, entityID string, part Participant, now int64) (bool, error) {
	learned := false
	for _, attr := range []struct{ kind, value string }{
		{"email", strings.ToLower(strings.TrimSpace(part.Email))},
		{"phone", strings.ToLower(strings.TrimSpace(part.Phone))},
	} {
		if attr.value == "" {
			continue
		}
		existing, err := tx.GetAttribute(entityID, attr.kind, attr.value)
		if err != nil && !mnerr.Is(err, mnerr.KindNotFound) {
			return false, err
		}
		if existing != nil {
			continue
		}
		if err := tx.UpsertAttribute(&store.EntityAttribute{
			ID: uuid.NewString(), EntityID: entityID, Kind: attr.kind, Value: attr.value,
			Confidence: 1.0, CreatedAt: now,
		}); err != nil {
			return false, err
		}
		learned = true
	}
	return learned, nil
}

// inferContext guesses work vs personal from the sender's email domain and
// how many recipients the message has. Best-effort; never
// required for correctness.
func inferContext(senderEmail string, recipientCount int) string {
	domain := emailDomain(senderEmail)
	if domain == "" {
		return ""
	}
	if personalDomains[domain] {
		return "personal"
	}
	if recipientCount >= 1 {
		return "work"
	}
	return "personal"
}

func emailDomain(email string) string {
	idx := strings.LastIndexByte(email, '@')
	if idx < 0 || idx == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}
