package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stwalsh4118/landflow/internal/models"
)

// LockMode says how a loaded row is held for the rest of the transaction.
type LockMode int

const (
	// LockNone reads without locking.
	LockNone LockMode = iota
	// LockShare blocks writers but not other readers.
	LockShare
	// LockExclusive blocks everyone else.
	LockExclusive
)

// Document is the stored form of an entity.
type Document struct {
	Kind      models.Kind
	ID        string
	ParentID  string
	Status    string
	Version   int
	Body      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	// Load returns the document or a *models.NotFoundError. A row already
	// locked by another transaction fails with *models.ConcurrencyError.
	Load(ctx context.Context, kind models.Kind, id string, lock LockMode) (Document, error)

	// List returns documents of kind, filtered by parent when parentID is
	// not empty, ordered by creation time then insertion order.
	List(ctx context.Context, kind models.Kind, parentID string) ([]Document, error)

	// Insert stores a new document at version 1.
	Insert(ctx context.Context, doc Document) error

	// Update replaces a document whose stored version is doc.Version-1.
	// CreatedAt is left as stored.
	Update(ctx context.Context, doc Document) error

	// NextAwardNumber draws the next award sequence value. The value is
	// consumed even if the transaction rolls back.
	NextAwardNumber(ctx context.Context) (int64, error)

	// AppendAudit records an audit entry.
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}

// Store runs transactions against a persistence backend.
type Store interface {
	// RunInTx executes fn in a transaction. If fn returns an error nothing
	// it wrote is kept.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// ListAudit returns the audit trail of one entity, oldest first.
	ListAudit(ctx context.Context, kind models.Kind, id string) ([]models.AuditEntry, error)

	Ping(ctx context.Context) error
}

// EntityPtr constrains *T to be an entity so generic helpers can allocate T.
type EntityPtr[T any] interface {
	*T
	models.Entity
}

func decode[T any, PT EntityPtr[T]](doc Document) (PT, error) {
	e := PT(new(T))
	if err := json.Unmarshal(doc.Body, e); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", doc.Kind, doc.ID, err)
	}
	e.SetRevision(doc.Version)
	return e, nil
}

func encode(e models.Entity, createdAt, updatedAt time.Time) (Document, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("failed to encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return Document{
		Kind:      e.EntityKind(),
		ID:        e.EntityID(),
		ParentID:  e.ParentID(),
		Status:    e.StatusValue(),
		Version:   e.Revision(),
		Body:      body,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// Get loads and decodes one entity.
func Get[T any, PT EntityPtr[T]](ctx context.Context, tx Tx, kind models.Kind, id string, lock LockMode) (PT, error) {
	doc, err := tx.Load(ctx, kind, id, lock)
	if err != nil {
		return nil, err
	}
	return decode[T, PT](doc)
}

// List loads and decodes all entities of kind under parentID.
func List[T any, PT EntityPtr[T]](ctx context.Context, tx Tx, kind models.Kind, parentID string) ([]PT, error) {
	docs, err := tx.List(ctx, kind, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(docs))
	for _, doc := range docs {
		e, err := decode[T, PT](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Create inserts a new entity at version 1.
func Create(ctx context.Context, tx Tx, e models.Entity, now time.Time) error {
	e.SetRevision(1)
	doc, err := encode(e, now, now)
	if err != nil {
		return err
	}
	if err := tx.Insert(ctx, doc); err != nil {
		e.SetRevision(0)
		return err
	}
	return nil
}

// Save writes a modified entity, bumping its version. The write fails with
// a *models.ConcurrencyError if someone else saved it first.
func Save(ctx context.Context, tx Tx, e models.Entity, now time.Time) error {
	prev := e.Revision()
	e.SetRevision(prev + 1)
	doc, err := encode(e, time.Time{}, now)
	if err != nil {
		e.SetRevision(prev)
		return err
	}
	if err := tx.Update(ctx, doc); err != nil {
		e.SetRevision(prev)
		return err
	}
	return nil
}

// CheckVersion fails when a caller-supplied expected version is stale.
// Zero means the caller did not ask for a check.
func CheckVersion(e models.Entity, expected int) error {
	if expected == 0 || expected == e.Revision() {
		return nil
	}
	return &models.ConcurrencyError{Kind: e.EntityKind(), ID: e.EntityID(), Expected: expected, Actual: e.Revision()}
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
