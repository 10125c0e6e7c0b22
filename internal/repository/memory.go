package repository

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/stwalsh4118/landflow/internal/models"
)

type docKey struct {
	kind models.Kind
	id   string
}

type memDoc struct {
	Document
	seq int64
}

// MemoryStore is an in-process Store. Transactions run one at a time and
// stage their writes, so a failed transaction leaves nothing behind.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	docs     map[docKey]memDoc
	seq      int64
	awardSeq int64
	audit    []models.AuditEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[docKey]memDoc)}
}

// RunInTx executes fn while holding the store-wide transaction lock.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	tx := &memTx{store: s, writes: make(map[docKey]memDoc)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted before commit: %w", err)
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, d := range tx.writes {
		s.docs[k] = d
	}
	s.audit = append(s.audit, tx.audit...)
}

// ListAudit returns the audit trail of one entity.
func (s *MemoryStore) ListAudit(_ context.Context, kind models.Kind, id string) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range s.audit {
		if e.EntityKind == kind && e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

type memTx struct {
	store  *MemoryStore
	writes map[docKey]memDoc
	audit  []models.AuditEntry
}

func (t *memTx) get(k docKey) (memDoc, bool) {
	if d, ok := t.writes[k]; ok {
		return d, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	d, ok := t.store.docs[k]
	return d, ok
}

func (t *memTx) Load(ctx context.Context, kind models.Kind, id string, _ LockMode) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	d, ok := t.get(docKey{kind, id})
	if !ok {
		return Document{}, &models.NotFoundError{Kind: kind, ID: id}
	}
	return d.Document, nil
}

func (t *memTx) List(ctx context.Context, kind models.Kind, parentID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged := make(map[docKey]memDoc)
	t.store.mu.RLock()
	for k, d := range t.store.docs {
		if k.kind == kind {
			merged[k] = d
		}
	}
	t.store.mu.RUnlock()
	for k, d := range t.writes {
		if k.kind == kind {
			merged[k] = d
		}
	}

	matched := make([]memDoc, 0, len(merged))
	for _, d := range merged {
		if parentID == "" || d.ParentID == parentID {
			matched = append(matched, d)
		}
	}
	slices.SortFunc(matched, func(a, b memDoc) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.seq - b.seq)
	})

	out := make([]Document, len(matched))
	for i, d := range matched {
		out[i] = d.Document
	}
	return out, nil
}

func (t *memTx) Insert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := docKey{doc.Kind, doc.ID}
	if existing, ok := t.get(k); ok {
		return &models.ConcurrencyError{Kind: doc.Kind, ID: doc.ID, Expected: 0, Actual: existing.Version}
	}
	t.store.mu.Lock()
	t.store.seq++
	seq := t.store.seq
	t.store.mu.Unlock()
	t.writes[k] = memDoc{Document: doc, seq: seq}
	return nil
}

func (t *memTx) Update(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := docKey{doc.Kind, doc.ID}
	existing, ok := t.get(k)
	if !ok {
		return &models.NotFoundError{Kind: doc.Kind, ID: doc.ID}
	}
	if existing.Version != doc.Version-1 {
		return &models.ConcurrencyError{Kind: doc.Kind, ID: doc.ID, Expected: doc.Version - 1, Actual: existing.Version}
	}
	doc.CreatedAt = existing.CreatedAt
	t.writes[k] = memDoc{Document: doc, seq: existing.seq}
	return nil
}

// NextAwardNumber increments the shared counter immediately, so the value is
// gone even if the transaction fails.
func (t *memTx) NextAwardNumber(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.awardSeq++
	return t.store.awardSeq, nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.audit = append(t.audit, entry)
	return nil
}
