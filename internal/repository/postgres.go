package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stwalsh4118/landflow/internal/database"
	"github.com/stwalsh4118/landflow/internal/models"
)

// PostgreSQL error codes that mean another transaction got there first.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// PostgresStore keeps entities as JSONB documents in the entities table.
type PostgresStore struct {
	db *database.Database
}

// NewPostgresStore creates a Store backed by the given pool.
func NewPostgresStore(db *database.Database) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks are taken with
// NOWAIT so a conflicting transaction fails fast instead of queueing.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err, "", ""))
	}
	return nil
}

// ListAudit returns the audit trail of one entity, oldest first.
func (s *PostgresStore) ListAudit(ctx context.Context, kind models.Kind, id string) ([]models.AuditEntry, error) {
	query := `
		SELECT id, entity_kind, entity_id, action, actor_id, actor_role,
			from_status, to_status, detail, at
		FROM audit_log
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY seq
	`

	rows, err := s.db.Pool.Query(ctx, query, string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log for %s %s: %w", kind, id, err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e      models.AuditEntry
			kindS  string
			roleS  string
			detail []byte
		)
		if err := rows.Scan(&e.ID, &kindS, &e.EntityID, &e.Action, &e.Actor.ID, &roleS,
			&e.From, &e.To, &detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		e.EntityKind = models.Kind(kindS)
		e.Actor.Role = models.Role(roleS)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to decode audit detail %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type pgTx struct {
	tx pgx.Tx
}

const selectDocument = `
	SELECT kind, id, parent_id, status, version, body, created_at, updated_at
	FROM entities
`

func scanDocument(row pgx.Row) (Document, error) {
	var (
		d    Document
		kind string
	)
	err := row.Scan(&kind, &d.ID, &d.ParentID, &d.Status, &d.Version, &d.Body, &d.CreatedAt, &d.UpdatedAt)
	d.Kind = models.Kind(kind)
	return d, err
}

func (t *pgTx) Load(ctx context.Context, kind models.Kind, id string, lock LockMode) (Document, error) {
	query := selectDocument + ` WHERE kind = $1 AND id = $2`
	switch lock {
	case LockShare:
		query += ` FOR SHARE NOWAIT`
	case LockExclusive:
		query += ` FOR UPDATE NOWAIT`
	}

	doc, err := scanDocument(t.tx.QueryRow(ctx, query, string(kind), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, &models.NotFoundError{Kind: kind, ID: id}
		}
		return Document{}, fmt.Errorf("failed to load %s %s: %w", kind, id, translate(err, kind, id))
	}
	return doc, nil
}

func (t *pgTx) List(ctx context.Context, kind models.Kind, parentID string) ([]Document, error) {
	query := selectDocument + `
		WHERE kind = $1 AND ($2 = '' OR parent_id = $2)
		ORDER BY created_at, seq
	`

	rows, err := t.tx.Query(ctx, query, string(kind), parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s (parent=%q): %w", kind, parentID, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", kind, err)
	}
	return docs, nil
}

func (t *pgTx) Insert(ctx context.Context, doc Document) error {
	query := `
		INSERT INTO entities (kind, id, parent_id, status, version, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := t.tx.Exec(ctx, query, string(doc.Kind), doc.ID, doc.ParentID, doc.Status,
		doc.Version, string(doc.Body), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", doc.Kind, doc.ID, translate(err, doc.Kind, doc.ID))
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, doc Document) error {
	query := `
		UPDATE entities
		SET parent_id = $3, status = $4, version = $5, body = $6, updated_at = $7
		WHERE kind = $1 AND id = $2 AND version = $8
	`
	tag, err := t.tx.Exec(ctx, query, string(doc.Kind), doc.ID, doc.ParentID, doc.Status,
		doc.Version, string(doc.Body), doc.UpdatedAt, doc.Version-1)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", doc.Kind, doc.ID, translate(err, doc.Kind, doc.ID))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current int
	err = t.tx.QueryRow(ctx, `SELECT version FROM entities WHERE kind = $1 AND id = $2`,
		string(doc.Kind), doc.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.NotFoundError{Kind: doc.Kind, ID: doc.ID}
	}
	if err != nil {
		return fmt.Errorf("failed to read version of %s %s: %w", doc.Kind, doc.ID, err)
	}
	return &models.ConcurrencyError{Kind: doc.Kind, ID: doc.ID, Expected: doc.Version - 1, Actual: current}
}

func (t *pgTx) NextAwardNumber(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('award_number_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to draw award number: %w", err)
	}
	return n, nil
}

func (t *pgTx) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	var detail []byte
	if len(e.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(e.Detail); err != nil {
			return fmt.Errorf("failed to encode audit detail: %w", err)
		}
	}
	query := `
		INSERT INTO audit_log (id, entity_kind, entity_id, action, actor_id, actor_role,
			from_status, to_status, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var detailArg any
	if detail != nil {
		detailArg = string(detail)
	}
	_, err := t.tx.Exec(ctx, query, e.ID, string(e.EntityKind), e.EntityID, e.Action,
		e.Actor.ID, string(e.Actor.Role), e.From, e.To, detailArg, e.At)
	if err != nil {
		return fmt.Errorf("failed to append audit entry for %s %s: %w", e.EntityKind, e.EntityID, err)
	}
	return nil
}

// translate maps lock and serialization failures to *models.ConcurrencyError.
func translate(err error, kind models.Kind, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected, pgUniqueViolation:
			return &models.ConcurrencyError{Kind: kind, ID: id}
		}
	}
	return err
}
