package services

import (
	"context"
	"errors"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/metrics"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

// DefaultObjectionWindow applies when Settings leaves the window unset.
const DefaultObjectionWindow = 60 * 24 * time.Hour

// Settings are the workflow knobs taken from configuration.
type Settings struct {
	ObjectionWindow time.Duration
	RequestSLA      map[models.RequestType]time.Duration
}

// Deps are the collaborators a Workflow needs. Store, Policy and Log are
// required; the rest have working defaults.
type Deps struct {
	Store     repository.Store
	Policy    *authz.Policy
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Log       *logger.Logger
	Now       func() time.Time
	NewID     func() string
	// Entropy feeds draw nonces. Nil means crypto/rand.
	Entropy io.Reader
}

// Workflow is the single entry point for state-changing operations. Every
// call checks the actor's permission, runs in one transaction, and publishes
// its events only after commit.
type Workflow struct {
	store     repository.Store
	policy    *authz.Policy
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
	settings  Settings

	parcels    *ParcelService
	cases      *CaseService
	notices    *NoticeService
	valuations *ValuationService
	allocation *AllocationService
	requests   *RequestService
}

// NewWorkflow wires a Workflow.
func NewWorkflow(deps Deps, settings Settings) *Workflow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Publisher == nil {
		deps.Publisher = discard{}
	}
	if settings.ObjectionWindow <= 0 {
		settings.ObjectionWindow = DefaultObjectionWindow
	}
	log := deps.Log.With(map[string]interface{}{"component": "workflow"})
	return &Workflow{
		store:      deps.Store,
		policy:     deps.Policy,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		log:        log,
		now:        func() time.Time { return deps.Now().UTC() },
		newID:      deps.NewID,
		settings:   settings,
		parcels:    &ParcelService{log: log},
		cases:      &CaseService{log: log},
		notices:    &NoticeService{log: log, window: settings.ObjectionWindow},
		valuations: &ValuationService{log: log},
		allocation: &AllocationService{log: log, entropy: deps.Entropy},
		requests:   &RequestService{log: log, sla: settings.RequestSLA},
	}
}

// Now returns the workflow clock.
func (w *Workflow) Now() time.Time { return w.now() }

// Ping checks the backing store.
func (w *Workflow) Ping(ctx context.Context) error { return w.store.Ping(ctx) }

type discard struct{}

func (discard) Publish(...events.Event) {}

// unit carries the state of one workflow transaction. Component services
// write through it so audit entries and events are collected in one place.
type unit struct {
	ctx    context.Context
	tx     repository.Tx
	actor  models.Actor
	now    time.Time
	newID  func() string
	events []events.Event
}

func (u *unit) create(e models.Entity, action string, detail map[string]string) error {
	if err := repository.Create(u.ctx, u.tx, e, u.now); err != nil {
		return err
	}
	return u.audit(e, action, "", e.StatusValue(), detail)
}

// save persists e and audits the move from status from.
func (u *unit) save(e models.Entity, action, from string, detail map[string]string) error {
	if err := repository.Save(u.ctx, u.tx, e, u.now); err != nil {
		return err
	}
	return u.audit(e, action, from, e.StatusValue(), detail)
}

func (u *unit) audit(e models.Entity, action, from, to string, detail map[string]string) error {
	return u.tx.AppendAudit(u.ctx, models.AuditEntry{
		ID:         u.newID(),
		EntityKind: e.EntityKind(),
		EntityID:   e.EntityID(),
		Action:     action,
		Actor:      u.actor,
		From:       from,
		To:         to,
		Detail:     detail,
		At:         u.now,
	})
}

func (u *unit) emit(typ events.Type, e models.Entity, data map[string]string) {
	u.events = append(u.events, events.New(typ, e, u.actor, u.now, data))
}

// mutate runs fn as action on behalf of actor.
func (w *Workflow) mutate(ctx context.Context, actor models.Actor, entity models.Kind, action string, fn func(u *unit) error) error {
	start := time.Now()
	fields := map[string]interface{}{
		"action":     action,
		"actor_id":   actor.ID,
		"actor_role": actor.Role,
	}

	if err := w.policy.Check(actor, action); err != nil {
		w.log.Warn("Workflow action forbidden", fields)
		w.metrics.ObserveTransition(string(entity), action, metrics.OutcomeRejected, time.Since(start))
		return err
	}

	u := &unit{ctx: ctx, actor: actor, now: w.now(), newID: w.newID}
	err := w.store.RunInTx(ctx, func(tx repository.Tx) error {
		u.tx = tx
		u.events = u.events[:0]
		return fn(u)
	})
	outcome := classify(err)
	w.metrics.ObserveTransition(string(entity), action, outcome, time.Since(start))
	if err != nil {
		fields["outcome"] = outcome
		if outcome == metrics.OutcomeError {
			w.log.Error("Workflow action failed", err, fields)
		} else {
			fields["reason"] = err.Error()
			w.log.Info("Workflow action refused", fields)
		}
		return err
	}

	w.publisher.Publish(u.events...)
	fields["events"] = len(u.events)
	w.log.Info("Workflow action committed", fields)
	return nil
}

// read runs fn in a transaction without permission checks.
func (w *Workflow) read(ctx context.Context, fn func(tx repository.Tx) error) error {
	return w.store.RunInTx(ctx, fn)
}

func classify(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, models.ErrConcurrentModification):
		return metrics.OutcomeConflict
	case isDomainError(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

var domainErrors = []error{
	models.ErrIllegalTransition,
	models.ErrValidation,
	models.ErrInsufficientPool,
	models.ErrParcelNotAffected,
	models.ErrAlreadyDrawn,
	models.ErrForbidden,
	models.ErrNotFound,
	models.ErrParcelPossessed,
	models.ErrValuationMissing,
	models.ErrInventoryAllotted,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// loadForUpdate fetches an entity under an exclusive lock and checks the
// caller's expected version.
func loadForUpdate[T any, PT repository.EntityPtr[T]](u *unit, kind models.Kind, id string, expected int) (PT, error) {
	e, err := repository.Get[T, PT](u.ctx, u.tx, kind, id, repository.LockExclusive)
	if err != nil {
		return nil, err
	}
	if err := repository.CheckVersion(e, expected); err != nil {
		return nil, err
	}
	return e, nil
}

func get[T any, PT repository.EntityPtr[T]](ctx context.Context, w *Workflow, kind models.Kind, id string) (PT, error) {
	var out PT
	err := w.read(ctx, func(tx repository.Tx) error {
		var err error
		out, err = repository.Get[T, PT](ctx, tx, kind, id, repository.LockNone)
		return err
	})
	return out, err
}

func list[T any, PT repository.EntityPtr[T]](ctx context.Context, w *Workflow, kind models.Kind, parentID string) ([]PT, error) {
	var out []PT
	err := w.read(ctx, func(tx repository.Tx) error {
		var err error
		out, err = repository.List[T, PT](ctx, tx, kind, parentID)
		return err
	})
	return out, err
}

func uniqueSorted(ids []string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
