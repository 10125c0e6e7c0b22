package services

import (
	"context"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

// CreateScheme drafts a scheme after checking its inventory exists.
func (w *Workflow) CreateScheme(ctx context.Context, actor models.Actor, cmd CreateSchemeCmd) (*models.Scheme, error) {
	var out *models.Scheme
	err := w.mutate(ctx, actor, models.KindScheme, authz.ActionSchemeCreate, func(u *unit) (err error) {
		for _, id := range cmd.Inventory {
			if _, err := u.tx.Load(u.ctx, models.KindProperty, id, repository.LockNone); err != nil {
				return err
			}
		}
		out, err = w.allocation.CreateScheme(u, cmd)
		return err
	})
	return out, err
}

// PublishScheme opens a scheme for applications.
func (w *Workflow) PublishScheme(ctx context.Context, actor models.Actor, id string, version int) (*models.Scheme, error) {
	var out *models.Scheme
	err := w.mutate(ctx, actor, models.KindScheme, authz.ActionSchemePublish, func(u *unit) (err error) {
		out, err = w.allocation.PublishScheme(u, id, version)
		return err
	})
	return out, err
}

// CloseScheme ends a scheme.
func (w *Workflow) CloseScheme(ctx context.Context, actor models.Actor, id string, version int) (*models.Scheme, error) {
	var out *models.Scheme
	err := w.mutate(ctx, actor, models.KindScheme, authz.ActionSchemeClose, func(u *unit) (err error) {
		out, err = w.allocation.CloseScheme(u, id, version)
		return err
	})
	return out, err
}

// GetScheme returns a scheme by id.
func (w *Workflow) GetScheme(ctx context.Context, id string) (*models.Scheme, error) {
	return get[models.Scheme](ctx, w, models.KindScheme, id)
}

// ListSchemes returns every scheme.
func (w *Workflow) ListSchemes(ctx context.Context) ([]*models.Scheme, error) {
	return list[models.Scheme](ctx, w, models.KindScheme, "")
}

// RegisterProperty adds a property to the inventory pool.
func (w *Workflow) RegisterProperty(ctx context.Context, actor models.Actor, cmd RegisterPropertyCmd) (*models.Property, error) {
	var out *models.Property
	err := w.mutate(ctx, actor, models.KindProperty, authz.ActionPropertyRegister, func(u *unit) (err error) {
		out, err = w.allocation.RegisterProperty(u, cmd)
		return err
	})
	return out, err
}

// GetProperty returns a property by id.
func (w *Workflow) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	return get[models.Property](ctx, w, models.KindProperty, id)
}

// ListProperties returns every property.
func (w *Workflow) ListProperties(ctx context.Context) ([]*models.Property, error) {
	return list[models.Property](ctx, w, models.KindProperty, "")
}

// SubmitApplication files an application to a published scheme.
func (w *Workflow) SubmitApplication(ctx context.Context, actor models.Actor, schemeID string, cmd SubmitApplicationCmd) (*models.Application, error) {
	var out *models.Application
	err := w.mutate(ctx, actor, models.KindApplication, authz.ActionApplicationSubmit, func(u *unit) (err error) {
		out, err = w.allocation.SubmitApplication(u, schemeID, cmd)
		return err
	})
	return out, err
}

// VerifyApplication verifies an eligible application.
func (w *Workflow) VerifyApplication(ctx context.Context, actor models.Actor, id string, version int) (*models.Application, error) {
	var out *models.Application
	err := w.mutate(ctx, actor, models.KindApplication, authz.ActionApplicationVerify, func(u *unit) (err error) {
		out, err = w.allocation.VerifyApplication(u, id, version)
		return err
	})
	return out, err
}

// RejectApplication rejects an application.
func (w *Workflow) RejectApplication(ctx context.Context, actor models.Actor, id string, version int, reason string) (*models.Application, error) {
	var out *models.Application
	err := w.mutate(ctx, actor, models.KindApplication, authz.ActionApplicationReject, func(u *unit) (err error) {
		out, err = w.allocation.RejectApplication(u, id, version, reason)
		return err
	})
	return out, err
}

// GetApplication returns an application by id.
func (w *Workflow) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	return get[models.Application](ctx, w, models.KindApplication, id)
}

// ListApplications returns the applications to a scheme.
func (w *Workflow) ListApplications(ctx context.Context, schemeID string) ([]*models.Application, error) {
	return list[models.Application](ctx, w, models.KindApplication, schemeID)
}

// ConductDraw runs the scheme's e-draw under the exclusive scheme lock.
func (w *Workflow) ConductDraw(ctx context.Context, actor models.Actor, schemeID string, version int, cmd ConductDrawCmd) (*models.DrawRecord, error) {
	var out *models.DrawRecord
	err := w.mutate(ctx, actor, models.KindDraw, authz.ActionDrawConduct, func(u *unit) (err error) {
		out, err = w.allocation.ConductDraw(u, schemeID, version, cmd.SelectedCount)
		return err
	})
	if err == nil {
		w.metrics.ObserveDraw(len(out.Candidates))
	}
	return out, err
}

// ResetDraw voids the active draw of a scheme. Administrators only.
func (w *Workflow) ResetDraw(ctx context.Context, actor models.Actor, schemeID string, version int, reason string) (*models.DrawRecord, error) {
	var out *models.DrawRecord
	err := w.mutate(ctx, actor, models.KindDraw, authz.ActionDrawReset, func(u *unit) (err error) {
		out, err = w.allocation.ResetDraw(u, schemeID, version, reason)
		return err
	})
	if err == nil {
		w.metrics.IncDrawResets()
	}
	return out, err
}

// GetDraw returns a draw record by id.
func (w *Workflow) GetDraw(ctx context.Context, id string) (*models.DrawRecord, error) {
	return get[models.DrawRecord](ctx, w, models.KindDraw, id)
}

// ListDraws returns every draw of a scheme, voided ones included.
func (w *Workflow) ListDraws(ctx context.Context, schemeID string) ([]*models.DrawRecord, error) {
	return list[models.DrawRecord](ctx, w, models.KindDraw, schemeID)
}
