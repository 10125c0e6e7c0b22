package services

import (
	"context"
	"fmt"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
	"github.com/stwalsh4118/landflow/internal/sla"
)

// NotificationView is a notification with its objection window evaluated
// against the workflow clock.
type NotificationView struct {
	*models.Notification
	Window sla.Assessment `json:"window"`
}

// Parcels

// RegisterParcel adds an unaffected parcel.
func (w *Workflow) RegisterParcel(ctx context.Context, actor models.Actor, cmd RegisterParcelCmd) (*models.Parcel, error) {
	var out *models.Parcel
	err := w.mutate(ctx, actor, models.KindParcel, authz.ActionParcelRegister, func(u *unit) (err error) {
		out, err = w.parcels.Register(u, cmd)
		return err
	})
	return out, err
}

// RecordPossession takes possession of an awarded parcel.
func (w *Workflow) RecordPossession(ctx context.Context, actor models.Actor, id string, version int) (*models.Parcel, error) {
	var out *models.Parcel
	err := w.mutate(ctx, actor, models.KindParcel, authz.ActionParcelRecordPossession, func(u *unit) (err error) {
		out, err = w.parcels.RecordPossession(u, id, version)
		return err
	})
	return out, err
}

// GetParcel returns a parcel by id.
func (w *Workflow) GetParcel(ctx context.Context, id string) (*models.Parcel, error) {
	return get[models.Parcel](ctx, w, models.KindParcel, id)
}

// ListParcels returns every parcel.
func (w *Workflow) ListParcels(ctx context.Context) ([]*models.Parcel, error) {
	return list[models.Parcel](ctx, w, models.KindParcel, "")
}

// requireParcels fails with a not-found error for the first unknown id.
func requireParcels(u *unit, ids []string) error {
	for _, id := range ids {
		if _, err := u.tx.Load(u.ctx, models.KindParcel, id, repository.LockNone); err != nil {
			return err
		}
	}
	return nil
}

// SIA cases

// CreateSIA drafts an SIA case after checking its parcels exist.
func (w *Workflow) CreateSIA(ctx context.Context, actor models.Actor, cmd CreateSIACmd) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIACreate, func(u *unit) (err error) {
		if err := requireParcels(u, cmd.ParcelIDs); err != nil {
			return err
		}
		out, err = w.cases.Create(u, cmd)
		return err
	})
	return out, err
}

// PublishSIA opens an SIA for feedback.
func (w *Workflow) PublishSIA(ctx context.Context, actor models.Actor, id string, version int) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIAPublish, func(u *unit) (err error) {
		out, err = w.cases.Publish(u, id, version)
		return err
	})
	return out, err
}

// ScheduleHearing adds a hearing to an SIA.
func (w *Workflow) ScheduleHearing(ctx context.Context, actor models.Actor, id string, version int, cmd ScheduleHearingCmd) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIAScheduleHearing, func(u *unit) (err error) {
		out, err = w.cases.ScheduleHearing(u, id, version, cmd)
		return err
	})
	return out, err
}

// CompleteHearing records hearing minutes.
func (w *Workflow) CompleteHearing(ctx context.Context, actor models.Actor, id string, version int, hearingID string, cmd CompleteHearingCmd) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIACompleteHearing, func(u *unit) (err error) {
		out, err = w.cases.CompleteHearing(u, id, version, hearingID, cmd)
		return err
	})
	return out, err
}

// GenerateReport attaches the SIA report.
func (w *Workflow) GenerateReport(ctx context.Context, actor models.Actor, id string, version int, cmd GenerateReportCmd) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIAGenerateReport, func(u *unit) (err error) {
		out, err = w.cases.GenerateReport(u, id, version, cmd)
		return err
	})
	return out, err
}

// CloseSIA closes an SIA.
func (w *Workflow) CloseSIA(ctx context.Context, actor models.Actor, id string, version int) (*models.SIA, error) {
	var out *models.SIA
	err := w.mutate(ctx, actor, models.KindSIA, authz.ActionSIAClose, func(u *unit) (err error) {
		out, err = w.cases.Close(u, id, version)
		return err
	})
	return out, err
}

// GetSIA returns an SIA by id.
func (w *Workflow) GetSIA(ctx context.Context, id string) (*models.SIA, error) {
	return get[models.SIA](ctx, w, models.KindSIA, id)
}

// ListSIAs returns every SIA.
func (w *Workflow) ListSIAs(ctx context.Context) ([]*models.SIA, error) {
	return list[models.SIA](ctx, w, models.KindSIA, "")
}

// Notifications

// CreateNotification drafts a notification after checking its parcels exist.
func (w *Workflow) CreateNotification(ctx context.Context, actor models.Actor, cmd CreateNotificationCmd) (*models.Notification, error) {
	var out *models.Notification
	err := w.mutate(ctx, actor, models.KindNotification, authz.ActionNotificationCreate, func(u *unit) (err error) {
		if err := requireParcels(u, cmd.ParcelIDs); err != nil {
			return err
		}
		out, err = w.notices.Create(u, cmd)
		return err
	})
	return out, err
}

// PublishNotification gazettes the notice and moves every affected parcel
// that is still unaffected to under acquisition.
func (w *Workflow) PublishNotification(ctx context.Context, actor models.Actor, id string, version int) (*models.Notification, error) {
	var out *models.Notification
	err := w.mutate(ctx, actor, models.KindNotification, authz.ActionNotificationPublish, func(u *unit) error {
		n, err := w.notices.Publish(u, id, version)
		if err != nil {
			return err
		}
		for _, pid := range n.ParcelIDs {
			p, err := repository.Get[models.Parcel](u.ctx, u.tx, models.KindParcel, pid, repository.LockExclusive)
			if err != nil {
				return err
			}
			if err := w.parcels.advanceTo(u, p, models.ParcelUnderAcquisition, "notification "+n.ID); err != nil {
				return err
			}
		}
		out = n
		return nil
	})
	return out, err
}

// OpenObjectionWindow starts the objection window of a Section 11 notice.
func (w *Workflow) OpenObjectionWindow(ctx context.Context, actor models.Actor, id string, version int) (*models.Notification, error) {
	var out *models.Notification
	err := w.mutate(ctx, actor, models.KindNotification, authz.ActionNotificationOpenWindow, func(u *unit) (err error) {
		out, err = w.notices.OpenWindow(u, id, version)
		return err
	})
	return out, err
}

// CloseObjectionWindow ends the objection window.
func (w *Workflow) CloseObjectionWindow(ctx context.Context, actor models.Actor, id string, version int) (*models.Notification, error) {
	var out *models.Notification
	err := w.mutate(ctx, actor, models.KindNotification, authz.ActionNotificationCloseWindow, func(u *unit) (err error) {
		out, err = w.notices.CloseWindow(u, id, version)
		return err
	})
	return out, err
}

// ArchiveNotification closes a notification.
func (w *Workflow) ArchiveNotification(ctx context.Context, actor models.Actor, id string, version int) (*models.Notification, error) {
	var out *models.Notification
	err := w.mutate(ctx, actor, models.KindNotification, authz.ActionNotificationArchive, func(u *unit) (err error) {
		out, err = w.notices.Archive(u, id, version)
		return err
	})
	return out, err
}

func (w *Workflow) notificationView(n *models.Notification) NotificationView {
	return NotificationView{
		Notification: n,
		Window:       sla.Assess(n.WindowDeadline(), w.now(), models.WindowTerminal, n.Status),
	}
}

// GetNotification returns a notification with its window state.
func (w *Workflow) GetNotification(ctx context.Context, id string) (NotificationView, error) {
	n, err := get[models.Notification](ctx, w, models.KindNotification, id)
	if err != nil {
		return NotificationView{}, err
	}
	return w.notificationView(n), nil
}

// ListNotifications returns every notification with its window state.
func (w *Workflow) ListNotifications(ctx context.Context) ([]NotificationView, error) {
	ns, err := list[models.Notification](ctx, w, models.KindNotification, "")
	if err != nil {
		return nil, err
	}
	out := make([]NotificationView, 0, len(ns))
	for _, n := range ns {
		out = append(out, w.notificationView(n))
	}
	return out, nil
}

// Objections

// SubmitObjection files a citizen objection. Membership is checked before
// anything else, so a parcel outside the notice is reported as such whatever
// the window state.
func (w *Workflow) SubmitObjection(ctx context.Context, actor models.Actor, notificationID string, cmd SubmitObjectionCmd) (*models.Objection, error) {
	var out *models.Objection
	err := w.mutate(ctx, actor, models.KindObjection, authz.ActionObjectionSubmit, func(u *unit) error {
		n, err := w.notices.loadForObjection(u, notificationID)
		if err != nil {
			return err
		}
		if !n.Affects(cmd.ParcelID) {
			return fmt.Errorf("%w: parcel %s is not listed in notification %s",
				models.ErrParcelNotAffected, cmd.ParcelID, n.ID)
		}
		p, err := repository.Get[models.Parcel](u.ctx, u.tx, models.KindParcel, cmd.ParcelID, repository.LockShare)
		if err != nil {
			return err
		}
		if p.Status == models.ParcelPossessed {
			return fmt.Errorf("%w: parcel %s", models.ErrParcelPossessed, p.ID)
		}
		out, err = w.notices.SubmitObjection(u, n, cmd)
		return err
	})
	return out, err
}

// ReviewObjection takes an objection under review.
func (w *Workflow) ReviewObjection(ctx context.Context, actor models.Actor, id string, version int) (*models.Objection, error) {
	var out *models.Objection
	err := w.mutate(ctx, actor, models.KindObjection, authz.ActionObjectionReview, func(u *unit) (err error) {
		out, err = w.notices.ReviewObjection(u, id, version)
		return err
	})
	return out, err
}

// ResolveObjection records an objection outcome.
func (w *Workflow) ResolveObjection(ctx context.Context, actor models.Actor, id string, version int, cmd ResolveObjectionCmd) (*models.Objection, error) {
	var out *models.Objection
	err := w.mutate(ctx, actor, models.KindObjection, authz.ActionObjectionResolve, func(u *unit) (err error) {
		out, err = w.notices.ResolveObjection(u, id, version, cmd)
		return err
	})
	return out, err
}

// GetObjection returns an objection by id.
func (w *Workflow) GetObjection(ctx context.Context, id string) (*models.Objection, error) {
	return get[models.Objection](ctx, w, models.KindObjection, id)
}

// ListObjections returns the objections filed against a notification.
func (w *Workflow) ListObjections(ctx context.Context, notificationID string) ([]*models.Objection, error) {
	return list[models.Objection](ctx, w, models.KindObjection, notificationID)
}

// Valuations and awards

// ComputeValuation values a parcel. Earlier valuations are kept.
func (w *Workflow) ComputeValuation(ctx context.Context, actor models.Actor, parcelID string, cmd ComputeValuationCmd) (*models.Valuation, error) {
	var out *models.Valuation
	err := w.mutate(ctx, actor, models.KindValuation, authz.ActionValuationCompute, func(u *unit) error {
		p, err := repository.Get[models.Parcel](u.ctx, u.tx, models.KindParcel, parcelID, repository.LockShare)
		if err != nil {
			return err
		}
		out, err = w.valuations.Compute(u, p, cmd)
		return err
	})
	return out, err
}

// GetValuation returns a valuation by id.
func (w *Workflow) GetValuation(ctx context.Context, id string) (*models.Valuation, error) {
	return get[models.Valuation](ctx, w, models.KindValuation, id)
}

// ListValuations returns the valuations of a parcel.
func (w *Workflow) ListValuations(ctx context.Context, parcelID string) ([]*models.Valuation, error) {
	return list[models.Valuation](ctx, w, models.KindValuation, parcelID)
}

// DraftAward freezes the latest valuation of a parcel into a draft award.
func (w *Workflow) DraftAward(ctx context.Context, actor models.Actor, cmd DraftAwardCmd) (*models.Award, error) {
	var out *models.Award
	err := w.mutate(ctx, actor, models.KindAward, authz.ActionAwardDraft, func(u *unit) error {
		p, err := repository.Get[models.Parcel](u.ctx, u.tx, models.KindParcel, cmd.ParcelID, repository.LockShare)
		if err != nil {
			return err
		}
		out, err = w.valuations.DraftAward(u, p, cmd)
		return err
	})
	return out, err
}

// ApproveAward numbers the award and moves its parcel to awarded if the
// parcel is behind.
func (w *Workflow) ApproveAward(ctx context.Context, actor models.Actor, id string, version int) (*models.Award, error) {
	var out *models.Award
	err := w.mutate(ctx, actor, models.KindAward, authz.ActionAwardApprove, func(u *unit) error {
		a, err := w.valuations.ApproveAward(u, id, version)
		if err != nil {
			return err
		}
		p, err := repository.Get[models.Parcel](u.ctx, u.tx, models.KindParcel, a.ParcelID, repository.LockExclusive)
		if err != nil {
			return err
		}
		if err := w.parcels.advanceTo(u, p, models.ParcelAwarded, "award "+a.Number); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// DisburseAward marks an award paid.
func (w *Workflow) DisburseAward(ctx context.Context, actor models.Actor, id string, version int) (*models.Award, error) {
	var out *models.Award
	err := w.mutate(ctx, actor, models.KindAward, authz.ActionAwardDisburse, func(u *unit) (err error) {
		out, err = w.valuations.DisburseAward(u, id, version)
		return err
	})
	return out, err
}

// VoidAward cancels an award.
func (w *Workflow) VoidAward(ctx context.Context, actor models.Actor, id string, version int, reason string) (*models.Award, error) {
	var out *models.Award
	err := w.mutate(ctx, actor, models.KindAward, authz.ActionAwardVoid, func(u *unit) (err error) {
		out, err = w.valuations.VoidAward(u, id, version, reason)
		return err
	})
	return out, err
}

// GetAward returns an award by id.
func (w *Workflow) GetAward(ctx context.Context, id string) (*models.Award, error) {
	return get[models.Award](ctx, w, models.KindAward, id)
}

// ListAwards returns the awards of a parcel.
func (w *Workflow) ListAwards(ctx context.Context, parcelID string) ([]*models.Award, error) {
	return list[models.Award](ctx, w, models.KindAward, parcelID)
}
