package services

import (
	"fmt"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

// ValuationService computes parcel valuations and manages compensation awards.
type ValuationService struct {
	log *logger.Logger
}

// Compute stores a new immutable valuation for parcel.
func (s *ValuationService) Compute(u *unit, parcel *models.Parcel, cmd ComputeValuationCmd) (*models.Valuation, error) {
	v, err := models.NewValuation(u.newID(), parcel, cmd.Basis, cmd.CircleRate, cmd.Multipliers, u.actor, u.now)
	if err != nil {
		return nil, err
	}
	data := map[string]string{
		"parcelId": parcel.ID,
		"basis":    string(v.Basis),
		"amount":   v.Amount.StringFixed(2),
	}
	if err := u.create(v, "compute", data); err != nil {
		return nil, err
	}
	u.emit(events.ValuationComputed, v, data)
	s.log.Debug("Valuation computed", map[string]interface{}{
		"valuation_id": v.ID,
		"parcel_id":    parcel.ID,
		"amount":       v.Amount.StringFixed(2),
	})
	return v, nil
}

// latest returns the authoritative valuation of a parcel or wraps
// models.ErrValuationMissing.
func (s *ValuationService) latest(u *unit, parcelID string) (*models.Valuation, error) {
	vals, err := repository.List[models.Valuation](u.ctx, u.tx, models.KindValuation, parcelID)
	if err != nil {
		return nil, err
	}
	v := models.Latest(vals)
	if v == nil {
		return nil, fmt.Errorf("%w: parcel %s", models.ErrValuationMissing, parcelID)
	}
	return v, nil
}

// DraftAward freezes the parcel's latest valuation into a draft award.
func (s *ValuationService) DraftAward(u *unit, parcel *models.Parcel, cmd DraftAwardCmd) (*models.Award, error) {
	v, err := s.latest(u, parcel.ID)
	if err != nil {
		return nil, err
	}
	a, err := models.NewAward(u.newID(), cmd.OwnerID, cmd.Mode, v, u.now)
	if err != nil {
		return nil, err
	}
	data := map[string]string{
		"parcelId":    parcel.ID,
		"valuationId": v.ID,
		"amount":      a.Amount.StringFixed(2),
	}
	if err := u.create(a, "draft", data); err != nil {
		return nil, err
	}
	u.emit(events.AwardDrafted, a, data)
	return a, nil
}

// ApproveAward numbers and approves a draft award. The number is drawn only
// after the award is known to be approvable.
func (s *ValuationService) ApproveAward(u *unit, id string, version int) (*models.Award, error) {
	a, err := loadForUpdate[models.Award](u, models.KindAward, id, version)
	if err != nil {
		return nil, err
	}
	if err := a.CanApprove(); err != nil {
		return nil, err
	}
	seq, err := u.tx.NextAwardNumber(u.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate award number: %w", err)
	}
	from := a.Status
	if err := a.Approve(seq, u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"awardNumber": a.Number, "parcelId": a.ParcelID}
	if err := u.save(a, "approve", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.AwardApproved, a, data)
	s.log.Info("Award approved", map[string]interface{}{
		"award_id":     a.ID,
		"award_number": a.Number,
		"parcel_id":    a.ParcelID,
	})
	return a, nil
}

// DisburseAward marks an approved award paid.
func (s *ValuationService) DisburseAward(u *unit, id string, version int) (*models.Award, error) {
	a, err := loadForUpdate[models.Award](u, models.KindAward, id, version)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if err := a.Disburse(u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"awardNumber": a.Number, "amount": a.Amount.StringFixed(2)}
	if err := u.save(a, "disburse", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.AwardDisbursed, a, data)
	return a, nil
}

// VoidAward cancels a draft or approved award.
func (s *ValuationService) VoidAward(u *unit, id string, version int, reason string) (*models.Award, error) {
	a, err := loadForUpdate[models.Award](u, models.KindAward, id, version)
	if err != nil {
		return nil, err
	}
	from := a.Status
	if err := a.Void(reason, u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"reason": a.VoidReason, "awardNumber": a.Number}
	if err := u.save(a, "void", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.AwardVoided, a, data)
	return a, nil
}
