package services

import (
	"fmt"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
)

// ParcelService keeps the parcel registry. Parcel status only moves forward
// and only as a side effect of notices, awards and possession.
type ParcelService struct {
	log *logger.Logger
}

// Register adds an unaffected parcel.
func (s *ParcelService) Register(u *unit, cmd RegisterParcelCmd) (*models.Parcel, error) {
	p, err := models.NewParcel(u.newID(), cmd.ParcelNo, cmd.Location, cmd.AreaSqM, cmd.Point, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(p, "register", map[string]string{"parcel_no": p.ParcelNo}); err != nil {
		return nil, fmt.Errorf("failed to register parcel: %w", err)
	}
	s.log.Debug("Parcel registered", map[string]interface{}{"parcel_id": p.ID, "parcel_no": p.ParcelNo})
	return p, nil
}

// advanceTo moves p to status to when it is still behind it. A parcel that
// is already at or past to is left alone.
func (s *ParcelService) advanceTo(u *unit, p *models.Parcel, to models.ParcelStatus, cause string) error {
	if !p.Status.Before(to) {
		return nil
	}
	from := p.Status
	if err := p.Advance(to, u.actor, u.now); err != nil {
		return err
	}
	if err := u.save(p, "advance", string(from), map[string]string{"cause": cause}); err != nil {
		return fmt.Errorf("failed to advance parcel %s: %w", p.ID, err)
	}
	s.log.Debug("Parcel advanced", map[string]interface{}{
		"parcel_id": p.ID,
		"from":      from,
		"to":        to,
		"cause":     cause,
	})
	return nil
}

// RecordPossession moves an awarded parcel to possessed.
func (s *ParcelService) RecordPossession(u *unit, id string, version int) (*models.Parcel, error) {
	p, err := loadForUpdate[models.Parcel](u, models.KindParcel, id, version)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ParcelAwarded {
		return nil, &models.TransitionError{
			Entity: string(models.KindParcel),
			ID:     p.ID,
			From:   string(p.Status),
			Action: "record_possession",
			Reason: "only awarded parcels can be taken into possession",
		}
	}
	if err := s.advanceTo(u, p, models.ParcelPossessed, "possession"); err != nil {
		return nil, err
	}
	u.emit(events.ParcelPossessed, p, map[string]string{"parcelNo": p.ParcelNo})
	return p, nil
}
