package services

import (
	"time"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
)

// CaseService runs the Social Impact Assessment lifecycle.
type CaseService struct {
	log *logger.Logger
}

// Create drafts an SIA case over the given parcels.
func (s *CaseService) Create(u *unit, cmd CreateSIACmd) (*models.SIA, error) {
	sia := models.NewSIA(u.newID(), cmd.Title, cmd.Description, uniqueSorted(cmd.ParcelIDs),
		cmd.FeedbackStart.UTC(), cmd.FeedbackEnd.UTC(), u.now)
	if err := u.create(sia, "create", nil); err != nil {
		return nil, err
	}
	return sia, nil
}

// Publish opens the SIA for public feedback.
func (s *CaseService) Publish(u *unit, id string, version int) (*models.SIA, error) {
	return s.transition(u, id, version, "publish", func(sia *models.SIA) (events.Type, map[string]string, error) {
		err := sia.Publish(u.actor, u.now)
		return events.SIAPublished, map[string]string{
			"feedbackStart": sia.FeedbackStart.Format(time.RFC3339),
			"feedbackEnd":   sia.FeedbackEnd.Format(time.RFC3339),
		}, err
	})
}

// ScheduleHearing adds a public hearing to a published SIA.
func (s *CaseService) ScheduleHearing(u *unit, id string, version int, cmd ScheduleHearingCmd) (*models.SIA, error) {
	return s.transition(u, id, version, "schedule_hearing", func(sia *models.SIA) (events.Type, map[string]string, error) {
		h, err := sia.ScheduleHearing(u.newID(), cmd.At.UTC(), cmd.Venue, u.actor, u.now)
		if err != nil {
			return "", nil, err
		}
		return events.HearingScheduled, map[string]string{
			"hearingId": h.ID,
			"at":        h.ScheduledAt.Format(time.RFC3339),
			"venue":     h.Venue,
		}, nil
	})
}

// CompleteHearing records the minutes of a scheduled hearing.
func (s *CaseService) CompleteHearing(u *unit, id string, version int, hearingID string, cmd CompleteHearingCmd) (*models.SIA, error) {
	return s.transition(u, id, version, "complete_hearing", func(sia *models.SIA) (events.Type, map[string]string, error) {
		err := sia.CompleteHearing(hearingID, cmd.MinutesRef, cmd.Attendees, u.actor, u.now)
		return events.HearingCompleted, map[string]string{
			"hearingId":  hearingID,
			"minutesRef": cmd.MinutesRef,
		}, err
	})
}

// GenerateReport attaches the SIA report once hearings are done.
func (s *CaseService) GenerateReport(u *unit, id string, version int, cmd GenerateReportCmd) (*models.SIA, error) {
	return s.transition(u, id, version, "generate_report", func(sia *models.SIA) (events.Type, map[string]string, error) {
		err := sia.GenerateReport(cmd.ReportRef, u.actor, u.now)
		return events.SIAReportGenerated, map[string]string{"reportRef": cmd.ReportRef}, err
	})
}

// Close closes an SIA whose report has been generated.
func (s *CaseService) Close(u *unit, id string, version int) (*models.SIA, error) {
	return s.transition(u, id, version, "close", func(sia *models.SIA) (events.Type, map[string]string, error) {
		return events.SIAClosed, nil, sia.Close(u.actor, u.now)
	})
}

// transition loads the case, applies fn and persists the result together
// with an audit entry and the event fn names.
func (s *CaseService) transition(u *unit, id string, version int, action string,
	fn func(*models.SIA) (events.Type, map[string]string, error)) (*models.SIA, error) {
	sia, err := loadForUpdate[models.SIA](u, models.KindSIA, id, version)
	if err != nil {
		return nil, err
	}
	from := sia.Status
	typ, data, err := fn(sia)
	if err != nil {
		return nil, err
	}
	if err := u.save(sia, action, string(from), data); err != nil {
		return nil, err
	}
	u.emit(typ, sia, data)
	s.log.Debug("SIA transition applied", map[string]interface{}{
		"sia_id": sia.ID,
		"action": action,
		"from":   from,
		"to":     sia.Status,
	})
	return sia, nil
}
