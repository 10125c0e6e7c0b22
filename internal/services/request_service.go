package services

import (
	"time"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
)

// RequestService is the citizen service desk. Each request type carries its
// own resolution deadline.
type RequestService struct {
	log *logger.Logger
	sla map[models.RequestType]time.Duration
}

// Submit files a service request with its SLA deadline.
func (s *RequestService) Submit(u *unit, cmd SubmitServiceRequestCmd) (*models.ServiceRequest, error) {
	if !cmd.Type.Valid() {
		return nil, models.Invalid("type", "unknown service request type "+string(cmd.Type))
	}
	r, err := models.NewServiceRequest(u.newID(), cmd.Type, cmd.ApplicantName, cmd.Contact, cmd.ParcelID,
		cmd.Description, s.sla[cmd.Type], u.now)
	if err != nil {
		return nil, err
	}
	data := map[string]string{"type": string(r.Type), "deadline": r.Deadline.Format(time.RFC3339)}
	if err := u.create(r, "submit", data); err != nil {
		return nil, err
	}
	u.emit(events.ServiceRequestSubmitted, r, data)
	return r, nil
}

// Review moves a submitted request into review.
func (s *RequestService) Review(u *unit, id string, version int) (*models.ServiceRequest, error) {
	r, err := loadForUpdate[models.ServiceRequest](u, models.KindServiceRequest, id, version)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := r.Review(u.actor, u.now); err != nil {
		return nil, err
	}
	if err := u.save(r, "review", string(from), nil); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve completes or rejects a request, flagging a late resolution.
func (s *RequestService) Resolve(u *unit, id string, version int, cmd ResolveServiceRequestCmd) (*models.ServiceRequest, error) {
	r, err := loadForUpdate[models.ServiceRequest](u, models.KindServiceRequest, id, version)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := r.Resolve(cmd.Status, cmd.Resolution, u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"outcome": string(r.Status)}
	if u.now.After(r.Deadline) {
		data["breached"] = "true"
		s.log.Warn("Service request resolved after its deadline", map[string]interface{}{
			"request_id": r.ID,
			"type":       r.Type,
			"deadline":   r.Deadline,
		})
	}
	if err := u.save(r, "resolve", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.ServiceRequestResolved, r, data)
	return r, nil
}
