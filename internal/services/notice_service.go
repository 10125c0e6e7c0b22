package services

import (
	"time"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

// NoticeService runs statutory notifications and the objections filed
// against them.
type NoticeService struct {
	log    *logger.Logger
	window time.Duration
}

// Create drafts a Section 11 or Section 19 notification.
func (s *NoticeService) Create(u *unit, cmd CreateNotificationCmd) (*models.Notification, error) {
	n, err := models.NewNotification(u.newID(), cmd.Type, cmd.Title, cmd.GazetteRef, cmd.ParcelIDs, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(n, "create", map[string]string{"type": string(n.Type)}); err != nil {
		return nil, err
	}
	return n, nil
}

// Publish gazettes the notification.
func (s *NoticeService) Publish(u *unit, id string, version int) (*models.Notification, error) {
	return s.transition(u, id, version, "publish", func(n *models.Notification) (events.Type, map[string]string, error) {
		err := n.Publish(u.actor, u.now)
		return events.NotificationPublished, map[string]string{"type": string(n.Type), "gazetteRef": n.GazetteRef}, err
	})
}

// OpenWindow starts the objection window of a Section 11 notice.
func (s *NoticeService) OpenWindow(u *unit, id string, version int) (*models.Notification, error) {
	return s.transition(u, id, version, "open_objection_window", func(n *models.Notification) (events.Type, map[string]string, error) {
		if err := n.OpenObjectionWindow(s.window, u.actor, u.now); err != nil {
			return "", nil, err
		}
		return events.ObjectionWindowOpened, map[string]string{"windowEndsAt": n.WindowEndsAt.Format(time.RFC3339)}, nil
	})
}

// CloseWindow ends the objection window.
func (s *NoticeService) CloseWindow(u *unit, id string, version int) (*models.Notification, error) {
	return s.transition(u, id, version, "close_window", func(n *models.Notification) (events.Type, map[string]string, error) {
		return events.ObjectionWindowClosed, nil, n.CloseWindow(u.actor, u.now)
	})
}

// Archive closes the notification.
func (s *NoticeService) Archive(u *unit, id string, version int) (*models.Notification, error) {
	return s.transition(u, id, version, "archive", func(n *models.Notification) (events.Type, map[string]string, error) {
		return events.NotificationArchived, nil, n.Archive(u.actor, u.now)
	})
}

func (s *NoticeService) transition(u *unit, id string, version int, action string,
	fn func(*models.Notification) (events.Type, map[string]string, error)) (*models.Notification, error) {
	n, err := loadForUpdate[models.Notification](u, models.KindNotification, id, version)
	if err != nil {
		return nil, err
	}
	from := n.Status
	typ, data, err := fn(n)
	if err != nil {
		return nil, err
	}
	if err := u.save(n, action, string(from), data); err != nil {
		return nil, err
	}
	u.emit(typ, n, data)
	s.log.Debug("Notification transition applied", map[string]interface{}{
		"notification_id": n.ID,
		"action":          action,
		"from":            from,
		"to":              n.Status,
	})
	return n, nil
}

// loadForObjection fetches the notice under a shared lock so a concurrent
// window close waits for the objection to commit.
func (s *NoticeService) loadForObjection(u *unit, id string) (*models.Notification, error) {
	return repository.Get[models.Notification](u.ctx, u.tx, models.KindNotification, id, repository.LockShare)
}

// SubmitObjection files an objection. The caller has already checked that
// parcel is in the notice and has not been possessed.
func (s *NoticeService) SubmitObjection(u *unit, n *models.Notification, cmd SubmitObjectionCmd) (*models.Objection, error) {
	if err := n.AcceptingObjections(u.now); err != nil {
		return nil, err
	}
	o, err := models.NewObjection(u.newID(), n.ID, cmd.ParcelID, cmd.Submitter, cmd.Text, cmd.Attachments, u.now)
	if err != nil {
		return nil, err
	}
	if err := u.create(o, "submit", map[string]string{"parcel_id": o.ParcelID}); err != nil {
		return nil, err
	}
	u.emit(events.ObjectionSubmitted, o, map[string]string{
		"notificationId": n.ID,
		"parcelId":       o.ParcelID,
	})
	return o, nil
}

// ReviewObjection moves a submitted objection under review.
func (s *NoticeService) ReviewObjection(u *unit, id string, version int) (*models.Objection, error) {
	o, err := loadForUpdate[models.Objection](u, models.KindObjection, id, version)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.Review(u.actor, u.now); err != nil {
		return nil, err
	}
	if err := u.save(o, "review", string(from), nil); err != nil {
		return nil, err
	}
	return o, nil
}

// ResolveObjection records the outcome of an objection.
func (s *NoticeService) ResolveObjection(u *unit, id string, version int, cmd ResolveObjectionCmd) (*models.Objection, error) {
	o, err := loadForUpdate[models.Objection](u, models.KindObjection, id, version)
	if err != nil {
		return nil, err
	}
	from := o.Status
	if err := o.Resolve(cmd.Status, cmd.Resolution, u.actor, u.now); err != nil {
		return nil, err
	}
	data := map[string]string{"outcome": string(o.Status), "notificationId": o.NotificationID}
	if err := u.save(o, "resolve", string(from), data); err != nil {
		return nil, err
	}
	u.emit(events.ObjectionResolved, o, data)
	return o, nil
}
