package models

import (
	"slices"
	"strings"
	"time"
)

// NotificationType is the statutory section a notice is issued under.
type NotificationType string

const (
	NotificationSec11 NotificationType = "sec11"
	NotificationSec19 NotificationType = "sec19"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	return t == NotificationSec11 || t == NotificationSec19
}

// NotificationStatus is the lifecycle of a statutory notice.
type NotificationStatus string

const (
	NotificationDraft             NotificationStatus = "draft"
	NotificationPublished         NotificationStatus = "published"
	NotificationWindowOpen        NotificationStatus = "objection_window_open"
	NotificationObjectionResolved NotificationStatus = "objection_resolved"
	NotificationClosed            NotificationStatus = "closed"
)

// NotificationAction names an operation on a notice.
type NotificationAction string

const (
	NotificationActionPublish     NotificationAction = "publish"
	NotificationActionOpenWindow  NotificationAction = "open_objection_window"
	NotificationActionCloseWindow NotificationAction = "close_window"
	NotificationActionArchive     NotificationAction = "archive"
)

var notificationMachine = machine[NotificationStatus, NotificationAction]{
	entity: string(KindNotification),
	rules: map[NotificationAction]rule[NotificationStatus]{
		NotificationActionPublish:     {from: []NotificationStatus{NotificationDraft}, to: NotificationPublished},
		NotificationActionOpenWindow:  {from: []NotificationStatus{NotificationPublished}, to: NotificationWindowOpen},
		NotificationActionCloseWindow: {from: []NotificationStatus{NotificationWindowOpen}, to: NotificationObjectionResolved},
		NotificationActionArchive:     {from: []NotificationStatus{NotificationPublished, NotificationObjectionResolved}, to: NotificationClosed},
	},
}

// WindowTerminal lists statuses in which the objection window is no longer running.
var WindowTerminal = []NotificationStatus{NotificationObjectionResolved, NotificationClosed}

// Notification is a statutory notice affecting a set of parcels.
type Notification struct {
	Base
	Type           NotificationType   `json:"type"`
	Title          string             `json:"title"`
	GazetteRef     string             `json:"gazetteRef,omitempty"`
	ParcelIDs      []string           `json:"parcelIds"`
	Status         NotificationStatus `json:"status"`
	PublishDate    *time.Time         `json:"publishDate,omitempty"`
	WindowOpenedAt *time.Time         `json:"windowOpenedAt,omitempty"`
	WindowEndsAt   *time.Time         `json:"windowEndsAt,omitempty"`
}

func (n *Notification) EntityKind() Kind    { return KindNotification }
func (n *Notification) ParentID() string    { return "" }
func (n *Notification) StatusValue() string { return string(n.Status) }

// NewNotification drafts a notice over the given parcels.
func NewNotification(id string, typ NotificationType, title, gazetteRef string, parcelIDs []string, now time.Time) (*Notification, error) {
	if !typ.Valid() {
		return nil, Invalid("type", "must be sec11 or sec19")
	}
	if strings.TrimSpace(title) == "" {
		return nil, Invalid("title", "is required")
	}
	if len(parcelIDs) == 0 {
		return nil, Invalid("parcelIds", "at least one affected parcel is required")
	}
	ids := slices.Clone(parcelIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	return &Notification{
		Base:       newBase(id, now),
		Type:       typ,
		Title:      strings.TrimSpace(title),
		GazetteRef: strings.TrimSpace(gazetteRef),
		ParcelIDs:  ids,
		Status:     NotificationDraft,
	}, nil
}

func (n *Notification) apply(action NotificationAction, actor Actor, now time.Time) error {
	to, err := notificationMachine.next(n.ID, n.Status, action)
	if err != nil {
		return err
	}
	from := n.Status
	n.Status = to
	n.record(string(from), string(to), string(action), actor, now)
	return nil
}

// Affects reports whether parcelID is in the affected set.
func (n *Notification) Affects(parcelID string) bool {
	_, found := slices.BinarySearch(n.ParcelIDs, parcelID)
	return found
}

// Publish gazettes the notice.
func (n *Notification) Publish(actor Actor, now time.Time) error {
	if err := n.apply(NotificationActionPublish, actor, now); err != nil {
		return err
	}
	n.PublishDate = &now
	return nil
}

// OpenObjectionWindow starts the objection period of a sec11 notice.
func (n *Notification) OpenObjectionWindow(window time.Duration, actor Actor, now time.Time) error {
	if n.Type != NotificationSec11 {
		return &TransitionError{
			Entity: string(KindNotification),
			ID:     n.ID,
			From:   string(n.Status),
			Action: string(NotificationActionOpenWindow),
			Reason: "only sec11 notifications accept objections",
		}
	}
	if window <= 0 {
		return Invalid("window", "must be positive")
	}
	if err := n.apply(NotificationActionOpenWindow, actor, now); err != nil {
		return err
	}
	ends := now.Add(window)
	n.WindowOpenedAt = &now
	n.WindowEndsAt = &ends
	return nil
}

// CloseWindow freezes new objections. Open objections stay resolvable.
func (n *Notification) CloseWindow(actor Actor, now time.Time) error {
	return n.apply(NotificationActionCloseWindow, actor, now)
}

// Archive closes the notice. A sec11 notice must pass through its objection
// window first; a sec19 notice goes straight from published.
func (n *Notification) Archive(actor Actor, now time.Time) error {
	if n.Type == NotificationSec11 && n.Status == NotificationPublished {
		return &TransitionError{
			Entity: string(KindNotification),
			ID:     n.ID,
			From:   string(n.Status),
			Action: string(NotificationActionArchive),
			Reason: "sec11 notifications must run an objection window before archiving",
		}
	}
	return n.apply(NotificationActionArchive, actor, now)
}

// AcceptingObjections returns nil when a citizen may file an objection now.
func (n *Notification) AcceptingObjections(now time.Time) error {
	if n.Status != NotificationWindowOpen {
		return &TransitionError{
			Entity: string(KindObjection),
			From:   string(n.Status),
			Action: "submit",
			Reason: "notification " + n.ID + " is not accepting objections",
		}
	}
	if n.WindowEndsAt != nil && now.After(*n.WindowEndsAt) {
		return &TransitionError{
			Entity: string(KindObjection),
			From:   string(n.Status),
			Action: "submit",
			Reason: "objection window of notification " + n.ID + " has elapsed",
		}
	}
	return nil
}

// WindowDeadline returns the objection window end, or the zero time.
func (n *Notification) WindowDeadline() time.Time {
	if n.WindowEndsAt == nil {
		return time.Time{}
	}
	return *n.WindowEndsAt
}
