package services

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/sla"
)

// Deadline kinds reported by OverdueReport.
const (
	DeadlineObjectionWindow = "objection_window"
	DeadlineHearing         = "hearing"
	DeadlineSIAFeedback     = "sia_feedback"
	DeadlineServiceRequest  = "service_request"
)

var deadlineKinds = []string{DeadlineObjectionWindow, DeadlineHearing, DeadlineSIAFeedback, DeadlineServiceRequest}

// RequestView is a service request with its SLA evaluated against the
// workflow clock.
type RequestView struct {
	*models.ServiceRequest
	SLA sla.Assessment `json:"sla"`
}

// OverdueItem is one breached deadline.
type OverdueItem struct {
	Kind       string        `json:"kind"`
	EntityKind models.Kind   `json:"entityKind"`
	EntityID   string        `json:"entityId"`
	HearingID  string        `json:"hearingId,omitempty"`
	Status     string        `json:"status"`
	Deadline   time.Time     `json:"deadline"`
	Overdue    time.Duration `json:"overdue"`
}

// OverdueReport lists every breached deadline at GeneratedAt, oldest
// deadline first.
type OverdueReport struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Items       []OverdueItem  `json:"items"`
	Counts      map[string]int `json:"counts"`
}

// Service requests

// SubmitServiceRequest files a service request.
func (w *Workflow) SubmitServiceRequest(ctx context.Context, actor models.Actor, cmd SubmitServiceRequestCmd) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	err := w.mutate(ctx, actor, models.KindServiceRequest, authz.ActionRequestSubmit, func(u *unit) (err error) {
		if cmd.ParcelID != "" {
			if err := requireParcels(u, []string{cmd.ParcelID}); err != nil {
				return err
			}
		}
		out, err = w.requests.Submit(u, cmd)
		return err
	})
	return out, err
}

// ReviewServiceRequest takes a request into review.
func (w *Workflow) ReviewServiceRequest(ctx context.Context, actor models.Actor, id string, version int) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	err := w.mutate(ctx, actor, models.KindServiceRequest, authz.ActionRequestReview, func(u *unit) (err error) {
		out, err = w.requests.Review(u, id, version)
		return err
	})
	return out, err
}

// ResolveServiceRequest completes or rejects a request.
func (w *Workflow) ResolveServiceRequest(ctx context.Context, actor models.Actor, id string, version int, cmd ResolveServiceRequestCmd) (*models.ServiceRequest, error) {
	var out *models.ServiceRequest
	err := w.mutate(ctx, actor, models.KindServiceRequest, authz.ActionRequestResolve, func(u *unit) (err error) {
		out, err = w.requests.Resolve(u, id, version, cmd)
		return err
	})
	return out, err
}

func (w *Workflow) requestView(r *models.ServiceRequest) RequestView {
	return RequestView{
		ServiceRequest: r,
		SLA:            sla.Assess(r.Deadline, w.now(), models.RequestTerminal, r.Status),
	}
}

// GetServiceRequest returns a request with its SLA assessment.
func (w *Workflow) GetServiceRequest(ctx context.Context, id string) (RequestView, error) {
	r, err := get[models.ServiceRequest](ctx, w, models.KindServiceRequest, id)
	if err != nil {
		return RequestView{}, err
	}
	return w.requestView(r), nil
}

// ListServiceRequests returns every request with its SLA assessment.
func (w *Workflow) ListServiceRequests(ctx context.Context) ([]RequestView, error) {
	rs, err := list[models.ServiceRequest](ctx, w, models.KindServiceRequest, "")
	if err != nil {
		return nil, err
	}
	out := make([]RequestView, 0, len(rs))
	for _, r := range rs {
		out = append(out, w.requestView(r))
	}
	return out, nil
}

// AuditTrail returns the committed actions on one entity, oldest first.
func (w *Workflow) AuditTrail(ctx context.Context, kind models.Kind, id string) ([]models.AuditEntry, error) {
	return w.store.ListAudit(ctx, kind, id)
}

// OverdueReport evaluates every time-bound step against the workflow clock.
// Each deadline kind is scanned concurrently in its own read transaction.
func (w *Workflow) OverdueReport(ctx context.Context) (*OverdueReport, error) {
	now := w.now()
	scans := []func(ctx context.Context, now time.Time) ([]OverdueItem, error){
		w.overdueWindows,
		w.overdueHearings,
		w.overdueFeedback,
		w.overdueRequests,
	}
	results := make([][]OverdueItem, len(scans))

	g, gctx := errgroup.WithContext(ctx)
	for i, scan := range scans {
		i, scan := i, scan
		g.Go(func() error {
			items, err := scan(gctx, now)
			results[i] = items
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &OverdueReport{GeneratedAt: now, Items: []OverdueItem{}, Counts: make(map[string]int, len(deadlineKinds))}
	for _, k := range deadlineKinds {
		report.Counts[k] = 0
	}
	for _, items := range results {
		for _, it := range items {
			report.Counts[it.Kind]++
		}
		report.Items = append(report.Items, items...)
	}
	slices.SortStableFunc(report.Items, func(a, b OverdueItem) int {
		return a.Deadline.Compare(b.Deadline)
	})
	for k, n := range report.Counts {
		w.metrics.SetSLABreaches(k, n)
	}
	w.log.Debug("Overdue report generated", map[string]interface{}{"breaches": len(report.Items)})
	return report, nil
}

func breach(kind string, e models.Entity, deadline, now time.Time) OverdueItem {
	return OverdueItem{
		Kind:       kind,
		EntityKind: e.EntityKind(),
		EntityID:   e.EntityID(),
		Status:     e.StatusValue(),
		Deadline:   deadline,
		Overdue:    -sla.Remaining(deadline, now),
	}
}

func (w *Workflow) overdueWindows(ctx context.Context, now time.Time) ([]OverdueItem, error) {
	ns, err := list[models.Notification](ctx, w, models.KindNotification, "")
	if err != nil {
		return nil, err
	}
	var out []OverdueItem
	for _, n := range ns {
		if sla.IsBreached(n.WindowDeadline(), now, models.WindowTerminal, n.Status) {
			out = append(out, breach(DeadlineObjectionWindow, n, n.WindowDeadline(), now))
		}
	}
	return out, nil
}

func (w *Workflow) overdueHearings(ctx context.Context, now time.Time) ([]OverdueItem, error) {
	cases, err := list[models.SIA](ctx, w, models.KindSIA, "")
	if err != nil {
		return nil, err
	}
	var out []OverdueItem
	for _, s := range cases {
		for _, h := range s.Hearings {
			if sla.IsBreached(h.ScheduledAt, now, models.HearingTerminal, h.Status) {
				item := breach(DeadlineHearing, s, h.ScheduledAt, now)
				item.HearingID = h.ID
				item.Status = string(h.Status)
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func (w *Workflow) overdueFeedback(ctx context.Context, now time.Time) ([]OverdueItem, error) {
	cases, err := list[models.SIA](ctx, w, models.KindSIA, "")
	if err != nil {
		return nil, err
	}
	var out []OverdueItem
	for _, s := range cases {
		if sla.IsBreached(s.FeedbackEnd, now, models.SIAFeedbackClosed, s.Status) {
			out = append(out, breach(DeadlineSIAFeedback, s, s.FeedbackEnd, now))
		}
	}
	return out, nil
}

func (w *Workflow) overdueRequests(ctx context.Context, now time.Time) ([]OverdueItem, error) {
	rs, err := list[models.ServiceRequest](ctx, w, models.KindServiceRequest, "")
	if err != nil {
		return nil, err
	}
	var out []OverdueItem
	for _, r := range rs {
		if sla.IsBreached(r.Deadline, now, models.RequestTerminal, r.Status) {
			out = append(out, breach(DeadlineServiceRequest, r, r.Deadline, now))
		}
	}
	return out, nil
}
