package services

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/models"
)

func certificateRequest() SubmitServiceRequestCmd {
	return SubmitServiceRequestCmd{
		Type:          models.RequestCertificate,
		ApplicantName: "Ravi Kulkarni",
		Contact:       "9822001122",
		Description:   "Non-encumbrance certificate for S.No. 42/1",
	}
}

func TestWorkflow_ServiceRequestLifecycle(t *testing.T) {
	f := newFixture(t)

	r, err := f.wf.SubmitServiceRequest(f.ctx, citizen, certificateRequest())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(7*24*time.Hour), r.Deadline)

	view, err := f.wf.GetServiceRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, view.SLA.Breached)
	assert.Equal(t, 7*24*time.Hour, view.SLA.Remaining)

	_, err = f.wf.ReviewServiceRequest(f.ctx, citizen, r.ID, 0)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.wf.ReviewServiceRequest(f.ctx, caseOfficer, r.ID, 0)
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	view, err = f.wf.GetServiceRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, view.SLA.Breached)

	r, err = f.wf.ResolveServiceRequest(f.ctx, caseOfficer, r.ID, 0, ResolveServiceRequestCmd{
		Status:     models.RequestCompleted,
		Resolution: "Certificate issued",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, r.Status)

	view, err = f.wf.GetServiceRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, view.SLA.Breached, "resolved requests are never breached")

	evs := f.recorder.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.ServiceRequestResolved, evs[1].Type)
	assert.Equal(t, "true", evs[1].Data["breached"])
}

func TestWorkflow_ServiceRequestValidation(t *testing.T) {
	f := newFixture(t)

	cmd := certificateRequest()
	cmd.Type = "passport"
	_, err := f.wf.SubmitServiceRequest(f.ctx, citizen, cmd)
	assert.ErrorIs(t, err, models.ErrValidation)

	cmd = certificateRequest()
	cmd.Type = models.RequestMapCopy
	_, err = f.wf.SubmitServiceRequest(f.ctx, citizen, cmd)
	assert.ErrorIs(t, err, models.ErrValidation, "no SLA configured for map copies in this fixture")

	cmd = certificateRequest()
	cmd.ParcelID = "missing"
	_, err = f.wf.SubmitServiceRequest(f.ctx, citizen, cmd)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWorkflow_OverdueReport(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)

	// Objection window of 60 days.
	n := f.openSec11(t, p.ID)

	// SIA with a 10 day feedback window and a hearing on day 20.
	sia, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{
		Title: "t", Description: "d", FeedbackStart: t0, FeedbackEnd: t0.Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.wf.PublishSIA(f.ctx, caseOfficer, sia.ID, 0)
	require.NoError(t, err)
	other, err := f.wf.CreateSIA(f.ctx, caseOfficer, CreateSIACmd{
		Title: "t2", Description: "d2", FeedbackStart: t0, FeedbackEnd: t0.Add(5 * 24 * time.Hour),
	})
	require.NoError(t, err)
	_, err = f.wf.PublishSIA(f.ctx, caseOfficer, other.ID, 0)
	require.NoError(t, err)
	other, err = f.wf.ScheduleHearing(f.ctx, caseOfficer, other.ID, 0, ScheduleHearingCmd{
		At: t0.Add(20 * 24 * time.Hour), Venue: "Tehsil office",
	})
	require.NoError(t, err)

	// Certificate request with a 7 day SLA, grievance with 15 days.
	cert, err := f.wf.SubmitServiceRequest(f.ctx, citizen, certificateRequest())
	require.NoError(t, err)
	grievance := certificateRequest()
	grievance.Type = models.RequestGrievance
	_, err = f.wf.SubmitServiceRequest(f.ctx, citizen, grievance)
	require.NoError(t, err)

	report, err := f.wf.OverdueReport(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Items)
	assert.Equal(t, 0, report.Counts[DeadlineServiceRequest])

	f.clock.Advance(12 * 24 * time.Hour)
	report, err = f.wf.OverdueReport(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Items, 2)
	assert.Equal(t, DeadlineServiceRequest, report.Items[0].Kind)
	assert.Equal(t, cert.ID, report.Items[0].EntityID)
	assert.Equal(t, 5*24*time.Hour, report.Items[0].Overdue)
	assert.Equal(t, DeadlineSIAFeedback, report.Items[1].Kind)
	assert.Equal(t, sia.ID, report.Items[1].EntityID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SLABreaches.WithLabelValues(DeadlineSIAFeedback)))

	f.clock.Advance(50 * 24 * time.Hour)
	report, err = f.wf.OverdueReport(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		DeadlineObjectionWindow: 1,
		DeadlineHearing:         1,
		DeadlineSIAFeedback:     1,
		DeadlineServiceRequest:  2,
	}, report.Counts)
	for _, it := range report.Items {
		if it.Kind == DeadlineHearing {
			assert.Equal(t, other.ID, it.EntityID)
			assert.Equal(t, other.Hearings[0].ID, it.HearingID)
			assert.Equal(t, string(models.HearingScheduled), it.Status)
		}
		if it.Kind == DeadlineObjectionWindow {
			assert.Equal(t, n.ID, it.EntityID)
		}
	}

	// Closing the window clears its breach.
	_, err = f.wf.CloseObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	report, err = f.wf.OverdueReport(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Counts[DeadlineObjectionWindow])
}

func TestWorkflow_NotificationViewWindow(t *testing.T) {
	f := newFixture(t)
	p := f.parcel(t, "1", 100)
	n := f.openSec11(t, p.ID)

	view, err := f.wf.GetNotification(f.ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 60*24*time.Hour, view.Window.Remaining)
	assert.False(t, view.Window.Breached)

	f.clock.Advance(61 * 24 * time.Hour)
	views, err := f.wf.ListNotifications(f.ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Window.Breached)
}
