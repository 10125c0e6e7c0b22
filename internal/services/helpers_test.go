package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/landflow/internal/authz"
	"github.com/stwalsh4118/landflow/internal/events"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/metrics"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
)

var (
	admin         = models.Actor{ID: "u-admin", Role: models.RoleAdmin}
	caseOfficer   = models.Actor{ID: "u-case", Role: models.RoleCaseOfficer}
	landOfficer   = models.Actor{ID: "u-land", Role: models.RoleLandOfficer}
	valuer        = models.Actor{ID: "u-val", Role: models.RoleValuationOfficer}
	schemeOfficer = models.Actor{ID: "u-scheme", Role: models.RoleSchemeOfficer}
	citizen       = models.Actor{ID: "u-citizen", Role: models.RoleCitizen}

	t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	wf       *Workflow
	store    *repository.MemoryStore
	recorder *events.Recorder
	clock    *fakeClock
	metrics  *metrics.Metrics
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		recorder: &events.Recorder{},
		clock:    &fakeClock{now: t0},
		metrics:  metrics.New(prometheus.NewRegistry()),
		ctx:      context.Background(),
	}
	seq := 0
	f.wf = NewWorkflow(Deps{
		Store:     f.store,
		Policy:    authz.Default(),
		Publisher: f.recorder,
		Metrics:   f.metrics,
		Log:       logger.Nop(),
		Now:       f.clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%04d", seq)
		},
	}, Settings{
		ObjectionWindow: 60 * 24 * time.Hour,
		RequestSLA: map[models.RequestType]time.Duration{
			models.RequestCertificate: 7 * 24 * time.Hour,
			models.RequestGrievance:   15 * 24 * time.Hour,
		},
	})
	return f
}

func (f *fixture) parcel(t *testing.T, no string, area float64) *models.Parcel {
	t.Helper()
	p, err := f.wf.RegisterParcel(f.ctx, landOfficer, RegisterParcelCmd{
		ParcelNo: no,
		Location: models.ParcelLocation{Village: "Wagholi", Taluka: "Haveli", District: "Pune"},
		AreaSqM:  area,
	})
	require.NoError(t, err)
	return p
}

// openSec11 creates a sec11 notice over parcelIDs with its objection window open.
func (f *fixture) openSec11(t *testing.T, parcelIDs ...string) *models.Notification {
	t.Helper()
	n, err := f.wf.CreateNotification(f.ctx, caseOfficer, CreateNotificationCmd{
		Type:       models.NotificationSec11,
		Title:      "Ring road phase 2",
		GazetteRef: "GZ-2026-114",
		ParcelIDs:  parcelIDs,
	})
	require.NoError(t, err)
	_, err = f.wf.PublishNotification(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	n, err = f.wf.OpenObjectionWindow(f.ctx, caseOfficer, n.ID, 0)
	require.NoError(t, err)
	return n
}

func objectionCmd(parcelID string) SubmitObjectionCmd {
	return SubmitObjectionCmd{
		ParcelID:  parcelID,
		Submitter: models.Submitter{Name: "Sunita Patil", Phone: "9876543210"},
		Text:      "The boundary in the schedule is wrong.",
	}
}

// schemeWithApplicants publishes a scheme over inventory and verifies n applications.
func (f *fixture) schemeWithApplicants(t *testing.T, n int, inventory ...string) (*models.Scheme, []*models.Application) {
	t.Helper()
	sc, err := f.wf.CreateScheme(f.ctx, schemeOfficer, CreateSchemeCmd{
		Name:                "EWS housing 2026",
		Eligibility:         models.Eligibility{MaxAnnualIncome: 300000},
		ApplicationDeadline: t0.Add(30 * 24 * time.Hour),
		Inventory:           inventory,
	})
	require.NoError(t, err)
	sc, err = f.wf.PublishScheme(f.ctx, schemeOfficer, sc.ID, 0)
	require.NoError(t, err)

	apps := make([]*models.Application, 0, n)
	for i := 0; i < n; i++ {
		app, err := f.wf.SubmitApplication(f.ctx, citizen, sc.ID, SubmitApplicationCmd{
			PartyID:       fmt.Sprintf("party-%02d", i),
			ApplicantName: fmt.Sprintf("Applicant %02d", i),
			AnnualIncome:  150000,
		})
		require.NoError(t, err)
		app, err = f.wf.VerifyApplication(f.ctx, schemeOfficer, app.ID, 0)
		require.NoError(t, err)
		apps = append(apps, app)
	}
	return sc, apps
}

func (f *fixture) properties(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, err := f.wf.RegisterProperty(f.ctx, schemeOfficer, RegisterPropertyCmd{Code: fmt.Sprintf("FLAT-%03d", i+1)})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}
