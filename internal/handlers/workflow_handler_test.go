package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stwalsh4118/landflow/internal/authz"
	apierrors "github.com/stwalsh4118/landflow/internal/errors"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/repository"
	"github.com/stwalsh4118/landflow/internal/services"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type apiClient struct {
	t      *testing.T
	router *gin.Engine
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	wf := services.NewWorkflow(services.Deps{
		Store:  repository.NewMemoryStore(),
		Policy: authz.Default(),
		Log:    logger.Nop(),
		Now:    func() time.Time { return now },
	}, services.Settings{
		ObjectionWindow: 60 * 24 * time.Hour,
		RequestSLA:      map[models.RequestType]time.Duration{models.RequestCertificate: 7 * 24 * time.Hour},
	})
	return &apiClient{t: t, router: NewRouter(RouterConfig{
		Workflow:  wf,
		Log:       logger.Nop(),
		Origins:   []string{"http://localhost:3000"},
		Env:       "test",
		StoreKind: "memory",
	})}
}

type call struct {
	method  string
	path    string
	role    models.Role
	ifMatch string
	body    any
}

func (a *apiClient) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.role != "" {
		req.Header.Set("X-Actor-ID", "u-"+string(c.role))
		req.Header.Set("X-Actor-Role", string(c.role))
	}
	if c.ifMatch != "" {
		req.Header.Set("If-Match", c.ifMatch)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// ok performs c, asserts the status and decodes the body into a map.
func (a *apiClient) ok(c call, status int) map[string]any {
	a.t.Helper()
	w := a.do(c)
	require.Equal(a.t, status, w.Code, "%s %s: %s", c.method, c.path, w.Body.String())
	var out map[string]any
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorDetail {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func (a *apiClient) registerParcel(no string) string {
	out := a.ok(call{method: http.MethodPost, path: "/api/v1/parcels", role: models.RoleLandOfficer, body: map[string]any{
		"parcelNo": no,
		"location": map[string]string{"village": "Wagholi", "taluka": "Haveli", "district": "Pune"},
		"areaSqM":  1200,
	}}, http.StatusCreated)
	return out["id"].(string)
}

func TestWorkflowHandler_RegisterParcel(t *testing.T) {
	api := newAPI(t)

	w := api.do(call{method: http.MethodPost, path: "/api/v1/parcels", role: models.RoleLandOfficer, body: map[string]any{
		"parcelNo": "42/1",
		"location": map[string]string{"village": "Wagholi", "taluka": "Haveli", "district": "Pune"},
		"areaSqM":  1200,
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))

	var parcel models.Parcel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parcel))
	assert.Equal(t, models.ParcelUnaffected, parcel.Status)

	got := api.ok(call{method: http.MethodGet, path: "/api/v1/parcels/" + parcel.ID}, http.StatusOK)
	assert.Equal(t, "42/1", got["parcelNo"])

	list := api.ok(call{method: http.MethodGet, path: "/api/v1/parcels"}, http.StatusOK)
	assert.EqualValues(t, 1, list["count"])
}

func TestWorkflowHandler_Errors(t *testing.T) {
	api := newAPI(t)
	parcelID := api.registerParcel("1")

	tests := []struct {
		name   string
		call   call
		status int
		code   string
	}{
		{
			name:   "anonymous mutation",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels", body: map[string]any{}},
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "forbidden role",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels/" + parcelID + "/possession", role: models.RoleCitizen},
			status: http.StatusForbidden,
			code:   apierrors.ErrForbidden,
		},
		{
			name:   "binding failure uses json names",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels", role: models.RoleLandOfficer, body: map[string]any{"areaSqM": 10}},
			status: http.StatusBadRequest,
			code:   apierrors.ErrValidation,
		},
		{
			name:   "malformed body",
			call:   call{method: http.MethodPost, path: "/api/v1/sia", role: models.RoleCaseOfficer, body: "not an object"},
			status: http.StatusBadRequest,
			code:   apierrors.ErrBadRequest,
		},
		{
			name:   "bad If-Match",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels/" + parcelID + "/possession", role: models.RoleLandOfficer, ifMatch: "abc"},
			status: http.StatusBadRequest,
			code:   apierrors.ErrBadRequest,
		},
		{
			name:   "stale If-Match",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels/" + parcelID + "/possession", role: models.RoleLandOfficer, ifMatch: `"7"`},
			status: http.StatusConflict,
			code:   apierrors.ErrVersionConflict,
		},
		{
			name:   "illegal transition",
			call:   call{method: http.MethodPost, path: "/api/v1/parcels/" + parcelID + "/possession", role: models.RoleLandOfficer, ifMatch: `"1"`},
			status: http.StatusConflict,
			code:   apierrors.ErrIllegalTransition,
		},
		{
			name:   "unknown entity",
			call:   call{method: http.MethodGet, path: "/api/v1/schemes/missing"},
			status: http.StatusNotFound,
			code:   apierrors.ErrNotFound,
		},
		{
			name:   "unknown audit kind",
			call:   call{method: http.MethodGet, path: "/api/v1/audit/village/x"},
			status: http.StatusBadRequest,
			code:   apierrors.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(tt.call)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w).Code)
		})
	}

	w := api.do(call{method: http.MethodPost, path: "/api/v1/parcels", role: models.RoleLandOfficer, body: map[string]any{"areaSqM": 10}})
	assert.Equal(t, "This field is required", errorCode(t, w).Details["parcelNo"])
}

func TestWorkflowHandler_ObjectionFlow(t *testing.T) {
	api := newAPI(t)
	affected := api.registerParcel("1")
	other := api.registerParcel("2")

	n := api.ok(call{method: http.MethodPost, path: "/api/v1/notifications", role: models.RoleCaseOfficer, body: map[string]any{
		"type": "sec11", "title": "Ring road", "gazetteRef": "GZ-1", "parcelIds": []string{affected},
	}}, http.StatusCreated)
	id := n["id"].(string)

	api.ok(call{method: http.MethodPost, path: "/api/v1/notifications/" + id + "/publish", role: models.RoleCaseOfficer, ifMatch: `"1"`}, http.StatusOK)
	opened := api.ok(call{method: http.MethodPost, path: "/api/v1/notifications/" + id + "/window/open", role: models.RoleCaseOfficer}, http.StatusOK)
	assert.Equal(t, string(models.NotificationWindowOpen), opened["status"])

	view := api.ok(call{method: http.MethodGet, path: "/api/v1/notifications/" + id}, http.StatusOK)
	window := view["window"].(map[string]any)
	assert.Equal(t, false, window["breached"])

	body := func(parcelID string) map[string]any {
		return map[string]any{
			"parcelId":  parcelID,
			"submitter": map[string]string{"name": "Sunita Patil", "phone": "9876543210"},
			"text":      "Boundary is wrong",
		}
	}
	w := api.do(call{method: http.MethodPost, path: "/api/v1/notifications/" + id + "/objections", role: models.RoleCitizen, body: body(other)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	obj := api.ok(call{method: http.MethodPost, path: "/api/v1/notifications/" + id + "/objections", role: models.RoleCitizen, body: body(affected)}, http.StatusCreated)
	objID := obj["id"].(string)

	list := api.ok(call{method: http.MethodGet, path: "/api/v1/notifications/" + id + "/objections"}, http.StatusOK)
	assert.EqualValues(t, 1, list["count"])

	api.ok(call{method: http.MethodPost, path: "/api/v1/objections/" + objID + "/review", role: models.RoleCaseOfficer}, http.StatusOK)
	resolved := api.ok(call{method: http.MethodPost, path: "/api/v1/objections/" + objID + "/resolve", role: models.RoleCaseOfficer, body: map[string]any{
		"status": "resolved", "resolution": "Boundary corrected in schedule",
	}}, http.StatusOK)
	assert.Equal(t, "resolved", resolved["status"])

	audit := api.ok(call{method: http.MethodGet, path: "/api/v1/audit/objection/" + objID}, http.StatusOK)
	assert.EqualValues(t, 3, audit["count"])
}

func TestWorkflowHandler_DrawFlow(t *testing.T) {
	api := newAPI(t)

	var inventory []string
	for i := 1; i <= 2; i++ {
		p := api.ok(call{method: http.MethodPost, path: "/api/v1/properties", role: models.RoleSchemeOfficer, body: map[string]any{
			"code": fmt.Sprintf("FLAT-%03d", i),
		}}, http.StatusCreated)
		inventory = append(inventory, p["id"].(string))
	}

	sc := api.ok(call{method: http.MethodPost, path: "/api/v1/schemes", role: models.RoleSchemeOfficer, body: map[string]any{
		"name":                "EWS housing",
		"eligibility":         map[string]any{"maxAnnualIncome": 300000},
		"applicationDeadline": now.Add(30 * 24 * time.Hour),
		"inventory":           inventory,
	}}, http.StatusCreated)
	schemeID := sc["id"].(string)
	api.ok(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/publish", role: models.RoleSchemeOfficer}, http.StatusOK)

	for i := 0; i < 4; i++ {
		app := api.ok(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/applications", role: models.RoleCitizen, body: map[string]any{
			"partyId": fmt.Sprintf("party-%d", i), "applicantName": fmt.Sprintf("Applicant %d", i), "annualIncome": 120000,
		}}, http.StatusCreated)
		api.ok(call{method: http.MethodPost, path: "/api/v1/applications/" + app["id"].(string) + "/verify", role: models.RoleSchemeOfficer}, http.StatusOK)
	}

	for _, k := range []int{5, 0, -1} {
		w := api.do(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/draw", role: models.RoleSchemeOfficer, body: map[string]any{"selectedCount": k}})
		assert.Equal(t, http.StatusConflict, w.Code, "selectedCount=%d", k)
		assert.Equal(t, apierrors.ErrPrecondition, errorCode(t, w).Code, "selectedCount=%d", k)
	}

	w := api.do(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/draw", role: models.RoleSchemeOfficer, body: map[string]any{"selectedCount": 2}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("ETag"))
	var drawn DrawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &drawn))
	assert.Len(t, drawn.Draw.Permutation, 4)
	assert.Equal(t, 2, drawn.Draw.SelectedCount)

	verify := api.ok(call{method: http.MethodGet, path: "/api/v1/draws/" + drawn.Draw.ID + "/verify"}, http.StatusOK)
	assert.Equal(t, true, verify["verified"])

	w = api.do(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/draw", role: models.RoleSchemeOfficer, body: map[string]any{"selectedCount": 2}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/draw/reset", role: models.RoleAdmin, body: map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reason is required")

	reset := api.ok(call{method: http.MethodPost, path: "/api/v1/schemes/" + schemeID + "/draw/reset", role: models.RoleAdmin, body: map[string]any{
		"reason": "Court order 114/2026",
	}}, http.StatusOK)
	assert.Equal(t, true, reset["draw"].(map[string]any)["voided"])

	draws := api.ok(call{method: http.MethodGet, path: "/api/v1/schemes/" + schemeID + "/draws"}, http.StatusOK)
	assert.EqualValues(t, 1, draws["count"])
}

func TestWorkflowHandler_ServiceRequestsAndOverdue(t *testing.T) {
	api := newAPI(t)

	r := api.ok(call{method: http.MethodPost, path: "/api/v1/service-requests", role: models.RoleCitizen, body: map[string]any{
		"type": "certificate", "applicantName": "Ravi", "contact": "9822001122", "description": "7/12 extract",
	}}, http.StatusCreated)

	view := api.ok(call{method: http.MethodGet, path: "/api/v1/service-requests/" + r["id"].(string)}, http.StatusOK)
	assert.Equal(t, false, view["sla"].(map[string]any)["breached"])

	report := api.ok(call{method: http.MethodGet, path: "/api/v1/reports/overdue"}, http.StatusOK)
	assert.Empty(t, report["items"])
	assert.EqualValues(t, 0, report["counts"].(map[string]any)[services.DeadlineServiceRequest])

	resolved := api.ok(call{method: http.MethodPost, path: "/api/v1/service-requests/" + r["id"].(string) + "/resolve", role: models.RoleCaseOfficer, body: map[string]any{
		"status": "completed", "resolution": "Issued",
	}}, http.StatusOK)
	assert.Equal(t, "completed", resolved["status"])
}
