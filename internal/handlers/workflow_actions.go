package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/stwalsh4118/landflow/internal/errors"
	"github.com/stwalsh4118/landflow/internal/middleware"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/services"
)

// DrawResponse is the outcome of a draw or reset. ETag is not set: the
// If-Match version applies to the scheme, not to the draw record.
type DrawResponse struct {
	Draw *models.DrawRecord `json:"draw"`
}

// VerifyResponse reports whether a stored draw reproduces from its inputs.
type VerifyResponse struct {
	DrawID   string `json:"drawId"`
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// CompleteHearing handles POST /api/v1/sia/:id/hearings/:hearingId/complete.
func (h *WorkflowHandler) CompleteHearing(c *gin.Context) {
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var cmd services.CompleteHearingCmd
	if !bind(c, &cmd) {
		return
	}
	out, err := h.wf.CompleteHearing(c.Request.Context(), actor(c), c.Param("id"), version, c.Param("hearingId"), cmd)
	reply(c, http.StatusOK, out, err)
}

// ConductDraw handles POST /api/v1/schemes/:id/draw.
func (h *WorkflowHandler) ConductDraw(c *gin.Context) {
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var cmd services.ConductDrawCmd
	if !bind(c, &cmd) {
		return
	}
	rec, err := h.wf.ConductDraw(c.Request.Context(), actor(c), c.Param("id"), version, cmd)
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	c.JSON(http.StatusCreated, DrawResponse{Draw: rec})
}

// ResetDraw handles POST /api/v1/schemes/:id/draw/reset.
func (h *WorkflowHandler) ResetDraw(c *gin.Context) {
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var req ReasonRequest
	if !bind(c, &req) {
		return
	}
	rec, err := h.wf.ResetDraw(c.Request.Context(), actor(c), c.Param("id"), version, req.Reason)
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, DrawResponse{Draw: rec})
}

// VerifyDraw handles GET /api/v1/draws/:id/verify. It replays the stored
// nonce over the stored candidates and compares the permutation.
func (h *WorkflowHandler) VerifyDraw(c *gin.Context) {
	rec, err := h.wf.GetDraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	resp := VerifyResponse{DrawID: rec.ID, Verified: true}
	if err := services.VerifyDraw(rec); err != nil {
		resp.Verified = false
		resp.Reason = err.Error()
		if log := middleware.GetLogger(c); log != nil {
			log.Warn("Stored draw failed verification", map[string]interface{}{
				"draw_id": rec.ID,
				"reason":  err.Error(),
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// AuditTrail handles GET /api/v1/audit/:kind/:id.
func (h *WorkflowHandler) AuditTrail(c *gin.Context) {
	kind := models.Kind(c.Param("kind"))
	if !kind.Valid() {
		apierrors.BadRequest(c, "Unknown entity kind", map[string]interface{}{"kind": kind})
		return
	}
	entries, err := h.wf.AuditTrail(c.Request.Context(), kind, c.Param("id"))
	replyList(c, entries, err)
}

// OverdueReport handles GET /api/v1/reports/overdue.
func (h *WorkflowHandler) OverdueReport(c *gin.Context) {
	report, err := h.wf.OverdueReport(c.Request.Context())
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
