package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/stwalsh4118/landflow/internal/errors"
	"github.com/stwalsh4118/landflow/internal/middleware"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/services"
)

// WorkflowHandler exposes the workflow facade over HTTP. Each route maps to
// exactly one facade operation.
type WorkflowHandler struct {
	wf *services.Workflow
}

// NewWorkflowHandler creates a new WorkflowHandler instance.
func NewWorkflowHandler(wf *services.Workflow) *WorkflowHandler {
	return &WorkflowHandler{wf: wf}
}

// ListResponse wraps collection responses.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// ReasonRequest carries the justification for voids, rejections and resets.
type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type versioned interface {
	Revision() int
}

// expectedVersion reads If-Match. A missing header means "any version".
func expectedVersion(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		apierrors.BadRequest(c, "If-Match must carry a positive entity version", map[string]interface{}{
			"if_match": c.GetHeader("If-Match"),
		})
		return 0, false
	}
	return v, true
}

func actor(c *gin.Context) models.Actor {
	a, _ := middleware.GetActor(c)
	return a
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apierrors.BindError(c, err)
		return false
	}
	return true
}

// reply writes v with its version as ETag, or maps err.
func reply(c *gin.Context, status int, v any, err error) {
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	if e, ok := v.(versioned); ok {
		c.Header("ETag", `"`+strconv.Itoa(e.Revision())+`"`)
	}
	c.JSON(status, v)
}

func replyList[T any](c *gin.Context, items []T, err error) {
	if err != nil {
		apierrors.FromError(c, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, ListResponse[T]{Items: items, Count: len(items)})
}

func create[T, C any](fn func(context.Context, models.Actor, C) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd C
		if !bind(c, &cmd) {
			return
		}
		out, err := fn(c.Request.Context(), actor(c), cmd)
		reply(c, http.StatusCreated, out, err)
	}
}

func createUnder[T, C any](fn func(context.Context, models.Actor, string, C) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd C
		if !bind(c, &cmd) {
			return
		}
		out, err := fn(c.Request.Context(), actor(c), c.Param("id"), cmd)
		reply(c, http.StatusCreated, out, err)
	}
}

func transition[T any](fn func(context.Context, models.Actor, string, int) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, ok := expectedVersion(c)
		if !ok {
			return
		}
		out, err := fn(c.Request.Context(), actor(c), c.Param("id"), version)
		reply(c, http.StatusOK, out, err)
	}
}

func transitionWith[T, C any](fn func(context.Context, models.Actor, string, int, C) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		version, ok := expectedVersion(c)
		if !ok {
			return
		}
		var cmd C
		if !bind(c, &cmd) {
			return
		}
		out, err := fn(c.Request.Context(), actor(c), c.Param("id"), version, cmd)
		reply(c, http.StatusOK, out, err)
	}
}

func withReason[T any](fn func(context.Context, models.Actor, string, int, string) (T, error)) gin.HandlerFunc {
	return transitionWith(func(ctx context.Context, a models.Actor, id string, version int, req ReasonRequest) (T, error) {
		return fn(ctx, a, id, version, req.Reason)
	})
}

func fetch[T any](fn func(context.Context, string) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := fn(c.Request.Context(), c.Param("id"))
		reply(c, http.StatusOK, out, err)
	}
}

func listAll[T any](fn func(context.Context) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := fn(c.Request.Context())
		replyList(c, items, err)
	}
}

func listUnder[T any](fn func(context.Context, string) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := fn(c.Request.Context(), c.Param("id"))
		replyList(c, items, err)
	}
}

// Register mounts every workflow route on rg. Reads are open; mutations
// need an actor identity.
func (h *WorkflowHandler) Register(rg *gin.RouterGroup) {
	w := h.wf
	write := rg.Group("", middleware.RequireActor())

	rg.GET("/parcels", listAll(w.ListParcels))
	rg.GET("/parcels/:id", fetch(w.GetParcel))
	rg.GET("/parcels/:id/valuations", listUnder(w.ListValuations))
	rg.GET("/parcels/:id/awards", listUnder(w.ListAwards))
	write.POST("/parcels", create(w.RegisterParcel))
	write.POST("/parcels/:id/possession", transition(w.RecordPossession))
	write.POST("/parcels/:id/valuations", createUnder(w.ComputeValuation))

	rg.GET("/sia", listAll(w.ListSIAs))
	rg.GET("/sia/:id", fetch(w.GetSIA))
	write.POST("/sia", create(w.CreateSIA))
	write.POST("/sia/:id/publish", transition(w.PublishSIA))
	write.POST("/sia/:id/hearings", transitionWith(w.ScheduleHearing))
	write.POST("/sia/:id/hearings/:hearingId/complete", h.CompleteHearing)
	write.POST("/sia/:id/report", transitionWith(w.GenerateReport))
	write.POST("/sia/:id/close", transition(w.CloseSIA))

	rg.GET("/notifications", listAll(w.ListNotifications))
	rg.GET("/notifications/:id", fetch(w.GetNotification))
	rg.GET("/notifications/:id/objections", listUnder(w.ListObjections))
	write.POST("/notifications", create(w.CreateNotification))
	write.POST("/notifications/:id/publish", transition(w.PublishNotification))
	write.POST("/notifications/:id/window/open", transition(w.OpenObjectionWindow))
	write.POST("/notifications/:id/window/close", transition(w.CloseObjectionWindow))
	write.POST("/notifications/:id/archive", transition(w.ArchiveNotification))
	write.POST("/notifications/:id/objections", createUnder(w.SubmitObjection))

	rg.GET("/objections/:id", fetch(w.GetObjection))
	write.POST("/objections/:id/review", transition(w.ReviewObjection))
	write.POST("/objections/:id/resolve", transitionWith(w.ResolveObjection))

	rg.GET("/valuations/:id", fetch(w.GetValuation))

	rg.GET("/awards/:id", fetch(w.GetAward))
	write.POST("/awards", create(w.DraftAward))
	write.POST("/awards/:id/approve", transition(w.ApproveAward))
	write.POST("/awards/:id/disburse", transition(w.DisburseAward))
	write.POST("/awards/:id/void", withReason(w.VoidAward))

	rg.GET("/schemes", listAll(w.ListSchemes))
	rg.GET("/schemes/:id", fetch(w.GetScheme))
	rg.GET("/schemes/:id/applications", listUnder(w.ListApplications))
	rg.GET("/schemes/:id/draws", listUnder(w.ListDraws))
	write.POST("/schemes", create(w.CreateScheme))
	write.POST("/schemes/:id/publish", transition(w.PublishScheme))
	write.POST("/schemes/:id/close", transition(w.CloseScheme))
	write.POST("/schemes/:id/applications", createUnder(w.SubmitApplication))
	write.POST("/schemes/:id/draw", h.ConductDraw)
	write.POST("/schemes/:id/draw/reset", h.ResetDraw)

	rg.GET("/properties", listAll(w.ListProperties))
	rg.GET("/properties/:id", fetch(w.GetProperty))
	write.POST("/properties", create(w.RegisterProperty))

	rg.GET("/applications/:id", fetch(w.GetApplication))
	write.POST("/applications/:id/verify", transition(w.VerifyApplication))
	write.POST("/applications/:id/reject", withReason(w.RejectApplication))

	rg.GET("/draws/:id", fetch(w.GetDraw))
	rg.GET("/draws/:id/verify", h.VerifyDraw)

	rg.GET("/service-requests", listAll(w.ListServiceRequests))
	rg.GET("/service-requests/:id", fetch(w.GetServiceRequest))
	write.POST("/service-requests", create(w.SubmitServiceRequest))
	write.POST("/service-requests/:id/review", transition(w.ReviewServiceRequest))
	write.POST("/service-requests/:id/resolve", transitionWith(w.ResolveServiceRequest))

	rg.GET("/audit/:kind/:id", h.AuditTrail)
	rg.GET("/reports/overdue", h.OverdueReport)
}
