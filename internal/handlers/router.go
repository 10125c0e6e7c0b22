package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/stwalsh4118/landflow/internal/errors"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/middleware"
	"github.com/stwalsh4118/landflow/internal/services"
)

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Workflow  *services.Workflow
	Log       *logger.Logger
	Origins   []string
	Env       string
	StoreKind string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

var registerValidator sync.Once

// NewRouter builds the gin engine with the middleware chain
// RequestID -> Logger -> Recovery -> CORS -> Actor.
func NewRouter(cfg RouterConfig) *gin.Engine {
	registerValidator.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := apierrors.RegisterValidator(v); err != nil {
				cfg.Log.Error("Failed to register validation messages", err, nil)
			}
		}
	})

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(cfg.Log))
	router.Use(middleware.Recovery(cfg.Log))
	router.Use(middleware.CORS(cfg.Origins))
	router.Use(middleware.Actor())

	health := NewHealthHandler(cfg.Workflow, cfg.StoreKind, cfg.Env)
	router.GET("/health", health.Health)
	router.GET("/health/ready", health.Ready)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/info", health.Info)
	NewWorkflowHandler(cfg.Workflow).Register(v1)

	return router
}
