package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	models "DriftWatch/internal/domain/models"
	domrepo "DriftWatch/internal/domain/repository"
	"DriftWatch/internal/service/metrics"
	"DriftWatch/internal/usecase"
	xhttp "DriftWatch/pkg/http"
	xlogger "DriftWatch/pkg/logger"
)

// RolloutHandler exposes the operator surface: canary state, metrics export,
// alert history, and the rollout transitions.
type RolloutHandler struct {
	logger  *xlogger.Logger
	monitor *usecase.SafetyMonitor
	state   *usecase.RolloutStateStore
	store   domrepo.AlertStore
}

func NewRolloutHandler(logger *xlogger.Logger, monitor *usecase.SafetyMonitor, state *usecase.RolloutStateStore, store domrepo.AlertStore) *RolloutHandler {
	metrics.Register()
	return &RolloutHandler{logger: logger, monitor: monitor, state: state, store: store}
}

func (h *RolloutHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/export", h.Export)
	g.GET("/opportunities", h.Opportunities)
	g.GET("/rollout", h.RolloutState)
	g.POST("/rollout/gradual", h.GradualRollout)
	g.POST("/rollout/confirm", h.ConfirmCutover)
	g.POST("/rollout/rollback", h.Rollback)
}

func (h *RolloutHandler) Health(c echo.Context) error {
	if h.store != nil {
		if err := h.store.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health: store unreachable", xlogger.Error(err))
			return xhttp.DataResponse(c, 503, map[string]string{"status": "degraded"})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *RolloutHandler) Export(c echo.Context) error {
	start := time.Now()
	endpoint := "export"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	export := h.monitor.Export(req.Samples)
	if len(export.Audit) > req.Audit {
		export.Audit = export.Audit[len(export.Audit)-req.Audit:]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, export)
}

func (h *RolloutHandler) Opportunities(c echo.Context) error {
	start := time.Now()
	endpoint := "opportunities"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.OpportunitiesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" {
		return xhttp.BadRequestResponse(c, "symbol required")
	}
	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(req.From, now.Add(-24*time.Hour))
	to := xhttp.ParseTimeDefault(req.To, now)
	from, to = xhttp.AlignRange(from, to, time.Minute)

	alerts, err := h.store.QueryAlerts(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("opportunities query error", xlogger.Error(err))
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *RolloutHandler) RolloutState(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.state.Snapshot())
}

func (h *RolloutHandler) GradualRollout(c echo.Context) error {
	start := time.Now()
	endpoint := "rollout_gradual"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.GradualRolloutRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.monitor.BeginGradualRollout(c.Request().Context(), req.Percentage); err != nil {
		h.logger.Error("gradual rollout error", xlogger.Error(err))
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, h.state.Snapshot())
}

func (h *RolloutHandler) ConfirmCutover(c echo.Context) error {
	endpoint := "rollout_confirm"
	if err := h.monitor.ConfirmCutover(c.Request().Context()); err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		if errors.Is(err, usecase.ErrCutoverNotReady) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.state.Snapshot())
}

func (h *RolloutHandler) Rollback(c echo.Context) error {
	endpoint := "rollout_rollback"
	req := &models.RollbackRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}
	h.monitor.ForceRollback(c.Request().Context(), "operator: "+req.Reason)
	return xhttp.SuccessResponse(c, h.state.Snapshot())
}
