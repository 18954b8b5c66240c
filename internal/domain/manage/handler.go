package manage

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/healthos/healthos/internal/platform/auth"
	"github.com/healthos/healthos/pkg/pagination"
)

const (
	defaultDashboardHours = 24
	maxDashboardHours     = 24 * 30
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// outcomeResponse is the envelope for a single prediction.
type outcomeResponse[T any] struct {
	Success bool `json:"success"`
	Outcome[T]
}

type dataResponse[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/manage")

	clinical := g.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	clinical.POST("/triage", h.ClassifyTriage)

	desk := g.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleFrontDesk, auth.RoleOperations))
	desk.POST("/wait-time", h.PredictWaitTime)
	desk.POST("/check-in", h.CheckIn)

	ops := g.Group("", auth.RequireRole(auth.RoleOperations))
	ops.POST("/optimize", h.OptimizeResources)
	ops.GET("/status", h.Status)
	ops.GET("/dashboard", h.Dashboard)
	ops.GET("/predictions", h.ListPredictions)
}

func bindQueue(c echo.Context) (QueueState, error) {
	var q QueueState
	if err := c.Bind(&q); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := q.Validate(); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return q, nil
}

func (h *Handler) PredictWaitTime(c echo.Context) error {
	q, err := bindQueue(c)
	if err != nil {
		return err
	}
	out := h.svc.PredictWaitTime(c.Request().Context(), q)
	return c.JSON(http.StatusOK, outcomeResponse[WaitTimePrediction]{Success: true, Outcome: out})
}

func (h *Handler) ClassifyTriage(c echo.Context) error {
	var p PatientInfo
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := p.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out := h.svc.ClassifyTriage(c.Request().Context(), p)
	return c.JSON(http.StatusOK, outcomeResponse[TriageResult]{Success: true, Outcome: out})
}

func (h *Handler) OptimizeResources(c echo.Context) error {
	q, err := bindQueue(c)
	if err != nil {
		return err
	}
	out := h.svc.OptimizeResources(c.Request().Context(), q)
	return c.JSON(http.StatusOK, outcomeResponse[ResourceOptimization]{Success: true, Outcome: out})
}

func (h *Handler) CheckIn(c echo.Context) error {
	var req CheckInRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ci, err := h.svc.CheckIn(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, dataResponse[*CheckIn]{Success: true, Data: ci})
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, dataResponse[Status]{Success: true, Data: h.svc.Status()})
}

func (h *Handler) Dashboard(c echo.Context) error {
	hours := defaultDashboardHours
	if raw := c.QueryParam("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDashboardHours {
			return echo.NewHTTPError(http.StatusBadRequest, "hours must be between 1 and 720")
		}
		hours = n
	}
	since := h.svc.now().Add(-time.Duration(hours) * time.Hour).UTC()

	d, err := h.svc.Dashboard(c.Request().Context(), since)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dataResponse[*Dashboard]{Success: true, Data: d})
}

func (h *Handler) ListPredictions(c echo.Context) error {
	p := pagination.FromContext(c)
	kind := c.QueryParam("kind")

	records, total, err := h.svc.ListPredictions(c.Request().Context(), kind, p.Limit, p.Offset)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	var extra string
	if kind != "" {
		extra = url.Values{"kind": {kind}}.Encode()
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p, c.Request().URL.Path, extra))
}
