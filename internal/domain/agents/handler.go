// Package agents reserves the routes of the HealthOS agents that have no
// implementation behind them yet.
package agents

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Unimplemented lists the agents whose routes answer 501.
var Unimplemented = []string{"insights", "integration", "market", "make"}

type Handler struct {
	names []string
}

func NewHandler(names ...string) *Handler {
	if len(names) == 0 {
		names = Unimplemented
	}
	return &Handler{names: names}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	for _, name := range h.names {
		handler := notImplemented(name)
		api.Any("/"+name, handler)
		api.Any("/"+name+"/*", handler)
	}
}

func notImplemented(agent string) echo.HandlerFunc {
	msg := fmt.Sprintf("the %s agent is not implemented", agent)
	return func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotImplemented, msg)
	}
}
