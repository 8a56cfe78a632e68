package concept

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/labimport/internal/platform/auth"
	"github.com/ehr/labimport/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/concepts", h.SearchConcepts)
	read.GET("/concepts/:uuid", h.GetConcept)
}

func (h *Handler) GetConcept(c echo.Context) error {
	con, err := h.svc.GetConcept(c.Request().Context(), c.Param("uuid"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "concept not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, con)
}

func (h *Handler) SearchConcepts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, err := h.svc.SearchConcepts(c.Request().Context(), c.QueryParam("q"), pg.Limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out := make([]Summary, len(items))
	for i, item := range items {
		out[i] = item.Summary()
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, len(out), pg.Limit, 0))
}
