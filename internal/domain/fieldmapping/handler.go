package fieldmapping

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/labimport/internal/domain/concept"
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
	read.GET("/field-mappings", h.ListMappings)
	read.GET("/field-mappings/:id", h.GetMapping)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/field-mappings/validate", h.ValidateMapping)
	write.DELETE("/field-mappings/:id", h.DeleteMapping)
}

type validateResponse struct {
	Valid  bool             `json:"valid"`
	Errors ValidationErrors `json:"errors,omitempty"`
}

func (h *Handler) ValidateMapping(c echo.Context) error {
	var fm FieldMapping
	if err := c.Bind(&fm); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	verrs, err := h.svc.Validate(c.Request().Context(), fm)
	if errors.Is(err, concept.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "concept not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(verrs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, validateResponse{Errors: verrs})
	}
	return c.JSON(http.StatusOK, validateResponse{Valid: true})
}

func (h *Handler) GetMapping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetMapping(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "field mapping not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListMappings(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListMappings(c.Request().Context(), c.QueryParam("concept"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path))
}

func (h *Handler) DeleteMapping(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteMapping(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "field mapping not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
