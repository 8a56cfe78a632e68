package worksheet

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/labimport/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/worksheets/:id", h.GetWorksheet)
	read.GET("/worksheets/:id/items", h.ListItems)
	read.GET("/worksheet-items/:id/results", h.ListResults)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/worksheets", h.CreateWorksheet)
	write.POST("/worksheets/:id/items", h.AddItem)
}

func (h *Handler) CreateWorksheet(c echo.Context) error {
	var ws Worksheet
	if err := c.Bind(&ws); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		ws.CreatedBy = &uid
	}
	if err := h.svc.CreateWorksheet(c.Request().Context(), &ws); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, ws)
}

func (h *Handler) GetWorksheet(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ws, err := h.svc.GetWorksheet(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "worksheet not found")
	}
	return c.JSON(http.StatusOK, ws)
}

type addItemRequest struct {
	SampleAccessionNumber string `json:"sample_accession_number"`
	ConceptUUID           string `json:"concept_uuid"`
	Status                string `json:"status"`
	CanEditResults        *bool  `json:"can_edit_results"`
}

func (h *Handler) AddItem(c echo.Context) error {
	wsID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	item := &Item{
		WorksheetID:           wsID,
		SampleAccessionNumber: req.SampleAccessionNumber,
		ConceptUUID:           req.ConceptUUID,
		Status:                req.Status,
		CanEditResults:        true,
	}
	if req.CanEditResults != nil {
		item.CanEditResults = *req.CanEditResults
	}
	if err := h.svc.AddItem(c.Request().Context(), item); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "worksheet not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListItems(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var items []*Item
	if c.QueryParam("pending") == "true" {
		items, err = h.svc.ListPending(c.Request().Context(), id)
	} else {
		items, err = h.svc.ListItems(c.Request().Context(), id)
	}
	if err != nil {
		return mapError(err, "worksheet not found")
	}
	if items == nil {
		items = []*Item{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	results, err := h.svc.ListResults(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "worksheet item not found")
	}
	if results == nil {
		results = []*ItemResult{}
	}
	return c.JSON(http.StatusOK, results)
}

func mapError(err error, notFoundMsg string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFoundMsg)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
