package resultimport

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/domain/worksheet"
	"github.com/ehr/labimport/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	mappings *fieldmapping.Service
}

func NewHandler(svc *Service, mappings *fieldmapping.Service) *Handler {
	return &Handler{svc: svc, mappings: mappings}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.ReadRoles...))
	read.GET("/concepts/:uuid/fields", h.GetConceptFields)
	read.GET("/result-imports/:id", h.GetImport)

	write := api.Group("", auth.RequireRole(auth.WriteRoles...))
	write.POST("/result-imports", h.StartImport)
	write.DELETE("/result-imports/:id", h.DiscardImport)
	write.POST("/result-imports/:id/mapping", h.SubmitMapping)
}

func (h *Handler) GetConceptFields(c echo.Context) error {
	field, err := h.mappings.FieldTree(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, fieldmapping.View(field))
}

func (h *Handler) StartImport(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	wsID, err := uuid.Parse(c.FormValue("worksheet"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid worksheet id")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	view, err := h.svc.StartImport(c.Request().Context(), UploadRequest{
		File:        f,
		FileName:    fh.Filename,
		Separator:   c.FormValue("separator"),
		Quote:       c.FormValue("quote"),
		Charset:     c.FormValue("charset"),
		ConceptUUID: c.FormValue("concept"),
		WorksheetID: wsID,
		UserID:      auth.UserIDFromContext(c.Request().Context()),
	})
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) GetImport(c echo.Context) error {
	view, err := h.svc.GetImport(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DiscardImport(c echo.Context) error {
	if err := h.svc.DiscardImport(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type validationResponse struct {
	Message string                        `json:"message"`
	Errors  fieldmapping.ValidationErrors `json:"errors"`
}

func (h *Handler) SubmitMapping(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.SubmitMapping(c.Request().Context(), c.Param("id"), req)
	var verrs fieldmapping.ValidationErrors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusUnprocessableEntity, validationResponse{Message: "invalid field mapping", Errors: verrs})
	}
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidUpload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "import session not found")
	case errors.Is(err, ErrImportInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, concept.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "concept not found")
	case errors.Is(err, worksheet.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "worksheet not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
