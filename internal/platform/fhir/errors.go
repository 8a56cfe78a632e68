package fhir

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// IssueTypeForStatus maps an HTTP status to the closest issue type code.
func IssueTypeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return IssueTypeInvalid
	case http.StatusUnauthorized:
		return IssueTypeLogin
	case http.StatusForbidden:
		return IssueTypeForbidden
	case http.StatusNotFound:
		return IssueTypeNotFound
	case http.StatusMethodNotAllowed:
		return IssueTypeNotSupported
	case http.StatusConflict:
		return IssueTypeConflict
	case http.StatusRequestEntityTooLarge:
		return IssueTypeTooLong
	case http.StatusUnprocessableEntity:
		return IssueTypeProcessing
	case http.StatusTooManyRequests:
		return IssueTypeThrottled
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return IssueTypeTimeout
	}
	if status >= 500 {
		return IssueTypeException
	}
	return IssueTypeProcessing
}

// ErrorHandler returns an echo.HTTPErrorHandler that renders every error as
// an OperationOutcome. Server errors are logged and their detail is hidden
// from the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}

		severity := IssueSeverityError
		if status >= 500 {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", status).
				Msg("request failed")
			severity = IssueSeverityFatal
			msg = http.StatusText(status)
		}

		oo := NewOperationOutcome(severity, IssueTypeForStatus(status), msg)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, oo)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
