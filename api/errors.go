package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"trello-api/domain"
)

const internalErrorMessage = "Internal Server Error"

type errorResponse struct {
	Message string       `json:"message"`
	Error   *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Kind   string `json:"kind"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ErrorHandler renders every handler error as {message, error}. The error
// object is only filled in development.
func ErrorHandler(development bool, logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, kind, msg := classifyError(err)
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
			}).Error("request failed")
		}

		resp := errorResponse{Message: msg}
		if development {
			resp.Error = &errorDetail{Kind: kind.String(), Status: status, Detail: err.Error()}
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, resp)
		}
		if werr != nil {
			logger.WithError(werr).Warn("writing error response failed")
		}
	}
}

func classifyError(err error) (int, domain.Kind, string) {
	var de *domain.Error
	if errors.As(err, &de) {
		status := de.Kind.HTTPStatus()
		if status >= http.StatusInternalServerError {
			return status, de.Kind, internalErrorMessage
		}
		return status, de.Kind, de.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		kind := kindForStatus(he.Code)
		if he.Code >= http.StatusInternalServerError {
			return he.Code, kind, internalErrorMessage
		}
		if s, ok := he.Message.(string); ok {
			return he.Code, kind, s
		}
		return he.Code, kind, fmt.Sprint(he.Message)
	}

	switch kind := domain.KindOf(err); kind {
	case domain.KindInternal:
		return http.StatusInternalServerError, kind, internalErrorMessage
	default:
		return kind.HTTPStatus(), kind, http.StatusText(kind.HTTPStatus())
	}
}

func kindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status == http.StatusUnauthorized:
		return domain.KindUnauthorized
	case status == http.StatusConflict:
		return domain.KindConflict
	case status >= http.StatusInternalServerError:
		return domain.KindInternal
	default:
		return domain.KindBadRequest
	}
}

// storeError classifies a storage failure. Missing entities become 404 with msg.
func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NotFound(msg)
	case errors.Is(err, domain.ErrConflict):
		return domain.Conflict(msg)
	default:
		return domain.Internal(err)
	}
}
