// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/ghuser/procureflow/pkg/httpx"
	"github.com/ghuser/procureflow/pkg/mailer"
	"github.com/ghuser/procureflow/services/procurement/domain"
)

var hideInternal atomic.Bool

// HideInternalErrors makes WriteError replace 5xx messages with the status
// text. The api process turns it on in production.
func HideInternalErrors(on bool) {
	hideInternal.Store(on)
}

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	status := mapErrorToStatus(err)
	httpx.JSONError(w, status, httpx.SafeError(err, status, hideInternal.Load()))
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrganizationNotFound),
		errors.Is(err, domain.ErrSupplierNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInventoryItemNotFound),
		errors.Is(err, domain.ErrNegotiationNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, domain.ErrNegotiationClosed),
		errors.Is(err, domain.ErrNegotiationConflict):
		return http.StatusConflict // 409
	case errors.Is(err, domain.ErrNegotiationExpired):
		return http.StatusGone // 410
	case errors.Is(err, domain.ErrUnknownTaskType),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrNoSupplierContact),
		errors.Is(err, domain.ErrNoCatalogAccess):
		return http.StatusUnprocessableEntity // 422
	case errors.Is(err, domain.ErrAdapterFailed):
		return http.StatusBadGateway // 502
	case errors.Is(err, mailer.ErrNotConfigured):
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
