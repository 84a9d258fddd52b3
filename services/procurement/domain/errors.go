package domain

import "errors"

// Sentinel errors for the procurement domain. Use errors.Is() to check these.
var (
	// ErrOrganizationNotFound indicates the requested organization does not exist.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrSupplierNotFound indicates the requested supplier does not exist or is deactivated.
	ErrSupplierNotFound = errors.New("supplier not found")

	// ErrProductNotFound indicates the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrInventoryItemNotFound indicates the requested inventory item does not exist.
	ErrInventoryItemNotFound = errors.New("inventory item not found")

	// ErrNegotiationNotFound indicates the requested negotiation does not exist.
	ErrNegotiationNotFound = errors.New("negotiation not found")

	// ErrNegotiationClosed indicates a reply arrived for a negotiation already in a terminal state.
	ErrNegotiationClosed = errors.New("negotiation already closed")

	// ErrNegotiationExpired indicates the negotiation passed its expiry timestamp.
	ErrNegotiationExpired = errors.New("negotiation expired")

	// ErrNegotiationConflict indicates the negotiation was saved by someone else
	// after it was read. Re-read and decide again.
	ErrNegotiationConflict = errors.New("negotiation changed concurrently")

	// ErrUnknownTaskType indicates a task type outside the closed task catalogue.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidPayload indicates a task payload failed validation.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrNoSupplierContact indicates a supplier has no email address to negotiate with.
	ErrNoSupplierContact = errors.New("supplier has no contact email")

	// ErrNoCatalogAccess indicates a supplier has no API, portal or website configured.
	ErrNoCatalogAccess = errors.New("supplier has no catalog access method")

	// ErrAdapterFailed indicates a supplier catalog adapter could not fetch or parse listings.
	ErrAdapterFailed = errors.New("supplier adapter failed")
)
