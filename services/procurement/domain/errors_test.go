package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_Messages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrOrganizationNotFound, "organization not found"},
		{ErrSupplierNotFound, "supplier not found"},
		{ErrProductNotFound, "product not found"},
		{ErrInventoryItemNotFound, "inventory item not found"},
		{ErrNegotiationNotFound, "negotiation not found"},
		{ErrNegotiationClosed, "negotiation already closed"},
		{ErrNegotiationExpired, "negotiation expired"},
		{ErrUnknownTaskType, "unknown task type"},
		{ErrInvalidPayload, "invalid task payload"},
		{ErrNoSupplierContact, "supplier has no contact email"},
		{ErrNoCatalogAccess, "supplier has no catalog access method"},
		{ErrAdapterFailed, "supplier adapter failed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Fatalf("unexpected message: %q", tt.err.Error())
			}
		})
	}
}

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	wrapped := fmt.Errorf("load supplier: %w", ErrSupplierNotFound)
	if !errors.Is(wrapped, ErrSupplierNotFound) {
		t.Fatal("errors.Is must match wrapped ErrSupplierNotFound")
	}

	wrapped2 := fmt.Errorf("%w: %w", ErrAdapterFailed, errors.New("timeout"))
	if !errors.Is(wrapped2, ErrAdapterFailed) {
		t.Fatal("errors.Is must match double-wrapped ErrAdapterFailed")
	}
}
