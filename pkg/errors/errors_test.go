package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
		family    Family
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true, family: FamilyValidation},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", family: FamilyGeneral},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true, family: FamilyGeneral},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity, publicMsg: "cart is empty", family: FamilyValidation},
		{code: CodeInsufficientPayment, status: http.StatusUnprocessableEntity, publicMsg: "insufficient payment", detailsOK: true, family: FamilyValidation},
		{code: CodeContention, status: http.StatusConflict, publicMsg: "inventory is busy, retry the sale", retryable: true, detailsOK: true, family: FamilyRetryable},
		{code: CodeIdentifierExhausted, status: http.StatusServiceUnavailable, publicMsg: "could not reserve a sale number", retryable: true, family: FamilyRetryable},
		{code: CodePersistenceFailed, status: http.StatusServiceUnavailable, publicMsg: "sale could not be saved", retryable: true, family: FamilyPersistence},
		{code: CodeAlreadyVoided, status: http.StatusConflict, publicMsg: "sale already voided", family: FamilyVoid},
		{code: CodeSaleNotFound, status: http.StatusNotFound, publicMsg: "sale not found", family: FamilyVoid},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
		if meta.Family != tt.family {
			t.Fatalf("code %s expected family %s got %s", tt.code, tt.family, meta.Family)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeInvalidQuantity, "quantity must be positive")
	if base.Code() != CodeInvalidQuantity {
		t.Fatalf("expected invalid quantity code, got %s", base.Code())
	}
	if base.Message() != "quantity must be positive" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	if base.Retryable() {
		t.Fatalf("validation errors are not retryable")
	}

	base.WithDetails(map[string]any{"product_id": "abc"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("connection reset")
	wrapped := Wrap(CodePersistenceFailed, cause, "insert sale")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if !wrapped.Retryable() || wrapped.Family() != FamilyPersistence {
		t.Fatalf("unexpected metadata for persistence failure")
	}
}

func TestAsAndHasCodeWalkTheChain(t *testing.T) {
	err := fmt.Errorf("checkout: %w", New(CodeAlreadyVoided, "sale voided"))
	if got := As(err); got == nil || got.Code() != CodeAlreadyVoided {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodeAlreadyVoided) {
		t.Fatalf("HasCode should match wrapped code")
	}
	if HasCode(err, CodeSaleNotFound) {
		t.Fatalf("HasCode matched the wrong code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
