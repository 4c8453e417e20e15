package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Checkout validation failures. The cart is left untouched.
	CodeEmptyCart           Code = "EMPTY_CART"
	CodeUnknownProduct      Code = "UNKNOWN_PRODUCT"
	CodeInvalidQuantity     Code = "INVALID_QUANTITY"
	CodeInvalidDiscount     Code = "INVALID_DISCOUNT"
	CodeInsufficientPayment Code = "INSUFFICIENT_PAYMENT"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"

	// Bounded-retry failures; the caller may resubmit.
	CodeIdentifierExhausted Code = "IDENTIFIER_EXHAUSTED"
	CodeContention          Code = "CONTENTION"

	CodePersistenceFailed Code = "PERSISTENCE_FAILED"

	// Void path.
	CodeAlreadyVoided Code = "ALREADY_VOIDED"
	CodeSaleNotFound  Code = "SALE_NOT_FOUND"
)

// Family groups codes by how callers are expected to recover.
type Family string

const (
	FamilyValidation  Family = "validation"
	FamilyRetryable   Family = "retryable"
	FamilyPersistence Family = "persistence"
	FamilyVoid        Family = "void"
	FamilyGeneral     Family = "general"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Family         Family
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
		Family:        FamilyGeneral,
	},
	CodeConflict: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "conflict detected",
		Family:        FamilyGeneral,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
		Family:         FamilyGeneral,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
		Family:         FamilyGeneral,
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
		Family:        FamilyGeneral,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		Family:         FamilyGeneral,
	},
	CodeEmptyCart: {
		HTTPStatus:    http.StatusUnprocessableEntity,
		PublicMessage: "cart is empty",
		Family:        FamilyValidation,
	},
	CodeUnknownProduct: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "product not available",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeInvalidQuantity: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid quantity",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeInvalidDiscount: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid discount",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeInsufficientPayment: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "insufficient payment",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeInsufficientStock: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "insufficient stock",
		DetailsAllowed: true,
		Family:         FamilyValidation,
	},
	CodeIdentifierExhausted: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "could not reserve a sale number",
		Family:        FamilyRetryable,
	},
	CodeContention: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      true,
		PublicMessage:  "inventory is busy, retry the sale",
		DetailsAllowed: true,
		Family:         FamilyRetryable,
	},
	CodePersistenceFailed: {
		HTTPStatus:    http.StatusServiceUnavailable,
		Retryable:     true,
		PublicMessage: "sale could not be saved",
		Family:        FamilyPersistence,
	},
	CodeAlreadyVoided: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "sale already voided",
		Family:        FamilyVoid,
	},
	CodeSaleNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "sale not found",
		Family:        FamilyVoid,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Family reports the recovery family of the error's code.
func (e *Error) Family() Family {
	return MetadataFor(e.Code()).Family
}

// Retryable reports whether resubmitting the same request may succeed.
func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
