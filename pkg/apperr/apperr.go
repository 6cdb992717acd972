// Package apperr carries the caller-visible error taxonomy: a machine-checkable
// Code plus a short Reason and a human readable message.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation Code = "VALIDATION"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeForbidden  Code = "FORBIDDEN"
	CodeExternal   Code = "EXTERNAL"
	CodeInternal   Code = "INTERNAL"
)

// Reasons used by the order/payment/review flows.
const (
	ReasonUserNotFound      = "USER_NOT_FOUND"
	ReasonProductNotFound   = "PRODUCT_NOT_FOUND"
	ReasonOrderNotFound     = "ORDER_NOT_FOUND"
	ReasonCartNotFound      = "CART_NOT_FOUND"
	ReasonEmptyOrder        = "EMPTY_ORDER"
	ReasonMissingShipping   = "MISSING_SHIPPING_INFO"
	ReasonInsufficientStock = "INSUFFICIENT_STOCK"
	ReasonCannotCancel      = "CANNOT_CANCEL"
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonAlreadyPaid       = "ALREADY_PAID"
	ReasonNothingToPay      = "NOTHING_TO_PAY"
	ReasonAlreadyReviewed   = "ALREADY_REVIEWED"
	ReasonNotEligible       = "NOT_ELIGIBLE"
	ReasonInvalidInput      = "INVALID_INPUT"
	ReasonInvalidSignature  = "INVALID_SIGNATURE"
	ReasonNotOwner          = "NOT_OWNER"
)

type Error struct {
	Code    Code
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code and reason, so errors.Is(err, ErrX) works
// against the sentinel values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Reason == "" || e.Reason == t.Reason)
}

func New(code Code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

func Newf(code Code, reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(reason, message string) *Error { return New(CodeValidation, reason, message) }
func NotFound(reason, message string) *Error   { return New(CodeNotFound, reason, message) }
func Conflict(reason, message string) *Error   { return New(CodeConflict, reason, message) }
func Forbidden(reason, message string) *Error  { return New(CodeForbidden, reason, message) }

func Internal(err error) *Error { return Wrap(CodeInternal, err, "internal error") }

// CodeOf returns the code of the first *Error in the chain, CodeInternal otherwise.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf returns the reason of the first *Error in the chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Sentinels for errors.Is checks.
var (
	ErrInsufficientStock = Conflict(ReasonInsufficientStock, "insufficient stock")
	ErrCannotCancel      = Conflict(ReasonCannotCancel, "order cannot be cancelled")
	ErrInvalidTransition = Conflict(ReasonInvalidTransition, "invalid status transition")
	ErrAlreadyPaid       = Conflict(ReasonAlreadyPaid, "order already paid")
	ErrAlreadyReviewed   = Conflict(ReasonAlreadyReviewed, "already reviewed")
	ErrNotEligible       = Forbidden(ReasonNotEligible, "not eligible to review")
	ErrEmptyOrder        = Validation(ReasonEmptyOrder, "order has no items")
	ErrMissingShipping   = Validation(ReasonMissingShipping, "shipping name, phone and address are required")
	ErrUserNotFound      = NotFound(ReasonUserNotFound, "user not found")
	ErrOrderNotFound     = NotFound(ReasonOrderNotFound, "order not found")
	ErrProductNotFound   = NotFound(ReasonProductNotFound, "product not found")
)
