// Package coinerr defines the error taxonomy shared by the coin engine.
// Every error that crosses a component boundary carries a code and an
// HTTP status so the API layer can map it without string matching.
package coinerr

import (
	"errors"
	"fmt"
)

// Code classifies a coin engine error.
type Code string

const (
	CodeValidation          Code = "VALIDATION"           // 400
	CodeNotFound            Code = "NOT_FOUND"            // 404
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE" // 409
	CodeInternal            Code = "INTERNAL"             // 500
)

// Error is a structured error with code, status, and optional details.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validation creates a 400 error for invalid input.
func Validation(format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Status:  400,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound creates a 404 error for an absent entity.
func NotFound(kind, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// InsufficientBalance creates a 409 error for a spend that would drive
// the balance negative.
func InsufficientBalance(userID string, balance, requested int64) *Error {
	return &Error{
		Code:    CodeInsufficientBalance,
		Status:  409,
		Message: fmt.Sprintf("user %s has %d coins, spend of %d refused", userID, balance, requested),
		Details: map[string]any{"user_id": userID, "balance": balance, "requested": requested},
	}
}

// Internal creates a 500 error wrapping an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Status:  500,
		Message: fmt.Sprintf("%s: %v", op, err),
	}
}

// StatusOf returns the HTTP status for err, or 500 if err is not a
// coinerr.Error.
func StatusOf(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 500
}

// CodeOf returns the code for err, or CodeInternal if err is untyped.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
