package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to provider adapters. Adapters translate these into their
// own wire vocabulary; the codes themselves never change.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodePlayerNotFound      = "PLAYER_NOT_FOUND"
	CodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	CodeInvalidSignature    = "INVALID_SIGNATURE"
	CodeInvalidKey          = "INVALID_KEY"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTxAlreadyExists     = "TRANSACTION_ALREADY_EXISTS"
	CodeTxAlreadySettled    = "TRANSACTION_ALREADY_SETTLED"
	CodeTxAlreadyCancelled  = "TRANSACTION_ALREADY_CANCELLED"
	CodeInsufficientFund    = "INSUFFICIENT_FUND"
	CodeWalletError         = "WALLET_ERROR"
	CodeUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// AppError is the base domain error type.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is matches on code so errors.Is works against the constructors below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// AsAppError extracts an *AppError from anywhere in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the AppError code in err's chain, or CodeInternal.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Standard domain error constructors.

func ErrValidation(msg string) *AppError {
	return &AppError{Code: CodeValidation, Message: msg, Status: 400}
}

func ErrPlayerNotFound(playID string) *AppError {
	return &AppError{Code: CodePlayerNotFound, Message: fmt.Sprintf("player %s not found", playID), Status: 404}
}

func ErrTransactionNotFound(extID string) *AppError {
	return &AppError{Code: CodeTransactionNotFound, Message: fmt.Sprintf("transaction %s not found", extID), Status: 404}
}

func ErrInvalidSignature() *AppError {
	return &AppError{Code: CodeInvalidSignature, Message: "invalid signature", Status: 401}
}

func ErrInvalidKey() *AppError {
	return &AppError{Code: CodeInvalidKey, Message: "invalid key", Status: 401}
}

func ErrInvalidToken(cause error) *AppError {
	return &AppError{Code: CodeInvalidToken, Message: "invalid token", Status: 401, Cause: cause}
}

func ErrTransactionAlreadyExists(extID string) *AppError {
	return &AppError{Code: CodeTxAlreadyExists, Message: fmt.Sprintf("transaction already exists: %s", extID), Status: 409}
}

func ErrTransactionAlreadySettled(extID string) *AppError {
	return &AppError{Code: CodeTxAlreadySettled, Message: fmt.Sprintf("transaction already settled: %s", extID), Status: 409}
}

func ErrTransactionAlreadyCancelled(extID string) *AppError {
	return &AppError{Code: CodeTxAlreadyCancelled, Message: fmt.Sprintf("transaction already cancelled: %s", extID), Status: 409}
}

func ErrInsufficientFund() *AppError {
	return &AppError{Code: CodeInsufficientFund, Message: "insufficient fund", Status: 400}
}

// ErrWallet wraps a non-success wallet response or a transport failure.
func ErrWallet(msg string, cause error) *AppError {
	return &AppError{Code: CodeWalletError, Message: msg, Status: 502, Cause: cause}
}

func ErrUnsupportedCurrency(currency string) *AppError {
	return &AppError{Code: CodeUnsupportedCurrency, Message: fmt.Sprintf("unsupported currency: %s", currency), Status: 400}
}

func ErrRateLimited(msg string) *AppError {
	return &AppError{Code: CodeRateLimited, Message: msg, Status: 429}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Status: 500, Cause: cause}
}
