package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func ErrInvalidAmount() *AppError {
	return New("VAL_001", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidRate() *AppError {
	return New("VAL_002", "Exchange rate must be positive", http.StatusBadRequest)
}

// Validation returns a VAL_001-style validation error with a custom message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

// ---- Purchase Business Logic (PUR) ----

func ErrInsufficientBalance() *AppError {
	return New("PUR_001", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrOutOfStock() *AppError {
	return New("PUR_002", "Product is out of stock", http.StatusConflict)
}

func ErrAccountLocked() *AppError {
	return New("PUR_003", "Account is locked", http.StatusForbidden)
}

// ---- Top-up Issuance (TOP) ----

func ErrTooManyPending() *AppError {
	return New("TOP_001", "Too many pending payments", http.StatusUnprocessableEntity)
}

func ErrIssueRateLimited(wait string) *AppError {
	return New("TOP_002", fmt.Sprintf("Please wait %s before creating another payment", wait), http.StatusTooManyRequests)
}

func ErrNoActiveBankAccount() *AppError {
	return New("TOP_003", "No active receiving bank account", http.StatusServiceUnavailable)
}

func ErrReferenceExhausted() *AppError {
	return New("TOP_004", "Transfer reference space exhausted", http.StatusServiceUnavailable)
}

// ---- Not Found (NF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Identity (SEC) ----

func ErrInvalidToken() *AppError {
	return New("SEC_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbiddenRole() *AppError {
	return New("SEC_002", "Operation not permitted for this role", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
