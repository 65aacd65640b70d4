package services

import "fmt"

// ValidationError rejects a malformed or self-contradictory request
// before any state is touched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a lookup of an entity that does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func NewNotFoundError(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError rejects a movement the customer's balance
// cannot cover.
type InsufficientFundsError struct {
	Message string
}

func (e *InsufficientFundsError) Error() string { return e.Message }

func NewInsufficientFundsError(format string, args ...any) *InsufficientFundsError {
	return &InsufficientFundsError{Message: fmt.Sprintf(format, args...)}
}

// RefundPolicyError rejects a refund that is ineligible or would push
// the cumulative refunded amount past the original purchase.
type RefundPolicyError struct {
	Message string
}

func (e *RefundPolicyError) Error() string { return e.Message }

func NewRefundPolicyError(format string, args ...any) *RefundPolicyError {
	return &RefundPolicyError{Message: fmt.Sprintf(format, args...)}
}

// ConsistencyError signals that stored state diverged from what the
// row locks guarantee. The ledger entry that observed it is preserved
// as FAILED for the audit trail.
type ConsistencyError struct {
	Message string
}

func (e *ConsistencyError) Error() string { return e.Message }

func NewConsistencyError(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}
