package engine

import "fmt"

// ErrorKind classifies a failed purchase attempt so presentation layers can
// render an appropriate message without inspecting transport details.
type ErrorKind string

const (
	KindAccountNotFound              ErrorKind = "account_not_found"
	KindInvariantViolation           ErrorKind = "invariant_violation"
	KindUnknownItem                  ErrorKind = "unknown_item"
	KindCategoryForbidden            ErrorKind = "category_forbidden"
	KindInsufficientBalance          ErrorKind = "insufficient_balance"
	KindAuthUnavailable              ErrorKind = "auth_unavailable"
	KindAuthRejected                 ErrorKind = "auth_rejected"
	KindInsufficientFundsAllAccounts ErrorKind = "insufficient_funds_all_accounts"
	KindCaptchaTimeout               ErrorKind = "captcha_timeout"
	KindCaptchaProviderError         ErrorKind = "captcha_provider_error"
	KindProviderError                ErrorKind = "provider_error"
)

// PurchaseError is the single structured error every failed purchase
// surfaces. Message carries the provider's text verbatim for
// KindProviderError.
type PurchaseError struct {
	Kind    ErrorKind
	Message string
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func failf(kind ErrorKind, format string, args ...any) *PurchaseError {
	return &PurchaseError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
