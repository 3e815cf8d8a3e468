package service

import "github.com/nextest/portal-auth/internal/apperr"

// Sentinels compare with errors.Is by kind and code.
var (
	ErrEmailRequired     = apperr.Validation("EMAIL_REQUIRED", "Email is required")
	ErrEmailDomain       = apperr.Validation("EMAIL_DOMAIN_NOT_ALLOWED", "Email domain is not allowed")
	ErrUserNotFound      = apperr.NotFound("USER_NOT_FOUND", "User not found")
	ErrAccountDisabled   = apperr.Auth("ACCOUNT_DISABLED", "Account is disabled")
	ErrInvalidCodeFormat = apperr.Validation("INVALID_CODE_FORMAT", "Invalid code format")
	ErrInvalidCode       = apperr.Validation("INVALID_CODE", "Invalid or expired code")
	ErrNotAuthenticated  = apperr.Auth("NOT_AUTHENTICATED", "Not authenticated")
	ErrTooManyAttempts   = apperr.RateLimited("TOO_MANY_ATTEMPTS", "Too many attempts, try again later")
)
