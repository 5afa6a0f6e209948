package interfaces

import "errors"

// Query operation errors, mapped to HTTP status codes by the handlers
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrRuleNotFound       = errors.New("custom rule not found")
	ErrRuleExists         = errors.New("custom rule already exists")
	ErrDomainNotTracked   = errors.New("domain not tracked")
	ErrInvalidConfig      = errors.New("invalid capture config")
	ErrJobNotFound        = errors.New("job not found")
	ErrJobRunning         = errors.New("job already running")
)
