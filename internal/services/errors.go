package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool     = errors.New("external service error")
	ErrValidation       = errors.New("validation error")
	ErrConfiguration    = errors.New("configuration error")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrTransient        = errors.New("transient failure")
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrConsistency      = errors.New("consistency failure")
)

// ErrorKind is the coarse classification attached to structured error logs.
type ErrorKind string

const (
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindConfiguration    ErrorKind = "configuration"
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindTransient        ErrorKind = "transient"
	ErrorKindExternal         ErrorKind = "external"
	ErrorKindQuotaExceeded    ErrorKind = "quota_exceeded"
	ErrorKindModelUnavailable ErrorKind = "model_unavailable"
	ErrorKindConsistency      ErrorKind = "consistency"
	ErrorKindUnknown          ErrorKind = "unknown"
)

// ServiceError carries stage context alongside a marker sentinel. It unwraps to
// both the marker and the underlying cause so errors.Is works against either.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of an error used for structured logging.
type ErrorDetails struct {
	Kind      ErrorKind
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts logging detail from err. Errors not produced by Wrap still
// receive a kind when they match one of the sentinels.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: ErrorKindUnknown}
	}
	details := ErrorDetails{Kind: KindOf(err), Message: strings.TrimSpace(err.Error())}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details.Operation = svcErr.Operation
		if svcErr.Message != "" {
			details.Message = svcErr.Message
		}
		details.Cause = svcErr.Cause
	}
	details.Hint = hintFor(details.Kind)
	return details
}

// KindOf maps err onto the first matching sentinel.
func KindOf(err error) ErrorKind {
	var classifier interface{ ErrorKind() ErrorKind }
	if errors.As(err, &classifier) {
		if kind := classifier.ErrorKind(); kind != "" {
			return kind
		}
	}
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.Is(err, ErrQuotaExceeded):
		return ErrorKindQuotaExceeded
	case errors.Is(err, ErrConsistency):
		return ErrorKindConsistency
	case errors.Is(err, ErrModelUnavailable):
		return ErrorKindModelUnavailable
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrExternalTool):
		return ErrorKindExternal
	case errors.Is(err, ErrTransient):
		return ErrorKindTransient
	default:
		return ErrorKindUnknown
	}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case ErrorKindValidation:
		return "inspect generated output and retry"
	case ErrorKindConfiguration:
		return "check config.toml"
	case ErrorKindNotFound:
		return "verify the identifier exists"
	case ErrorKindTimeout, ErrorKindTransient:
		return "retry later"
	case ErrorKindQuotaExceeded:
		return "wait for quota recovery or configure another generator"
	case ErrorKindModelUnavailable:
		return "check generator model names"
	case ErrorKindConsistency:
		return "run studyforge reconcile"
	case ErrorKindExternal:
		return "check external service health"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
