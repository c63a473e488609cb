package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studyforge/internal/services"
)

// Kind is the retry classification of a provider failure.
type Kind string

const (
	// KindTransient failures are retried on the same generator.
	KindTransient Kind = "transient"
	// KindModelUnavailable failures advance the fallback chain immediately.
	KindModelUnavailable Kind = "model_unavailable"
	// KindFatal failures are not retried on the same generator either.
	KindFatal Kind = "fatal"
)

// ProviderError is the single classified form of a backend failure.
type ProviderError struct {
	Generator  string
	Kind       Kind
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Quota      *QuotaError
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "generator %s: %s", e.Generator, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if e.Quota != nil {
		errs = append(errs, e.Quota)
	} else {
		errs = append(errs, e.marker())
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ErrorKind maps the failure onto the service error taxonomy.
func (e *ProviderError) ErrorKind() services.ErrorKind {
	if e.Quota != nil {
		return e.Quota.ErrorKind()
	}
	switch e.Kind {
	case KindTransient:
		return services.ErrorKindTransient
	case KindModelUnavailable:
		return services.ErrorKindModelUnavailable
	default:
		return services.ErrorKindExternal
	}
}

func (e *ProviderError) marker() error {
	switch e.Kind {
	case KindTransient:
		return services.ErrTransient
	case KindModelUnavailable:
		return services.ErrModelUnavailable
	default:
		return services.ErrExternalTool
	}
}

// ExhaustedError reports that every generator in the chain failed.
type ExhaustedError struct {
	Tried []string
	Last  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all generators failed (tried %s): %v", strings.Join(e.Tried, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// KindFor returns the retry classification of err. Unclassified errors are fatal.
func KindFor(err error) Kind {
	var provider *ProviderError
	if errors.As(err, &provider) {
		return provider.Kind
	}
	switch {
	case errors.Is(err, services.ErrModelUnavailable):
		return KindModelUnavailable
	case errors.Is(err, services.ErrTransient), errors.Is(err, services.ErrTimeout):
		return KindTransient
	default:
		return KindFatal
	}
}

// AsQuota extracts the quota failure carried by err, if any.
func AsQuota(err error) (*QuotaError, bool) {
	var quota *QuotaError
	if errors.As(err, &quota) {
		return quota, true
	}
	return nil, false
}

// IsTerminalQuota reports whether err carries a quota failure that retries cannot fix.
func IsTerminalQuota(err error) bool {
	quota, ok := AsQuota(err)
	return ok && !quota.Retryable()
}

// Overload is transient even when the body also names the model.
var overloadMarkers = []string{
	"overloaded",
	"over capacity",
}

var modelUnavailableMarkers = []string{
	"model not found",
	"model_not_found",
	"no endpoints found",
	"does not exist",
	"is not a valid model",
	"model unavailable",
	"decommissioned",
}

// ClassifyHTTP converts an HTTP failure from a backend into a ProviderError.
// Quota markers take precedence over the status code.
func ClassifyHTTP(generator string, status int, body string, retryAfter time.Duration, now time.Time) *ProviderError {
	message := summarize(body)
	perr := &ProviderError{
		Generator:  generator,
		StatusCode: status,
		Message:    message,
		RetryAfter: retryAfter,
	}
	if quota := ClassifyQuota(status, body, retryAfter, now); quota != nil {
		quota.Generator = generator
		perr.Quota = quota
		perr.RetryAfter = quota.RetryAfter
		if quota.Retryable() {
			perr.Kind = KindTransient
		} else {
			perr.Kind = KindFatal
		}
		return perr
	}
	lower := strings.ToLower(body)
	for _, marker := range overloadMarkers {
		if strings.Contains(lower, marker) {
			perr.Kind = KindTransient
			return perr
		}
	}
	for _, marker := range modelUnavailableMarkers {
		if strings.Contains(lower, marker) {
			perr.Kind = KindModelUnavailable
			return perr
		}
	}
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status == http.StatusConflict,
		status >= http.StatusInternalServerError:
		perr.Kind = KindTransient
	case status == http.StatusNotFound, status == http.StatusGone:
		perr.Kind = KindModelUnavailable
	default:
		perr.Kind = KindFatal
	}
	return perr
}

// ClassifyTransport converts a transport failure (no HTTP status) into a
// ProviderError. When the caller's context is done its error is returned
// instead; client-side timeouts stay transient.
func ClassifyTransport(ctx context.Context, generator string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return err
	}
	return &ProviderError{Generator: generator, Kind: KindTransient, Err: err}
}

// Transient builds a transient ProviderError for malformed or empty responses.
func Transient(generator, message string) *ProviderError {
	return &ProviderError{Generator: generator, Kind: KindTransient, Message: message}
}

func summarize(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	const limit = 240
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
