package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"studyforge/internal/recovery"
	"studyforge/internal/services"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Caller is the invocation surface structured generation needs.
type Caller interface {
	Invoke(ctx context.Context, chain []string, req Request) (Result, error)
}

// RecordOptions controls structured generation.
type RecordOptions struct {
	// Key names the array inside a wrapping object, e.g. "flashcards".
	Key    string
	Policy recovery.Policy
	// Requested is the record count asked of the generator. Zero skips the
	// completeness check.
	Requested int
}

// Records is the outcome of one structured generation.
type Records[T any] struct {
	Items   []T
	Result  Result
	Parse   recovery.Result
	Skipped int
	Invalid int
}

// GenerateRecords invokes the chain, recovers a record array from the raw
// text, decodes and validates each record and applies the completeness check.
// On an *recovery.IncompleteError the partial records are returned alongside
// the error.
func GenerateRecords[T any](ctx context.Context, caller Caller, chain []string, req Request, opts RecordOptions) (Records[T], error) {
	var out Records[T]
	result, err := caller.Invoke(ctx, chain, req)
	if err != nil {
		return out, err
	}
	out.Result = result

	parsed, err := recovery.Parse(result.Text, recovery.Options{Key: opts.Key, Policy: opts.Policy})
	if err != nil {
		return out, fmt.Errorf("%s via %s: %w", req.Task, result.GeneratorUsed, err)
	}
	out.Parse = parsed

	items, skipped, err := recovery.Decode[T](parsed)
	out.Skipped = skipped
	if err != nil {
		return out, fmt.Errorf("%s via %s: %w", req.Task, result.GeneratorUsed, err)
	}
	valid := make([]T, 0, len(items))
	for _, item := range items {
		if err := validateRecord(item); err != nil {
			out.Invalid++
			continue
		}
		valid = append(valid, item)
	}
	out.Items = valid

	if len(valid) == 0 && len(items) > 0 && opts.Policy == recovery.RequireRecords {
		return out, services.Wrap(services.ErrValidation, string(req.Task), "validate records",
			fmt.Sprintf("all %d records failed validation", len(items)), recovery.ErrNoRecords)
	}
	if opts.Requested > 0 {
		if err := recovery.CheckCompleteness(len(valid), opts.Requested); err != nil {
			return out, err
		}
	}
	return out, nil
}

func validateRecord(record any) error {
	err := validate.Struct(record)
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// Not a struct; nothing to validate.
		return nil
	}
	return err
}

// ScopeOptions bounds reduced-scope retries.
type ScopeOptions struct {
	Requested int
	// Retries is the number of reduced-scope attempts after the first.
	Retries int
}

// GenerateWithReducedScope runs GenerateRecords and, when the output fails
// validation or completeness, retries with a smaller requested count. build
// renders the request for a given count. Quota, exhaustion and cancellation
// errors are returned without a retry.
func GenerateWithReducedScope[T any](ctx context.Context, caller Caller, chain []string, build func(count int) Request, opts RecordOptions, scope ScopeOptions) (Records[T], error) {
	count := scope.Requested
	if count <= 0 {
		count = 1
	}
	var (
		out Records[T]
		err error
	)
	for attempt := 0; attempt <= scope.Retries; attempt++ {
		opts.Requested = count
		out, err = GenerateRecords[T](ctx, caller, chain, build(count), opts)
		if err == nil || !errors.Is(err, services.ErrValidation) {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		next := count * 2 / 3
		if next < 1 {
			next = 1
		}
		count = next
	}
	return out, err
}
