package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"studyforge/internal/config"
	"studyforge/internal/logging"
)

const (
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultMinuteBackoff  = 60 * time.Second
)

var tracer = otel.Tracer("studyforge.generation")

// Invoker runs requests along a fallback chain with retries.
type Invoker struct {
	router        *Router
	limiters      map[string]*rate.Limiter
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	minuteBackoff time.Duration
	logger        *slog.Logger
	sleep         func(context.Context, time.Duration) error
}

// InvokerOption customizes an Invoker.
type InvokerOption func(*Invoker)

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) InvokerOption {
	return func(inv *Invoker) {
		if sleep != nil {
			inv.sleep = sleep
		}
	}
}

// WithLimiter installs a rate limiter for one generator.
func WithLimiter(generatorID string, limiter *rate.Limiter) InvokerOption {
	return func(inv *Invoker) {
		inv.limiters[generatorID] = limiter
	}
}

// NewInvoker builds an invoker from the generation config. Generators with a
// requests_per_minute budget get a token bucket limiter.
func NewInvoker(cfg config.Generation, router *Router, logger *slog.Logger, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		router:        router,
		limiters:      make(map[string]*rate.Limiter),
		maxAttempts:   cfg.MaxAttemptsPerGenerator,
		baseDelay:     time.Duration(cfg.RetryBaseDelayMillis) * time.Millisecond,
		maxDelay:      time.Duration(cfg.RetryMaxDelayMillis) * time.Millisecond,
		minuteBackoff: time.Duration(cfg.MinuteQuotaBackoffSeconds) * time.Second,
		logger:        logging.NewComponentLogger(logger, "generation"),
		sleep:         sleepContext,
	}
	if inv.maxAttempts <= 0 {
		inv.maxAttempts = 1
	}
	if inv.maxDelay <= 0 {
		inv.maxDelay = defaultRetryMaxDelay
	}
	if inv.baseDelay < 0 {
		inv.baseDelay = defaultRetryBaseDelay
	}
	if inv.minuteBackoff < 0 {
		inv.minuteBackoff = defaultMinuteBackoff
	}
	for _, gen := range cfg.Generators {
		if gen.RequestsPerMinute > 0 {
			inv.limiters[gen.ID] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(gen.RequestsPerMinute)), 1)
		}
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Router exposes the routing table the invoker resolves ids against.
func (i *Invoker) Router() *Router {
	return i.router
}

// Invoke runs req along chain with the configured per-generator attempt bound.
func (i *Invoker) Invoke(ctx context.Context, chain []string, req Request) (Result, error) {
	return i.InvokeWithRetry(ctx, chain, req, i.maxAttempts)
}

// Generate routes req through its default fallback chain.
func (i *Invoker) Generate(ctx context.Context, req Request) (Result, error) {
	return i.Invoke(ctx, i.router.FallbackChain(req.Task, req.Complexity), req)
}

// InvokeWithRetry tries each generator in chain in order. Transient failures
// are retried on the same generator with capped exponential backoff; model
// unavailability and fatal failures advance the chain; a terminal quota error
// or context cancellation returns immediately. When every generator fails an
// *ExhaustedError is returned.
func (i *Invoker) InvokeWithRetry(ctx context.Context, chain []string, req Request, maxAttemptsPerGenerator int) (Result, error) {
	return i.run(ctx, chain, req, maxAttemptsPerGenerator, nil)
}

// InvokeStream streams req along chain, delivering tokens to onToken.
// Retries and fallbacks happen only while no token has been delivered; a
// failure after the first token is returned as is. Generators that cannot
// stream are skipped.
func (i *Invoker) InvokeStream(ctx context.Context, chain []string, req Request, onToken func(token string) error) (Result, error) {
	if onToken == nil {
		onToken = func(string) error { return nil }
	}
	return i.run(ctx, chain, req, i.maxAttempts, onToken)
}

func (i *Invoker) run(ctx context.Context, chain []string, req Request, maxAttemptsPerGenerator int, onToken func(string) error) (Result, error) {
	if maxAttemptsPerGenerator <= 0 {
		maxAttemptsPerGenerator = 1
	}
	logger := logging.WithContext(ctx, i.logger)
	var (
		result Result
		tried  []string
		last   error
	)
	for _, id := range chain {
		gen, ok := i.router.Generator(id)
		if !ok {
			continue
		}
		if _, streams := gen.(StreamGenerator); onToken != nil && !streams {
			continue
		}
		if len(tried) > 0 {
			from := tried[len(tried)-1]
			recordFallback(from, id)
			result.FallbacksUsed = append(result.FallbacksUsed, id)
			logger.Info("generation fallback",
				logging.EventType("generation_fallback"),
				logging.String("from", from),
				logging.String(logging.FieldGenerator, id),
				logging.String("task", string(req.Task)),
			)
		}
		tried = append(tried, id)

		for attempt := 1; attempt <= maxAttemptsPerGenerator; attempt++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if limiter := i.limiters[id]; limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return Result{}, err
				}
			}
			result.AttemptsMade++
			delivered := false
			var relay func(string) error
			if onToken != nil {
				relay = func(token string) error {
					delivered = true
					return onToken(token)
				}
			}
			completion, err := i.attempt(ctx, gen, req, attempt, relay)
			if err == nil {
				result.Completion = completion
				result.GeneratorUsed = id
				return result, nil
			}
			last = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if delivered {
				return Result{}, err
			}
			if IsTerminalQuota(err) {
				logging.WarnWithContext(logger, "generation quota exhausted", "generation_quota",
					logging.String(logging.FieldGenerator, id),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "wait for quota recovery or configure another generator"),
					logging.String(logging.FieldImpact, "processing pauses until the quota recovers"),
				)
				return Result{}, err
			}
			if KindFor(err) != KindTransient || attempt == maxAttemptsPerGenerator {
				break
			}
			delay := i.retryDelay(err, attempt)
			logging.WarnWithContext(logger, "generation attempt failed; retrying", "generation_retry",
				logging.String(logging.FieldGenerator, id),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "retrying the same generator"),
				logging.String(logging.FieldImpact, "generation delayed"),
			)
			if err := i.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}
	}
	if last == nil {
		last = errors.New("no registered generator in chain")
	}
	return Result{}, &ExhaustedError{Tried: tried, Last: last}
}

func (i *Invoker) attempt(ctx context.Context, gen Generator, req Request, attempt int, onToken func(string) error) (Completion, error) {
	ctx, span := tracer.Start(ctx, "generation.attempt",
		trace.WithAttributes(
			attribute.String("generation.generator", gen.ID()),
			attribute.String("generation.task", string(req.Task)),
			attribute.String("generation.complexity", string(req.Complexity)),
			attribute.Int("generation.attempt", attempt),
		),
	)
	defer span.End()

	start := time.Now()
	var (
		completion Completion
		err        error
	)
	if onToken != nil {
		completion, err = gen.(StreamGenerator).Stream(ctx, req, onToken)
	} else {
		completion, err = gen.Generate(ctx, req)
	}
	elapsed := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordAttempt(gen.ID(), outcomeFor(ctx, err), elapsed)
		return Completion{}, err
	}
	recordAttempt(gen.ID(), outcomeSuccess, elapsed)
	return completion, nil
}

// retryDelay returns the wait before the next attempt on the same generator.
// Per-minute quota gets a floor of the minute backoff; other transient
// failures honor Retry-After up to the cap.
func (i *Invoker) retryDelay(err error, attempt int) time.Duration {
	if quota, ok := AsQuota(err); ok {
		delay := i.minuteBackoff
		if quota.RetryAfter > delay {
			delay = quota.RetryAfter
		}
		return delay
	}
	var provider *ProviderError
	if errors.As(err, &provider) && provider.RetryAfter > 0 {
		return i.capDelay(provider.RetryAfter)
	}
	return i.backoffDelay(attempt)
}

// backoffDelay doubles from the base delay: attempt 1 -> base, 2 -> base*2, ...
func (i *Invoker) backoffDelay(attempt int) time.Duration {
	if i.baseDelay <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	delay := i.baseDelay
	for n := 1; n < attempt; n++ {
		if delay > i.maxDelay/2 {
			delay = i.maxDelay
			break
		}
		delay *= 2
	}
	return i.capDelay(delay)
}

func (i *Invoker) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if i.maxDelay > 0 && delay > i.maxDelay {
		return i.maxDelay
	}
	return delay
}

func outcomeFor(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return outcomeCanceled
	}
	if _, ok := AsQuota(err); ok {
		return outcomeQuota
	}
	switch KindFor(err) {
	case KindTransient:
		return outcomeTransient
	case KindModelUnavailable:
		return outcomeModelUnavailable
	default:
		return outcomeFatal
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
