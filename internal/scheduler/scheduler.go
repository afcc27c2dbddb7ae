package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/services/gemini"
)

// Cooldown durations per failure class. Rate-limit cooldowns carry a large
// random jitter so correlated callers sharing a credential set do not
// re-collide when the window reopens.
const (
	cooldownRateLimitBase   = 2 * time.Minute
	cooldownRateLimitJitter = 3 * time.Minute
	cooldownPermanent       = 24 * time.Hour
	cooldownServer          = 5 * time.Minute
	cooldownNetwork         = 1 * time.Minute

	exhaustedWaitBase   = 5 * time.Second
	exhaustedWaitJitter = 10 * time.Second
)

// Invoker issues one provider request for a pair. Satisfied by *gemini.Client
// through ClientInvoker; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, pair Pair, prompt string) (gemini.Result, error)
}

// ClientInvoker adapts a gemini.Client to the Invoker interface.
type ClientInvoker struct {
	Client *gemini.Client
}

func (ci ClientInvoker) Invoke(ctx context.Context, pair Pair, prompt string) (gemini.Result, error) {
	return ci.Client.Generate(ctx, pair.APIKey, pair.Model, prompt)
}

type entry struct {
	pair  Pair
	state *QuotaState
}

// Scheduler selects available pairs, issues requests, records outcomes, and
// retries across the remaining matrix.
type Scheduler struct {
	entries    []*entry
	invoker    Invoker
	maxRetries int
	logger     *slog.Logger

	clock   func() time.Time
	sleeper func(context.Context, time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option customizes scheduler construction.
type Option func(*Scheduler)

// WithClock overrides the time source (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithSleeper overrides how exhaustion waits are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(s *Scheduler) {
		if sleeper != nil {
			s.sleeper = sleeper
		}
	}
}

// WithRandSeed makes pair shuffling and jitter deterministic.
func WithRandSeed(seed int64) Option {
	return func(s *Scheduler) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// New constructs a scheduler over the full key/model matrix. Every pair gets
// its own QuotaState, created once and kept for the process lifetime.
func New(pairs []Pair, limits Limits, invoker Invoker, maxRetries int, logger *slog.Logger, opts ...Option) *Scheduler {
	entries := make([]*entry, 0, len(pairs))
	for _, pair := range pairs {
		entries = append(entries, &entry{pair: pair, state: NewQuotaState(limits)})
	}
	s := &Scheduler{
		entries:    entries,
		invoker:    invoker,
		maxRetries: maxRetries,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		clock:      time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.sleeper = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PairCount returns the size of the credential/model matrix.
func (s *Scheduler) PairCount() int {
	return len(s.entries)
}

// Execute runs the prompt against the first pair that answers, rotating across
// the matrix on failure. The attempt budget is the larger of the configured
// retry count and the matrix size. Terminal errors are tagged retryable or
// fatal for the upstream job-retry policy.
func (s *Scheduler) Execute(ctx context.Context, prompt string) (string, error) {
	if len(s.entries) == 0 {
		return "", services.Wrap(services.ErrFatal, "scheduler", "execute", "credential/model matrix is empty", nil)
	}

	budget := s.maxRetries
	if len(s.entries) > budget {
		budget = len(s.entries)
	}

	tried := make(map[Pair]struct{}, len(s.entries))
	var lastErr error

	for attempt := 0; attempt < budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", services.Wrap(services.ErrRetryable, "scheduler", "execute", "context cancelled", err)
		}

		now := s.clock()
		picked := s.pick(tried, now)
		if picked == nil {
			// Transient global exhaustion (all pairs mid-cooldown or already
			// tried): wait with jitter instead of failing immediately.
			wait := exhaustedWaitBase + s.jitter(exhaustedWaitJitter)
			s.logger.Debug("no pair available, waiting",
				logging.String(logging.FieldEventType, "scheduler_exhausted_wait"),
				logging.Duration("wait", wait),
				logging.Int("attempt", attempt+1))
			if err := s.sleeper(ctx, wait); err != nil {
				return "", services.Wrap(services.ErrRetryable, "scheduler", "execute", "interrupted while waiting for quota", err)
			}
			if lastErr == nil {
				lastErr = services.ErrQuotaExhausted
			}
			continue
		}

		tried[picked.pair] = struct{}{}
		picked.state.RecordAttempt(now)

		result, err := s.invoker.Invoke(ctx, picked.pair, prompt)
		if err == nil {
			picked.state.RecordSuccess(s.clock(), result.TotalTokens)
			s.logger.Debug("request succeeded",
				logging.String(logging.FieldEventType, "scheduler_success"),
				logging.String("pair", picked.pair.ID()),
				logging.Int("tokens", result.TotalTokens))
			return result.Text, nil
		}

		lastErr = err
		cooldown, class := classify(err, s.jitter(cooldownRateLimitJitter))
		picked.state.RecordFailure(s.clock(), cooldown)
		s.logger.Warn("request failed, pair cooling down",
			logging.String(logging.FieldEventType, "scheduler_pair_failure"),
			logging.String("pair", picked.pair.ID()),
			logging.String("failure_class", class),
			logging.Duration("cooldown", cooldown),
			logging.Error(err))
	}

	marker := services.ErrFatal
	if retryableCause(lastErr) {
		marker = services.ErrRetryable
	}
	return "", services.Wrap(marker, "scheduler", "execute", "attempt budget exhausted", lastErr)
}

// pick returns the untried available pair with the lowest daily usage,
// preferring higher-priority models on ties. Candidates are shuffled first so
// concurrent processes sharing the credential set do not all converge on the
// same "best" pair.
func (s *Scheduler) pick(tried map[Pair]struct{}, now time.Time) *entry {
	candidates := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if _, ok := tried[e.pair]; ok {
			continue
		}
		if e.state.Available(now) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	s.rngMu.Lock()
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	s.rngMu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := candidates[i].state.DailyCount(now), candidates[j].state.DailyCount(now)
		if di != dj {
			return di < dj
		}
		return candidates[i].pair.Priority < candidates[j].pair.Priority
	})
	return candidates[0]
}

func (s *Scheduler) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.rng.Int63n(int64(max)))
}

// classify maps a provider error onto its cooldown duration and class label.
func classify(err error, rateLimitJitter time.Duration) (time.Duration, string) {
	var statusErr *gemini.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return cooldownRateLimitBase + rateLimitJitter, "rate_limited"
		case statusErr.StatusCode == http.StatusBadRequest, statusErr.StatusCode == http.StatusNotFound:
			// A permanently invalid pair/model combination, not transient load.
			return cooldownPermanent, "permanent"
		default:
			return cooldownServer, "server"
		}
	}
	if connectivityError(err) {
		return cooldownNetwork, "network"
	}
	// The transport worked but the response was unusable (decode failure,
	// error payload, empty candidates). Another pair may answer differently.
	return cooldownServer, "invalid_response"
}

// connectivityError reports whether err stems from the transport rather than
// the provider's response.
func connectivityError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// retryableCause reports whether the terminal error should be surfaced as
// retryable: rate limiting, 5xx, connectivity, or global quota exhaustion.
// Anything else (invalid pairs, unusable responses) is fatal so the upstream
// retry policy abandons instead of re-enqueueing forever.
func retryableCause(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, services.ErrQuotaExhausted) {
		return true
	}
	var statusErr *gemini.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError
	}
	return connectivityError(err)
}

// Status reports the quota snapshot for every pair, for CLI display.
type Status struct {
	Pair     Pair
	Snapshot Snapshot
}

// QuotaStatus returns a snapshot per pair in matrix order.
func (s *Scheduler) QuotaStatus() []Status {
	now := s.clock()
	statuses := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		statuses = append(statuses, Status{Pair: e.pair, Snapshot: e.state.Snapshot(now)})
	}
	return statuses
}
