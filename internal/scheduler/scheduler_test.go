package scheduler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"clipforge/internal/services"
	"clipforge/internal/services/gemini"
)

type fakeInvoker struct {
	mu      sync.Mutex
	calls   []Pair
	respond func(pair Pair) (gemini.Result, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, pair Pair, _ string) (gemini.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pair)
	f.mu.Unlock()
	return f.respond(pair)
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func testLimits() Limits { return Limits{RPM: 100, TPM: 1 << 20, Daily: 1000} }

func TestExecuteRotatesAcrossMatrixOn429(t *testing.T) {
	pairs := BuildMatrix([]string{"key-a", "key-b"}, []string{"model-new", "model-old"})
	if len(pairs) != 4 {
		t.Fatalf("matrix size = %d", len(pairs))
	}

	// Three pairs rate-limit; only key-b/model-old answers.
	winner := Pair{APIKey: "key-b", Model: "model-old", Priority: 1}
	invoker := &fakeInvoker{respond: func(pair Pair) (gemini.Result, error) {
		if pair == winner {
			return gemini.Result{Text: "script text", TotalTokens: 42}, nil
		}
		return gemini.Result{}, &gemini.StatusError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}
	}}

	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(7), WithSleeper(noSleep))
	text, err := s.Execute(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if text != "script text" {
		t.Errorf("text = %q", text)
	}
	// The winner ends the loop, so at most one pair can remain untried.
	if len(invoker.calls) < 3 || len(invoker.calls) > 4 {
		t.Errorf("calls = %d, want 3 or 4", len(invoker.calls))
	}

	called := make(map[Pair]bool, len(invoker.calls))
	for _, pair := range invoker.calls {
		called[pair] = true
	}
	for _, st := range s.QuotaStatus() {
		cooling := !st.Snapshot.CooldownUntil.IsZero()
		switch {
		case st.Pair == winner && cooling:
			t.Errorf("winner %s should not be cooling down", st.Pair.ID())
		case st.Pair != winner && called[st.Pair] && !cooling:
			t.Errorf("pair %s should be cooling down after 429", st.Pair.ID())
		}
	}
}

func TestExecuteSurfacesRetryableAfterRateLimits(t *testing.T) {
	pairs := BuildMatrix([]string{"key"}, []string{"model"})
	invoker := &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{}, &gemini.StatusError{StatusCode: http.StatusTooManyRequests}
	}}
	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(1), WithSleeper(noSleep))

	_, err := s.Execute(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if !services.IsRetryable(err) {
		t.Errorf("429 exhaustion should surface as retryable: %v", err)
	}
}

func TestExecuteSurfacesFatalOnPermanentError(t *testing.T) {
	pairs := BuildMatrix([]string{"key"}, []string{"model"})
	invoker := &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{}, &gemini.StatusError{StatusCode: http.StatusBadRequest, Body: "bad model"}
	}}
	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(1), WithSleeper(noSleep))

	_, err := s.Execute(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if services.IsRetryable(err) {
		t.Errorf("400 should surface as fatal: %v", err)
	}
	if !errors.Is(err, services.ErrFatal) {
		t.Errorf("error should carry the fatal marker: %v", err)
	}
}

func TestExecuteNetworkErrorsAreRetryable(t *testing.T) {
	pairs := BuildMatrix([]string{"key"}, []string{"model"})
	invoker := &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{}, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	}}
	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(1), WithSleeper(noSleep))

	_, err := s.Execute(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if !services.IsRetryable(err) {
		t.Errorf("network failure should surface as retryable: %v", err)
	}
}

func TestExecuteUnusableResponsesAreFatal(t *testing.T) {
	pairs := BuildMatrix([]string{"key"}, []string{"model"})
	invoker := &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{}, errors.New("gemini generate: empty candidates")
	}}
	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(1), WithSleeper(noSleep))

	_, err := s.Execute(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if services.IsRetryable(err) {
		t.Errorf("unusable response should surface as fatal: %v", err)
	}
	if !errors.Is(err, services.ErrFatal) {
		t.Errorf("error should carry the fatal marker: %v", err)
	}
}

func TestExecuteWaitsOutGlobalExhaustion(t *testing.T) {
	pairs := BuildMatrix([]string{"key-a", "key-b"}, []string{"model"})

	now := baseTime
	clock := func() time.Time { return now }

	var waits int
	sleeper := func(_ context.Context, d time.Duration) error {
		waits++
		// Simulate wall-clock passage past every cooldown.
		now = now.Add(d + time.Hour)
		return nil
	}

	invoker := &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{Text: "late success"}, nil
	}}

	s := New(pairs, testLimits(), invoker, 5, nil, WithRandSeed(3), WithClock(clock), WithSleeper(sleeper))

	// A previous call left every pair mid-cooldown.
	for _, e := range s.entries {
		e.state.RecordFailure(now, 30*time.Minute)
	}

	text, err := s.Execute(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if text != "late success" {
		t.Errorf("text = %q", text)
	}
	if waits == 0 {
		t.Error("scheduler should have waited through global exhaustion")
	}
	if len(invoker.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(invoker.calls))
	}
}

func TestExecutePrefersLeastUsedPair(t *testing.T) {
	pairs := BuildMatrix([]string{"key"}, []string{"model-new", "model-old"})
	invoker := &fakeInvoker{respond: func(pair Pair) (gemini.Result, error) {
		return gemini.Result{Text: "ok"}, nil
	}}
	s := New(pairs, testLimits(), invoker, 0, nil, WithRandSeed(11), WithSleeper(noSleep))

	// Burn daily usage on the higher-priority model.
	for i := 0; i < 3; i++ {
		s.entries[0].state.RecordAttempt(time.Now())
	}

	if _, err := s.Execute(context.Background(), "prompt"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := invoker.calls[0].Model; got != "model-old" {
		t.Errorf("selected %q, want the less-used model-old", got)
	}
}

func TestExecuteEmptyMatrixIsFatal(t *testing.T) {
	s := New(nil, testLimits(), &fakeInvoker{respond: func(Pair) (gemini.Result, error) {
		return gemini.Result{}, nil
	}}, 0, nil)
	_, err := s.Execute(context.Background(), "prompt")
	if err == nil || services.IsRetryable(err) {
		t.Errorf("empty matrix should be a fatal error, got %v", err)
	}
}
