package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSleep collects requested delays instead of waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

var errFlaky = errors.New("connection reset by peer")

func TestDo_SucceedsAfterFailures(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0

	got, err := Do(context.Background(), Config{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		Sleep:          rec.sleep,
	}, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", errFlaky
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	want := []time.Duration{1 * time.Second, 2 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}

	var total time.Duration
	for _, d := range rec.delays {
		total += d
	}
	if total < 3*time.Second {
		t.Errorf("total backoff = %v, want >= 3s", total)
	}
}

func TestDo_ExhaustsBudget(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0

	_, err := Do(context.Background(), Config{
		MaxAttempts: 3,
		Sleep:       rec.sleep,
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, errFlaky
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("expected last error to be wrapped, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.delays) != 2 {
		t.Errorf("delays = %v, want two waits", rec.delays)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	rec := &recordingSleep{}
	calls := 0
	permanent := errors.New("access denied")

	_, err := Do(context.Background(), Config{
		MaxAttempts: 5,
		Sleep:       rec.sleep,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(rec.delays) != 0 {
		t.Errorf("expected no waits, got %v", rec.delays)
	}
}

func TestDo_OnRetryHook(t *testing.T) {
	var attempts []int

	_, _ = Do(context.Background(), Config{
		MaxAttempts: 3,
		Sleep:       (&recordingSleep{}).sleep,
		OnRetry: func(attempt int, backoff time.Duration, err error) {
			attempts = append(attempts, attempt)
		},
	}, func(ctx context.Context, attempt int) (int, error) {
		return 0, errFlaky
	})

	if fmt.Sprint(attempts) != "[0 1]" {
		t.Errorf("OnRetry attempts = %v, want [0 1]", attempts)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, Config{
		MaxAttempts:    3,
		InitialBackoff: time.Hour,
	}, func(ctx context.Context, attempt int) (int, error) {
		calls++
		cancel()
		return 0, errFlaky
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"timeout text", errors.New("Request Timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"service unavailable", errors.New("503 Service Unavailable"), true},
		{"unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := Backoff(tt.attempt, time.Second, 10*time.Second); got != tt.want {
				t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}
