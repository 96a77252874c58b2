package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "insufficient stock", err: ErrInsufficientStock, want: true},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", ErrCartNotFound), want: true},
		{name: "reservation expired", err: &ReservationExpiredError{ProductID: "p", ProductName: "P"}, want: true},
		{name: "cart busy", err: ErrCartBusy, want: true},
		{name: "repository", err: RepositoryError("product.get", errors.New("conn reset")), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClientError(tt.err); got != tt.want {
				t.Errorf("IsClientError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReservationExpiredErrorMessage(t *testing.T) {
	err := error(&ReservationExpiredError{ProductID: "p-1", ProductName: "Chair"})
	if !errors.Is(err, ErrReservationExpired) {
		t.Fatal("expected ErrReservationExpired kind")
	}
	want := `reservation for product "Chair" has expired, please add items to a new cart and try again`
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRepositoryErrorKeepsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := RepositoryError("cart.upsert", cause)
	if !errors.Is(err, ErrRepository) || !errors.Is(err, cause) {
		t.Fatalf("expected both kind and cause, got %v", err)
	}
	if RepositoryError("noop", nil) != nil {
		t.Fatal("nil cause must stay nil")
	}
}

func TestValidationErrorStableMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "second", "a": "first"}}
	if err.Error() != "validation failed: a: first; b: second" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{name: "fixed", policy: RetryPolicy{Attempts: 3, Backoff: BackoffFixed, Delay: time.Second}, attempt: 3, want: time.Second},
		{name: "exponential first", policy: RetryPolicy{Attempts: 3, Backoff: BackoffExponential, Delay: time.Second}, attempt: 1, want: time.Second},
		{name: "exponential third", policy: RetryPolicy{Attempts: 3, Backoff: BackoffExponential, Delay: 2 * time.Second}, attempt: 3, want: 8 * time.Second},
		{name: "no delay", policy: RetryPolicy{Attempts: 3}, attempt: 2, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.policy.NextDelay(tc.attempt); got != tc.want {
				t.Fatalf("NextDelay(%d) = %s, want %s", tc.attempt, got, tc.want)
			}
		})
	}
}

func TestJobExhausted(t *testing.T) {
	job := Job{Policy: RetryPolicy{Attempts: 3}, Attempts: 2}
	if job.Exhausted() {
		t.Fatal("job with 2/3 attempts must not be exhausted")
	}
	job.Attempts = 3
	if !job.Exhausted() {
		t.Fatal("job with 3/3 attempts must be exhausted")
	}
	if !(Job{Attempts: 1}).Exhausted() {
		t.Fatal("job without policy gets a single attempt")
	}
}
