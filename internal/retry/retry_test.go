package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/caselens/caselens/internal/domain"
)

func fastConfig(tries uint) Config {
	return Config{
		MaxTries:        tries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestNone_RunsOnce(t *testing.T) {
	calls := 0
	err := None().Do(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrProviderUnavailable
	})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExponential_RetriesTransient(t *testing.T) {
	calls := 0
	err := Exponential(fastConfig(3)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: 503", domain.ErrProviderUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExponential_StopsAtMaxTries(t *testing.T) {
	calls := 0
	retries := 0
	cfg := fastConfig(3)
	cfg.OnRetry = func(error, time.Duration) { retries++ }

	err := Exponential(cfg).Do(context.Background(), func(context.Context) error {
		calls++
		return domain.ErrStoreUnavailable
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if retries != 2 {
		t.Errorf("expected 2 retry notifications, got %d", retries)
	}
}

func TestExponential_DoesNotRetryPermanent(t *testing.T) {
	for _, sentinel := range []error{
		domain.ErrInvalidInput,
		domain.ErrDimensionMismatch,
		domain.ErrInvalidArgument,
	} {
		calls := 0
		err := Exponential(fastConfig(5)).Do(context.Background(), func(context.Context) error {
			calls++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("expected %v, got %v", sentinel, err)
		}
		if calls != 1 {
			t.Errorf("%v: expected 1 call, got %d", sentinel, calls)
		}
	}
}

func TestExponential_SingleTryIsNone(t *testing.T) {
	if _, ok := Exponential(Config{MaxTries: 1}).(none); !ok {
		t.Error("expected MaxTries=1 to return the no-retry policy")
	}
}

func TestExponential_CanceledContextKeepsCause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxTries: 5, InitialInterval: time.Second, MaxInterval: time.Second}

	err := Exponential(cfg).Do(ctx, func(context.Context) error {
		cancel()
		return domain.ErrProviderUnavailable
	})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected last classified error, got %v", err)
	}
}
