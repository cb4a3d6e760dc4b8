package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// retryableTestError declares its own retryability, like providers.Error does.
type retryableTestError struct {
	msg       string
	retryable bool
}

func (e *retryableTestError) Error() string     { return e.msg }
func (e *retryableTestError) IsRetryable() bool { return e.retryable }

func testConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := ProviderConfig()
	if cfg.MaxRetries != 2 {
		t.Errorf("expected MaxRetries=2 (3 attempts total), got %d", cfg.MaxRetries)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestDo_Success(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), testConfig(), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), testConfig(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error after retries, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2

	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(context.Background(), cfg, func() error {
		callCount++
		return expectedErr
	})

	if err != expectedErr {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	// MaxRetries=2 means: initial attempt + 2 retries = 3 total calls
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	cfg := testConfig()
	cfg.InitialDelay = time.Second

	errCh := make(chan error, 1)
	go func() {
		errCh <- Do(ctx, cfg, func() error {
			callCount++
			return errors.New("always fails")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	callCount := 0
	got, err := DoWithResult(context.Background(), testConfig(), func() (string, error) {
		callCount++
		if callCount < 2 {
			return "", &retryableTestError{msg: "503 upstream", retryable: true}
		}
		return "response text", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if got != "response text" {
		t.Errorf("expected result after retry, got %q", got)
	}
	if callCount != 2 {
		t.Errorf("expected 2 calls, got %d", callCount)
	}
}

func TestDoWithResult_NonRetryableShortCircuits(t *testing.T) {
	authErr := &retryableTestError{msg: "401 unauthorized", retryable: false}
	callCount := 0
	_, err := DoWithResult(context.Background(), testConfig(), func() (int, error) {
		callCount++
		return 0, authErr
	})

	if err != authErr {
		t.Errorf("expected auth error returned as-is, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected exactly 1 call for non-retryable error, got %d", callCount)
	}
}

func TestDoIfRetryable_RetryableError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), testConfig(), func() error {
		callCount++
		return &retryableTestError{msg: "gateway timeout", retryable: true}
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls (1 initial + 3 retries), got %d", callCount)
	}
}

func TestDoIfRetryable_PermanentError(t *testing.T) {
	callCount := 0
	err := DoIfRetryable(context.Background(), testConfig(), func() error {
		callCount++
		return &retryableTestError{msg: "400 bad request", retryable: false}
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", callCount)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"retryable interface true", &retryableTestError{retryable: true}, true},
		{"retryable interface false", &retryableTestError{msg: "timeout", retryable: false}, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit", errors.New("429 too many requests"), true},
		{"server error", errors.New("unexpected status 503"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"plain error", errors.New("invalid gazetteer entry"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
