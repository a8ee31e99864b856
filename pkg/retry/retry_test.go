package retry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testConfig(maxAttempts int, delay time.Duration) Config {
	return Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     10 * delay,
		Strategy:     BackoffConstant,
	}
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	retryer, err := NewRetryer(testConfig(5, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer, err := NewRetryer(testConfig(3, time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	boom := errors.New("persistent error")
	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_NonRetryableError(t *testing.T) {
	cfg := testConfig(5, time.Millisecond)
	cfg.RetryableErrors = []string{"timeout"}
	retryer, err := NewRetryer(cfg)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("access denied")
	})

	if err == nil || !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_ContextCancelled(t *testing.T) {
	retryer, err := NewRetryer(testConfig(0, time.Hour))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	err = retryer.Do(ctx, func(ctx context.Context) error {
		cancel()
		return errors.New("down")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	cfg := testConfig(3, time.Millisecond)
	var seen []int
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	}
	retryer, err := NewRetryer(cfg)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	retryer.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected OnRetry for attempts [1 2], got %v", seen)
	}
}

func TestRetryer_DeadLetterOnExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.json")
	retryer, err := NewRetryer(testConfig(2, time.Millisecond).WithDLQ(path, 10))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	payload := []byte(`{"table":"products"}`)
	retryer.DoWithData(context.Background(), func(ctx context.Context) error {
		return errors.New("broker unreachable")
	}, payload)

	if err := retryer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewDLQ(DLQConfig{FilePath: path})
	if err != nil {
		t.Fatalf("Reopen DLQ failed: %v", err)
	}
	entries := reopened.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 dead letter, got %d", len(entries))
	}
	if entries[0].Attempts != 2 || entries[0].FailureType != FailureMaxAttempts {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if string(entries[0].Payload) != string(payload) {
		t.Errorf("Payload = %s, want %s", entries[0].Payload, payload)
	}
}

func TestBackoff_Delay(t *testing.T) {
	tests := []struct {
		name     string
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{"constant first", BackoffConstant, 1, 100 * time.Millisecond},
		{"constant later", BackoffConstant, 7, 100 * time.Millisecond},
		{"linear", BackoffLinear, 3, 300 * time.Millisecond},
		{"exponential", BackoffExponential, 3, 400 * time.Millisecond},
		{"exponential capped", BackoffExponential, 10, time.Second},
		{"exponential overflow capped", BackoffExponential, 500, time.Second},
		{"attempt zero", BackoffLinear, 0, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackoff(Config{
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     time.Second,
				Strategy:     tt.strategy,
				Multiplier:   2,
			})
			if err != nil {
				t.Fatalf("NewBackoff failed: %v", err)
			}
			if got := b.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	b, err := NewBackoff(Config{InitialDelay: 100 * time.Millisecond, Jitter: 0.5})
	if err != nil {
		t.Fatalf("NewBackoff failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		if d < 50*time.Millisecond || d > 150*time.Millisecond {
			t.Fatalf("Delay with 50%% jitter out of bounds: %v", d)
		}
	}
}

func TestReconnectConfig(t *testing.T) {
	cfg := ReconnectConfig()
	b, err := NewBackoff(cfg)
	if err != nil {
		t.Fatalf("NewBackoff failed: %v", err)
	}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b.Delay(attempt); got != 10*time.Second {
			t.Errorf("Reconnect delay(%d) = %v, want 10s", attempt, got)
		}
	}
	if cfg.MaxAttempts != 0 {
		t.Errorf("Reconnect must be unlimited, got %d", cfg.MaxAttempts)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults filled", Config{InitialDelay: time.Second}, false},
		{"zero delay", Config{}, true},
		{"negative attempts", Config{MaxAttempts: -1, InitialDelay: time.Second}, true},
		{"max below initial", Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"unknown strategy", Config{InitialDelay: time.Second, Strategy: "fibonacci"}, true},
		{"jitter too big", Config{InitialDelay: time.Second, Jitter: 1.5}, true},
		{"dlq without path", Config{InitialDelay: time.Second, DLQ: DLQConfig{Enabled: true}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
