package llm

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestExecuteWithRetry_RecoversAfterTransientFailures(t *testing.T) {
	svc, fake := newTestService(nil)
	fake.complete = func(ctx context.Context, req Request) (string, Usage, error) {
		if fake.callCount() < 3 {
			return "", Usage{}, fmt.Errorf("rate limit exceeded (429)")
		}
		return `{"ok": true}`, Usage{InputTokens: 1, OutputTokens: 1}, nil
	}

	resp := svc.ExecuteWithRetry(context.Background(), Request{Prompt: "hi"}, fastPolicy())
	if !resp.Success {
		t.Fatalf("Expected recovery, got error %q", resp.Error)
	}
	if resp.Meta.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", resp.Meta.Attempts)
	}
}

func TestExecuteWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	svc, fake := newTestService(nil)
	fake.complete = func(ctx context.Context, req Request) (string, Usage, error) {
		return "", Usage{}, fmt.Errorf("request failed: connection reset")
	}

	resp := svc.ExecuteWithRetry(context.Background(), Request{Prompt: "hi"}, fastPolicy())
	if resp.Success {
		t.Fatal("Expected failure")
	}
	if resp.Meta.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", resp.Meta.Attempts)
	}
	if fake.callCount() != 3 {
		t.Errorf("Expected 3 provider calls, got %d", fake.callCount())
	}
}

func TestExecuteWithRetry_SkipsCredentialErrors(t *testing.T) {
	svc, fake := newTestService(nil)
	fake.complete = func(ctx context.Context, req Request) (string, Usage, error) {
		return "", Usage{}, fmt.Errorf("API request failed with status 401: Invalid API key")
	}

	resp := svc.ExecuteWithRetry(context.Background(), Request{Prompt: "hi"}, fastPolicy())
	if resp.Success {
		t.Fatal("Expected failure")
	}
	if fake.callCount() != 1 {
		t.Errorf("Expected no retry for credential error, got %d calls", fake.callCount())
	}
}

func TestExecuteWithRetry_SkipsUnauthorized(t *testing.T) {
	svc, fake := newTestService(nil)
	fake.complete = func(ctx context.Context, req Request) (string, Usage, error) {
		return "", Usage{}, fmt.Errorf("API request failed with status 401: Unauthorized")
	}

	resp := svc.ExecuteWithRetry(context.Background(), Request{Prompt: "hi"}, fastPolicy())
	if resp.Success || fake.callCount() != 1 {
		t.Errorf("Expected single attempt, got %d", fake.callCount())
	}
}

func TestExecuteWithRetry_StopsOnContextCancel(t *testing.T) {
	svc, fake := newTestService(nil)
	fake.complete = func(ctx context.Context, req Request) (string, Usage, error) {
		return "", Usage{}, fmt.Errorf("request failed: boom")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour, Multiplier: 2.0}
	start := time.Now()
	resp := svc.ExecuteWithRetry(ctx, Request{Prompt: "hi"}, policy)
	if resp.Success {
		t.Fatal("Expected failure")
	}
	if resp.Meta.Attempts != 1 {
		t.Errorf("Expected 1 attempt before cancellation, got %d", resp.Meta.Attempts)
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancellation to skip the backoff")
	}
}

func TestExecuteWithRetry_ZeroPolicyUsesDefault(t *testing.T) {
	svc, _ := newTestService(nil)
	resp := svc.ExecuteWithRetry(context.Background(), Request{Prompt: "hi"}, RetryPolicy{})
	if !resp.Success {
		t.Fatalf("Expected success, got %q", resp.Error)
	}
	if resp.Meta.Attempts != 1 {
		t.Errorf("Expected single attempt on success, got %d", resp.Meta.Attempts)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2.0}
	if d := p.Delay(1); d != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", d)
	}
	if d := p.Delay(2); d != 2*time.Second {
		t.Errorf("Delay(2) = %v, want 2s", d)
	}
	if d := p.Delay(3); d != 3*time.Second {
		t.Errorf("Delay(3) = %v, want capped 3s", d)
	}
}
