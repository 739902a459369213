package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voxup/logbus"
)

func TestHTTPProbeAcceptsAnyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := HTTPProbe(context.Background(), srv.URL); err != nil {
		t.Fatalf("probe against 502 endpoint: %v", err)
	}
}

func TestHTTPProbeFailsOnClosedPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if err := HTTPProbe(context.Background(), url); err == nil {
		t.Fatal("probe against closed port should fail")
	}
}

func TestWaitReadyRespectsAttemptBudget(t *testing.T) {
	var attempts int
	e := New(&fakeRuntime{}, logbus.New(),
		WithProbe(func(ctx context.Context, endpoint string) error {
			attempts++
			return errors.New("connection refused")
		}),
		WithProbeBudget(time.Millisecond, 4),
	)

	err := e.waitReady(context.Background(), "http://127.0.0.1:1")
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
}

func TestWaitReadyZeroAttemptBudgetStaysBounded(t *testing.T) {
	var attempts int
	e := New(&fakeRuntime{}, logbus.New(),
		WithProbe(func(ctx context.Context, endpoint string) error {
			attempts++
			return errors.New("connection refused")
		}),
		WithProbeBudget(time.Millisecond, 0),
	)

	err := e.waitReady(context.Background(), "http://127.0.0.1:1")
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("err = %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want the clamped single attempt", attempts)
	}
}

func TestWaitReadyRecoversWithinBudget(t *testing.T) {
	var attempts int
	e := New(&fakeRuntime{}, logbus.New(),
		WithProbe(func(ctx context.Context, endpoint string) error {
			attempts++
			if attempts < 3 {
				return errors.New("connection refused")
			}
			return nil
		}),
		WithProbeBudget(time.Millisecond, 30),
	)

	if err := e.waitReady(context.Background(), "http://127.0.0.1:1"); err != nil {
		t.Fatalf("waitReady: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}
