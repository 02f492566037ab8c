package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/hazz-dev/portwatch/internal/config"
	"github.com/hazz-dev/portwatch/internal/storage/postgres"
)

func openTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("PORTWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PORTWATCH_TEST_PG_DSN not set; skipping postgres integration test")
	}
	s, err := postgres.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ep := config.Endpoint{Host: "pg-integration.test", Port: 5432}

	if err := s.Clear(ctx, ep); err != nil {
		t.Fatalf("Clear (setup): %v", err)
	}
	t.Cleanup(func() { _ = s.Clear(context.Background(), ep) })

	rec, err := s.Get(ctx, ep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}

	for want := 1; want <= 3; want++ {
		n, err := s.RecordFailure(ctx, ep)
		if err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if n != want {
			t.Errorf("expected count %d, got %d", want, n)
		}
	}

	rec, err = s.Get(ctx, ep)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.ConsecutiveFailures != 3 {
		t.Fatalf("expected count 3, got %+v", rec)
	}
	if rec.LastFailedAt.Before(rec.FirstFailedAt) {
		t.Errorf("last_failed_at %v before first_failed_at %v", rec.LastFailedAt, rec.FirstFailedAt)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	found := false
	for _, r := range all {
		if r.Endpoint == ep {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %v in All()", ep)
	}

	if err := s.Clear(ctx, ep); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx, ep); err != nil {
		t.Fatalf("Clear on absent record: %v", err)
	}
	rec, err = s.Get(ctx, ep)
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Errorf("expected record cleared, got %+v", rec)
	}
}
