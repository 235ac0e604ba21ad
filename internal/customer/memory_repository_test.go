package customer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	c := Customer{ID: "c1", Name: "Acme", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, c); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
	got, err := repo.Get(ctx, "c1")
	if err != nil || got.Name != "Acme" {
		t.Fatalf("unexpected %+v err=%v", got, err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}
