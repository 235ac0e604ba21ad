package product

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepositoryListsByNameAndUpdatesPrice(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, p := range []Product{
		{ID: "p-video", Name: "Video Processing", UnitPriceCents: 25},
		{ID: "p-api", Name: "API Call", UnitPriceCents: 1},
	} {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.ID, err)
		}
	}
	if err := repo.Create(ctx, Product{ID: "p-dup", Name: "API Call"}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "API Call" {
		t.Fatalf("unexpected order %+v", list)
	}

	updated, err := repo.UpdatePrice(ctx, "p-api", 3)
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if updated.UnitPriceCents != 3 {
		t.Fatalf("expected 3 got %d", updated.UnitPriceCents)
	}
	if _, err := repo.UpdatePrice(ctx, "nope", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
}

func TestMemoryRepositorySnapshotRestores(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_ = repo.Create(ctx, Product{ID: "p1", Name: "API Call", UnitPriceCents: 1})

	restore := repo.Snapshot()
	_, _ = repo.UpdatePrice(ctx, "p1", 99)
	_ = repo.Create(ctx, Product{ID: "p2", Name: "Image Processing", UnitPriceCents: 10})
	restore()

	p, err := repo.Get(ctx, "p1")
	if err != nil || p.UnitPriceCents != 1 {
		t.Fatalf("expected original price, got %+v err=%v", p, err)
	}
	if _, err := repo.Get(ctx, "p2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected p2 to be rolled back")
	}
}
