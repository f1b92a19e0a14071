package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

func rec(id string, block int64) *domain.TransferRecord {
	return &domain.TransferRecord{
		ID:          id,
		FromAddress: "0xfrom",
		ToAddress:   "0xto",
		Amount:      decimal.NewFromInt(block),
		BlockNumber: block,
	}
}

func TestLedgerStore_UpsertIsIdempotent(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	inserted, err := store.Upsert(ctx, rec("h1", 100))
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !inserted {
		t.Fatal("expected first upsert to insert")
	}

	changed := rec("h1", 999)
	inserted, err = store.Upsert(ctx, changed)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if inserted {
		t.Error("expected second upsert to be ignored")
	}

	all, _ := store.All(ctx)
	if len(all) != 1 || all[0].BlockNumber != 100 {
		t.Errorf("existing entry must be unchanged, got %+v", all)
	}
}

func TestLedgerStore_UpsertBulk(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_, _ = store.Upsert(ctx, rec("h2", 200))

	n, err := store.UpsertBulk(ctx, []*domain.TransferRecord{rec("h1", 100), rec("h2", 200), rec("h3", 300), rec("h3", 300)})
	if err != nil {
		t.Fatalf("UpsertBulk failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserted, got %d", n)
	}

	count, _ := store.Count(ctx)
	if count != 3 {
		t.Errorf("expected 3 records, got %d", count)
	}
}

func TestLedgerStore_UpsertBulkRejectsInvalidBeforeWriting(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_, err := store.UpsertBulk(ctx, []*domain.TransferRecord{rec("h1", 1), {ID: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	count, _ := store.Count(ctx)
	if count != 0 {
		t.Errorf("expected nothing written, got %d records", count)
	}
}

func TestLedgerStore_AllOrdering(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_, _ = store.UpsertBulk(ctx, []*domain.TransferRecord{rec("b", 10), rec("c", 30), rec("a", 10)})

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	want := []string{"c", "a", "b"}
	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, all[i].ID, id)
		}
	}
}

func TestLedgerStore_ReturnsCopies(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_, _ = store.Upsert(ctx, rec("h1", 1))
	all, _ := store.All(ctx)
	all[0].ToAddress = "mutated"

	again, _ := store.All(ctx)
	if again[0].ToAddress != "0xto" {
		t.Errorf("store leaked internal record: %s", again[0].ToAddress)
	}
}

func TestLedgerStore_SetCategories(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	_, _ = store.Upsert(ctx, rec("h1", 1))
	err := store.SetCategories(ctx, map[string]domain.Category{
		"h1":      domain.CategoryBuy,
		"missing": domain.CategorySell,
	})
	if err != nil {
		t.Fatalf("SetCategories failed: %v", err)
	}

	all, _ := store.All(ctx)
	if all[0].Category != domain.CategoryBuy {
		t.Errorf("expected buy, got %s", all[0].Category)
	}
	if ok, _ := store.Contains(ctx, "missing"); ok {
		t.Error("SetCategories must not create records")
	}
}
