package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/XabSaRon/cashflowr/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testHome() core.Home {
	return core.Home{ID: "home-1", Name: "Casa", OwnerUID: "uid-a"}
}

func testIncome(id string) core.IncomeRecord {
	return core.IncomeRecord{
		ID:           id,
		HomeID:       "home-1",
		Source:       "salary",
		Amount:       core.Money{Cents: 250000},
		Frequency:    core.Monthly,
		Scope:        core.ScopeShared,
		CreatedByUID: "uid-a",
		Date:         core.NewDate(2024, 1, 15),
		GroupID:      "group-" + id,
	}
}

func TestHomeLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateHome(ctx, testHome()); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}

	got, err := repo.GetHome(ctx, "home-1")
	if err != nil {
		t.Fatalf("GetHome() error = %v", err)
	}
	if got.Name != "Casa" || got.OwnerUID != "uid-a" {
		t.Errorf("GetHome() = %+v", got)
	}

	// The owner is a member from creation.
	ok, err := repo.IsMember(ctx, "home-1", "uid-a")
	if err != nil || !ok {
		t.Fatalf("IsMember(owner) = %v, %v, want true", ok, err)
	}

	if err := repo.AddMember(ctx, "home-1", "uid-b"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	// Adding again must not fail.
	if err := repo.AddMember(ctx, "home-1", "uid-b"); err != nil {
		t.Fatalf("AddMember() repeat error = %v", err)
	}

	ok, err = repo.IsMember(ctx, "home-1", "uid-c")
	if err != nil || ok {
		t.Fatalf("IsMember(stranger) = %v, %v, want false", ok, err)
	}

	homes, err := repo.ListHomesForUser(ctx, "uid-b")
	if err != nil {
		t.Fatalf("ListHomesForUser() error = %v", err)
	}
	if len(homes) != 1 || homes[0].ID != "home-1" {
		t.Errorf("ListHomesForUser() = %+v", homes)
	}

	if _, err := repo.GetHome(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetHome(missing) error = %v, want ErrNotFound", err)
	}
}

func TestIncomeLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateHome(ctx, testHome()); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	if err := repo.CreateIncome(ctx, testIncome("inc-1")); err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}

	got, err := repo.GetIncome(ctx, "inc-1")
	if err != nil {
		t.Fatalf("GetIncome() error = %v", err)
	}
	if got.Source != "salary" || got.Amount.Cents != 250000 || got.Frequency != core.Monthly {
		t.Errorf("GetIncome() = %+v", got)
	}
	if got.Date.Year() != 2024 || got.Date.Month() != 1 || got.Date.Day() != 15 {
		t.Errorf("GetIncome() anchor = %v", got.Date)
	}
	if !got.EndDate.IsZero() {
		t.Errorf("GetIncome() end date = %v, want zero", got.EndDate)
	}

	records, err := repo.ListIncomes(ctx, "home-1")
	if err != nil {
		t.Fatalf("ListIncomes() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListIncomes() returned %d records, want 1", len(records))
	}

	if err := repo.DeleteIncome(ctx, "inc-1"); err != nil {
		t.Fatalf("DeleteIncome() error = %v", err)
	}
	if _, err := repo.GetIncome(ctx, "inc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetIncome(deleted) error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteIncome(ctx, "inc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteIncome(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestAmendIncome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateHome(ctx, testHome()); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}

	orig := testIncome("inc-1")
	orig.GroupID = "group-1"
	if err := repo.CreateIncome(ctx, orig); err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}

	successor := testIncome("inc-2")
	successor.GroupID = "group-1"
	successor.Amount = core.Money{Cents: 275000}
	successor.Date = core.NewDate(2024, 7, 15)

	if err := repo.AmendIncome(ctx, "inc-1", core.NewDate(2024, 6, 30), successor); err != nil {
		t.Fatalf("AmendIncome() error = %v", err)
	}

	ended, err := repo.GetIncome(ctx, "inc-1")
	if err != nil {
		t.Fatalf("GetIncome(ended) error = %v", err)
	}
	if ended.EndDate.IsZero() || ended.EndDate.Day() != 30 || ended.EndDate.Month() != 6 {
		t.Errorf("ended record end date = %v, want 2024-06-30", ended.EndDate)
	}

	next, err := repo.GetIncome(ctx, "inc-2")
	if err != nil {
		t.Fatalf("GetIncome(successor) error = %v", err)
	}
	if next.GroupID != "group-1" || next.Amount.Cents != 275000 {
		t.Errorf("successor = %+v", next)
	}

	if err := repo.AmendIncome(ctx, "missing", core.NewDate(2024, 6, 30), testIncome("inc-3")); !errors.Is(err, ErrNotFound) {
		t.Errorf("AmendIncome(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSyncQueue(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateHome(ctx, testHome()); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	for _, id := range []string{"inc-1", "inc-2", "inc-3"} {
		if err := repo.CreateIncome(ctx, testIncome(id)); err != nil {
			t.Fatalf("CreateIncome(%s) error = %v", id, err)
		}
	}

	pending, err := repo.GetPendingSyncIncomes(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncIncomes() error = %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(pending))
	}

	if err := repo.MarkSynced(ctx, "inc-1"); err != nil {
		t.Fatalf("MarkSynced() error = %v", err)
	}
	if err := repo.MarkSyncError(ctx, "inc-2"); err != nil {
		t.Fatalf("MarkSyncError() error = %v", err)
	}

	pending, err = repo.GetPendingSyncIncomes(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncIncomes() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "inc-3" {
		t.Errorf("pending after marks = %+v", pending)
	}

	pending, err = repo.GetPendingSyncIncomes(ctx, 0)
	if err != nil {
		t.Fatalf("GetPendingSyncIncomes(limit 0) error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending with zero limit = %d, want 0", len(pending))
	}
}
