package worker

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/XabSaRon/cashflowr/internal/amqp"
	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/sheets/memory"
	"github.com/XabSaRon/cashflowr/internal/storage"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestWorker(t *testing.T) (*SyncWorker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	mirror := memory.New()
	w := NewSyncWorker(repo, mirror, mirror, testLogger(), 10)
	return w, repo, mirror
}

func seedIncome(t *testing.T, repo *storage.SQLiteRepository, id string) core.IncomeRecord {
	t.Helper()
	ctx := context.Background()

	if err := repo.CreateHome(ctx, core.Home{ID: "home-1", Name: "Casa", OwnerUID: "uid-a"}); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	rec := core.IncomeRecord{
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
	if err := repo.CreateIncome(ctx, rec); err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}
	return rec
}

func TestHandleSyncMessageUpsert(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	ctx := context.Background()
	seedIncome(t, repo, "inc-1")

	msg := amqp.NewIncomeSyncMessage("inc-1", amqp.ActionUpsert)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}

	items := mirror.Items()
	if len(items) != 1 || items[0].ID != "inc-1" {
		t.Fatalf("mirror items = %+v, want one row for inc-1", items)
	}

	pending, err := repo.GetPendingSyncIncomes(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncIncomes() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after sync = %d, want 0", len(pending))
	}
}

func TestHandleSyncMessageUpsertIsIdempotent(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	ctx := context.Background()
	seedIncome(t, repo, "inc-1")

	msg := amqp.NewIncomeSyncMessage("inc-1", amqp.ActionUpsert)
	for i := 0; i < 3; i++ {
		if err := w.HandleSyncMessage(ctx, msg); err != nil {
			t.Fatalf("HandleSyncMessage() attempt %d error = %v", i, err)
		}
	}

	if n := len(mirror.Items()); n != 1 {
		t.Errorf("mirror rows after repeated upsert = %d, want 1", n)
	}
}

func TestHandleSyncMessageDelete(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	ctx := context.Background()
	seedIncome(t, repo, "inc-1")

	if err := w.HandleSyncMessage(ctx, amqp.NewIncomeSyncMessage("inc-1", amqp.ActionUpsert)); err != nil {
		t.Fatalf("upsert error = %v", err)
	}
	if err := w.HandleSyncMessage(ctx, amqp.NewIncomeSyncMessage("inc-1", amqp.ActionDelete)); err != nil {
		t.Fatalf("delete error = %v", err)
	}

	if n := len(mirror.Items()); n != 0 {
		t.Errorf("mirror rows after delete = %d, want 0", n)
	}

	// Deleting a row that was never mirrored must not error.
	if err := w.HandleSyncMessage(ctx, amqp.NewIncomeSyncMessage("ghost", amqp.ActionDelete)); err != nil {
		t.Errorf("delete missing error = %v, want nil", err)
	}
}

func TestHandleSyncMessageVanishedRecord(t *testing.T) {
	w, _, _ := newTestWorker(t)

	// Upsert for an ID that does not exist is acked, not requeued.
	if err := w.HandleSyncMessage(context.Background(), amqp.NewIncomeSyncMessage("missing", amqp.ActionUpsert)); err != nil {
		t.Errorf("HandleSyncMessage(missing) error = %v, want nil", err)
	}
}

func TestHandleSyncMessageUnknownAction(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	seedIncome(t, repo, "inc-1")

	msg := &amqp.IncomeSyncMessage{ID: "inc-1", Action: "explode"}
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Errorf("unknown action error = %v, want nil", err)
	}
	if n := len(mirror.Items()); n != 0 {
		t.Errorf("mirror rows = %d, want 0", n)
	}
}

func TestProcessPendingIncomes(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	ctx := context.Background()

	if err := repo.CreateHome(ctx, core.Home{ID: "home-1", Name: "Casa", OwnerUID: "uid-a"}); err != nil {
		t.Fatalf("CreateHome() error = %v", err)
	}
	for _, id := range []string{"inc-1", "inc-2", "inc-3"} {
		rec := core.IncomeRecord{
			ID: id, HomeID: "home-1", Source: "salary",
			Amount: core.Money{Cents: 100000}, Frequency: core.Monthly,
			CreatedByUID: "uid-a", Date: core.NewDate(2024, 1, 1), GroupID: "g-" + id,
		}
		if err := repo.CreateIncome(ctx, rec); err != nil {
			t.Fatalf("CreateIncome(%s) error = %v", id, err)
		}
	}

	if err := w.ProcessPendingIncomes(ctx); err != nil {
		t.Fatalf("ProcessPendingIncomes() error = %v", err)
	}

	if n := len(mirror.Items()); n != 3 {
		t.Errorf("mirror rows = %d, want 3", n)
	}
	pending, err := repo.GetPendingSyncIncomes(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncIncomes() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	// Nothing left to do is not an error.
	if err := w.ProcessPendingIncomes(ctx); err != nil {
		t.Errorf("ProcessPendingIncomes(empty) error = %v", err)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	ctx := context.Background()
	seedIncome(t, repo, "inc-1")

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}
	if n := len(mirror.Items()); n != 1 {
		t.Errorf("mirror rows = %d, want 1", n)
	}
}
