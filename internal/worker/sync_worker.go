package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/XabSaRon/cashflowr/internal/amqp"
	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/sheets"
	"github.com/XabSaRon/cashflowr/internal/storage"
)

// SyncWorker mirrors income records from SQLite to the Google Sheets backup.
// AMQP messages drive it in steady state; the pending-sync queue in SQLite is
// the backstop for lost messages and downtime.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	appender  sheets.IncomeAppender
	remover   sheets.IncomeRemover
	logger    *log.Logger
	batchSize int
}

func NewSyncWorker(store *storage.SQLiteRepository, appender sheets.IncomeAppender, remover sheets.IncomeRemover, logger *log.Logger, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   store,
		appender:  appender,
		remover:   remover,
		logger:    logger.WithComponent(log.ComponentWorker),
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes one mirror message. Returning an error makes
// the consumer requeue the message; unknown actions and records that vanished
// are acked so they cannot poison the queue.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.IncomeSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldIncomeID, msg.ID,
		log.FieldOperation, msg.Action)

	switch msg.Action {
	case amqp.ActionDelete:
		return w.removeFromMirror(ctx, msg.ID)

	case amqp.ActionUpsert:
		rec, err := w.storage.GetIncome(ctx, msg.ID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between publish and consume; make sure the mirror
			// does not keep the row either.
			w.logger.WarnContext(ctx, "Income vanished before sync, removing from mirror",
				log.FieldIncomeID, msg.ID)
			return w.removeFromMirror(ctx, msg.ID)
		}
		if err != nil {
			return fmt.Errorf("get income: %w", err)
		}
		return w.syncIncomeToSheets(ctx, *rec)

	default:
		w.logger.WarnContext(ctx, "Unknown sync action, dropping message",
			log.FieldIncomeID, msg.ID,
			log.FieldOperation, msg.Action)
		return nil
	}
}

// ProcessPendingIncomes pushes one batch of unsynced records to the mirror.
// This is the backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingIncomes(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncIncomes(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending incomes: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.InfoContext(ctx, "Processing pending incomes", "count", len(pending))

	for _, rec := range pending {
		if err := w.syncIncomeToSheets(ctx, rec); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync income",
				log.FieldIncomeID, rec.ID,
				log.FieldError, err.Error())
		}
	}
	return nil
}

// StartupSyncCheck drains pending records left over from missed messages or
// worker downtime. It uses a larger batch than the periodic backfill.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncIncomes(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending incomes for startup check: %w", err)
	}
	if len(pending) == 0 {
		w.logger.InfoContext(ctx, "No pending incomes found on startup")
		return nil
	}

	w.logger.InfoContext(ctx, "Found pending incomes on startup, processing...",
		"count", len(pending))

	synced := 0
	failed := 0
	for _, rec := range pending {
		if err := w.syncIncomeToSheets(ctx, rec); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync income during startup",
				log.FieldIncomeID, rec.ID,
				log.FieldError, err.Error())
			failed++
			continue
		}
		synced++
	}

	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

// syncIncomeToSheets upserts one record into the mirror. The row is removed
// first so re-synced records do not pile up duplicates.
func (w *SyncWorker) syncIncomeToSheets(ctx context.Context, rec core.IncomeRecord) error {
	if w.remover != nil {
		if err := w.remover.Remove(ctx, rec.ID); err != nil {
			w.logger.WarnContext(ctx, "Failed to clear old mirror row",
				log.FieldIncomeID, rec.ID,
				log.FieldError, err.Error())
		}
	}

	ref, err := w.appender.Append(ctx, rec)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, rec.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error",
				log.FieldIncomeID, rec.ID,
				log.FieldError, markErr.Error())
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, rec.ID); err != nil {
		// The mirror write worked; the pending backfill will retry the mark.
		w.logger.ErrorContext(ctx, "Failed to mark as synced",
			log.FieldIncomeID, rec.ID,
			log.FieldError, err.Error())
	}

	w.logger.InfoContext(ctx, "Successfully synced income",
		log.FieldIncomeID, rec.ID,
		log.FieldSheetsRef, ref,
		log.FieldIncomeSource, rec.Source,
		log.FieldAmountCents, rec.Amount.Cents)
	return nil
}

// removeFromMirror deletes a row from the mirror, tolerating absence.
func (w *SyncWorker) removeFromMirror(ctx context.Context, id string) error {
	if w.remover == nil {
		w.logger.WarnContext(ctx, "No mirror remover configured, skipping deletion",
			log.FieldIncomeID, id)
		return nil
	}
	if err := w.remover.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove from mirror: %w", err)
	}
	w.logger.InfoContext(ctx, "Removed income from mirror", log.FieldIncomeID, id)
	return nil
}
