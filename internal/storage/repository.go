package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/XabSaRon/cashflowr/internal/core"
	"github.com/XabSaRon/cashflowr/internal/log"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// Sync states for the Google Sheets mirror queue.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateHome inserts a home and its owner's membership in one transaction.
func (r *SQLiteRepository) CreateHome(ctx context.Context, h core.Home) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	personal := 0
	if h.Personal {
		personal = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO homes (id, name, owner_uid, personal) VALUES (?, ?, ?, ?)`,
		h.ID, h.Name, h.OwnerUID, personal); err != nil {
		return fmt.Errorf("insert home: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO home_members (home_id, uid) VALUES (?, ?)`,
		h.ID, h.OwnerUID); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Home created", "home_id", h.ID, "name", h.Name, "owner_uid", h.OwnerUID)
	return nil
}

// GetHome retrieves a home by ID.
func (r *SQLiteRepository) GetHome(ctx context.Context, id string) (*core.Home, error) {
	var h core.Home
	var personal int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, owner_uid, personal FROM homes WHERE id = ?`, id).
		Scan(&h.ID, &h.Name, &h.OwnerUID, &personal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get home: %w", err)
	}
	h.Personal = personal != 0
	return &h, nil
}

// AddMember adds a user to a home. Adding an existing member is a no-op.
func (r *SQLiteRepository) AddMember(ctx context.Context, homeID, uid string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO home_members (home_id, uid) VALUES (?, ?)`, homeID, uid)
	if err != nil {
		return fmt.Errorf("add home member: %w", err)
	}
	return nil
}

// IsMember reports whether the user belongs to the home.
func (r *SQLiteRepository) IsMember(ctx context.Context, homeID, uid string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM home_members WHERE home_id = ? AND uid = ?`, homeID, uid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return n > 0, nil
}

// ListHomesForUser returns all homes the user is a member of.
func (r *SQLiteRepository) ListHomesForUser(ctx context.Context, uid string) ([]core.Home, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.owner_uid, h.personal
		 FROM homes h JOIN home_members m ON m.home_id = h.id
		 WHERE m.uid = ? ORDER BY h.created_at`, uid)
	if err != nil {
		return nil, fmt.Errorf("list homes: %w", err)
	}
	defer rows.Close()

	var homes []core.Home
	for rows.Next() {
		var h core.Home
		var personal int
		if err := rows.Scan(&h.ID, &h.Name, &h.OwnerUID, &personal); err != nil {
			return nil, fmt.Errorf("scan home: %w", err)
		}
		h.Personal = personal != 0
		homes = append(homes, h)
	}
	return homes, rows.Err()
}

// CreateIncome inserts an income record and queues it for the sheets mirror.
func (r *SQLiteRepository) CreateIncome(ctx context.Context, rec core.IncomeRecord) error {
	if err := r.insertIncome(ctx, r.db, rec); err != nil {
		return err
	}

	fields := log.NewFields().
		WithComponent(log.ComponentStorage).
		WithOperation(log.OpCreate).
		WithHome(rec.HomeID).
		WithIncome(rec.Source, rec.Amount.Cents, string(rec.Frequency), string(rec.Scope.OrShared()))
	fields[log.FieldIncomeID] = rec.ID
	slog.InfoContext(ctx, "Income saved", fields.ToSlice()...)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) insertIncome(ctx context.Context, ex execer, rec core.IncomeRecord) error {
	var endDate any
	if !rec.EndDate.IsZero() {
		endDate = rec.EndDate.Format(dateLayout)
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO incomes
		 (id, home_id, source, amount_cents, frequency, scope, created_by_uid, anchor_date, end_date, group_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.HomeID, rec.Source, rec.Amount.Cents, string(rec.Frequency),
		string(rec.Scope.OrShared()), rec.CreatedByUID, rec.Date.Format(dateLayout), endDate, rec.GroupID)
	if err != nil {
		return fmt.Errorf("insert income: %w", err)
	}
	return nil
}

// GetIncome retrieves a single income record by ID. Soft-deleted records are
// not returned.
func (r *SQLiteRepository) GetIncome(ctx context.Context, id string) (*core.IncomeRecord, error) {
	row := r.db.QueryRowContext(ctx, selectIncome+` WHERE id = ? AND deleted = 0`, id)
	rec, err := scanIncome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get income: %w", err)
	}
	return rec, nil
}

// ListIncomes returns all live income records for a home, oldest anchor first.
func (r *SQLiteRepository) ListIncomes(ctx context.Context, homeID string) ([]core.IncomeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		selectIncome+` WHERE home_id = ? AND deleted = 0 ORDER BY anchor_date, id`, homeID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var records []core.IncomeRecord
	for rows.Next() {
		rec, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// AmendIncome closes a recurring income at endDate and inserts its successor
// in one transaction. The successor carries the predecessor's group ID so the
// history stays linked.
func (r *SQLiteRepository) AmendIncome(ctx context.Context, id string, endDate core.Date, successor core.IncomeRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE incomes SET end_date = ?, sync_status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted = 0`,
		endDate.Format(dateLayout), SyncPending, id)
	if err != nil {
		return fmt.Errorf("end income: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if err := r.insertIncome(ctx, tx, successor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Income amended",
		"income_id", id,
		"successor_id", successor.ID,
		"group_id", successor.GroupID,
		"end_date", endDate.Format(dateLayout))
	return nil
}

// DeleteIncome soft-deletes an income record.
func (r *SQLiteRepository) DeleteIncome(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE incomes SET deleted = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("delete income: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Income deleted", "income_id", id)
	return nil
}

// GetPendingSyncIncomes returns income records waiting for the sheets mirror.
func (r *SQLiteRepository) GetPendingSyncIncomes(ctx context.Context, limit int) ([]core.IncomeRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		selectIncome+` WHERE sync_status = ? AND deleted = 0 ORDER BY created_at LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync incomes: %w", err)
	}
	defer rows.Close()

	var records []core.IncomeRecord
	for rows.Next() {
		rec, err := scanIncome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// MarkSynced marks an income as successfully mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE incomes SET sync_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		SyncDone, id); err != nil {
		return fmt.Errorf("mark income synced: %w", err)
	}

	slog.InfoContext(ctx, "Income marked as synced", "income_id", id)
	return nil
}

// MarkSyncError records a failed mirror attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE incomes SET sync_status = ?, sync_attempts = sync_attempts + 1,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		SyncError, id); err != nil {
		return fmt.Errorf("mark income sync error: %w", err)
	}

	slog.WarnContext(ctx, "Income marked with sync error", "income_id", id)
	return nil
}

const selectIncome = `SELECT id, home_id, source, amount_cents, frequency, scope,
 created_by_uid, anchor_date, end_date, group_id FROM incomes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncome(row rowScanner) (*core.IncomeRecord, error) {
	var rec core.IncomeRecord
	var frequency, scope, anchor string
	var endDate sql.NullString

	if err := row.Scan(&rec.ID, &rec.HomeID, &rec.Source, &rec.Amount.Cents,
		&frequency, &scope, &rec.CreatedByUID, &anchor, &endDate, &rec.GroupID); err != nil {
		return nil, err
	}

	rec.Frequency = core.Frequency(frequency)
	rec.Scope = core.Scope(scope)

	d, err := time.Parse(dateLayout, anchor)
	if err != nil {
		return nil, fmt.Errorf("parse anchor date %q: %w", anchor, err)
	}
	rec.Date = core.Date{Time: d}

	if endDate.Valid {
		e, err := time.Parse(dateLayout, endDate.String)
		if err != nil {
			return nil, fmt.Errorf("parse end date %q: %w", endDate.String, err)
		}
		rec.EndDate = core.Date{Time: e}
	}

	return &rec, nil
}
