package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/samudra-hr/hris-api/internal/models"
)

// RepaymentRepository persists the deduction schedules created when a
// salary advance is approved and the settlements posted against them.
type RepaymentRepository struct {
	db *sqlx.DB
}

// NewRepaymentRepository constructs the repository.
func NewRepaymentRepository(db *sqlx.DB) *RepaymentRepository {
	return &RepaymentRepository{db: db}
}

// CreateSchedule inserts all entries of an advance's deduction schedule in
// one transaction.
func (r *RepaymentRepository) CreateSchedule(ctx context.Context, entries []models.RepaymentEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("empty repayment schedule")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO advance_repayments
	(id, instance_id, subject_id, seq, due_date, amount, settled_at)
	VALUES (:id, :instance_id, :subject_id, :seq, :due_date, :amount, :settled_at)`, entry); err != nil {
			return fmt.Errorf("insert repayment entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit repayment schedule: %w", err)
	}
	return nil
}

// ListByInstance returns an advance's schedule in deduction order.
func (r *RepaymentRepository) ListByInstance(ctx context.Context, instanceID string) ([]models.RepaymentEntry, error) {
	var entries []models.RepaymentEntry
	const query = `SELECT id, instance_id, subject_id, seq, due_date, amount, settled_at
	FROM advance_repayments WHERE instance_id = $1 ORDER BY seq ASC`
	if err := r.db.SelectContext(ctx, &entries, query, instanceID); err != nil {
		return nil, fmt.Errorf("list repayments: %w", err)
	}
	return entries, nil
}

// Outstanding sums the unsettled deductions across all of an employee's
// advances. This feeds the approval guard.
func (r *RepaymentRepository) Outstanding(ctx context.Context, subjectID string) (int64, error) {
	var total sql.NullInt64
	const query = `SELECT SUM(amount) FROM advance_repayments WHERE subject_id = $1 AND settled_at IS NULL`
	if err := r.db.GetContext(ctx, &total, query, subjectID); err != nil {
		return 0, fmt.Errorf("sum outstanding advances: %w", err)
	}
	return total.Int64, nil
}

// OutstandingForInstance sums the unsettled deductions of one advance.
func (r *RepaymentRepository) OutstandingForInstance(ctx context.Context, instanceID string) (int64, error) {
	var total sql.NullInt64
	const query = `SELECT SUM(amount) FROM advance_repayments WHERE instance_id = $1 AND settled_at IS NULL`
	if err := r.db.GetContext(ctx, &total, query, instanceID); err != nil {
		return 0, fmt.Errorf("sum instance outstanding: %w", err)
	}
	return total.Int64, nil
}

// NextUnsettled returns the oldest unsettled entry of an advance.
func (r *RepaymentRepository) NextUnsettled(ctx context.Context, instanceID string) (*models.RepaymentEntry, error) {
	var entry models.RepaymentEntry
	const query = `SELECT id, instance_id, subject_id, seq, due_date, amount, settled_at
	FROM advance_repayments WHERE instance_id = $1 AND settled_at IS NULL ORDER BY seq ASC LIMIT 1`
	if err := r.db.GetContext(ctx, &entry, query, instanceID); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Settle marks one entry as deducted. Settling an already settled entry is
// rejected so a double posting cannot shrink the balance twice.
func (r *RepaymentRepository) Settle(ctx context.Context, entryID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE advance_repayments SET settled_at = $1 WHERE id = $2 AND settled_at IS NULL`,
		time.Now().UTC(), entryID)
	if err != nil {
		return fmt.Errorf("settle repayment entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check settle rows: %w", err)
	}
	if rows == 0 {
		return errors.New("repayment entry already settled")
	}
	return nil
}
