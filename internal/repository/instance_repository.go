package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/samudra-hr/hris-api/internal/models"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
)

// WorkflowInstanceRepository is the durable store for workflow instances,
// their append-only transition history and side-effect records.
type WorkflowInstanceRepository struct {
	db *sqlx.DB
}

// NewWorkflowInstanceRepository constructs the repository.
func NewWorkflowInstanceRepository(db *sqlx.DB) *WorkflowInstanceRepository {
	return &WorkflowInstanceRepository{db: db}
}

const instanceColumns = `id, domain, subject_id, state, version, payload, created_by, created_at, updated_at`

// Create inserts a new instance in its domain's initial state at version 1.
func (r *WorkflowInstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.ID == "" {
		instance.ID = uuid.NewString()
	}
	if instance.Version == 0 {
		instance.Version = 1
	}
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = instance.CreatedAt

	const query = `INSERT INTO workflow_instances
	(id, domain, subject_id, state, version, payload, created_by, created_at, updated_at)
	VALUES (:id, :domain, :subject_id, :state, :version, :payload, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, instance); err != nil {
		return fmt.Errorf("create workflow instance: %w", err)
	}
	return nil
}

// GetByID fetches an instance with its full ordered history and the side
// effects recorded for each transition.
func (r *WorkflowInstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	var instance models.WorkflowInstance
	query := fmt.Sprintf(`SELECT %s FROM workflow_instances WHERE id = $1`, instanceColumns)
	if err := r.db.GetContext(ctx, &instance, query, id); err != nil {
		return nil, err
	}

	const historyQuery = `SELECT instance_id, seq, from_state, to_state, action, actor_id, actor_role, reason, created_at
	FROM workflow_transitions WHERE instance_id = $1 ORDER BY seq ASC`
	if err := r.db.SelectContext(ctx, &instance.History, historyQuery, id); err != nil {
		return nil, fmt.Errorf("load transition history: %w", err)
	}

	var effects []models.SideEffectRecord
	const effectsQuery = `SELECT id, instance_id, seq, kind, status, attempts, result_id, last_error, created_at, updated_at
	FROM workflow_effects WHERE instance_id = $1 ORDER BY seq ASC, kind ASC`
	if err := r.db.SelectContext(ctx, &effects, effectsQuery, id); err != nil {
		return nil, fmt.Errorf("load side effects: %w", err)
	}
	attachEffects(&instance, effects)

	return &instance, nil
}

func attachEffects(instance *models.WorkflowInstance, effects []models.SideEffectRecord) {
	if len(effects) == 0 {
		return
	}
	bySeq := make(map[int64][]models.SideEffectRecord, len(effects))
	for _, effect := range effects {
		bySeq[effect.Seq] = append(bySeq[effect.Seq], effect)
	}
	for i := range instance.History {
		instance.History[i].Effects = bySeq[instance.History[i].Seq]
	}
}

// List returns instances matching the filter, newest first, with pagination
// metadata. History is not loaded for listings.
func (r *WorkflowInstanceRepository) List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, *models.Pagination, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.Domain != "" {
		args = append(args, filter.Domain)
		conditions = append(conditions, fmt.Sprintf("domain = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, state := range filter.States {
			args = append(args, state)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("state IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM workflow_instances" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, nil, fmt.Errorf("count workflow instances: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM workflow_instances%s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		instanceColumns, where, pageSize, (page-1)*pageSize)

	var instances []models.WorkflowInstance
	if err := r.db.SelectContext(ctx, &instances, query, args...); err != nil {
		return nil, nil, fmt.Errorf("list workflow instances: %w", err)
	}

	return instances, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Commit atomically applies one accepted transition: the guarded state and
// version update, the history append, and the declared side-effect rows.
// A version mismatch, meaning the instance moved under the caller, yields
// ErrStaleVersion and writes nothing.
func (r *WorkflowInstanceRepository) Commit(ctx context.Context, id string, expectedVersion int64, newState models.State, record *models.TransitionRecord, effects []models.SideEffectRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE workflow_instances SET state = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4`,
		newState, now, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check instance update rows: %w", err)
	}
	if rows == 0 {
		return appErrors.ErrStaleVersion
	}

	record.InstanceID = id
	record.Seq = expectedVersion + 1
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO workflow_transitions
	(instance_id, seq, from_state, to_state, action, actor_id, actor_role, reason, created_at)
	VALUES (:instance_id, :seq, :from_state, :to_state, :action, :actor_id, :actor_role, :reason, :created_at)`, record); err != nil {
		return fmt.Errorf("append transition record: %w", err)
	}

	for i := range effects {
		effect := &effects[i]
		if effect.ID == "" {
			effect.ID = uuid.NewString()
		}
		effect.InstanceID = id
		effect.Seq = record.Seq
		effect.Status = models.EffectStatusPending
		effect.CreatedAt = now
		effect.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO workflow_effects
	(id, instance_id, seq, kind, status, attempts, result_id, last_error, created_at, updated_at)
	VALUES (:id, :instance_id, :seq, :kind, :status, :attempts, :result_id, :last_error, :created_at, :updated_at)`, effect); err != nil {
			return fmt.Errorf("insert side effect record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// UpdateDraftContractPayload replaces the payload of a draft contract. The
// state predicate makes the write a no-op once the contract is signed,
// which is how payload immutability is enforced at the storage layer.
func (r *WorkflowInstanceRepository) UpdateDraftContractPayload(ctx context.Context, id string, payload []byte) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_instances SET payload = $1, updated_at = $2 WHERE id = $3 AND domain = $4 AND state = $5`,
		payload, time.Now().UTC(), id, models.DomainContractLifecycle, models.State("draft"))
	if err != nil {
		return fmt.Errorf("update draft contract payload: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check draft update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetEffect loads one side-effect record by its idempotency key.
func (r *WorkflowInstanceRepository) GetEffect(ctx context.Context, instanceID string, seq int64, kind string) (*models.SideEffectRecord, error) {
	var effect models.SideEffectRecord
	const query = `SELECT id, instance_id, seq, kind, status, attempts, result_id, last_error, created_at, updated_at
	FROM workflow_effects WHERE instance_id = $1 AND seq = $2 AND kind = $3`
	if err := r.db.GetContext(ctx, &effect, query, instanceID, seq, kind); err != nil {
		return nil, err
	}
	return &effect, nil
}

// MarkEffectCompleted records a successful side-effect delivery and the id
// of whatever it produced (generated document, schedule batch).
func (r *WorkflowInstanceRepository) MarkEffectCompleted(ctx context.Context, effectID string, resultID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_effects SET status = $1, result_id = $2, attempts = attempts + 1, last_error = NULL, updated_at = $3 WHERE id = $4`,
		models.EffectStatusCompleted, resultID, time.Now().UTC(), effectID)
	if err != nil {
		return fmt.Errorf("mark effect completed: %w", err)
	}
	return nil
}

// MarkEffectFailed records a failed attempt; terminal controls whether the
// effect is parked as FAILED or stays PENDING for another retry.
func (r *WorkflowInstanceRepository) MarkEffectFailed(ctx context.Context, effectID string, causeMsg string, terminal bool) error {
	status := models.EffectStatusPending
	if terminal {
		status = models.EffectStatusFailed
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE workflow_effects SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = $3 WHERE id = $4`,
		status, causeMsg, time.Now().UTC(), effectID)
	if err != nil {
		return fmt.Errorf("mark effect failed: %w", err)
	}
	return nil
}
