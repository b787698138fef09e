package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/samudra-hr/hris-api/internal/dto"
	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
	"github.com/samudra-hr/hris-api/pkg/config"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
	"github.com/samudra-hr/hris-api/pkg/lease"
)

type instanceStore interface {
	Create(ctx context.Context, instance *models.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, *models.Pagination, error)
	Commit(ctx context.Context, id string, expectedVersion int64, newState models.State, record *models.TransitionRecord, effects []models.SideEffectRecord) error
	UpdateDraftContractPayload(ctx context.Context, id string, payload []byte) error
}

type employeeDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Employee, error)
	IsManagerOf(ctx context.Context, managerID, employeeID string) (bool, error)
}

type repaymentLedger interface {
	Outstanding(ctx context.Context, subjectID string) (int64, error)
	OutstandingForInstance(ctx context.Context, instanceID string) (int64, error)
	NextUnsettled(ctx context.Context, instanceID string) (*models.RepaymentEntry, error)
	ListByInstance(ctx context.Context, instanceID string) ([]models.RepaymentEntry, error)
	Settle(ctx context.Context, entryID string) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type effectDispatcher interface {
	Dispatch(instance *models.WorkflowInstance, record *models.TransitionRecord, effects []models.SideEffectRecord)
}

type transitionMetrics interface {
	ObserveTransition(domain, action, outcome string)
	ObserveLeaseWait(d time.Duration)
}

// WorkflowService is the approval coordinator. It owns the write path for
// every instance: one lease per instance serialises in-process writers, the
// version check at commit time catches everything the lease cannot.
type WorkflowService struct {
	store      instanceStore
	employees  employeeDirectory
	ledger     repaymentLedger
	audit      auditLogger
	dispatcher effectDispatcher
	metrics    transitionMetrics
	locker     lease.Locker
	validator  *validator.Validate
	logger     *zap.Logger
	leaseTTL   time.Duration
	netPercent int
}

// NewWorkflowService constructs the coordinator.
func NewWorkflowService(store instanceStore, employees employeeDirectory, ledger repaymentLedger, audit auditLogger, dispatcher effectDispatcher, metrics transitionMetrics, locker lease.Locker, validate *validator.Validate, wfCfg config.WorkflowConfig, advCfg config.AdvancesConfig, logger *zap.Logger) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	ttl := wfCfg.LeaseTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	percent := advCfg.MaxNetPercent
	if percent <= 0 {
		percent = 30
	}
	return &WorkflowService{
		store:      store,
		employees:  employees,
		ledger:     ledger,
		audit:      audit,
		dispatcher: dispatcher,
		metrics:    metrics,
		locker:     locker,
		validator:  validate,
		logger:     logger,
		leaseTTL:   ttl,
		netPercent: percent,
	}
}

// Submit opens a fresh instance in the domain's initial state.
func (s *WorkflowService) Submit(ctx context.Context, domain models.Domain, req dto.SubmitWorkflowRequest, actor workflow.Actor) (*models.WorkflowInstance, error) {
	def, err := workflow.DefinitionFor(domain)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission")
	}

	subject, err := s.employees.GetByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject employee not found")
		}
		return nil, err
	}
	if err := s.authoriseSubmit(ctx, domain, subject, actor); err != nil {
		return nil, err
	}
	if err := s.validatePayload(ctx, domain, req.Payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:        uuid.NewString(),
		Domain:    domain,
		SubjectID: subject.ID,
		State:     def.Initial,
		Version:   1,
		Payload:   req.Payload,
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, instance); err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actor.ID, models.AuditActionWorkflowSubmit, instance.ID, map[string]interface{}{
		"domain":    domain,
		"subjectId": subject.ID,
		"state":     instance.State,
	})
	return instance, nil
}

// authoriseSubmit applies the role scoping for opening an instance:
// employees file for themselves, managers for themselves or their reports,
// HR and above for anyone. Contracts are drafted by HR and above only.
func (s *WorkflowService) authoriseSubmit(ctx context.Context, domain models.Domain, subject *models.Employee, actor workflow.Actor) error {
	if domain == models.DomainContractLifecycle {
		switch actor.Role {
		case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
			return nil
		}
		return appErrors.Clone(appErrors.ErrForbidden, "only HR may draft contracts")
	}

	switch actor.Role {
	case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
		return nil
	case models.RoleManager:
		if subject.ID == actor.ID {
			return nil
		}
		manages, err := s.employees.IsManagerOf(ctx, actor.ID, subject.ID)
		if err != nil {
			return err
		}
		if !manages {
			return appErrors.Clone(appErrors.ErrForbidden, "subject is not one of your reports")
		}
		return nil
	case models.RoleEmployee:
		if subject.ID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "employees may only file for themselves")
		}
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "role may not submit workflow requests")
}

func (s *WorkflowService) validatePayload(ctx context.Context, domain models.Domain, payload []byte) error {
	switch domain {
	case models.DomainDocumentRequest:
		if _, err := workflow.ParseDocumentRequestPayload(payload); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	case models.DomainSalaryAdvance:
		if _, err := workflow.ParseSalaryAdvancePayload(payload); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
	case models.DomainContractLifecycle:
		terms, err := workflow.ParseContractPayload(payload)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if terms.AmendsInstanceID != "" {
			prior, err := s.store.GetByID(ctx, terms.AmendsInstanceID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrValidation, "amended contract does not exist")
				}
				return err
			}
			if prior.Domain != models.DomainContractLifecycle || prior.State != workflow.ContractStateSigned {
				return appErrors.Clone(appErrors.ErrValidation, "amendments must reference a signed contract")
			}
		}
	}
	return nil
}

// Transition invokes an action on an instance under the per-instance lease,
// with a single retry when a concurrent commit wins the version race.
func (s *WorkflowService) Transition(ctx context.Context, instanceID string, req dto.TransitionRequest, actor workflow.Actor) (*models.WorkflowInstance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition request")
	}

	waitStart := time.Now()
	held, err := s.locker.Acquire(ctx, "workflow:"+instanceID, s.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire instance lease: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveLeaseWait(time.Since(waitStart))
	}
	defer func() {
		if err := held.Release(context.Background()); err != nil && !errors.Is(err, lease.ErrNotHeld) {
			s.logger.Warn("failed to release instance lease", zap.String("instance_id", instanceID), zap.Error(err))
		}
	}()

	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	def, err := workflow.DefinitionFor(instance.Domain)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, err.Error())
	}

	// A client that saw an older version is told the decision already
	// happened rather than given a second vote.
	if req.ExpectedVersion != nil && *req.ExpectedVersion != instance.Version {
		return nil, s.alreadyResolved(instance)
	}

	for attempt := 0; ; attempt++ {
		outcome, err := s.evaluate(ctx, def, instance, req, actor)
		if err != nil {
			s.observe(instance.Domain, req.Action, "denied")
			s.auditEvent(ctx, actor.ID, models.AuditActionWorkflowDenied, instance.ID, map[string]interface{}{
				"action": req.Action,
				"state":  instance.State,
				"error":  err.Error(),
			})
			return nil, err
		}

		record, effects := buildCommit(instance, outcome, req, actor)
		err = s.store.Commit(ctx, instance.ID, instance.Version, outcome.To, record, effects)
		if err == nil {
			updated, loadErr := s.loadInstance(ctx, instanceID)
			if loadErr != nil {
				// The transition is durable; return what we know.
				s.logger.Warn("reload after commit failed", zap.String("instance_id", instanceID), zap.Error(loadErr))
				instance.State = outcome.To
				instance.Version++
				updated = instance
			}
			s.observe(updated.Domain, req.Action, "accepted")
			s.auditEvent(ctx, actor.ID, models.AuditActionWorkflowTransition, updated.ID, map[string]interface{}{
				"action": req.Action,
				"from":   outcome.From,
				"to":     outcome.To,
			})
			if s.dispatcher != nil && len(effects) > 0 {
				s.dispatcher.Dispatch(updated, record, effects)
			}
			return updated, nil
		}
		if !errors.Is(err, appErrors.ErrStaleVersion) {
			return nil, err
		}

		// Lost the version race despite the lease (an out-of-process writer
		// or a lease expiry). Re-read once and re-validate from fresh state.
		fresh, loadErr := s.loadInstance(ctx, instanceID)
		if loadErr != nil {
			return nil, loadErr
		}
		if attempt >= 1 {
			if fresh.State != instance.State {
				return nil, s.alreadyResolved(fresh)
			}
			return nil, appErrors.ErrStaleVersion
		}
		instance = fresh
	}
}

// evaluate resolves guard facts and runs the pure machine. An illegal action
// that would have been legal before the last transition is reported as
// already resolved: the caller lost an approval race, not filed nonsense.
// That reading is deliberate even when the instance is terminal. A replayed
// approve on a ready request stays ALREADY_RESOLVED no matter how late it
// arrives, because without an expectedVersion a race loser and a stale
// retry are the same request. Actions that were never legal from the
// previous state still surface ILLEGAL_TRANSITION(terminal_state).
func (s *WorkflowService) evaluate(ctx context.Context, def *workflow.Definition, instance *models.WorkflowInstance, req dto.TransitionRequest, actor workflow.Actor) (*workflow.Outcome, error) {
	facts, err := s.resolveFacts(ctx, def, instance, req.Action)
	if err != nil {
		return nil, err
	}
	outcome, err := workflow.AttemptTransition(def, instance, req.Action, actor, req.Reason, facts)
	if err != nil {
		if errors.Is(err, appErrors.ErrIllegalTransition) {
			if last := instance.LastTransition(); last != nil {
				if _, wasLegal := def.ActionsFrom(last.FromState)[req.Action]; wasLegal {
					return nil, s.alreadyResolved(instance)
				}
			}
		}
		return nil, err
	}
	return outcome, nil
}

// resolveFacts loads the numeric inputs the advance-approval guard needs.
// Other transitions evaluate against zero facts.
func (s *WorkflowService) resolveFacts(ctx context.Context, def *workflow.Definition, instance *models.WorkflowInstance, action models.Action) (workflow.Facts, error) {
	facts := workflow.Facts{AdvanceMaxNetPercent: s.netPercent}
	if instance.Domain != models.DomainSalaryAdvance || action != workflow.ActionApprove {
		return facts, nil
	}
	subject, err := s.employees.GetByID(ctx, instance.SubjectID)
	if err != nil {
		return facts, fmt.Errorf("load subject for guard: %w", err)
	}
	outstanding, err := s.ledger.Outstanding(ctx, instance.SubjectID)
	if err != nil {
		return facts, fmt.Errorf("load outstanding balance: %w", err)
	}
	facts.NetMonthlySalary = subject.NetMonthlySalary
	facts.OutstandingAdvances = outstanding
	return facts, nil
}

func buildCommit(instance *models.WorkflowInstance, outcome *workflow.Outcome, req dto.TransitionRequest, actor workflow.Actor) (*models.TransitionRecord, []models.SideEffectRecord) {
	now := time.Now().UTC()
	record := &models.TransitionRecord{
		InstanceID: instance.ID,
		Seq:        instance.Version + 1,
		FromState:  outcome.From,
		ToState:    outcome.To,
		Action:     outcome.Action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		CreatedAt:  now,
	}
	if req.Reason != "" {
		reason := req.Reason
		record.Reason = &reason
	}
	effects := make([]models.SideEffectRecord, 0, len(outcome.Effects))
	for _, descriptor := range outcome.Effects {
		effects = append(effects, models.SideEffectRecord{
			ID:         uuid.NewString(),
			InstanceID: instance.ID,
			Seq:        record.Seq,
			Kind:       descriptor.Kind,
			Status:     models.EffectStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return record, effects
}

// alreadyResolved reports a lost approval race with the current state so the
// caller can refresh without a second request.
func (s *WorkflowService) alreadyResolved(instance *models.WorkflowInstance) error {
	e := appErrors.Clone(appErrors.ErrAlreadyResolved, "")
	e.Detail = fmt.Sprintf("current state is %s (version %d)", instance.State, instance.Version)
	return e
}

// Get loads an instance with its history, enforcing read scoping.
func (s *WorkflowService) Get(ctx context.Context, instanceID string, actor workflow.Actor) (*models.WorkflowInstance, error) {
	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := s.authoriseRead(ctx, instance, actor); err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *WorkflowService) authoriseRead(ctx context.Context, instance *models.WorkflowInstance, actor workflow.Actor) error {
	switch actor.Role {
	case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
		return nil
	case models.RoleManager:
		if instance.SubjectID == actor.ID || instance.CreatedBy == actor.ID {
			return nil
		}
		manages, err := s.employees.IsManagerOf(ctx, actor.ID, instance.SubjectID)
		if err != nil {
			return err
		}
		if manages {
			return nil
		}
	case models.RoleEmployee:
		if instance.SubjectID == actor.ID || instance.CreatedBy == actor.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not permitted to view this instance")
}

// List returns instances in a domain, scoped to what the actor may see.
func (s *WorkflowService) List(ctx context.Context, domain models.Domain, query dto.InstanceQuery, actor workflow.Actor) ([]models.WorkflowInstance, *models.Pagination, error) {
	if _, err := workflow.DefinitionFor(domain); err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	filter := models.InstanceFilter{
		Domain:    domain,
		States:    query.States,
		SubjectID: query.SubjectID,
		Page:      query.Page,
		PageSize:  query.PageSize,
	}

	switch actor.Role {
	case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
		// Unrestricted.
	case models.RoleManager:
		if filter.SubjectID != "" && filter.SubjectID != actor.ID {
			manages, err := s.employees.IsManagerOf(ctx, actor.ID, filter.SubjectID)
			if err != nil {
				return nil, nil, err
			}
			if !manages {
				return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "subject is not one of your reports")
			}
		} else if filter.SubjectID == "" {
			filter.SubjectID = actor.ID
		}
	case models.RoleEmployee:
		if filter.SubjectID != "" && filter.SubjectID != actor.ID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "employees may only list their own requests")
		}
		filter.SubjectID = actor.ID
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "role may not list workflow instances")
	}

	return s.store.List(ctx, filter)
}

// UpdateDraftContract replaces the terms of a draft contract. Signed
// contracts are immutable; the store's guarded update enforces the state
// check atomically with the write.
func (s *WorkflowService) UpdateDraftContract(ctx context.Context, instanceID string, req dto.ContractEditRequest, actor workflow.Actor) (*models.WorkflowInstance, error) {
	switch actor.Role {
	case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only HR may edit contract drafts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid contract edit")
	}
	if err := s.validatePayload(ctx, models.DomainContractLifecycle, req.Payload); err != nil {
		return nil, err
	}

	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Domain != models.DomainContractLifecycle {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance is not a contract")
	}
	if instance.State == workflow.ContractStateSigned {
		return nil, appErrors.ErrPayloadLocked
	}

	if err := s.store.UpdateDraftContractPayload(ctx, instanceID, req.Payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The draft was signed between the read and the write.
			return nil, appErrors.ErrPayloadLocked
		}
		return nil, err
	}

	s.auditEvent(ctx, actor.ID, models.AuditActionContractEdit, instanceID, map[string]interface{}{
		"payload": json.RawMessage(req.Payload),
	})
	return s.loadInstance(ctx, instanceID)
}

// RecordRepayment settles the next scheduled installment of an active
// advance. When the balance reaches zero the coordinator marks the advance
// repaid through the normal transition path, as the system actor.
func (s *WorkflowService) RecordRepayment(ctx context.Context, instanceID string, req dto.RepaymentRequest, actor workflow.Actor) (*models.WorkflowInstance, error) {
	switch actor.Role {
	case models.RoleHRManager, models.RoleTenantAdmin, models.RoleSuperAdmin:
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only HR may post repayments")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid repayment")
	}

	instance, err := s.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Domain != models.DomainSalaryAdvance {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance is not a salary advance")
	}
	if instance.State != workflow.AdvStateActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "advance is not active")
	}

	entry, err := s.ledger.NextUnsettled(ctx, instanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "no unsettled installments remain")
		}
		return nil, err
	}
	if entry.Amount != req.Amount {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("next installment is %d, got %d", entry.Amount, req.Amount))
	}
	if err := s.ledger.Settle(ctx, entry.ID); err != nil {
		return nil, err
	}

	s.auditEvent(ctx, actor.ID, models.AuditActionRepaymentPosted, instanceID, map[string]interface{}{
		"entryId": entry.ID,
		"amount":  entry.Amount,
	})

	outstanding, err := s.ledger.OutstandingForInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if outstanding > 0 {
		return s.loadInstance(ctx, instanceID)
	}

	system := workflow.Actor{ID: "system", Role: models.RoleSystem}
	updated, err := s.Transition(ctx, instanceID, dto.TransitionRequest{Action: workflow.ActionMarkRepaid}, system)
	if err != nil {
		// The payment is recorded either way; surface the instance as-is.
		s.logger.Error("failed to mark advance repaid", zap.String("instance_id", instanceID), zap.Error(err))
		return s.loadInstance(ctx, instanceID)
	}
	return updated, nil
}

// Schedule returns the repayment schedule of an advance the actor may view.
func (s *WorkflowService) Schedule(ctx context.Context, instanceID string, actor workflow.Actor) ([]models.RepaymentEntry, error) {
	instance, err := s.Get(ctx, instanceID, actor)
	if err != nil {
		return nil, err
	}
	if instance.Domain != models.DomainSalaryAdvance {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instance is not a salary advance")
	}
	return s.ledger.ListByInstance(ctx, instanceID)
}

func (s *WorkflowService) loadInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workflow instance not found")
		}
		return nil, err
	}
	return instance, nil
}

func (s *WorkflowService) observe(domain models.Domain, action models.Action, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(domain), string(action), outcome)
	}
}

func (s *WorkflowService) auditEvent(ctx context.Context, actorID, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	resource := resourceID
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     &actorID,
		Action:     action,
		Resource:   "workflow_instance",
		ResourceID: &resource,
		NewValues:  payload,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
