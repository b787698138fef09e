package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samudra-hr/hris-api/internal/dto"
	"github.com/samudra-hr/hris-api/internal/models"
	"github.com/samudra-hr/hris-api/internal/workflow"
	"github.com/samudra-hr/hris-api/pkg/config"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
	"github.com/samudra-hr/hris-api/pkg/lease"
)

type instanceStoreStub struct {
	mu        sync.Mutex
	instances map[string]*models.WorkflowInstance
	history   map[string][]models.TransitionRecord
}

func newInstanceStoreStub() *instanceStoreStub {
	return &instanceStoreStub{
		instances: make(map[string]*models.WorkflowInstance),
		history:   make(map[string][]models.TransitionRecord),
	}
}

func (s *instanceStoreStub) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *instance
	s.instances[instance.ID] = &copied
	return nil
}

func (s *instanceStoreStub) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *instance
	copied.History = append([]models.TransitionRecord(nil), s.history[id]...)
	return &copied, nil
}

func (s *instanceStoreStub) List(ctx context.Context, filter models.InstanceFilter) ([]models.WorkflowInstance, *models.Pagination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WorkflowInstance, 0, len(s.instances))
	for _, instance := range s.instances {
		if filter.Domain != "" && instance.Domain != filter.Domain {
			continue
		}
		if filter.SubjectID != "" && instance.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, *instance)
	}
	return out, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(out)}, nil
}

func (s *instanceStoreStub) Commit(ctx context.Context, id string, expectedVersion int64, newState models.State, record *models.TransitionRecord, effects []models.SideEffectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return sql.ErrNoRows
	}
	if instance.Version != expectedVersion {
		return appErrors.ErrStaleVersion
	}
	instance.State = newState
	instance.Version++
	instance.UpdatedAt = time.Now().UTC()
	stored := *record
	stored.Effects = append([]models.SideEffectRecord(nil), effects...)
	s.history[id] = append(s.history[id], stored)
	return nil
}

func (s *instanceStoreStub) UpdateDraftContractPayload(ctx context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok || instance.Domain != models.DomainContractLifecycle || instance.State != workflow.ContractStateDraft {
		return sql.ErrNoRows
	}
	instance.Payload = payload
	return nil
}

type employeeStub struct {
	employees map[string]*models.Employee
	reports   map[string][]string
}

func newEmployeeStub(employees ...*models.Employee) *employeeStub {
	stub := &employeeStub{
		employees: make(map[string]*models.Employee),
		reports:   make(map[string][]string),
	}
	for _, e := range employees {
		stub.employees[e.ID] = e
	}
	return stub
}

func (s *employeeStub) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	if e, ok := s.employees[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *employeeStub) IsManagerOf(ctx context.Context, managerID, employeeID string) (bool, error) {
	for _, id := range s.reports[managerID] {
		if id == employeeID {
			return true, nil
		}
	}
	return false, nil
}

type ledgerStub struct {
	mu      sync.Mutex
	entries map[string][]*models.RepaymentEntry
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{entries: make(map[string][]*models.RepaymentEntry)}
}

func (s *ledgerStub) CreateSchedule(ctx context.Context, entries []models.RepaymentEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range entries {
		entry := entries[i]
		s.entries[entry.InstanceID] = append(s.entries[entry.InstanceID], &entry)
	}
	return nil
}

func (s *ledgerStub) ListByInstance(ctx context.Context, instanceID string) ([]models.RepaymentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RepaymentEntry, 0, len(s.entries[instanceID]))
	for _, entry := range s.entries[instanceID] {
		out = append(out, *entry)
	}
	return out, nil
}

func (s *ledgerStub) Outstanding(ctx context.Context, subjectID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, entries := range s.entries {
		for _, entry := range entries {
			if entry.SubjectID == subjectID && entry.SettledAt == nil {
				total += entry.Amount
			}
		}
	}
	return total, nil
}

func (s *ledgerStub) OutstandingForInstance(ctx context.Context, instanceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, entry := range s.entries[instanceID] {
		if entry.SettledAt == nil {
			total += entry.Amount
		}
	}
	return total, nil
}

func (s *ledgerStub) NextUnsettled(ctx context.Context, instanceID string) (*models.RepaymentEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries[instanceID] {
		if entry.SettledAt == nil {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *ledgerStub) Settle(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, entries := range s.entries {
		for _, entry := range entries {
			if entry.ID == entryID && entry.SettledAt == nil {
				entry.SettledAt = &now
				return nil
			}
		}
	}
	return errors.New("entry not found or already settled")
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type dispatcherStub struct {
	mu       sync.Mutex
	dispatch []models.SideEffectRecord
}

func (d *dispatcherStub) Dispatch(instance *models.WorkflowInstance, record *models.TransitionRecord, effects []models.SideEffectRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatch = append(d.dispatch, effects...)
}

func (d *dispatcherStub) kinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.dispatch))
	for _, e := range d.dispatch {
		out = append(out, e.Kind)
	}
	return out
}

type fixture struct {
	svc        *WorkflowService
	store      *instanceStoreStub
	employees  *employeeStub
	ledger     *ledgerStub
	audit      *auditStub
	dispatcher *dispatcherStub
}

func newFixture(t *testing.T, employees ...*models.Employee) *fixture {
	t.Helper()
	f := &fixture{
		store:      newInstanceStoreStub(),
		employees:  newEmployeeStub(employees...),
		ledger:     newLedgerStub(),
		audit:      &auditStub{},
		dispatcher: &dispatcherStub{},
	}
	f.svc = NewWorkflowService(
		f.store, f.employees, f.ledger, f.audit, f.dispatcher, nil,
		lease.NewMemoryLocker(), nil,
		config.WorkflowConfig{LeaseTTL: time.Second},
		config.AdvancesConfig{MaxNetPercent: 30},
		nil,
	)
	return f
}

func employeeFixture(id string, salary int64) *models.Employee {
	return &models.Employee{
		ID:               id,
		FullName:         "Employee " + id,
		Position:         "Staff",
		Department:       "Operations",
		NetMonthlySalary: salary,
		HiredAt:          time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubmitDocumentRequestBySubject(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	actor := workflow.Actor{ID: "emp-1", Role: models.RoleEmployee}

	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, actor)
	require.NoError(t, err)
	require.Equal(t, workflow.DocStatePending, instance.State)
	require.Equal(t, int64(1), instance.Version)
	require.Equal(t, "emp-1", instance.CreatedBy)
	require.Contains(t, f.audit.actions(), models.AuditActionWorkflowSubmit)
}

func TestSubmitForAnotherEmployeeForbidden(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000), employeeFixture("emp-2", 500000))
	actor := workflow.Actor{ID: "emp-1", Role: models.RoleEmployee}

	_, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-2",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, actor)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestSubmitForReportAllowed(t *testing.T) {
	f := newFixture(t, employeeFixture("mgr-1", 900000), employeeFixture("emp-2", 500000))
	f.employees.reports["mgr-1"] = []string{"emp-2"}
	actor := workflow.Actor{ID: "mgr-1", Role: models.RoleManager}

	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-2",
		Payload:   []byte(`{"documentType":"employment_attestation"}`),
	}, actor)
	require.NoError(t, err)
	require.Equal(t, "emp-2", instance.SubjectID)
}

func TestSubmitContractRequiresHR(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	payload := []byte(`{"position":"Analyst","contractType":"permanent","salary":700000,"startDate":"2026-10-01"}`)

	_, err := f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   payload,
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	instance, err := f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   payload,
	}, workflow.Actor{ID: "hr-1", Role: models.RoleHRManager})
	require.NoError(t, err)
	require.Equal(t, workflow.ContractStateDraft, instance.State)
}

func TestSubmitInvalidPayloadRejected(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	actor := workflow.Actor{ID: "emp-1", Role: models.RoleEmployee}

	_, err := f.svc.Submit(context.Background(), models.DomainSalaryAdvance, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"amount":-5}`),
	}, actor)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSubmitAmendmentRequiresSignedOriginal(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}
	payload := []byte(`{"position":"Analyst","contractType":"permanent","salary":700000,"startDate":"2026-10-01"}`)

	original, err := f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   payload,
	}, hr)
	require.NoError(t, err)

	amendment := []byte(`{"position":"Senior Analyst","contractType":"permanent","salary":800000,"startDate":"2027-01-01","amendsInstanceId":"` + original.ID + `"}`)
	_, err = f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   amendment,
	}, hr)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.Transition(context.Background(), original.ID, dto.TransitionRequest{Action: workflow.ActionSign}, hr)
	require.NoError(t, err)

	amended, err := f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   amendment,
	}, hr)
	require.NoError(t, err)
	require.Equal(t, workflow.ContractStateDraft, amended.State)
}

func TestTransitionApproveDispatchesEffects(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	updated, err := f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove},
		workflow.Actor{ID: "hr-1", Role: models.RoleHRManager})
	require.NoError(t, err)
	require.Equal(t, workflow.DocStateReady, updated.State)
	require.Equal(t, int64(2), updated.Version)
	require.Len(t, updated.History, 1)
	require.Equal(t, int64(2), updated.History[0].Seq)
	require.ElementsMatch(t, []string{workflow.EffectGenerateDocument, workflow.EffectNotify}, f.dispatcher.kinds())
	require.Contains(t, f.audit.actions(), models.AuditActionWorkflowTransition)
}

func TestTransitionRejectRequiresReason(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionReject},
		workflow.Actor{ID: "hr-1", Role: models.RoleHRManager})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.CheckReasonMissing, appErr.Detail)
	require.Contains(t, f.audit.actions(), models.AuditActionWorkflowDenied)
	require.Empty(t, f.dispatcher.kinds())
}

func TestAdvanceApprovalEnforcesCap(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainSalaryAdvance, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"amount":200000,"tenorMonths":3}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	// Cap is 30% of 500000 = 150000.
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove},
		workflow.Actor{ID: "hr-1", Role: models.RoleHRManager})
	require.ErrorIs(t, err, appErrors.ErrIllegalTransition)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.CheckGuardFailed, appErr.Detail)
}

func TestExpectedVersionMismatchReportsAlreadyResolved(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove}, hr)
	require.NoError(t, err)

	stale := int64(1)
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{
		Action:          workflow.ActionReject,
		Reason:          "duplicate request",
		ExpectedVersion: &stale,
	}, hr)
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)
}

func TestLostApprovalRaceReportsAlreadyResolved(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove}, hr)
	require.NoError(t, err)

	// Reject was legal from pending but the instance has moved on.
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{
		Action: workflow.ActionReject,
		Reason: "second reviewer",
	}, workflow.Actor{ID: "hr-2", Role: models.RoleHRManager})
	require.ErrorIs(t, err, appErrors.ErrAlreadyResolved)
}

func TestTransitionOnTerminalInstanceNotMaskedAsResolved(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove}, hr)
	require.NoError(t, err)

	// Sign was never legal from pending, so the terminal-state violation
	// reaches the caller instead of an ALREADY_RESOLVED.
	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionSign}, hr)
	require.ErrorIs(t, err, appErrors.ErrIllegalTransition)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.CheckTerminalState, appErr.Detail)
}

func TestConcurrentDecisionsCommitExactlyOne(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	requests := []dto.TransitionRequest{
		{Action: workflow.ActionApprove},
		{Action: workflow.ActionReject, Reason: "not eligible"},
	}
	actors := []workflow.Actor{
		{ID: "hr-1", Role: models.RoleHRManager},
		{ID: "hr-2", Role: models.RoleHRManager},
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(context.Background(), instance.ID, requests[i], actors[i])
		}(i)
	}
	wg.Wait()

	var succeeded, resolved int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, appErrors.ErrAlreadyResolved) || errors.Is(err, appErrors.ErrStaleVersion):
			resolved++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, resolved)

	final, err := f.store.GetByID(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), final.Version)
	require.Len(t, final.History, 1)
}

func TestUpdateDraftContractLockedAfterSigning(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}
	payload := []byte(`{"position":"Analyst","contractType":"permanent","salary":700000,"startDate":"2026-10-01"}`)

	instance, err := f.svc.Submit(context.Background(), models.DomainContractLifecycle, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   payload,
	}, hr)
	require.NoError(t, err)

	edited := []byte(`{"position":"Senior Analyst","contractType":"permanent","salary":750000,"startDate":"2026-10-01"}`)
	updated, err := f.svc.UpdateDraftContract(context.Background(), instance.ID, dto.ContractEditRequest{Payload: edited}, hr)
	require.NoError(t, err)
	require.JSONEq(t, string(edited), string(updated.Payload))

	_, err = f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionSign}, hr)
	require.NoError(t, err)

	_, err = f.svc.UpdateDraftContract(context.Background(), instance.ID, dto.ContractEditRequest{Payload: payload}, hr)
	require.ErrorIs(t, err, appErrors.ErrPayloadLocked)
}

func TestRecordRepaymentMarksRepaidAtZeroBalance(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	hr := workflow.Actor{ID: "hr-1", Role: models.RoleHRManager}

	instance, err := f.svc.Submit(context.Background(), models.DomainSalaryAdvance, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"amount":120000,"tenorMonths":2}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	updated, err := f.svc.Transition(context.Background(), instance.ID, dto.TransitionRequest{Action: workflow.ActionApprove}, hr)
	require.NoError(t, err)
	require.Equal(t, workflow.AdvStateActive, updated.State)

	// The dispatcher runs asynchronously in production; seed the schedule
	// directly here.
	require.NoError(t, f.ledger.CreateSchedule(context.Background(), []models.RepaymentEntry{
		{ID: "inst-1", InstanceID: instance.ID, SubjectID: "emp-1", Seq: 1, DueDate: time.Now().AddDate(0, 1, 0), Amount: 60000},
		{ID: "inst-2", InstanceID: instance.ID, SubjectID: "emp-1", Seq: 2, DueDate: time.Now().AddDate(0, 2, 0), Amount: 60000},
	}))

	_, err = f.svc.RecordRepayment(context.Background(), instance.ID, dto.RepaymentRequest{Amount: 50000}, hr)
	require.ErrorIs(t, err, appErrors.ErrValidation)

	afterFirst, err := f.svc.RecordRepayment(context.Background(), instance.ID, dto.RepaymentRequest{Amount: 60000}, hr)
	require.NoError(t, err)
	require.Equal(t, workflow.AdvStateActive, afterFirst.State)

	afterSecond, err := f.svc.RecordRepayment(context.Background(), instance.ID, dto.RepaymentRequest{Amount: 60000}, hr)
	require.NoError(t, err)
	require.Equal(t, workflow.AdvStateRepaid, afterSecond.State)
	require.Equal(t, models.RoleSystem, afterSecond.History[len(afterSecond.History)-1].ActorRole)
	require.Contains(t, f.audit.actions(), models.AuditActionRepaymentPosted)
}

func TestRecordRepaymentRequiresHR(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000))
	_, err := f.svc.RecordRepayment(context.Background(), "any", dto.RepaymentRequest{Amount: 100},
		workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGetScopesEmployeeToOwnInstances(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000), employeeFixture("emp-2", 500000))
	instance, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
		SubjectID: "emp-1",
		Payload:   []byte(`{"documentType":"work_certificate"}`),
	}, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), instance.ID, workflow.Actor{ID: "emp-2", Role: models.RoleEmployee})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	got, err := f.svc.Get(context.Background(), instance.ID, workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Equal(t, instance.ID, got.ID)
}

func TestListForcesEmployeeFilter(t *testing.T) {
	f := newFixture(t, employeeFixture("emp-1", 500000), employeeFixture("emp-2", 500000))
	for _, subject := range []string{"emp-1", "emp-2"} {
		_, err := f.svc.Submit(context.Background(), models.DomainDocumentRequest, dto.SubmitWorkflowRequest{
			SubjectID: subject,
			Payload:   []byte(`{"documentType":"work_certificate"}`),
		}, workflow.Actor{ID: subject, Role: models.RoleEmployee})
		require.NoError(t, err)
	}

	instances, _, err := f.svc.List(context.Background(), models.DomainDocumentRequest, dto.InstanceQuery{},
		workflow.Actor{ID: "emp-1", Role: models.RoleEmployee})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "emp-1", instances[0].SubjectID)
}
