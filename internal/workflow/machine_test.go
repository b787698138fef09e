package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samudra-hr/hris-api/internal/models"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func docInstance(t *testing.T, state models.State) *models.WorkflowInstance {
	t.Helper()
	return &models.WorkflowInstance{
		ID:        "inst-1",
		Domain:    models.DomainDocumentRequest,
		SubjectID: "emp-1",
		CreatedBy: "emp-1",
		State:     state,
		Version:   1,
		Payload:   mustJSON(t, DocumentRequestPayload{DocumentType: "work_certificate"}),
	}
}

func requireIllegal(t *testing.T, err error, check string) {
	t.Helper()
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
	require.Equal(t, check, appErr.Detail)
}

func TestDocumentApproveByHRManager(t *testing.T) {
	def, err := DefinitionFor(models.DomainDocumentRequest)
	require.NoError(t, err)

	inst := docInstance(t, DocStatePending)
	outcome, err := AttemptTransition(def, inst, ActionApprove, Actor{ID: "hr-1", Role: models.RoleHRManager}, "", Facts{})
	require.NoError(t, err)
	require.Equal(t, DocStatePending, outcome.From)
	require.Equal(t, DocStateReady, outcome.To)

	kinds := make([]string, 0, len(outcome.Effects))
	for _, e := range outcome.Effects {
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, EffectGenerateDocument)
	require.Contains(t, kinds, EffectNotify)

	// The machine must not mutate the instance.
	require.Equal(t, DocStatePending, inst.State)
	require.Equal(t, int64(1), inst.Version)
}

func TestDocumentApproveDeniedForEmployee(t *testing.T) {
	def, _ := DefinitionFor(models.DomainDocumentRequest)

	_, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionApprove, Actor{ID: "emp-1", Role: models.RoleEmployee}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckRoleDenied)
}

func TestDocumentRejectRequiresReason(t *testing.T) {
	def, _ := DefinitionFor(models.DomainDocumentRequest)

	_, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionReject, Actor{ID: "hr-1", Role: models.RoleHRManager}, "  ", Facts{})
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Equal(t, appErrors.CheckReasonMissing, appErr.Detail)

	outcome, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionReject, Actor{ID: "hr-1", Role: models.RoleHRManager}, "duplicate request", Facts{})
	require.NoError(t, err)
	require.Equal(t, DocStateRejected, outcome.To)
}

func TestDocumentCancelRequesterOnly(t *testing.T) {
	def, _ := DefinitionFor(models.DomainDocumentRequest)

	outcome, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionCancel, Actor{ID: "emp-1", Role: models.RoleEmployee}, "", Facts{})
	require.NoError(t, err)
	require.Equal(t, DocStateCancelled, outcome.To)

	// Even an HR manager may not cancel someone else's request.
	_, err = AttemptTransition(def, docInstance(t, DocStatePending), ActionCancel, Actor{ID: "hr-1", Role: models.RoleHRManager}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckRoleDenied)
}

func TestTerminalStatesRejectEveryAction(t *testing.T) {
	def, _ := DefinitionFor(models.DomainDocumentRequest)

	for _, state := range []models.State{DocStateReady, DocStateRejected, DocStateCancelled} {
		for _, action := range []models.Action{ActionApprove, ActionReject, ActionCancel} {
			_, err := AttemptTransition(def, docInstance(t, state), action, Actor{ID: "sa-1", Role: models.RoleSuperAdmin}, "reason", Facts{})
			requireIllegal(t, err, appErrors.CheckTerminalState)
		}
	}
}

func TestUnknownActionForState(t *testing.T) {
	def, _ := DefinitionFor(models.DomainSalaryAdvance)

	inst := &models.WorkflowInstance{
		ID: "adv-1", Domain: models.DomainSalaryAdvance, SubjectID: "emp-1", CreatedBy: "emp-1",
		State:   AdvStateActive,
		Payload: mustJSON(t, SalaryAdvancePayload{Amount: 100_000}),
	}
	_, err := AttemptTransition(def, inst, ActionApprove, Actor{ID: "hr-1", Role: models.RoleHRManager}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckUnknownAction)
}

func TestAdvanceApproveGuard(t *testing.T) {
	def, _ := DefinitionFor(models.DomainSalaryAdvance)
	actor := Actor{ID: "hr-1", Role: models.RoleHRManager}
	facts := Facts{NetMonthlySalary: 500_000, AdvanceMaxNetPercent: 30}

	inst := &models.WorkflowInstance{
		ID: "adv-1", Domain: models.DomainSalaryAdvance, SubjectID: "emp-1", CreatedBy: "emp-1",
		State:   AdvStatePending,
		Payload: mustJSON(t, SalaryAdvancePayload{Amount: 200_000, TenorMonths: 4}),
	}

	// 200000 requested against a 150000 cap (30% of 500000).
	_, err := AttemptTransition(def, inst, ActionApprove, actor, "", facts)
	requireIllegal(t, err, appErrors.CheckGuardFailed)
	require.Equal(t, AdvStatePending, inst.State)

	inst.Payload = mustJSON(t, SalaryAdvancePayload{Amount: 120_000, TenorMonths: 4})
	outcome, err := AttemptTransition(def, inst, ActionApprove, actor, "", facts)
	require.NoError(t, err)
	require.Equal(t, AdvStateActive, outcome.To)
}

func TestAdvanceGuardAggregatesOutstanding(t *testing.T) {
	def, _ := DefinitionFor(models.DomainSalaryAdvance)
	actor := Actor{ID: "hr-1", Role: models.RoleHRManager}

	inst := &models.WorkflowInstance{
		ID: "adv-2", Domain: models.DomainSalaryAdvance, SubjectID: "emp-1", CreatedBy: "emp-1",
		State:   AdvStatePending,
		Payload: mustJSON(t, SalaryAdvancePayload{Amount: 100_000}),
	}

	// 100000 alone fits, but 80000 already outstanding breaks the cap.
	_, err := AttemptTransition(def, inst, ActionApprove, actor, "",
		Facts{NetMonthlySalary: 500_000, AdvanceMaxNetPercent: 30, OutstandingAdvances: 80_000})
	requireIllegal(t, err, appErrors.CheckGuardFailed)

	_, err = AttemptTransition(def, inst, ActionApprove, actor, "",
		Facts{NetMonthlySalary: 500_000, AdvanceMaxNetPercent: 30, OutstandingAdvances: 40_000})
	require.NoError(t, err)
}

func TestAdvanceMarkRepaidSystemOnly(t *testing.T) {
	def, _ := DefinitionFor(models.DomainSalaryAdvance)

	inst := &models.WorkflowInstance{
		ID: "adv-1", Domain: models.DomainSalaryAdvance, SubjectID: "emp-1", CreatedBy: "emp-1",
		State:   AdvStateActive,
		Payload: mustJSON(t, SalaryAdvancePayload{Amount: 100_000}),
	}

	_, err := AttemptTransition(def, inst, ActionMarkRepaid, Actor{ID: "hr-1", Role: models.RoleHRManager}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckRoleDenied)

	outcome, err := AttemptTransition(def, inst, ActionMarkRepaid, Actor{ID: "system", Role: models.RoleSystem}, "", Facts{})
	require.NoError(t, err)
	require.Equal(t, AdvStateRepaid, outcome.To)
}

func contractInstance(t *testing.T, payload ContractPayload) *models.WorkflowInstance {
	t.Helper()
	return &models.WorkflowInstance{
		ID: "ctr-1", Domain: models.DomainContractLifecycle, SubjectID: "emp-1", CreatedBy: "hr-1",
		State:   ContractStateDraft,
		Payload: mustJSON(t, payload),
	}
}

func TestContractSignRequiresCompleteTerms(t *testing.T) {
	def, _ := DefinitionFor(models.DomainContractLifecycle)
	actor := Actor{ID: "hr-1", Role: models.RoleHRManager}

	_, err := AttemptTransition(def, contractInstance(t, ContractPayload{Position: "Engineer"}), ActionSign, actor, "", Facts{})
	requireIllegal(t, err, appErrors.CheckGuardFailed)

	complete := ContractPayload{Position: "Engineer", ContractType: "permanent", Salary: 900_000, StartDate: "2026-10-01"}
	outcome, err := AttemptTransition(def, contractInstance(t, complete), ActionSign, actor, "", Facts{})
	require.NoError(t, err)
	require.Equal(t, ContractStateSigned, outcome.To)
}

func TestContractEmployeeCountersignOwnOnly(t *testing.T) {
	def, _ := DefinitionFor(models.DomainContractLifecycle)
	complete := ContractPayload{Position: "Engineer", ContractType: "permanent", Salary: 900_000, StartDate: "2026-10-01"}

	_, err := AttemptTransition(def, contractInstance(t, complete), ActionSign, Actor{ID: "emp-2", Role: models.RoleEmployee}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckGuardFailed)

	_, err = AttemptTransition(def, contractInstance(t, complete), ActionSign, Actor{ID: "emp-1", Role: models.RoleEmployee}, "", Facts{})
	require.NoError(t, err)
}

func TestContractSignedIsTerminal(t *testing.T) {
	def, _ := DefinitionFor(models.DomainContractLifecycle)

	inst := contractInstance(t, ContractPayload{Position: "Engineer", ContractType: "permanent", Salary: 900_000, StartDate: "2026-10-01"})
	inst.State = ContractStateSigned

	_, err := AttemptTransition(def, inst, ActionSign, Actor{ID: "sa-1", Role: models.RoleSuperAdmin}, "", Facts{})
	requireIllegal(t, err, appErrors.CheckTerminalState)
}

func TestAttemptTransitionDeterministic(t *testing.T) {
	def, _ := DefinitionFor(models.DomainDocumentRequest)
	actor := Actor{ID: "hr-1", Role: models.RoleHRManager}

	first, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionApprove, actor, "", Facts{})
	require.NoError(t, err)
	second, err := AttemptTransition(def, docInstance(t, DocStatePending), ActionApprove, actor, "", Facts{})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDefinitionForUnknownDomain(t *testing.T) {
	_, err := DefinitionFor(models.Domain("PTO_REQUEST"))
	require.Error(t, err)
}

func TestParsePayloads(t *testing.T) {
	_, err := ParseDocumentRequestPayload([]byte(`{"documentType":"work_certificate"}`))
	require.NoError(t, err)
	_, err = ParseDocumentRequestPayload([]byte(`{"documentType":"diploma"}`))
	require.Error(t, err)

	_, err = ParseSalaryAdvancePayload([]byte(`{"amount":0}`))
	require.Error(t, err)
	_, err = ParseSalaryAdvancePayload([]byte(`{"amount":1000,"tenorMonths":13}`))
	require.Error(t, err)
	_, err = ParseSalaryAdvancePayload([]byte(`{"amount":1000,"tenorMonths":3}`))
	require.NoError(t, err)
}
