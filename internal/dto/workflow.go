package dto

import (
	"encoding/json"

	"github.com/samudra-hr/hris-api/internal/models"
)

// SubmitWorkflowRequest opens a new instance in a domain. Payload is the
// domain-specific body, validated by the domain definition.
type SubmitWorkflowRequest struct {
	SubjectID string          `json:"subjectId" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// TransitionRequest invokes an action on an instance. ExpectedVersion is
// optional; when the client sends the version it last saw, a concurrent
// change is reported as already-resolved instead of silently re-checked.
type TransitionRequest struct {
	Action          models.Action `json:"action" validate:"required"`
	Reason          string        `json:"reason"`
	ExpectedVersion *int64        `json:"expectedVersion" validate:"omitempty,min=1"`
}

// ContractEditRequest replaces a draft contract's terms.
type ContractEditRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// RepaymentRequest posts one payroll deduction against an active advance.
type RepaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// InstanceQuery mirrors the supported listing filters.
type InstanceQuery struct {
	States    []models.State `form:"state"`
	SubjectID string         `form:"subjectId"`
	Page      int            `form:"page"`
	PageSize  int            `form:"pageSize"`
}
