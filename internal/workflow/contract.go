package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samudra-hr/hris-api/internal/models"
)

// Contract lifecycle states. Signed is terminal: the payload is frozen and
// amendments are new instances referencing the original.
const (
	ContractStateDraft  models.State = "draft"
	ContractStateSigned models.State = "signed"
)

// ActionSign moves a draft contract to signed.
const ActionSign models.Action = "sign"

// ContractPayload carries the employment terms.
type ContractPayload struct {
	Position         string `json:"position"`
	ContractType     string `json:"contractType"`
	Salary           int64  `json:"salary"`
	StartDate        string `json:"startDate"`
	EndDate          string `json:"endDate,omitempty"`
	AmendsInstanceID string `json:"amendsInstanceId,omitempty"`
}

// ParseContractPayload decodes the payload without enforcing completeness;
// drafts may be partial until signing.
func ParseContractPayload(raw []byte) (*ContractPayload, error) {
	var p ContractPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid contract payload: %w", err)
	}
	return &p, nil
}

// contractComplete is the sign guard: all required terms present, and an
// employee countersigning must be the contract's subject.
func contractComplete(ctx GuardContext) error {
	if ctx.Actor.Role == models.RoleEmployee && ctx.Actor.ID != ctx.Instance.SubjectID {
		return fmt.Errorf("an employee may only countersign their own contract")
	}
	payload, err := ParseContractPayload(ctx.Instance.Payload)
	if err != nil {
		return err
	}
	missing := make([]string, 0, 4)
	if strings.TrimSpace(payload.Position) == "" {
		missing = append(missing, "position")
	}
	if strings.TrimSpace(payload.ContractType) == "" {
		missing = append(missing, "contractType")
	}
	if payload.Salary <= 0 {
		missing = append(missing, "salary")
	}
	if strings.TrimSpace(payload.StartDate) == "" {
		missing = append(missing, "startDate")
	}
	if len(missing) > 0 {
		return fmt.Errorf("contract is missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func contractLifecycleDefinition() *Definition {
	return &Definition{
		Domain:  models.DomainContractLifecycle,
		Initial: ContractStateDraft,
		States:  []models.State{ContractStateDraft, ContractStateSigned},
		Terminal: map[models.State]bool{
			ContractStateSigned: true,
		},
		Transitions: map[models.State]map[models.Action]Transition{
			ContractStateDraft: {
				ActionSign: {
					To: ContractStateSigned,
					Roles: []models.UserRole{
						models.RoleHRManager,
						models.RoleTenantAdmin,
						models.RoleEmployee,
					},
					Guard: contractComplete,
					Effects: []EffectDescriptor{
						{Kind: EffectGenerateDocument},
						{Kind: EffectNotify},
					},
				},
			},
		},
	}
}

func init() {
	register(contractLifecycleDefinition())
}
