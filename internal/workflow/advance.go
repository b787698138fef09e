package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/samudra-hr/hris-api/internal/models"
)

// Salary advance states.
const (
	AdvStatePending   models.State = "pending"
	AdvStateActive    models.State = "active"
	AdvStateRepaid    models.State = "repaid"
	AdvStateRejected  models.State = "rejected"
	AdvStateCancelled models.State = "cancelled"
)

// ActionMarkRepaid is system-triggered when the outstanding balance reaches
// zero; it is never invoked by a human actor.
const ActionMarkRepaid models.Action = "markRepaid"

// SalaryAdvancePayload is the domain payload for advance requests. Amount
// is in minor currency units.
type SalaryAdvancePayload struct {
	Amount      int64  `json:"amount"`
	TenorMonths int    `json:"tenorMonths,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ParseSalaryAdvancePayload decodes and validates the payload.
func ParseSalaryAdvancePayload(raw []byte) (*SalaryAdvancePayload, error) {
	var p SalaryAdvancePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid salary advance payload: %w", err)
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if p.TenorMonths < 0 || p.TenorMonths > 12 {
		return nil, fmt.Errorf("tenorMonths must be between 0 and 12")
	}
	return &p, nil
}

// advanceWithinPolicy enforces the approval cap: requested amount plus the
// employee's outstanding advance balance must not exceed the configured
// percentage of net monthly salary.
func advanceWithinPolicy(ctx GuardContext) error {
	payload, err := ParseSalaryAdvancePayload(ctx.Instance.Payload)
	if err != nil {
		return err
	}
	percent := ctx.Facts.AdvanceMaxNetPercent
	if percent <= 0 {
		percent = 30
	}
	cap := ctx.Facts.NetMonthlySalary * int64(percent) / 100
	total := payload.Amount + ctx.Facts.OutstandingAdvances
	if total > cap {
		return fmt.Errorf("requested %d plus outstanding %d exceeds policy cap %d (%d%% of net salary)",
			payload.Amount, ctx.Facts.OutstandingAdvances, cap, percent)
	}
	return nil
}

func salaryAdvanceDefinition() *Definition {
	approverRoles := []models.UserRole{models.RoleHRManager, models.RoleTenantAdmin}

	return &Definition{
		Domain:  models.DomainSalaryAdvance,
		Initial: AdvStatePending,
		States:  []models.State{AdvStatePending, AdvStateActive, AdvStateRepaid, AdvStateRejected, AdvStateCancelled},
		Terminal: map[models.State]bool{
			AdvStateRepaid:    true,
			AdvStateRejected:  true,
			AdvStateCancelled: true,
		},
		Transitions: map[models.State]map[models.Action]Transition{
			AdvStatePending: {
				ActionApprove: {
					To:    AdvStateActive,
					Roles: approverRoles,
					Guard: advanceWithinPolicy,
					Effects: []EffectDescriptor{
						{Kind: EffectScheduleRepayments},
						{Kind: EffectGenerateDocument},
						{Kind: EffectNotify},
					},
				},
				ActionReject: {
					To:             AdvStateRejected,
					Roles:          approverRoles,
					RequiresReason: true,
					Effects:        []EffectDescriptor{{Kind: EffectNotify}},
				},
				ActionCancel: {
					To:            AdvStateCancelled,
					RequesterOnly: true,
					Effects:       []EffectDescriptor{{Kind: EffectNotify}},
				},
			},
			AdvStateActive: {
				ActionMarkRepaid: {
					To:      AdvStateRepaid,
					Roles:   []models.UserRole{models.RoleSystem},
					Effects: []EffectDescriptor{{Kind: EffectNotify}},
				},
			},
		},
	}
}

func init() {
	register(salaryAdvanceDefinition())
}
