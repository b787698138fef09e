// Package workflow implements the status machine at the heart of the
// request/approval engine: declarative per-domain definitions and a pure
// transition validator. Nothing in this package performs I/O; persistence
// and side-effect delivery live behind it.
package workflow

import (
	"fmt"

	"github.com/samudra-hr/hris-api/internal/models"
)

// Side-effect kinds a transition may declare. The dispatcher maps them to
// artifact generation, ledger writes and notifications.
const (
	EffectGenerateDocument   = "generate_document"
	EffectScheduleRepayments = "schedule_repayments"
	EffectNotify             = "notify"
)

// Actor is the resolved identity invoking a transition.
type Actor struct {
	ID   string
	Role models.UserRole
}

// Facts are pre-resolved inputs for guard evaluation. The coordinator loads
// them before calling the machine so guards stay pure.
type Facts struct {
	NetMonthlySalary     int64
	OutstandingAdvances  int64
	AdvanceMaxNetPercent int
}

// GuardContext is handed to guard functions.
type GuardContext struct {
	Instance *models.WorkflowInstance
	Actor    Actor
	Facts    Facts
}

// Guard is a domain precondition beyond role and state checks. A non-nil
// error fails the transition; the error message is surfaced to the caller.
type Guard func(GuardContext) error

// EffectDescriptor names a side effect the domain attaches to a transition.
type EffectDescriptor struct {
	Kind string
}

// Transition declares one legal (state, action) edge.
type Transition struct {
	To models.State
	// Roles permitted to invoke the action. Ignored when RequesterOnly.
	Roles []models.UserRole
	// RequesterOnly restricts the action to the instance creator,
	// regardless of role (e.g. cancelling one's own request).
	RequesterOnly  bool
	RequiresReason bool
	Guard          Guard
	Effects        []EffectDescriptor
}

// Definition is a domain's complete state machine.
type Definition struct {
	Domain      models.Domain
	Initial     models.State
	States      []models.State
	Terminal    map[models.State]bool
	Transitions map[models.State]map[models.Action]Transition
}

// IsTerminal reports whether no further transition is legal from state.
func (d *Definition) IsTerminal(state models.State) bool {
	return d.Terminal[state]
}

// ActionsFrom returns the transition table for a state (nil when none).
func (d *Definition) ActionsFrom(state models.State) map[models.Action]Transition {
	return d.Transitions[state]
}

var registry = map[models.Domain]*Definition{}

func register(def *Definition) {
	registry[def.Domain] = def
}

// DefinitionFor resolves the machine for a domain.
func DefinitionFor(domain models.Domain) (*Definition, error) {
	def, ok := registry[domain]
	if !ok {
		return nil, fmt.Errorf("unknown workflow domain: %s", domain)
	}
	return def, nil
}

// Domains lists the registered workflow domains.
func Domains() []models.Domain {
	out := make([]models.Domain, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	return out
}

func roleAllowed(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
