package workflow

import (
	"fmt"
	"strings"

	"github.com/samudra-hr/hris-api/internal/models"
	appErrors "github.com/samudra-hr/hris-api/pkg/errors"
)

// Outcome is the result of a validated transition: the candidate new state
// and the side effects the domain attaches to it. Pure computation; the
// caller persists it.
type Outcome struct {
	From    models.State
	To      models.State
	Action  models.Action
	Effects []EffectDescriptor
}

// AttemptTransition validates action against the instance's current state,
// the actor's role, and the domain guard, in that order. It never mutates
// the instance. Given identical inputs it always produces the same result.
func AttemptTransition(def *Definition, instance *models.WorkflowInstance, action models.Action, actor Actor, reason string, facts Facts) (*Outcome, error) {
	if def == nil || instance == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "definition and instance required")
	}
	if def.Domain != instance.Domain {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("instance belongs to %s, not %s", instance.Domain, def.Domain))
	}

	if def.IsTerminal(instance.State) {
		return nil, appErrors.IllegalTransition(appErrors.CheckTerminalState,
			fmt.Sprintf("instance is in terminal state %s", instance.State))
	}

	transitions := def.ActionsFrom(instance.State)
	transition, ok := transitions[action]
	if !ok {
		return nil, appErrors.IllegalTransition(appErrors.CheckUnknownAction,
			fmt.Sprintf("action %s is not defined for state %s", action, instance.State))
	}

	if transition.RequesterOnly {
		if actor.ID != instance.CreatedBy {
			return nil, appErrors.IllegalTransition(appErrors.CheckRoleDenied,
				fmt.Sprintf("action %s is reserved for the requester", action))
		}
	} else if !roleAllowed(transition.Roles, actor.Role) {
		return nil, appErrors.IllegalTransition(appErrors.CheckRoleDenied,
			fmt.Sprintf("role %s may not invoke %s", actor.Role, action))
	}

	// A missing reason is a malformed request, not a state-machine violation,
	// so it surfaces as VALIDATION_ERROR rather than ILLEGAL_TRANSITION.
	if transition.RequiresReason && strings.TrimSpace(reason) == "" {
		return nil, appErrors.ValidationFailed(appErrors.CheckReasonMissing,
			fmt.Sprintf("action %s requires a reason", action))
	}

	if transition.Guard != nil {
		if err := transition.Guard(GuardContext{Instance: instance, Actor: actor, Facts: facts}); err != nil {
			return nil, appErrors.IllegalTransition(appErrors.CheckGuardFailed, err.Error())
		}
	}

	effects := make([]EffectDescriptor, len(transition.Effects))
	copy(effects, transition.Effects)

	return &Outcome{
		From:    instance.State,
		To:      transition.To,
		Action:  action,
		Effects: effects,
	}, nil
}
