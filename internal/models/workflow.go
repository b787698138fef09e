package models

import (
	"encoding/json"
	"time"
)

// Domain identifies which concrete workflow an instance belongs to.
type Domain string

const (
	DomainDocumentRequest   Domain = "DOCUMENT_REQUEST"
	DomainSalaryAdvance     Domain = "SALARY_ADVANCE"
	DomainContractLifecycle Domain = "CONTRACT_LIFECYCLE"
)

// State is a status value drawn from a domain's state set.
type State string

// Action names a transition trigger within a domain definition.
type Action string

// WorkflowInstance is the durable record of one request/advance/contract.
// Payload is domain-specific JSON, opaque to the engine. Version increases
// by exactly one per accepted transition and is the optimistic-concurrency
// token checked at commit time.
type WorkflowInstance struct {
	ID        string    `db:"id" json:"id"`
	Domain    Domain    `db:"domain" json:"domain"`
	SubjectID string    `db:"subject_id" json:"subjectId"`
	State     State     `db:"state" json:"state"`
	Version   int64     `db:"version" json:"version"`
	Payload   []byte    `db:"payload" json:"payload"`
	CreatedBy string    `db:"created_by" json:"createdBy"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	// History is the append-only transition log, oldest first. Populated by
	// the store on load; never written directly.
	History []TransitionRecord `db:"-" json:"history,omitempty"`
}

// LastTransition returns the most recent history entry, or nil.
func (w *WorkflowInstance) LastTransition() *TransitionRecord {
	if len(w.History) == 0 {
		return nil
	}
	return &w.History[len(w.History)-1]
}

// PayloadMap decodes the opaque payload for display or guard evaluation.
func (w *WorkflowInstance) PayloadMap() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(w.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(w.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionRecord is one accepted transition. Records are append-only and
// keyed by (instance_id, seq); seq equals the instance version the
// transition produced.
type TransitionRecord struct {
	InstanceID string    `db:"instance_id" json:"instanceId"`
	Seq        int64     `db:"seq" json:"seq"`
	FromState  State     `db:"from_state" json:"fromState"`
	ToState    State     `db:"to_state" json:"toState"`
	Action     Action    `db:"action" json:"action"`
	ActorID    string    `db:"actor_id" json:"actorId"`
	ActorRole  UserRole  `db:"actor_role" json:"actorRole"`
	Reason     *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`

	// Effects are the side effects declared by the transition, with their
	// current delivery status.
	Effects []SideEffectRecord `db:"-" json:"effects,omitempty"`
}

// SideEffectStatus tracks delivery of a declared side effect.
type SideEffectStatus string

const (
	EffectStatusPending   SideEffectStatus = "PENDING"
	EffectStatusCompleted SideEffectStatus = "COMPLETED"
	EffectStatusFailed    SideEffectStatus = "FAILED"
)

// SideEffectRecord is one declared side effect of a committed transition.
// (instance_id, seq, kind) is the idempotency key: a redelivered job checks
// it before doing any work.
type SideEffectRecord struct {
	ID         string           `db:"id" json:"id"`
	InstanceID string           `db:"instance_id" json:"instanceId"`
	Seq        int64            `db:"seq" json:"seq"`
	Kind       string           `db:"kind" json:"kind"`
	Status     SideEffectStatus `db:"status" json:"status"`
	Attempts   int              `db:"attempts" json:"attempts"`
	ResultID   *string          `db:"result_id" json:"resultId,omitempty"`
	LastError  *string          `db:"last_error" json:"lastError,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updatedAt"`
}

// InstanceFilter constrains listing queries.
type InstanceFilter struct {
	Domain    Domain
	States    []State
	SubjectID string
	CreatedBy string
	Page      int
	PageSize  int
}

// RepaymentEntry is one scheduled salary deduction for an approved advance.
type RepaymentEntry struct {
	ID         string     `db:"id" json:"id"`
	InstanceID string     `db:"instance_id" json:"instanceId"`
	SubjectID  string     `db:"subject_id" json:"subjectId"`
	Seq        int        `db:"seq" json:"seq"`
	DueDate    time.Time  `db:"due_date" json:"dueDate"`
	Amount     int64      `db:"amount" json:"amount"`
	SettledAt  *time.Time `db:"settled_at" json:"settledAt,omitempty"`
}
