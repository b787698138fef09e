package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samudra-hr/hris-api/internal/models"
)

// Document request states.
const (
	DocStatePending   models.State = "pending"
	DocStateReady     models.State = "ready"
	DocStateRejected  models.State = "rejected"
	DocStateCancelled models.State = "cancelled"
)

// Document request actions.
const (
	ActionApprove models.Action = "approve"
	ActionReject  models.Action = "reject"
	ActionCancel  models.Action = "cancel"
)

// DocumentRequestPayload is the domain payload for document requests.
type DocumentRequestPayload struct {
	DocumentType string `json:"documentType"`
	Locale       string `json:"locale,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// DocumentTypes the HR office can issue.
var DocumentTypes = []string{"work_certificate", "employment_attestation", "salary_statement"}

// ParseDocumentRequestPayload decodes and validates the payload.
func ParseDocumentRequestPayload(raw []byte) (*DocumentRequestPayload, error) {
	var p DocumentRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid document request payload: %w", err)
	}
	docType := strings.TrimSpace(p.DocumentType)
	if docType == "" {
		return nil, fmt.Errorf("documentType is required")
	}
	supported := false
	for _, t := range DocumentTypes {
		if t == docType {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported documentType: %s", docType)
	}
	return &p, nil
}

func documentRequestDefinition() *Definition {
	approverRoles := []models.UserRole{models.RoleHRManager, models.RoleTenantAdmin}

	return &Definition{
		Domain:  models.DomainDocumentRequest,
		Initial: DocStatePending,
		States:  []models.State{DocStatePending, DocStateReady, DocStateRejected, DocStateCancelled},
		Terminal: map[models.State]bool{
			DocStateReady:     true,
			DocStateRejected:  true,
			DocStateCancelled: true,
		},
		Transitions: map[models.State]map[models.Action]Transition{
			DocStatePending: {
				ActionApprove: {
					To:    DocStateReady,
					Roles: approverRoles,
					Effects: []EffectDescriptor{
						{Kind: EffectGenerateDocument},
						{Kind: EffectNotify},
					},
				},
				ActionReject: {
					To:             DocStateRejected,
					Roles:          approverRoles,
					RequiresReason: true,
					Effects:        []EffectDescriptor{{Kind: EffectNotify}},
				},
				ActionCancel: {
					To:            DocStateCancelled,
					RequesterOnly: true,
					Effects:       []EffectDescriptor{{Kind: EffectNotify}},
				},
			},
		},
	}
}

func init() {
	register(documentRequestDefinition())
}
