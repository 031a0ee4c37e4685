package domain

import (
	"fmt"
	"strings"
)

// DVRStatus is the canonical front-end workflow state of a DVR.
type DVRStatus string

const (
	DVRBozza          DVRStatus = "BOZZA"
	DVRInLavorazione  DVRStatus = "IN_LAVORAZIONE"
	DVRInRevisione    DVRStatus = "IN_REVISIONE"
	DVRInApprovazione DVRStatus = "IN_APPROVAZIONE"
	DVRApprovato      DVRStatus = "APPROVATO"
	DVRFinalizzato    DVRStatus = "FINALIZZATO"
	DVRArchiviato     DVRStatus = "ARCHIVIATO"
)

// DVRStatuses lists the statuses in workflow order.
var DVRStatuses = []DVRStatus{
	DVRBozza, DVRInLavorazione, DVRInRevisione, DVRInApprovazione,
	DVRApprovato, DVRFinalizzato, DVRArchiviato,
}

// ParseDVRStatus accepts the canonical values case-insensitively.
func ParseDVRStatus(s string) (DVRStatus, error) {
	up := DVRStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range DVRStatuses {
		if st == up {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid dvr status %q", s)
}

// Backend DVR status vocabulary.
const (
	BackendDraft           = "draft"
	BackendInProgress      = "in_progress"
	BackendReview          = "review"
	BackendPendingApproval = "pending_approval"
	BackendApproved        = "approved"
	BackendArchived        = "archived"
)

var toBackend = map[DVRStatus]string{
	DVRBozza:          BackendDraft,
	DVRInLavorazione:  BackendInProgress,
	DVRInRevisione:    BackendReview,
	DVRInApprovazione: BackendPendingApproval,
	DVRApprovato:      BackendApproved,
	// The backend has no finalised state; FINALIZZATO reads back as APPROVATO.
	DVRFinalizzato: BackendApproved,
	DVRArchiviato:  BackendArchived,
}

var fromBackend = map[string]DVRStatus{
	"draft":            DVRBozza,
	"bozza":            DVRBozza,
	"new":              DVRBozza,
	"in_progress":      DVRInLavorazione,
	"in-progress":      DVRInLavorazione,
	"inprogress":       DVRInLavorazione,
	"working":          DVRInLavorazione,
	"in_lavorazione":   DVRInLavorazione,
	"review":           DVRInRevisione,
	"in_review":        DVRInRevisione,
	"in_revisione":     DVRInRevisione,
	"pending_approval": DVRInApprovazione,
	"approval":         DVRInApprovazione,
	"in_approvazione":  DVRInApprovazione,
	"approved":         DVRApprovato,
	"approvato":        DVRApprovato,
	"final":            DVRApprovato,
	"finalized":        DVRApprovato,
	"finalizzato":      DVRApprovato,
	"archived":         DVRArchiviato,
	"archiviato":       DVRArchiviato,
}

// ToBackendStatus maps a front-end status to the backend vocabulary.
// Unknown values map to draft.
func ToBackendStatus(s DVRStatus) string {
	if v, ok := toBackend[s]; ok {
		return v
	}
	return BackendDraft
}

// FromBackendStatus maps any backend spelling (synonyms, case and separator
// variants) to the front-end status. Unknown values map to BOZZA.
func FromBackendStatus(s string) DVRStatus {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	if v, ok := fromBackend[key]; ok {
		return v
	}
	return DVRBozza
}

// Role is the canonical user role.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole folds the legacy Admin/Tecnico spelling into admin/user.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "amministratore":
		return RoleAdmin, nil
	case "user", "tecnico", "":
		return RoleUser, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

type RiskStatus string

const (
	RiskDraft     RiskStatus = "draft"
	RiskValidated RiskStatus = "validated"
	RiskActive    RiskStatus = "active"
)

func ParseRiskStatus(s string) (RiskStatus, error) {
	switch RiskStatus(strings.ToLower(strings.TrimSpace(s))) {
	case RiskDraft, "":
		return RiskDraft, nil
	case RiskValidated:
		return RiskValidated, nil
	case RiskActive:
		return RiskActive, nil
	}
	return "", fmt.Errorf("invalid risk status %q", s)
}

type ElaborationStatus string

const (
	ElaborationBozza       ElaborationStatus = "bozza"
	ElaborationPending     ElaborationStatus = "pending"
	ElaborationElaborating ElaborationStatus = "elaborating"
	ElaborationCompleted   ElaborationStatus = "completed"
	ElaborationError       ElaborationStatus = "error"
)

// Classification is the outcome of checking an AI extraction against the
// risk's required output fields.
type Classification string

const (
	Positivo Classification = "POSITIVO"
	Negativo Classification = "NEGATIVO"
)

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldArray, FieldObject:
		return true
	}
	return false
}
