package op

import (
	"fmt"
	"time"
)

// Type tags an op's semantics and selects its dependency rule.
type Type string

// Built-in op types. The dependency pairings between them live in the
// gate package's rule set; nothing here hard-codes a counterpart.
const (
	TypeStoreEntry   Type = "store-entry"
	TypeStoreRecord  Type = "store-record"
	TypeCreateLink   Type = "create-link"
	TypeUpdateEntry  Type = "update-entry"
	TypeDeleteEntry  Type = "delete-entry"
	TypeUpdateRecord Type = "update-record"
	TypeDeleteRecord Type = "delete-record"
	TypeDeleteLink   Type = "delete-link"
)

// ValidationStatus is the outcome assigned by the external validation
// engine. The gate consumes it, never produces it.
type ValidationStatus string

const (
	StatusValid     ValidationStatus = "valid"
	StatusRejected  ValidationStatus = "rejected"
	StatusAbandoned ValidationStatus = "abandoned"
)

// ValidStatuses defines the allowed validation status strings.
var ValidStatuses = map[ValidationStatus]bool{
	StatusValid:     true,
	StatusRejected:  true,
	StatusAbandoned: true,
}

// Stage marks progress through the validation pipeline.
//
// A nil *Stage on an Op means the op has been integrated and is no
// longer visible to gate scans.
type Stage int

const (
	StagePending             Stage = 0
	StageSysValidated        Stage = 1
	StageAppValidated        Stage = 2
	StageAwaitingIntegration Stage = 3
)

// Op is an operation record as stored in the ops table.
type Op struct {
	Hash       string `json:"hash"`       // Content-addressed identity
	Type       Type   `json:"type"`       // Selects the dependency rule
	Action     string `json:"action"`     // This op's own logical action reference
	Dependency string `json:"dependency"` // Prerequisite action reference; "" = none
	Origin     string `json:"origin"`     // Network origin the op arrived from
	Seq        int64  `json:"seq"`        // Arrival logical clock, never wall time

	ValidationStatus ValidationStatus `json:"validation_status"` // "" until validation completes
	ValidationStage  *Stage           `json:"validation_stage"`  // nil once integrated
	WhenIntegrated   *time.Time       `json:"when_integrated"`   // nil until integrated
}

// New builds an op with its content-addressed hash and stage set to
// StagePending. Seq is the arrival sequence assigned by the caller.
func New(typ Type, action, dependency, origin string, seq int64) (Op, error) {
	if typ == "" {
		return Op{}, fmt.Errorf("new op: type is required")
	}
	if action == "" {
		return Op{}, fmt.Errorf("new op: action is required")
	}
	if origin == "" {
		return Op{}, fmt.Errorf("new op: origin is required")
	}

	hash, err := HashOp(typ, action, dependency, origin)
	if err != nil {
		return Op{}, fmt.Errorf("new op: %w", err)
	}

	stage := StagePending
	return Op{
		Hash:            hash,
		Type:            typ,
		Action:          action,
		Dependency:      dependency,
		Origin:          origin,
		Seq:             seq,
		ValidationStage: &stage,
	}, nil
}

// Integrated reports whether the op has been integrated.
func (o Op) Integrated() bool {
	return o.WhenIntegrated != nil
}

// AwaitingIntegration reports whether the op is eligible for gate scans:
// validation complete, definite outcome, not yet integrated.
func (o Op) AwaitingIntegration() bool {
	return o.ValidationStage != nil &&
		*o.ValidationStage == StageAwaitingIntegration &&
		o.ValidationStatus != ""
}

// CheckConsistent verifies the op's lifecycle fields do not contradict
// each other. A violation indicates store corruption, which the gate
// reports but never repairs.
func (o Op) CheckConsistent() error {
	if o.WhenIntegrated != nil && o.ValidationStage != nil {
		return fmt.Errorf("op %s: integrated but validation_stage still set to %d", o.Hash, *o.ValidationStage)
	}
	if o.WhenIntegrated != nil && o.ValidationStatus != StatusValid {
		return fmt.Errorf("op %s: integrated with validation_status %q", o.Hash, o.ValidationStatus)
	}
	return nil
}
