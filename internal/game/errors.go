// internal/game/errors.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/landlord/internal/models"
)

// RejectionKind is the command-failure taxonomy surfaced in actionRejected
// events. Every rejected command maps to exactly one kind.
type RejectionKind string

const (
	KindInvalidStateTransition RejectionKind = "InvalidStateTransition"
	KindNotYourTurn            RejectionKind = "NotYourTurn"
	KindInsufficientFunds      RejectionKind = "InsufficientFunds"
	KindAlreadyOwned           RejectionKind = "AlreadyOwned"
	KindRuleViolation          RejectionKind = "RuleViolation"
	KindNotFound               RejectionKind = "NotFound"
)

// Rejection describes why a command was refused. It is delivered only to the
// issuing player; the room state is untouched.
type Rejection struct {
	Command models.CommandType     `json:"command"`
	Kind    RejectionKind          `json:"kind"`
	Reason  string                 `json:"reason"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", r.Command, r.Kind, r.Reason)
}

func reject(cmd models.CommandType, kind RejectionKind, format string, args ...interface{}) *Rejection {
	return &Rejection{
		Command: cmd,
		Kind:    kind,
		Reason:  fmt.Sprintf(format, args...),
	}
}

func (r *Rejection) withDetail(key string, val interface{}) *Rejection {
	if r.Detail == nil {
		r.Detail = map[string]interface{}{}
	}
	r.Detail[key] = val
	return r
}
