// Package policy decides which status transitions an officer may apply.
package policy

import (
	"context"
	"fmt"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// Mode names accepted in PolicyConfig.Mode.
const (
	ModePermissive = "permissive"
	ModeGraph      = "graph"
	ModeCEL        = "cel"
)

// Check describes a requested transition.
type Check struct {
	From      domain.Status
	To        domain.Status
	ActorRole domain.Role
	Priority  domain.Priority
	Amount    float64
}

// Policy approves or refuses a transition. A refusal wraps domain.ErrValidation.
type Policy interface {
	Allow(ctx context.Context, c Check) error
	Name() string
}

// New builds the policy selected by cfg.Mode.
func New(cfg domain.PolicyConfig) (Policy, error) {
	switch cfg.Mode {
	case ModePermissive, "":
		return Permissive{}, nil
	case ModeGraph:
		return NewGraph(), nil
	case ModeCEL:
		p, err := NewCEL(cfg.Expression)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported policy mode: %s", cfg.Mode)
	}
}

// Permissive allows any status to move to any status.
type Permissive struct{}

// Allow always succeeds.
func (Permissive) Allow(ctx context.Context, c Check) error { return nil }

// Name returns "permissive".
func (Permissive) Name() string { return ModePermissive }

func refuse(c Check, reason string) error {
	return fmt.Errorf("%w: transition %s -> %s refused: %s", domain.ErrValidation, c.From, c.To, reason)
}
