package policy

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

// CEL evaluates an operator supplied boolean expression. The expression
// sees from, to, actor_role, priority (strings) and amount (double).
type CEL struct {
	expression string
	program    cel.Program
}

// NewCEL compiles expression. It must evaluate to bool.
func NewCEL(expression string) (*CEL, error) {
	if expression == "" {
		return nil, fmt.Errorf("policy expression is required")
	}

	env, err := cel.NewEnv(
		cel.Variable("from", cel.StringType),
		cel.Variable("to", cel.StringType),
		cel.Variable("actor_role", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("policy expression must return bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy program: %w", err)
	}

	return &CEL{expression: expression, program: program}, nil
}

// Allow evaluates the expression. Evaluation errors refuse the transition.
func (p *CEL) Allow(ctx context.Context, c Check) error {
	out, _, err := p.program.ContextEval(ctx, map[string]any{
		"from":       string(c.From),
		"to":         string(c.To),
		"actor_role": string(c.ActorRole),
		"priority":   string(c.Priority),
		"amount":     c.Amount,
	})
	if err != nil {
		return refuse(c, fmt.Sprintf("evaluation error: %v", err))
	}
	if out != types.True {
		return refuse(c, "policy expression returned false")
	}
	return nil
}

// Name returns "cel".
func (p *CEL) Name() string { return ModeCEL }

// Expression returns the source expression.
func (p *CEL) Expression() string { return p.expression }
