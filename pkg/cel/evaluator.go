package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"bubbles/internal/unified"
)

// Evaluator compiles and runs boolean expressions over a normalized request.
// Expressions see requestType, source, guildId, userId, priority, data, metadata
// and timestamp.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("requestType", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("guildId", cel.StringType),
		cel.Variable("userId", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Compile checks that expression is a boolean predicate and prepares it.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) Validate(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Match runs a compiled predicate against req.
func (e *Evaluator) Match(ctx context.Context, program cel.Program, req *unified.NormalizedRequest) (bool, error) {
	result, _, err := program.ContextEval(ctx, requestVars(req))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return matched, nil
}

func requestVars(req *unified.NormalizedRequest) map[string]interface{} {
	data := req.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return map[string]interface{}{
		"requestType": req.Type,
		"source":      string(req.Source),
		"guildId":     req.GuildID,
		"userId":      req.UserID,
		"priority":    string(req.Priority),
		"timestamp":   req.Timestamp,
		"data":        data,
		"metadata":    metadata,
	}
}
