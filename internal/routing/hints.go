package routing

import (
	"context"
	"fmt"
	"sync/atomic"

	celgo "github.com/google/cel-go/cel"

	"bubbles/internal/config"
	"bubbles/internal/logger"
	"bubbles/internal/unified"
	"bubbles/pkg/cel"
)

type compiledRule struct {
	cfg     config.HintRuleConfig
	program celgo.Program
}

// HintRules raises routing hints and priority on requests matching a CEL
// predicate. Values the caller set explicitly are never changed.
type HintRules struct {
	eval   *cel.Evaluator
	rules  atomic.Pointer[[]compiledRule]
	logger logger.Logger
}

var _ unified.HintEvaluator = (*HintRules)(nil)

func NewHintRules(eval *cel.Evaluator, rules []config.HintRuleConfig, log logger.Logger) (*HintRules, error) {
	h := &HintRules{eval: eval, logger: log}
	if err := h.Replace(rules); err != nil {
		return nil, err
	}
	return h, nil
}

// Replace compiles every rule before swapping; on error the current set
// stays in place.
func (h *HintRules) Replace(rules []config.HintRuleConfig) error {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Priority != "" && !unified.Priority(r.Priority).Valid() {
			return fmt.Errorf("hint rule %d (%s): invalid priority %q", i, r.Name, r.Priority)
		}
		prg, err := h.eval.Compile(r.Expression)
		if err != nil {
			return fmt.Errorf("hint rule %d (%s): %w", i, r.Name, err)
		}
		compiled = append(compiled, compiledRule{cfg: r, program: prg})
	}

	h.rules.Store(&compiled)
	h.logger.Infow("Routing hint rules loaded", "count", len(compiled))
	return nil
}

func (h *HintRules) Rules() []config.HintRuleConfig {
	current := h.current()
	out := make([]config.HintRuleConfig, 0, len(current))
	for _, r := range current {
		out = append(out, r.cfg)
	}
	return out
}

func (h *HintRules) current() []compiledRule {
	if p := h.rules.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *HintRules) Apply(ctx context.Context, req *unified.NormalizedRequest, explicit unified.Explicit) {
	for _, r := range h.current() {
		matched, err := h.eval.Match(ctx, r.program, req)
		if err != nil {
			h.logger.DebugwCtx(ctx, "Hint rule evaluation failed",
				"rule", r.cfg.Name,
				"error", err,
			)
			continue
		}
		if !matched {
			continue
		}

		if r.cfg.RequiresRealTime && !explicit.RequiresRealTime {
			req.RequiresRealTime = true
		}
		if r.cfg.RequiresReliability && !explicit.RequiresReliability {
			req.RequiresReliability = true
		}
		if p := unified.Priority(r.cfg.Priority); p != "" && !explicit.Priority && p.Rank() > req.Priority.Rank() {
			req.Priority = p
		}
	}
}
