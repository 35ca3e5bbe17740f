package management

import (
	"fmt"
	"strings"

	"bubbles/internal/config"
	"bubbles/internal/unified"
	"bubbles/pkg/cel"
)

// ValidateHintRules checks a complete replacement rule set. Names must be
// unique so rule matches stay attributable in logs.
func ValidateHintRules(evaluator *cel.Evaluator, rules []config.HintRuleConfig) error {
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("rules[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(r.Expression) == "" {
			return fmt.Errorf("rules[%d] (%s): expression is required", i, name)
		}
		if err := evaluator.Validate(r.Expression); err != nil {
			return fmt.Errorf("rules[%d] (%s): invalid CEL expression: %w", i, name, err)
		}

		if r.Priority != "" && !unified.Priority(r.Priority).Valid() {
			return fmt.Errorf("rules[%d] (%s): invalid priority %q", i, name, r.Priority)
		}
	}
	return nil
}
