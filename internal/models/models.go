package models

import (
	"strings"

	"keybridge/internal/config"
)

// Rules holds the model-name normalizations applied to OpenAI request bodies.
type Rules struct {
	aliases     map[string]string
	stripEffort map[string]struct{}
}

func NewRules(aliases map[string]string, stripEffort []string) Rules {
	r := Rules{
		aliases:     make(map[string]string, len(aliases)),
		stripEffort: make(map[string]struct{}, len(stripEffort)),
	}
	for from, to := range aliases {
		r.aliases[strings.TrimSpace(from)] = strings.TrimSpace(to)
	}
	for _, model := range stripEffort {
		r.stripEffort[strings.TrimSpace(model)] = struct{}{}
	}
	return r
}

func DefaultRules() Rules {
	return NewRules(config.DefaultModelAliases(), config.DefaultStripReasoningEffort())
}

func RulesFromConfig(cfg *config.Config) Rules {
	return NewRules(cfg.ModelAliases, cfg.StripReasoningEffort)
}

// Resolve returns the upstream model name and whether it differs from the input.
// Matching is exact: aliases are not chained.
func (r Rules) Resolve(model string) (string, bool) {
	to, ok := r.aliases[model]
	if !ok || to == model {
		return model, false
	}
	return to, true
}

// StripsReasoningEffort reports whether reasoning.effort must be removed for model.
func (r Rules) StripsReasoningEffort(model string) bool {
	_, ok := r.stripEffort[model]
	return ok
}
