package synth

import (
	"fmt"
	"sort"

	"github.com/ancients-collective/cliprobe/internal/clierr"
	"github.com/ancients-collective/cliprobe/internal/types"
)

// Policy maps each category to the tag its failures carry: critical or
// informational. It is immutable once built.
type Policy map[types.Category]string

// DefaultPolicy returns the built-in assertion strictness per category.
func DefaultPolicy() Policy {
	return Policy{
		types.CategoryBasic:              types.TagCritical,
		types.CategoryHelp:               types.TagCritical,
		types.CategorySecurity:           types.TagInformational,
		types.CategoryPath:               types.TagInformational,
		types.CategoryMultiShell:         types.TagInformational,
		types.CategoryInputValidation:    types.TagCritical,
		types.CategoryDestructiveOps:     types.TagCritical,
		types.CategoryPerformance:        types.TagInformational,
		types.CategoryDirectoryTraversal: types.TagInformational,
	}
}

// WithOverrides returns a copy of p with the config overrides applied.
// Keys accept the underscore aliases of category names.
func (p Policy) WithOverrides(overrides map[string]string) (Policy, error) {
	out := make(Policy, len(p))
	for k, v := range p {
		out[k] = v
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		cat, ok := types.ParseCategory(k)
		if !ok {
			return nil, clierr.New(clierr.InvalidConfiguration, "policy", fmt.Sprintf("unknown category %q", k))
		}
		v := overrides[k]
		if v != types.TagCritical && v != types.TagInformational {
			return nil, clierr.New(clierr.InvalidConfiguration, "policy", fmt.Sprintf("category %s: invalid policy %q", cat, v))
		}
		out[cat] = v
	}
	return out, nil
}

// Tag returns the policy tag for c. Unknown categories are informational.
func (p Policy) Tag(c types.Category) string {
	if t, ok := p[c]; ok {
		return t
	}
	return types.TagInformational
}
