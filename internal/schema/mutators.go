package schema

import (
	"fmt"
	"strings"
)

// Mutator kinds.
const (
	MutatorGetter   = "getter"
	MutatorSetter   = "setter"
	MutatorAccessor = "accessor"
)

// Config drives schema building.
type Config struct {
	// DefaultDatabase is used by entities that do not name a database.
	DefaultDatabase string
	// Mutators maps an abstract column type to mutator ids of the form kind:handler.
	Mutators map[string][]string
}

// Mutator is one configured value transformation.
type Mutator struct {
	Kind    string
	Handler string
}

func (m Mutator) String() string { return m.Kind + ":" + m.Handler }

// ParseMutator reads a kind:handler id.
func ParseMutator(id string) (Mutator, error) {
	kind, handler, ok := strings.Cut(strings.TrimSpace(id), ":")
	if !ok || handler == "" {
		return Mutator{}, fmt.Errorf("mutator %q must be kind:handler", id)
	}
	switch kind {
	case MutatorGetter, MutatorSetter, MutatorAccessor:
	default:
		return Mutator{}, fmt.Errorf("mutator %q has unknown kind %q", id, kind)
	}
	return Mutator{Kind: kind, Handler: handler}, nil
}

func parseMutatorConfig(cfg map[string][]string) (map[string][]Mutator, error) {
	out := make(map[string][]Mutator, len(cfg))
	for typ, ids := range cfg {
		for _, id := range ids {
			m, err := ParseMutator(id)
			if err != nil {
				return nil, configError("", "", "type %s: %v", typ, err)
			}
			out[typ] = append(out[typ], m)
		}
	}
	return out, nil
}
