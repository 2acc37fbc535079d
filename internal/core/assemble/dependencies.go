package assemble

import (
	"slices"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Dependency Analysis
// =============================================================================

// DependencyScope controls which dependencies reach depends_on.
type DependencyScope string

const (
	// ScopeGlobal keeps every dependency, including services rendered into
	// another document.
	ScopeGlobal DependencyScope = "global"
	// ScopeDocument keeps only dependencies within the same document.
	ScopeDocument DependencyScope = "document"
)

// IsValid checks if the scope is known.
func (s DependencyScope) IsValid() bool {
	return s == ScopeGlobal || s == ScopeDocument
}

// AnalyzeDependencies maps each container name to the sorted names of the
// containers it depends on: its link targets and the target of a
// "container:<ref>" network mode. Only names present in the snapshot count,
// and a container never depends on itself.
func AnalyzeDependencies(snapshot domain.Snapshot) map[string][]string {
	known := make(map[string]bool, len(snapshot.Containers))
	for _, c := range snapshot.Containers {
		known[c.CleanName()] = true
	}

	deps := make(map[string][]string)
	for _, c := range snapshot.Containers {
		self := c.CleanName()
		set := make(map[string]bool)
		for _, target := range c.LinkTargets() {
			if known[target] && target != self {
				set[target] = true
			}
		}
		if ref, ok := c.SharedNetworkContainer(); ok {
			if target, found := snapshot.ResolveContainerName(ref); found && target != self {
				set[target] = true
			}
		}
		if len(set) == 0 {
			continue
		}
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		slices.Sort(names)
		deps[self] = names
	}
	return deps
}

// dependsOn converts a container's dependencies into service keys. assigned
// maps container names to the key their service received, which differs
// from ServiceKey after a collision. With ScopeDocument, names outside
// inDocument are dropped.
func dependsOn(names []string, scope DependencyScope, inDocument map[string]bool, assigned map[string]string) []string {
	var keys []string
	for _, name := range names {
		if scope == ScopeDocument && !inDocument[name] {
			continue
		}
		key, ok := assigned[name]
		if !ok {
			key = ServiceKey(name)
		}
		keys = append(keys, key)
	}
	return keys
}
