// Package assemble joins normalized services and container groups into
// output documents and renders them as compose YAML.
package assemble

import (
	"slices"
	"strings"

	"github.com/artpar/d2c/internal/core/convert"
	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/core/grouping"
)

// =============================================================================
// Types
// =============================================================================

// Document is one output file.
type Document struct {
	Filename string
	Services []Service
	Networks []NetworkDeclaration
}

// Service is one entry of a document's services map.
type Service struct {
	Key         string
	ContainerID string
	Descriptor  convert.ServiceDescriptor
}

// NetworkDeclaration is one entry of a document's top-level networks map.
type NetworkDeclaration struct {
	Name     string
	External bool
}

// Skipped records a container left out of every document.
type Skipped struct {
	ID   string
	Name string
	Err  error
}

// Result is the output of Assemble.
type Result struct {
	Documents []Document
	Skipped   []Skipped
}

// Options tunes assembly.
type Options struct {
	DependencyScope DependencyScope
}

// DefaultOptions returns options with global dependency scope.
func DefaultOptions() Options {
	return Options{DependencyScope: ScopeGlobal}
}

// =============================================================================
// Network Declarations
// =============================================================================

// NetworkDeclarations collects the custom networks of the members, sorted by
// name. A network is declared external when its name contains "_default" or
// starts with "bridge" or "host".
func NetworkDeclarations(members []domain.ContainerRecord) []NetworkDeclaration {
	seen := make(map[string]bool)
	var names []string
	for _, m := range members {
		for _, name := range m.CustomNetworks() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)

	decls := make([]NetworkDeclaration, 0, len(names))
	for _, name := range names {
		decls = append(decls, NetworkDeclaration{Name: name, External: isExternalNetwork(name)})
	}
	if len(decls) == 0 {
		return nil
	}
	return decls
}

func isExternalNetwork(name string) bool {
	return strings.Contains(name, "_default") ||
		strings.HasPrefix(name, domain.NetworkModeBridge) ||
		strings.HasPrefix(name, domain.NetworkModeHost)
}

// =============================================================================
// Assemble
// =============================================================================

// Assemble builds one document per group, in group order. Containers that
// fail normalization are reported in Result.Skipped; a group left without
// services produces no document. Filenames are unique within the result.
func Assemble(snapshot domain.Snapshot, groups []grouping.Group, settings domain.Settings, opts Options) Result {
	if !opts.DependencyScope.IsValid() {
		opts.DependencyScope = ScopeGlobal
	}

	byID := make(map[string]domain.ContainerRecord, len(snapshot.Containers))
	for _, c := range snapshot.Containers {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
	}
	deps := AnalyzeDependencies(snapshot)

	var (
		result        Result
		memberNames   []map[string]bool
		assigned      = make(map[string]string)
		usedFilenames = make(map[string]bool)
	)
	for _, group := range groups {
		var (
			members  []domain.ContainerRecord
			services []Service
		)
		for _, id := range group {
			c, ok := byID[id]
			if !ok {
				continue
			}
			svc, err := convert.NormalizeContainer(c, settings)
			if err != nil {
				result.Skipped = append(result.Skipped, Skipped{ID: c.ID, Name: c.CleanName(), Err: err})
				continue
			}
			members = append(members, c)
			services = append(services, Service{ContainerID: c.ID, Descriptor: svc})
		}
		if len(services) == 0 {
			continue
		}

		inDocument := make(map[string]bool, len(members))
		for _, m := range members {
			inDocument[m.CleanName()] = true
		}
		usedKeys := make(map[string]bool, len(services))
		for i := range services {
			name := services[i].Descriptor.ContainerName
			services[i].Key = uniqueKey(ServiceKey(name), usedKeys)
			if _, ok := assigned[name]; !ok {
				assigned[name] = services[i].Key
			}
		}

		memberNames = append(memberNames, inDocument)
		result.Documents = append(result.Documents, Document{
			Filename: uniqueName(Filename(members, snapshot), usedFilenames),
			Services: services,
			Networks: NetworkDeclarations(members),
		})
	}

	// Keys are final only once every document exists; global dependencies
	// may point into a later document.
	for d, doc := range result.Documents {
		for i := range doc.Services {
			name := doc.Services[i].Descriptor.ContainerName
			doc.Services[i].Descriptor.DependsOn = dependsOn(deps[name], opts.DependencyScope, memberNames[d], assigned)
		}
	}
	return result
}
