package compose

import (
	"context"
	"slices"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// checkProjectName names the throwaway project used for loading.
const checkProjectName = "d2c-check"

// =============================================================================
// Summary Types
// =============================================================================

// Summary is what the loader understood from a document.
type Summary struct {
	Services []ServiceSummary `json:"services"`
	Networks []NetworkSummary `json:"networks,omitempty"`
}

// ServiceSummary is one loaded service.
type ServiceSummary struct {
	Name        string   `json:"name"`
	Image       string   `json:"image"`
	NetworkMode string   `json:"network_mode,omitempty"`
	Networks    []string `json:"networks,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// NetworkSummary is one loaded top-level network.
type NetworkSummary struct {
	Name     string `json:"name"`
	External bool   `json:"external"`
}

// Service returns the named service summary.
func (s *Summary) Service(name string) (ServiceSummary, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceSummary{}, false
}

// =============================================================================
// Check
// =============================================================================

// Check loads a rendered document through the compose-spec loader with
// schema validation enabled. Interpolation and cross-document consistency
// checks are skipped: values are written verbatim and depends_on may point
// into another document.
func Check(filename string, content []byte) (*Summary, error) {
	if strings.TrimSpace(string(content)) == "" {
		return nil, NewParseError(filename, "document is empty", ErrEmptyInput)
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return nil, NewParseError(filename, "invalid YAML syntax", ErrInvalidYAML)
	}
	if dict == nil {
		return nil, NewParseError(filename, "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Filename: filename,
				Content:  content,
				Config:   dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(checkProjectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipConsistencyCheck = true
		opts.SkipResolveEnvironment = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewParseError(filename, err.Error(), ErrInvalidDocument)
	}
	if len(project.Services) == 0 {
		return nil, NewParseError(filename, "no services", ErrNoServices)
	}

	return summarize(project), nil
}

func summarize(project *types.Project) *Summary {
	summary := &Summary{}
	for _, name := range sortedKeys(project.Services) {
		svc := project.Services[name]
		summary.Services = append(summary.Services, ServiceSummary{
			Name:        name,
			Image:       svc.Image,
			NetworkMode: svc.NetworkMode,
			Networks:    sortedKeys(svc.Networks),
			DependsOn:   sortedKeys(svc.DependsOn),
		})
	}
	for _, name := range sortedKeys(project.Networks) {
		summary.Networks = append(summary.Networks, NetworkSummary{
			Name:     name,
			External: bool(project.Networks[name].External),
		})
	}
	return summary
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
