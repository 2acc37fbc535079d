package backup

import (
	"cmp"
	"slices"

	"github.com/artpar/d2c/internal/core/assemble"
	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/core/filter"
	"github.com/artpar/d2c/internal/core/grouping"
	"github.com/artpar/d2c/internal/shell/output"
)

// =============================================================================
// Plan
// =============================================================================

// Rejected is a container left out of the output, with the reason.
type Rejected struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// RenderFailure is a document that could not be encoded.
type RenderFailure struct {
	Filename string
	Err      error
}

// Plan is everything a run would write, computed without touching disk.
type Plan struct {
	ContainerCount int
	Rejected       []Rejected
	Documents      []assemble.Document
	Rendered       []output.Document
	RenderFailures []RenderFailure
	Labels         filter.Summary
	Env            filter.Summary
}

// BuildPlan validates, groups, assembles and renders one snapshot.
func BuildPlan(snapshot domain.Snapshot, cfg Config) Plan {
	plan := Plan{ContainerCount: len(snapshot.Containers)}

	valid, invalid := snapshot.Valid()
	for key, err := range invalid {
		plan.Rejected = append(plan.Rejected, Rejected{ID: key, Reason: err.Error()})
	}
	slices.SortFunc(plan.Rejected, func(a, b Rejected) int { return cmp.Compare(a.ID, b.ID) })

	groups := grouping.GroupContainers(valid)
	result := assemble.Assemble(valid, groups, cfg.Settings, cfg.Assemble)
	for _, s := range result.Skipped {
		plan.Rejected = append(plan.Rejected, Rejected{ID: s.ID, Name: s.Name, Reason: s.Err.Error()})
	}
	plan.Documents = result.Documents

	for _, doc := range result.Documents {
		content, err := assemble.Render(doc)
		if err != nil {
			plan.RenderFailures = append(plan.RenderFailures, RenderFailure{Filename: doc.Filename, Err: err})
			continue
		}
		plan.Rendered = append(plan.Rendered, output.Document{Filename: doc.Filename, Content: content})
	}

	plan.Labels, plan.Env = filterSummaries(valid, result.Documents, cfg.Settings)
	return plan
}

// filterSummaries totals label and environment filtering over every
// container that made it into a document.
func filterSummaries(snapshot domain.Snapshot, docs []assemble.Document, settings domain.Settings) (filter.Summary, filter.Summary) {
	keywords := filter.ParseKeywords(settings.EnvFilterKeywords)
	var labelsIn, labelsOut, envIn, envOut int
	for _, doc := range docs {
		for _, svc := range doc.Services {
			c, ok := snapshot.Container(svc.ContainerID)
			if !ok {
				continue
			}
			labels := filter.Stats(c.Labels, svc.Descriptor.Labels)
			labelsIn += labels.OriginalCount
			labelsOut += labels.FilteredCount
			envIn += len(c.Env)
			envOut += len(filter.FilterEnv(c.Env, keywords))
		}
	}
	return filter.Count(labelsIn, labelsOut), filter.Count(envIn, envOut)
}
