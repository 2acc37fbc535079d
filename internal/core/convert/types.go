package convert

import (
	"github.com/artpar/d2c/internal/core/filter"
)

// =============================================================================
// Service Descriptor
// =============================================================================

// ServiceDescriptor is the normalized form of one container, ready to be
// rendered as a compose service. Zero-valued fields are omitted on output.
// Field order here is the rendered field order.
type ServiceDescriptor struct {
	ContainerName string
	Image         string
	Restart       string
	Ports         []string
	Environment   []filter.EnvVar
	Volumes       []string

	// NetworkMode and Networks are mutually exclusive.
	NetworkMode string
	Networks    []ServiceNetwork

	Links       []string
	Privileged  bool
	Devices     []string
	Labels      map[string]string
	CapAdd      []string
	SecurityOpt []string
	ExtraHosts  []string
	Entrypoint  Args
	Command     Args
	Healthcheck *HealthcheckBlock

	// DependsOn is filled by the assembler, never by NormalizeContainer.
	DependsOn []string
}

// ServiceNetwork is one custom network a service joins.
type ServiceNetwork struct {
	Name        string
	IPv4Address string
	IPv6Address string
	MacAddress  string
}

// HasSettings reports whether the attachment carries any address.
func (n ServiceNetwork) HasSettings() bool {
	return n.IPv4Address != "" || n.IPv6Address != "" || n.MacAddress != ""
}

// NetworksAsMap reports whether networks must be rendered as a name->settings
// map. A plain name list is used when no network carries settings.
func (s ServiceDescriptor) NetworksAsMap() bool {
	for _, n := range s.Networks {
		if n.HasSettings() {
			return true
		}
	}
	return false
}

// Args is an entrypoint, command or healthcheck test. A single element is
// rendered as a scalar string, anything longer as a list.
type Args []string

// Scalar returns the only element when Args has exactly one.
func (a Args) Scalar() (string, bool) {
	if len(a) == 1 {
		return a[0], true
	}
	return "", false
}

// HealthcheckBlock is the compose healthcheck block. Durations are preformatted.
type HealthcheckBlock struct {
	Test        Args
	Interval    string
	Timeout     string
	StartPeriod string
	Retries     int
	Disable     bool
}

// IsEmpty reports whether the healthcheck has nothing to emit.
func (h HealthcheckBlock) IsEmpty() bool {
	return len(h.Test) == 0 && h.Interval == "" && h.Timeout == "" &&
		h.StartPeriod == "" && h.Retries == 0 && !h.Disable
}
