// Package domain contains the records the engine consumes and produces.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"strings"
	"time"
)

// =============================================================================
// Container Errors
// =============================================================================

var (
	// ErrMalformedContainer is returned for a record missing a mandatory field.
	ErrMalformedContainer = errors.New("malformed container record")

	ErrContainerIDRequired    = errors.New("container ID is required")
	ErrContainerNameRequired  = errors.New("container name is required")
	ErrContainerImageRequired = errors.New("container image is required")
)

// =============================================================================
// Network Modes
// =============================================================================

const (
	NetworkModeHost   = "host"
	NetworkModeBridge = "bridge"
	NetworkModeNone   = "none"

	// NetworkModeContainerPrefix prefixes modes that share another container's stack.
	NetworkModeContainerPrefix = "container:"
)

// IsBuiltinNetwork reports whether name is one of the engine's predefined
// networks (bridge, host, none). Builtin networks never appear in documents.
func IsBuiltinNetwork(name string) bool {
	switch name {
	case NetworkModeBridge, NetworkModeHost, NetworkModeNone:
		return true
	default:
		return false
	}
}

// =============================================================================
// ContainerRecord
// =============================================================================

// ContainerRecord is one container's runtime configuration as reported by the
// container engine. It is built once at the inspection boundary and never
// mutated afterwards.
type ContainerRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"` // engine form, usually with a leading "/"
	Image string `json:"image"`

	RestartPolicy RestartPolicy `json:"restart_policy"`
	NetworkMode   string        `json:"network_mode"`
	Privileged    bool          `json:"privileged"`
	Running       bool          `json:"running"`

	CapAdd      []string        `json:"cap_add,omitempty"`
	SecurityOpt []string        `json:"security_opt,omitempty"`
	Links       []string        `json:"links,omitempty"`
	ExtraHosts  []string        `json:"extra_hosts,omitempty"`
	Devices     []DeviceMapping `json:"devices,omitempty"`

	Env         []string          `json:"env,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Cmd         []string          `json:"cmd,omitempty"`
	Entrypoint  []string          `json:"entrypoint,omitempty"`
	Healthcheck *HealthcheckSpec  `json:"healthcheck,omitempty"`

	// Ports and Networks keep the engine's key order (lexical).
	Ports    []PortMapping       `json:"ports,omitempty"`
	Mounts   []Mount             `json:"mounts,omitempty"`
	Networks []NetworkAttachment `json:"networks,omitempty"`
}

// RestartPolicy mirrors the engine's restart policy.
type RestartPolicy struct {
	Name              string `json:"name"`
	MaximumRetryCount int    `json:"maximum_retry_count"`
}

// DeviceMapping is a host device exposed inside the container.
type DeviceMapping struct {
	PathOnHost        string `json:"path_on_host"`
	PathInContainer   string `json:"path_in_container"`
	CgroupPermissions string `json:"cgroup_permissions"`
}

// HealthcheckSpec is the configured healthcheck. Durations are integer
// nanoseconds, as the engine reports them.
type HealthcheckSpec struct {
	Test        []string      `json:"test,omitempty"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	StartPeriod time.Duration `json:"start_period"`
	Retries     int           `json:"retries"`
	Disable     bool          `json:"disable"`
}

// PortMapping holds every host binding of one container port.
type PortMapping struct {
	Port     string        `json:"port"` // "80/tcp"
	Bindings []PortBinding `json:"bindings"`
}

// PortBinding is one host side of a published port.
type PortBinding struct {
	HostIP   string `json:"host_ip"`
	HostPort string `json:"host_port"`
}

// Mount is one entry of the container's mount list.
type Mount struct {
	Type        string `json:"type"` // bind, volume, tmpfs, npipe, cluster
	Name        string `json:"name,omitempty"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination"`
	RW          bool   `json:"rw"`
}

// NetworkAttachment is the container's endpoint on one network.
type NetworkAttachment struct {
	Name              string `json:"name"`
	IPAMv4Address     string `json:"ipam_ipv4_address,omitempty"`
	IPAMv6Address     string `json:"ipam_ipv6_address,omitempty"`
	IPAddress         string `json:"ip_address,omitempty"`
	GlobalIPv6Address string `json:"global_ipv6_address,omitempty"`
	MacAddress        string `json:"mac_address,omitempty"`
}

// CleanName returns the container name without leading path separators.
//
// Example:
//
//	ContainerRecord{Name: "/web"}.CleanName() // returns "web"
func (c ContainerRecord) CleanName() string {
	return strings.TrimLeft(c.Name, "/")
}

// IsSpecial reports whether the container runs in host or bridge mode.
// Special containers are excluded from connectivity grouping.
func (c ContainerRecord) IsSpecial() bool {
	return c.NetworkMode == NetworkModeHost || c.NetworkMode == NetworkModeBridge
}

// SharedNetworkContainer returns the referenced container for a
// "container:<ref>" network mode.
func (c ContainerRecord) SharedNetworkContainer() (string, bool) {
	if !strings.HasPrefix(c.NetworkMode, NetworkModeContainerPrefix) {
		return "", false
	}
	ref := strings.TrimPrefix(c.NetworkMode, NetworkModeContainerPrefix)
	return ref, ref != ""
}

// CustomNetworks returns the names of attached networks other than the
// builtin ones, in attachment order.
func (c ContainerRecord) CustomNetworks() []string {
	var names []string
	for _, n := range c.Networks {
		if !IsBuiltinNetwork(n.Name) {
			names = append(names, n.Name)
		}
	}
	return names
}

// LinkTargets returns the container names referenced by the link list.
//
// Example:
//
//	Links: ["/db:/web/db"] // returns ["db"]
func (c ContainerRecord) LinkTargets() []string {
	var targets []string
	for _, link := range c.Links {
		name, _, _ := strings.Cut(link, ":")
		name = strings.TrimLeft(name, "/")
		if name != "" {
			targets = append(targets, name)
		}
	}
	return targets
}

// Validate checks the mandatory identity fields.
// The returned error wraps ErrMalformedContainer.
func (c ContainerRecord) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, ErrContainerIDRequired)
	}
	if c.CleanName() == "" {
		errs = append(errs, ErrContainerNameRequired)
	}
	if strings.TrimSpace(c.Image) == "" {
		errs = append(errs, ErrContainerImageRequired)
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrMalformedContainer}, errs...)...)
}
