package convert

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Restart
// =============================================================================

const (
	restartNo        = "no"
	restartOnFailure = "on-failure"
)

// Restart converts a restart policy. It returns "" when the policy is absent
// or "no".
//
// Example:
//
//	Restart(domain.RestartPolicy{Name: "on-failure", MaximumRetryCount: 3}) // "on-failure:3"
func Restart(p domain.RestartPolicy) string {
	if p.Name == "" || p.Name == restartNo {
		return ""
	}
	if p.Name == restartOnFailure && p.MaximumRetryCount > 0 {
		return p.Name + ":" + strconv.Itoa(p.MaximumRetryCount)
	}
	return p.Name
}

// =============================================================================
// Ports
// =============================================================================

// Ports converts published ports in record order. Bindings without a host
// port are skipped; identical results are kept once, at first position.
//
// Example:
//
//	80/tcp -> [{HostIP: "127.0.0.1", HostPort: "8080"}] // "127.0.0.1:8080:80/tcp"
//	80/tcp -> [{HostIP: "0.0.0.0", HostPort: "8080"}]   // "8080:80/tcp"
func Ports(mappings []domain.PortMapping) []string {
	var ports []string
	seen := make(map[string]struct{})
	for _, m := range mappings {
		target := portKey(m.Port)
		for _, b := range m.Bindings {
			if b.HostPort == "" {
				continue
			}
			var s string
			if isWildcardIP(b.HostIP) {
				s = b.HostPort + ":" + target
			} else {
				s = b.HostIP + ":" + b.HostPort + ":" + target
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			ports = append(ports, s)
		}
	}
	return ports
}

// portKey normalizes "80" to "80/tcp". Unparseable keys pass through.
func portKey(key string) string {
	p := nat.Port(key)
	if p.Port() == "" {
		return key
	}
	return p.Port() + "/" + p.Proto()
}

func isWildcardIP(ip string) bool {
	return ip == "" || ip == "0.0.0.0" || ip == "::"
}

// =============================================================================
// Volumes
// =============================================================================

const (
	mountTypeVolume = "volume"
	mountTypeBind   = "bind"
)

// Volumes converts volume and bind mounts to "source:target[:ro]". Other
// mount types and mounts missing a source or target are skipped.
func Volumes(mounts []domain.Mount) []string {
	var volumes []string
	for _, m := range mounts {
		var source string
		switch m.Type {
		case mountTypeVolume:
			source = m.Name
		case mountTypeBind:
			source = m.Source
		default:
			continue
		}
		if source == "" || m.Destination == "" {
			continue
		}
		v := source + ":" + m.Destination
		if !m.RW {
			v += ":ro"
		}
		volumes = append(volumes, v)
	}
	return volumes
}

// =============================================================================
// Networks
// =============================================================================

// Networks converts the network configuration. It returns either a
// network_mode value or the custom networks to join, never both.
func Networks(c domain.ContainerRecord, s domain.Settings) (string, []ServiceNetwork) {
	switch {
	case c.NetworkMode == domain.NetworkModeHost, c.NetworkMode == domain.NetworkModeNone:
		return c.NetworkMode, nil
	case strings.HasPrefix(c.NetworkMode, domain.NetworkModeContainerPrefix):
		return c.NetworkMode, nil
	case c.NetworkMode == domain.NetworkModeBridge:
		if s.ShowNetwork {
			return domain.NetworkModeBridge, nil
		}
		return "", nil
	}

	var networks []ServiceNetwork
	for _, a := range c.Networks {
		if domain.IsBuiltinNetwork(a.Name) {
			continue
		}
		networks = append(networks, ServiceNetwork{
			Name:        a.Name,
			IPv4Address: firstNonEmpty(a.IPAMv4Address, a.IPAddress),
			IPv6Address: firstNonEmpty(a.IPAMv6Address, a.GlobalIPv6Address),
			MacAddress:  a.MacAddress,
		})
	}
	return "", networks
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// Links, Devices, Capabilities, Security Options
// =============================================================================

// Links strips leading "/" from both sides of "name:alias" entries.
//
// Example:
//
//	Links([]string{"/db:/web/db"}) // ["db:web/db"]
func Links(links []string) []string {
	var out []string
	for _, link := range links {
		parts := strings.Split(link, ":")
		if len(parts) >= 2 {
			out = append(out, strings.TrimLeft(parts[0], "/")+":"+strings.TrimLeft(parts[1], "/"))
			continue
		}
		out = append(out, strings.TrimLeft(link, "/"))
	}
	return out
}

const defaultCgroupPermissions = "rwm"

// Devices converts device mappings to "host:container:perms".
func Devices(devices []domain.DeviceMapping) []string {
	var out []string
	for _, d := range devices {
		if d.PathOnHost == "" || d.PathInContainer == "" {
			continue
		}
		perms := d.CgroupPermissions
		if perms == "" {
			perms = defaultCgroupPermissions
		}
		out = append(out, d.PathOnHost+":"+d.PathInContainer+":"+perms)
	}
	return out
}

// Capabilities returns the added capabilities verbatim when ShowCapAdd is set.
func Capabilities(c domain.ContainerRecord, s domain.Settings) []string {
	if !s.ShowCapAdd || len(c.CapAdd) == 0 {
		return nil
	}
	return slices.Clone(c.CapAdd)
}

const apparmorUnconfined = "apparmor:unconfined"

// SecurityOptions prepends apparmor:unconfined for containers that add
// SYS_ADMIN or NET_ADMIN without an apparmor option of their own, then keeps
// every existing option once.
func SecurityOptions(c domain.ContainerRecord) []string {
	var out []string
	if slices.Contains(c.CapAdd, "SYS_ADMIN") || slices.Contains(c.CapAdd, "NET_ADMIN") {
		hasApparmor := slices.ContainsFunc(c.SecurityOpt, func(opt string) bool {
			return strings.Contains(opt, "apparmor")
		})
		if !hasApparmor {
			out = append(out, apparmorUnconfined)
		}
	}
	for _, opt := range c.SecurityOpt {
		if !slices.Contains(out, opt) {
			out = append(out, opt)
		}
	}
	return out
}

// =============================================================================
// Entrypoint & Command
// =============================================================================

// Entrypoint returns the entrypoint when ShowEntrypoint is set.
func Entrypoint(c domain.ContainerRecord, s domain.Settings) Args {
	if !s.ShowEntrypoint || len(c.Entrypoint) == 0 {
		return nil
	}
	return Args(slices.Clone(c.Entrypoint))
}

// Command returns the command when ShowCommand is set and it differs from
// the entrypoint as an ordered sequence.
func Command(c domain.ContainerRecord, s domain.Settings) Args {
	if !s.ShowCommand || len(c.Cmd) == 0 || slices.Equal(c.Cmd, c.Entrypoint) {
		return nil
	}
	return Args(slices.Clone(c.Cmd))
}

// =============================================================================
// Healthcheck
// =============================================================================

const testCmdShell = "CMD-SHELL"

// Healthcheck converts the healthcheck when ShowHealthcheck is set. It
// returns nil when there is nothing to emit.
func Healthcheck(c domain.ContainerRecord, s domain.Settings) *HealthcheckBlock {
	if !s.ShowHealthcheck || c.Healthcheck == nil {
		return nil
	}
	src := c.Healthcheck
	hc := &HealthcheckBlock{
		Test:    healthcheckTest(src.Test),
		Retries: max(src.Retries, 0),
		Disable: src.Disable,
	}
	if src.Interval != 0 {
		hc.Interval = FormatDuration(src.Interval)
	}
	if src.Timeout != 0 {
		hc.Timeout = FormatDuration(src.Timeout)
	}
	if src.StartPeriod != 0 {
		hc.StartPeriod = FormatDuration(src.StartPeriod)
	}
	if hc.IsEmpty() {
		return nil
	}
	return hc
}

func healthcheckTest(test []string) Args {
	switch {
	case len(test) == 0:
		return nil
	case len(test) >= 2 && test[0] == testCmdShell:
		return Args{testCmdShell, strings.Join(test[1:], " ")}
	default:
		// CMD arrays, single elements and anything else pass through;
		// Args renders a single element as a scalar.
		return Args(slices.Clone(test))
	}
}

// FormatDuration converts a duration to whole seconds, then to the largest
// of s, m or h whose value is at least one. Division truncates.
//
// Example:
//
//	FormatDuration(65 * time.Second)   // "1m"
//	FormatDuration(3661 * time.Second) // "1h"
func FormatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%dh", seconds/3600)
	}
}
