package docker

import (
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Boundary Mapping
// =============================================================================

// ContainerFromInspect maps an inspect response to a container record. Missing
// sections yield zero values; the result is validated later by the caller.
func ContainerFromInspect(resp container.InspectResponse) domain.ContainerRecord {
	var rec domain.ContainerRecord

	if base := resp.ContainerJSONBase; base != nil {
		rec.ID = base.ID
		rec.Name = base.Name
		if base.State != nil {
			rec.Running = base.State.Running
		}
		if hc := base.HostConfig; hc != nil {
			rec.RestartPolicy = domain.RestartPolicy{
				Name:              string(hc.RestartPolicy.Name),
				MaximumRetryCount: hc.RestartPolicy.MaximumRetryCount,
			}
			rec.NetworkMode = string(hc.NetworkMode)
			rec.Privileged = hc.Privileged
			rec.CapAdd = slices.Clone([]string(hc.CapAdd))
			rec.SecurityOpt = slices.Clone(hc.SecurityOpt)
			rec.Links = slices.Clone(hc.Links)
			rec.ExtraHosts = slices.Clone(hc.ExtraHosts)
			for _, d := range hc.Devices {
				rec.Devices = append(rec.Devices, domain.DeviceMapping{
					PathOnHost:        d.PathOnHost,
					PathInContainer:   d.PathInContainer,
					CgroupPermissions: d.CgroupPermissions,
				})
			}
		}
	}

	if cfg := resp.Config; cfg != nil {
		rec.Image = cfg.Image
		rec.Env = slices.Clone(cfg.Env)
		rec.Cmd = slices.Clone([]string(cfg.Cmd))
		rec.Entrypoint = slices.Clone([]string(cfg.Entrypoint))
		if len(cfg.Labels) > 0 {
			rec.Labels = make(map[string]string, len(cfg.Labels))
			for k, v := range cfg.Labels {
				rec.Labels[k] = v
			}
		}
		rec.Healthcheck = healthcheckFrom(cfg.Healthcheck)
	}

	if ns := resp.NetworkSettings; ns != nil {
		rec.Ports = portsFrom(ns)
		rec.Networks = networksFrom(ns.Networks)
	}

	for _, m := range resp.Mounts {
		rec.Mounts = append(rec.Mounts, domain.Mount{
			Type:        string(m.Type),
			Name:        m.Name,
			Source:      m.Source,
			Destination: m.Destination,
			RW:          m.RW,
		})
	}
	return rec
}

func healthcheckFrom(hc *container.HealthConfig) *domain.HealthcheckSpec {
	if hc == nil {
		return nil
	}
	// The engine test is kept as is; ["NONE"] stays a test value.
	return &domain.HealthcheckSpec{
		Test:        slices.Clone(hc.Test),
		Interval:    hc.Interval,
		Timeout:     hc.Timeout,
		StartPeriod: hc.StartPeriod,
		Retries:     hc.Retries,
	}
}

// portsFrom lists published ports in lexical key order, the order the
// engine serializes them in.
func portsFrom(ns *container.NetworkSettings) []domain.PortMapping {
	if len(ns.Ports) == 0 {
		return nil
	}
	keys := make([]nat.Port, 0, len(ns.Ports))
	for p := range ns.Ports {
		keys = append(keys, p)
	}
	slices.Sort(keys)

	ports := make([]domain.PortMapping, 0, len(keys))
	for _, key := range keys {
		m := domain.PortMapping{Port: string(key)}
		for _, b := range ns.Ports[key] {
			m.Bindings = append(m.Bindings, domain.PortBinding{HostIP: b.HostIP, HostPort: b.HostPort})
		}
		ports = append(ports, m)
	}
	return ports
}

// networksFrom lists network attachments by name.
func networksFrom(networks map[string]*network.EndpointSettings) []domain.NetworkAttachment {
	if len(networks) == 0 {
		return nil
	}
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]domain.NetworkAttachment, 0, len(names))
	for _, name := range names {
		a := domain.NetworkAttachment{Name: name}
		if ep := networks[name]; ep != nil {
			if ep.IPAMConfig != nil {
				a.IPAMv4Address = ep.IPAMConfig.IPv4Address
				a.IPAMv6Address = ep.IPAMConfig.IPv6Address
			}
			a.IPAddress = ep.IPAddress
			a.GlobalIPv6Address = ep.GlobalIPv6Address
			a.MacAddress = ep.MacAddress
		}
		out = append(out, a)
	}
	return out
}

// NetworkFromSummary maps a network list entry to a network record.
func NetworkFromSummary(n network.Summary) domain.NetworkRecord {
	return domain.NetworkRecord{
		Name:   n.Name,
		Driver: n.Driver,
		Scope:  strings.ToLower(n.Scope),
	}
}
