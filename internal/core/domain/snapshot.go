package domain

import (
	"strconv"
	"strings"
)

// =============================================================================
// NetworkRecord
// =============================================================================

// NetworkRecord is the metadata of one engine network.
type NetworkRecord struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Scope  string `json:"scope"`
}

// DriverMacvlan is the driver whose networks name their group documents.
const DriverMacvlan = "macvlan"

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is one inspection of the host: every container and network record.
// All engine stages work on a snapshot and keep no state between runs.
type Snapshot struct {
	Containers []ContainerRecord `json:"containers"`
	Networks   []NetworkRecord   `json:"networks"`
}

// NetworkDriver returns the driver of the named network, or "" if unknown.
func (s Snapshot) NetworkDriver(name string) string {
	for _, n := range s.Networks {
		if n.Name == name {
			return n.Driver
		}
	}
	return ""
}

// Container returns the record with the given ID.
func (s Snapshot) Container(id string) (ContainerRecord, bool) {
	for _, c := range s.Containers {
		if c.ID == id {
			return c, true
		}
	}
	return ContainerRecord{}, false
}

// ResolveContainerName maps a reference (name, full ID, or an ID prefix of at
// least 12 characters) to a clean container name.
func (s Snapshot) ResolveContainerName(ref string) (string, bool) {
	ref = strings.TrimLeft(ref, "/")
	if ref == "" {
		return "", false
	}
	for _, c := range s.Containers {
		if c.CleanName() == ref {
			return ref, true
		}
	}
	for _, c := range s.Containers {
		if c.ID == ref || (len(ref) >= 12 && strings.HasPrefix(c.ID, ref)) {
			return c.CleanName(), true
		}
	}
	return "", false
}

// Valid splits the snapshot into a snapshot of valid containers and the
// validation errors of the rejected ones, keyed by whatever identity the
// record carried.
func (s Snapshot) Valid() (Snapshot, map[string]error) {
	out := Snapshot{Networks: s.Networks}
	rejected := make(map[string]error)
	for i, c := range s.Containers {
		if err := c.Validate(); err != nil {
			key := c.ID
			if key == "" {
				key = c.CleanName()
			}
			if key == "" {
				key = "#" + strconv.Itoa(i)
			}
			rejected[key] = err
			continue
		}
		out.Containers = append(out.Containers, c)
	}
	return out, rejected
}

