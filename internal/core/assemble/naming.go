package assemble

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/d2c/internal/core/domain"
)

// =============================================================================
// Naming Functions
// =============================================================================

var serviceKeyInvalidChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// ServiceKey derives the services-map key for a container name. Leading "/"
// is stripped and every character outside [A-Za-z0-9_] becomes "_".
//
// Example:
//
//	ServiceKey("/my-app.web") // returns "my_app_web"
func ServiceKey(name string) string {
	return serviceKeyInvalidChars.ReplaceAllString(strings.TrimLeft(name, "/"), "_")
}

const (
	fileExt       = ".yaml"
	groupSuffix   = "-group"
	hostGroupName = "host" + groupSuffix + fileExt
)

// Filename derives the document filename for a group's members.
//
// A single member uses "<name>.yaml". Larger groups use "host-group.yaml"
// when a member runs in host mode, then "<network>-group.yaml" for the first
// member network with the macvlan driver, then the first member's name up to
// the first "_".
func Filename(members []domain.ContainerRecord, snapshot domain.Snapshot) string {
	switch len(members) {
	case 0:
		return ""
	case 1:
		return members[0].CleanName() + fileExt
	}

	for _, m := range members {
		if m.NetworkMode == domain.NetworkModeHost {
			return hostGroupName
		}
	}
	for _, m := range members {
		for _, n := range m.Networks {
			if snapshot.NetworkDriver(n.Name) == domain.DriverMacvlan {
				return n.Name + groupSuffix + fileExt
			}
		}
	}
	prefix, _, _ := strings.Cut(members[0].CleanName(), "_")
	if prefix == "" {
		prefix = members[0].CleanName()
	}
	return prefix + groupSuffix + fileExt
}

// uniqueName returns name, or name with a "-N" suffix before the extension
// when it was already used.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	base := strings.TrimSuffix(name, fileExt)
	ext := name[len(base):]
	for n := 2; used[candidate]; n++ {
		candidate = base + "-" + strconv.Itoa(n) + ext
	}
	used[candidate] = true
	return candidate
}

// uniqueKey returns key, or key with a "_N" suffix when it was already used.
func uniqueKey(key string, used map[string]bool) string {
	candidate := key
	for n := 2; used[candidate]; n++ {
		candidate = key + "_" + strconv.Itoa(n)
	}
	used[candidate] = true
	return candidate
}
