package convert

import (
	"fmt"
	"slices"

	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/core/filter"
)

// =============================================================================
// Container Normalizer
// =============================================================================

// EnvTimezone is the environment key used for timezone injection.
const EnvTimezone = "TZ"

// NormalizeContainer converts one container record into a service
// descriptor. It returns an error wrapping domain.ErrMalformedContainer when
// the record is missing its ID, name or image.
func NormalizeContainer(c domain.ContainerRecord, s domain.Settings) (ServiceDescriptor, error) {
	if err := c.Validate(); err != nil {
		return ServiceDescriptor{}, fmt.Errorf("normalize container %q: %w", c.CleanName(), err)
	}

	networkMode, networks := Networks(c, s)
	svc := ServiceDescriptor{
		ContainerName: c.CleanName(),
		Image:         c.Image,
		Restart:       Restart(c.RestartPolicy),
		Ports:         Ports(c.Ports),
		Environment:   Environment(c.Env, s),
		Volumes:       Volumes(c.Mounts),
		NetworkMode:   networkMode,
		Networks:      networks,
		Links:         Links(c.Links),
		Privileged:    c.Privileged,
		Devices:       Devices(c.Devices),
		Labels:        filter.FilterLabels(c.Labels),
		CapAdd:        Capabilities(c, s),
		SecurityOpt:   SecurityOptions(c),
		ExtraHosts:    slices.Clone(c.ExtraHosts),
		Entrypoint:    Entrypoint(c, s),
		Command:       Command(c, s),
		Healthcheck:   Healthcheck(c, s),
	}
	return svc, nil
}

// Environment filters the container environment and injects TZ when the
// settings ask for it and the container sets none.
func Environment(env []string, s domain.Settings) []filter.EnvVar {
	filtered := filter.FilterEnv(env, filter.ParseKeywords(s.EnvFilterKeywords))
	if s.InjectTimezone() && !filter.HasEnv(filtered, EnvTimezone) {
		filtered = append(filtered, filter.EnvVar{Key: EnvTimezone, Value: s.Timezone})
	}
	return filtered
}
