package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/d2c/internal/core/domain"
	"github.com/artpar/d2c/internal/core/filter"
)

func fullRecord() domain.ContainerRecord {
	return domain.ContainerRecord{
		ID:            "3f4e5d6c7b8a",
		Name:          "/web-app",
		Image:         "nginx:1.27",
		RestartPolicy: domain.RestartPolicy{Name: "unless-stopped"},
		NetworkMode:   "appnet",
		CapAdd:        []string{"NET_ADMIN"},
		ExtraHosts:    []string{"host.docker.internal:host-gateway"},
		Env:           []string{"PATH=/usr/local/bin", "NGINX_VERSION=1.27", "UPSTREAM=api:8080"},
		Labels: map[string]string{
			"com.docker.compose.project": "x",
			"traefik.enable":             "true",
		},
		Entrypoint: []string{"/docker-entrypoint.sh"},
		Cmd:        []string{"nginx", "-g", "daemon off;"},
		Healthcheck: &domain.HealthcheckSpec{
			Test:     []string{"CMD-SHELL", "curl -f http://localhost"},
			Interval: 65 * time.Second,
		},
		Ports: []domain.PortMapping{
			{Port: "80/tcp", Bindings: []domain.PortBinding{{HostIP: "0.0.0.0", HostPort: "8080"}}},
		},
		Mounts: []domain.Mount{
			{Type: "bind", Source: "/srv/www", Destination: "/usr/share/nginx/html", RW: false},
		},
		Networks: []domain.NetworkAttachment{{Name: "appnet"}},
		Links:    []string{"/api:/web-app/api"},
	}
}

// =============================================================================
// NormalizeContainer Tests
// =============================================================================

func TestNormalizeContainer_Full(t *testing.T) {
	s := domain.DefaultSettings()
	s.EnvFilterKeywords = "VERSION"
	s.Timezone = "Europe/Berlin"

	svc, err := NormalizeContainer(fullRecord(), s)
	require.NoError(t, err)

	assert.Equal(t, "web-app", svc.ContainerName)
	assert.Equal(t, "nginx:1.27", svc.Image)
	assert.Equal(t, "unless-stopped", svc.Restart)
	assert.Equal(t, []string{"8080:80/tcp"}, svc.Ports)
	assert.Equal(t, []filter.EnvVar{
		{Key: "UPSTREAM", Value: "api:8080"},
		{Key: "TZ", Value: "Europe/Berlin"},
	}, svc.Environment)
	assert.Equal(t, []string{"/srv/www:/usr/share/nginx/html:ro"}, svc.Volumes)
	assert.Empty(t, svc.NetworkMode)
	assert.Equal(t, []ServiceNetwork{{Name: "appnet"}}, svc.Networks)
	assert.Equal(t, []string{"api:web-app/api"}, svc.Links)
	assert.Equal(t, map[string]string{"traefik.enable": "true"}, svc.Labels)
	assert.Equal(t, []string{"NET_ADMIN"}, svc.CapAdd)
	assert.Equal(t, []string{"apparmor:unconfined"}, svc.SecurityOpt)
	assert.Equal(t, []string{"host.docker.internal:host-gateway"}, svc.ExtraHosts)
	assert.Equal(t, Args{"/docker-entrypoint.sh"}, svc.Entrypoint)
	assert.Equal(t, Args{"nginx", "-g", "daemon off;"}, svc.Command)
	require.NotNil(t, svc.Healthcheck)
	assert.Equal(t, "1m", svc.Healthcheck.Interval)
	assert.Nil(t, svc.DependsOn)
}

func TestNormalizeContainer_BridgeWithoutDisplay(t *testing.T) {
	s := domain.DefaultSettings()
	s.ShowNetwork = false

	c := domain.ContainerRecord{
		ID:          "abc",
		Name:        "/solo",
		Image:       "busybox",
		NetworkMode: "bridge",
		Networks:    []domain.NetworkAttachment{{Name: "bridge", IPAddress: "172.17.0.3"}},
	}
	svc, err := NormalizeContainer(c, s)
	require.NoError(t, err)
	assert.Empty(t, svc.NetworkMode)
	assert.Nil(t, svc.Networks)
}

func TestNormalizeContainer_Malformed(t *testing.T) {
	_, err := NormalizeContainer(domain.ContainerRecord{ID: "abc", Name: "/x"}, domain.DefaultSettings())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedContainer)
	assert.ErrorIs(t, err, domain.ErrContainerImageRequired)
}

// =============================================================================
// Environment Tests
// =============================================================================

func TestEnvironment_TimezoneInjection(t *testing.T) {
	s := domain.DefaultSettings()
	assert.Nil(t, Environment(nil, s), "UTC is never injected")

	s.Timezone = "Asia/Shanghai"
	assert.Equal(t, []filter.EnvVar{{Key: "TZ", Value: "Asia/Shanghai"}}, Environment(nil, s))

	env := Environment([]string{"TZ=Europe/London", "A=1"}, s)
	assert.Equal(t, []filter.EnvVar{{Key: "TZ", Value: "Europe/London"}, {Key: "A", Value: "1"}}, env)
}

func TestEnvironment_KeywordFilter(t *testing.T) {
	s := domain.DefaultSettings()
	s.EnvFilterKeywords = "VERSION, SECRET"

	env := Environment([]string{"MY_APP_VERSION_X=1", "DB_SECRET=x", "DB_HOST=db"}, s)
	assert.Equal(t, []filter.EnvVar{{Key: "DB_HOST", Value: "db"}}, env)
}
