package compose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const groupDocument = `services:
  web:
    container_name: web
    image: nginx:1.27
    restart: unless-stopped
    ports:
      - 8080:80/tcp
    networks:
      - appnet
    depends_on:
      - db
  db:
    container_name: db
    image: postgres:16
    environment:
      POSTGRES_PASSWORD: "p@$$word"
    networks:
      appnet:
        ipv4_address: 172.20.0.5

networks:
  appnet: {}
  proj_default:
    external: true
`

// =============================================================================
// Check Tests
// =============================================================================

func TestCheck_Empty(t *testing.T) {
	_, err := Check("x.yaml", []byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestCheck_InvalidYAML(t *testing.T) {
	_, err := Check("x.yaml", []byte("services: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidYAML)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "x.yaml", perr.File)
}

func TestCheck_NoServices(t *testing.T) {
	_, err := Check("x.yaml", []byte("networks:\n  a: {}\n"))
	assert.Error(t, err)
}

func TestCheck_SchemaViolation(t *testing.T) {
	_, err := Check("x.yaml", []byte("services:\n  web:\n    image: nginx\n    restart: [always]\n"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestCheck_GroupDocument(t *testing.T) {
	summary, err := Check("web-group.yaml", []byte(groupDocument))
	require.NoError(t, err)

	require.Len(t, summary.Services, 2)
	web, ok := summary.Service("web")
	require.True(t, ok)
	assert.Equal(t, "nginx:1.27", web.Image)
	assert.Equal(t, []string{"appnet"}, web.Networks)
	assert.Equal(t, []string{"db"}, web.DependsOn)

	assert.Equal(t, []NetworkSummary{
		{Name: "appnet", External: false},
		{Name: "proj_default", External: true},
	}, summary.Networks)
}

func TestCheck_NetworkMode(t *testing.T) {
	doc := "services:\n  tunnel:\n    image: alpine\n    network_mode: container:vpn\n"
	summary, err := Check("tunnel.yaml", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "container:vpn", summary.Services[0].NetworkMode)
}
