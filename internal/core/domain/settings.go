package domain

import (
	"errors"
	"strings"
)

// =============================================================================
// Settings Errors
// =============================================================================

var (
	ErrTimezoneInvalid = errors.New("timezone must not contain whitespace")
)

// =============================================================================
// Settings
// =============================================================================

// DefaultTimezone disables timezone injection.
const DefaultTimezone = "UTC"

// Settings are the user-facing conversion toggles. They are passed by value
// into every converter and filter; the engine keeps no ambient copy.
type Settings struct {
	// ShowNetwork emits network_mode: bridge for default-bridge containers.
	ShowNetwork     bool `json:"network" mapstructure:"network"`
	ShowHealthcheck bool `json:"show_healthcheck" mapstructure:"show_healthcheck"`
	ShowCapAdd      bool `json:"show_cap_add" mapstructure:"show_cap_add"`
	ShowCommand     bool `json:"show_command" mapstructure:"show_command"`
	ShowEntrypoint  bool `json:"show_entrypoint" mapstructure:"show_entrypoint"`

	// Timezone is injected as TZ when it is not UTC and the container sets none.
	Timezone string `json:"timezone" mapstructure:"timezone"`

	// EnvFilterKeywords is a comma separated list; env keys containing any
	// keyword are dropped.
	EnvFilterKeywords string `json:"env_filter_keywords" mapstructure:"env_filter_keywords"`
}

// DefaultSettings returns settings with every display toggle enabled.
func DefaultSettings() Settings {
	return Settings{
		ShowNetwork:     true,
		ShowHealthcheck: true,
		ShowCapAdd:      true,
		ShowCommand:     true,
		ShowEntrypoint:  true,
		Timezone:        DefaultTimezone,
	}
}

// InjectTimezone reports whether Timezone should be added to environments.
func (s Settings) InjectTimezone() bool {
	tz := strings.TrimSpace(s.Timezone)
	return tz != "" && tz != DefaultTimezone
}

// Validate checks the settings for values the converters cannot use.
func (s Settings) Validate() error {
	if strings.ContainsAny(strings.TrimSpace(s.Timezone), " \t\n") {
		return ErrTimezoneInvalid
	}
	return nil
}
