package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// =============================================================================
// Trigger Modes
// =============================================================================

// Mode selects how backups are triggered.
type Mode string

const (
	// ModeOnce runs a single backup when the scheduler starts.
	ModeOnce Mode = "once"
	// ModeManual never runs on its own; runs come from the API or CLI.
	ModeManual Mode = "manual"
	// ModeCron runs on a cron expression.
	ModeCron Mode = "cron"
)

// ErrInvalidExpression is returned for a schedule that is neither a mode
// keyword nor a 5 or 6 field cron expression.
var ErrInvalidExpression = errors.New("invalid schedule expression")

// parser accepts standard 5-field expressions, an optional leading seconds
// field, and descriptors such as @daily.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ModeOf classifies an expression without validating cron syntax.
func ModeOf(expr string) Mode {
	switch strings.ToLower(strings.TrimSpace(expr)) {
	case string(ModeOnce):
		return ModeOnce
	case string(ModeManual):
		return ModeManual
	default:
		return ModeCron
	}
}

// ParseSchedule parses a cron expression evaluated in loc.
func ParseSchedule(expr string, loc *time.Location) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if ModeOf(expr) != ModeCron {
		return nil, fmt.Errorf("%w: %q is a mode, not a cron expression", ErrInvalidExpression, expr)
	}
	if !strings.HasPrefix(expr, "@") {
		if n := len(strings.Fields(expr)); n != 5 && n != 6 {
			return nil, fmt.Errorf("%w: %q has %d fields, want 5 or 6", ErrInvalidExpression, expr, n)
		}
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	if loc != nil {
		if spec, ok := sched.(*cron.SpecSchedule); ok {
			spec.Location = loc
		}
	}
	return sched, nil
}

// LoadLocation resolves a timezone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// Validate checks an expression and timezone without scheduling anything.
func (c Config) Validate() error {
	if _, err := LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if ModeOf(c.Expression) == ModeCron {
		if _, err := ParseSchedule(c.Expression, nil); err != nil {
			return err
		}
	}
	return nil
}
