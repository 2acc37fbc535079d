// Package filter decides which labels and environment variables survive
// conversion. All functions are pure; the keyword list is supplied by the caller.
package filter

import (
	"fmt"
	"strings"
)

// =============================================================================
// Label Policy
// =============================================================================

// labelExact lists bookkeeping labels written by compose and Docker Desktop.
var labelExact = map[string]struct{}{
	"com.docker.compose.container-number":     {},
	"com.docker.compose.service":              {},
	"com.docker.compose.project":              {},
	"com.docker.compose.version":              {},
	"com.docker.compose.config-hash":          {},
	"com.docker.compose.project.config_files": {},
	"com.docker.compose.project.working_dir":  {},
	"com.docker.compose.oneoff":               {},
	"com.docker.compose.image":                {},
	"desktop.docker.io/binds/0/Source":        {},
	"desktop.docker.io/binds/0/Target":        {},
}

var labelPrefixes = []string{
	"org.opencontainers.",
	"org.label-schema.",
	"com.docker.",
	"io.docker.",
	"build-date",
	"vcs-ref",
	"vcs-type",
	"vcs-url",
	"maintainer",
}

// WatchtowerLabelPrefix prefixes labels consumed by the watchtower updater.
const WatchtowerLabelPrefix = "com.centurylinklabs.watchtower."

// KeepLabel reports whether a label survives filtering. Watchtower labels
// are always kept.
func KeepLabel(key string) bool {
	if IsWatchtowerLabel(key) {
		return true
	}
	if _, ok := labelExact[key]; ok {
		return false
	}
	for _, prefix := range labelPrefixes {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}
	return true
}

// FilterLabels returns the surviving labels, or nil when none survive.
func FilterLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		if KeepLabel(k) {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsWatchtowerLabel reports whether key configures watchtower.
func IsWatchtowerLabel(key string) bool {
	return strings.HasPrefix(key, WatchtowerLabelPrefix)
}

// =============================================================================
// Environment Policy
// =============================================================================

var envExact = map[string]struct{}{
	"PATH":                  {},
	"HOSTNAME":              {},
	"HOME":                  {},
	"USER":                  {},
	"TERM":                  {},
	"LANG":                  {},
	"LANGUAGE":              {},
	"LC_ALL":                {},
	"PWD":                   {},
	"OLDPWD":                {},
	"SHLVL":                 {},
	"_":                     {},
	"DOCKER_HOST":           {},
	"DOCKER_TLS_VERIFY":     {},
	"DOCKER_CERT_PATH":      {},
	"PYTHONPATH":            {},
	"PYTHON_VERSION":        {},
	"PYTHON_PIP_VERSION":    {},
	"PYTHON_GET_PIP_URL":    {},
	"PYTHON_GET_PIP_SHA256": {},
	"DEBIAN_FRONTEND":       {},
	"GPG_KEY":               {},
}

var envPrefixes = []string{
	"APPDIR_",
	"APP_NAME_",
}

// EnvVar is one environment entry. Environments are kept as ordered lists so
// output order follows the container's own order.
type EnvVar struct {
	Key   string
	Value string
}

// ParseKeywords splits a comma separated keyword list, dropping blanks.
//
// Example:
//
//	ParseKeywords(" VERSION, ,SECRET") // returns ["VERSION", "SECRET"]
func ParseKeywords(s string) []string {
	var keywords []string
	for _, kw := range strings.Split(s, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

// KeepEnv reports whether an environment key survives filtering. A key
// containing any keyword as a substring is dropped.
func KeepEnv(key string, keywords []string) bool {
	if _, ok := envExact[key]; ok {
		return false
	}
	for _, prefix := range envPrefixes {
		if strings.HasPrefix(key, prefix) {
			return false
		}
	}
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" && strings.Contains(key, kw) {
			return false
		}
	}
	return true
}

// FilterEnv parses KEY=value entries and returns the survivors in first-seen
// key order, or nil when none survive. Entries without "=" are dropped. A
// repeated key takes the later value and keeps its first position.
func FilterEnv(env []string, keywords []string) []EnvVar {
	var out []EnvVar
	index := make(map[string]int)
	for _, entry := range env {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !KeepEnv(key, keywords) {
			continue
		}
		if i, seen := index[key]; seen {
			out[i].Value = value
			continue
		}
		index[key] = len(out)
		out = append(out, EnvVar{Key: key, Value: value})
	}
	return out
}

// HasEnv reports whether key is present in env.
func HasEnv(env []EnvVar, key string) bool {
	for _, e := range env {
		if e.Key == key {
			return true
		}
	}
	return false
}

// =============================================================================
// Statistics
// =============================================================================

// Summary describes one filtering pass.
type Summary struct {
	OriginalCount int    `json:"original_count"`
	FilteredCount int    `json:"filtered_count"`
	RemovedCount  int    `json:"removed_count"`
	RemovedRatio  string `json:"removed_ratio"`
}

// Stats compares labels before and after FilterLabels.
func Stats(original, filtered map[string]string) Summary {
	return Count(len(original), len(filtered))
}

// Count builds a summary from raw counts. The ratio has one decimal place,
// or is "0%" when there was nothing to remove.
func Count(original, filtered int) Summary {
	s := Summary{
		OriginalCount: original,
		FilteredCount: filtered,
		RemovedCount:  original - filtered,
		RemovedRatio:  "0%",
	}
	if original > 0 {
		s.RemovedRatio = fmt.Sprintf("%.1f%%", float64(s.RemovedCount)/float64(original)*100)
	}
	return s
}
