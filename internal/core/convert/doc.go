// Package convert turns container records into compose service descriptors.
//
// This package contains the functional core of the translation: one pure
// function per runtime aspect, composed by NormalizeContainer. Every
// function takes the settings it needs as an explicit value.
//
// # Functions
//
//   - Restart, Ports, Volumes, Links, Devices: record fields to compose strings
//   - Networks: network_mode or the custom networks to join
//   - Capabilities, SecurityOptions: cap_add and security_opt
//   - Entrypoint, Command: display-gated argument lists
//   - Healthcheck, FormatDuration: healthcheck block with compact durations
//   - Environment: filtered environment with timezone injection
//
// # Usage
//
// The document assembler (internal/core/assemble) calls NormalizeContainer
// for every member of a group and skips records that fail validation.
//
//	svc, err := convert.NormalizeContainer(record, settings)
package convert
