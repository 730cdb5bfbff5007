// Package fsmonitor holds agent-wide identity constants shared between the
// command-line entry point and the protocol implementation.
package fsmonitor

import "fmt"

const (
	// VersionMajor is the agent's major version.
	VersionMajor = 1
	// VersionMinor is the agent's minor version.
	VersionMinor = 0
	// VersionPatch is the agent's patch version.
	VersionPatch = 0

	// ProtocolVersion is the version number this agent advertises on the
	// wire via the VERSION command (spec.md §4.5, §6). It is independent of
	// the agent's own release version: the wire protocol has changed far
	// less often than the agent implementation.
	ProtocolVersion = 1
)

// Version is the agent's release version, formatted as a dotted triple.
var Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
