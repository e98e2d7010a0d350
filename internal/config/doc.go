// Package config loads the zonefwd configuration.
//
// Configuration is HCL (or JSON-syntax HCL for files ending in .json).
// Loading decodes the blocks, resolves zone and network references, and
// produces a [model.Model] ready for synthesis plus the [Daemon] settings.
// Every problem found during resolution is collected into a single
// [ValidationErrors] value so `zonefwd check` can report them all at once.
//
// Values may reference host environment variables through the env object:
//
//	network "wan" {
//	  ifname = env.WAN_IFNAME
//	}
package config
