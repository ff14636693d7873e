// Package proc holds the platform independent pieces of the logpoint
// tracer: the trace session state machine, the errors reported by the
// control loop, the fixed set of symbols a logpoint can read and the trap
// sources that decide whether a SIGTRAP stop is a logpoint hit.
//
// The ptrace backend lives in pkg/proc/native, address translation in
// pkg/proc/maps.
package proc
