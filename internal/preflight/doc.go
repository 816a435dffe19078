// Package preflight provides readiness checks for the filesystem paths and
// remote endpoints catalogsync depends on.
//
// The CLI "catalogsync doctor" command runs RunAll and prints one line per
// check. Network checks use short timeouts and a single attempt so a dead
// endpoint fails fast instead of stalling the command.
package preflight
