// Command agent is the host-agent's entry point: a cobra command tree
// over the same configuration, control-plane, data-plane, and
// introspection subsystems the supervisor package composes.
package main

import "os"

func main() {
	os.Exit(run())
}
