package main

import (
	"forge/cmd"

	// Blank-imported so its init() registers the "sandbox" backend with
	// the environment package; backend selection happens at build time
	// based on the host's GOOS (see service.defaultEnvironmentBackend).
	_ "forge/environment/sandbox"
)

func main() {
	cmd.Execute()
}
