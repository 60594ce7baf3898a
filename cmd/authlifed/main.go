// Command authlifed runs the authlife session and signing-secret service.
//
// Subcommands:
//
//	serve            HTTP API with automatic rotation and periodic sweeps
//	sweep            one-shot removal of expired sessions
//	secret generate  print a fresh signing secret and its fingerprint
//
// Configuration is read from the environment and an optional .env file. The
// engine keys are documented on authlife.LoadConfig; daemon keys are listed in
// settings.go.
package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	defer memguard.Purge()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.SafeExit(1)
	}
}
