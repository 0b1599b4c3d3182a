package main

import (
	"os"

	"github.com/hoover/setup/cmd"
)

// hoover installs and operates the Hoover suite: the search service, the
// snoop document-ingestion service and the web UI. Installation state lives
// in a manifest under the installation home; every command plans against it
// and executes only the actions needed to reconcile the installed state
// with the environment, so runs are idempotent and resumable.
func main() {
	os.Exit(cmd.Execute())
}
