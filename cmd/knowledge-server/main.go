// Command knowledge-server syncs a markdown knowledge repository into a
// document store and vector index and serves semantic search over it.
package main

import (
	"os"

	"github.com/custodia-labs/knowledge-server/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version string

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
