// Command avsync maintains a local SQLite mirror of the NTSB aviation
// accident database: a one-time seed from the full snapshot, idempotent
// incremental updates, and tag/label tooling on top of the mirror.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
