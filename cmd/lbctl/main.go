// Command lbctl runs leaderboard maintenance against the same Redis,
// bucket and archive as the server. Configuration comes from the same
// environment variables.
//
//	lbctl rebuild --entity art --scope weekly
//	lbctl reset --entity creator --scope daily --period '*'
//	lbctl periods --entity art --scope monthly
//	lbctl top --entity art --scope all --limit 20
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
