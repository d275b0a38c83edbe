package main

import (
	"log"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/workflow"
)

// One-shot refresh-token sweep, for running from cron or by hand.
func main() {
	config.ConnectDatabaseWithRetry()

	removed, err := workflow.RunTokenCleanupSweep(config.GetLogger())
	if err != nil {
		log.Fatalf("token cleanup failed: %v", err)
	}
	log.Printf("token cleanup done: removed=%d", removed)
}
