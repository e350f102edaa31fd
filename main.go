// The main package for the webshot executable.
//
// webshot reads a list of URLs, domains and IP addresses, opens each one in a
// headless mobile browser and stores a screenshot of it. Captures run
// concurrently under a fixed limit; every result is appended to a CSV log and
// a text session log, and optionally to Postgres and Pub/Sub.
//
// Quick checklist:
//   - Run locally: go run . capture -f targets.txt -o screen_shots
//   - Inspect a list without capturing: go run . inspect -f targets.txt
//   - Configure via a file (--config), WEBSHOT_* environment variables or a
//     .env file in the working directory; flags take precedence.
package main

import (
	"github.com/JakeFAU/webshot/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
