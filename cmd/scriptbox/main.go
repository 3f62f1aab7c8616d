package main

import (
	"flag"
	"fmt"
	"os"

	"codeberg.org/sigterm-de/scriptbox/internal/app"
)

// Injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	verbose := flag.Bool("verbose", false, "write debug logs to stderr instead of the log file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scriptbox %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	os.Exit(app.Run(version, flag.Args(), *verbose))
}
