package main

import (
	"context"
	"log/slog"
	"os"
)

// App is the process-wide application instance, set up before the cli
// commands run.
var App *AdvisorApp

func main() {
	App = initApp()

	if err := App.cliCmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Error", "msg", err)
		os.Exit(1)
	}
}
