// Command web starts the teampulse dashboard server: it loads the task
// workbook, serves the dashboard API and watches the source for changes.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"teampulse/internal/app"
	"teampulse/pkg/contracts"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run is the testable body of main. A version request short-circuits
// before any service comes up.
func run(args []string, stdout io.Writer) error {
	if len(args) > 0 && (args[0] == "--version" || args[0] == "-v") {
		fmt.Fprintln(stdout, contracts.FullVersion())
		return nil
	}

	application, err := app.NewApplication()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run()
}
