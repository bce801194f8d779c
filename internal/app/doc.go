// Package app wires the server together: configuration, logging, OTel
// providers, the dashboard and health services, the chi router with its
// middleware chain, and the http.Server lifecycle.
//
// Startup runs in dependency order: config, logger, observability,
// services, router, server. After the listener is up, Run warms the
// snapshot from the configured source and starts the uploads-directory
// watcher when enabled, so a restart comes back serving the same data
// without an operator in the loop.
//
// The main entry point is:
//
//	app, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := app.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until SIGINT or SIGTERM, then drains active requests within
// the shutdown timeout and stops the watcher. Initialization errors are
// returned rather than fatal-logged, so main owns the exit code.
package app
