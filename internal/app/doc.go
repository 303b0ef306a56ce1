// Package app wires the forecast service together: configuration, logging, telemetry,
// the prediction store, services, HTTP handlers and middleware.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, config.yaml, .env and SEHATMAP_* variables
//	2. Initialize logging and OpenTelemetry
//	3. Open the prediction store and import an existing output table into it
//	4. Build the pipeline runner and services
//	5. Mount the routes behind the middleware chain
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then shuts the server down within the configured
// shutdown timeout and closes the store.
package app
