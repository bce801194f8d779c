// Package config carries everything the binaries read at startup: the
// server configuration, the filesystem layout, and the declarative sheet
// schema the pipeline parses against.
//
// Configuration merges three layers, strongest first: TEAMPULSE_*
// environment variables, an optional YAML file, and the built-in defaults.
// TEAMPULSE_CONFIG names the file explicitly; otherwise config.yaml is
// probed next to the working directory and under configs/.
//
//	TEAMPULSE_SERVER_PORT=8080
//	TEAMPULSE_SOURCE_TYPE=gsheet
//	TEAMPULSE_SOURCE_SPREADSHEET_ID=1BxiMVs0...
//	TEAMPULSE_LOGGING_LEVEL=info
//	TEAMPULSE_WATCH_ENABLED=true
//
// Load resolves the layers and validates the result, so a bad port or an
// unknown source type fails the process before anything binds:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Path Management
//
// The Paths type anchors every directory at the executable location, never
// the working directory, so the server behaves the same whether started by
// hand, by a service manager, or from a shortcut:
//
//	paths, err := config.GetPaths()
//	uploadPath := paths.GetUploadPath("tasks.xlsx")
//	reportPath := paths.GetReportPath("member_monthly.csv")
//
// # Sheet Schema
//
// The Schema type is the declarative description of the task sheet: the
// worksheet preference order, the header spellings that bind each canonical
// column, and the priority lists for derived date and efficiency sources.
// Parser and normalizer consult the Schema instead of carrying their own
// header constants:
//
//	schema := config.DefaultSchema()
//	columns := schema.Resolve(headerRow)
package config
