// Package services owns the state between the data pipeline and the HTTP
// layer. Handlers call in with a context and a filter; everything about
// loading sources, holding the current dataset and aggregating answers
// happens here.
//
// # Snapshot Model
//
// The dashboard service holds exactly one immutable snapshot at a time:
//
//	snapshot, err := service.LoadFromFile(ctx, path)
//	if err != nil {
//	    // no partial snapshot was installed
//	    return err
//	}
//
//	records, err := service.Records(ctx, domain.TaskFilter{
//	    Members: []string{"Alice"},
//	})
//
// Loads are keyed by the SHA-256 of the input: identical inputs collapse to
// the installed snapshot, concurrent identical loads collapse to one pass,
// and any new input replaces the snapshot wholesale. Read methods take the
// current snapshot pointer under a read lock and aggregate from it per
// request; nothing is maintained incrementally.
//
// DashboardService owns that snapshot and the load paths (file, upload
// bytes, Google Sheets, watcher events). HealthService reads alongside it
// for the probe and stats endpoints.
//
// # Error Handling
//
// Services return typed errors that the transport layer maps to problem
// documents:
//
//	- ErrNoSnapshot before the first successful load
//	- ErrEmptySelection when a filter matches no member months
//	- ErrSourceUnavailable when the configured source cannot be reached
//	- NO_DATA application errors for sources that parse to nothing usable
//
// # Testing
//
// Services are tested against real temp-directory fixtures:
//
//	service := newDashboardService(cfg, testPaths, logger, nil)
//	snapshot, err := service.LoadFromFile(ctx, writeTaskWorkbook(t, dir, "tasks.xlsx"))
//
// Workbook fixtures are built with excelize so the full parse path is
// exercised, not mocked.
package services
