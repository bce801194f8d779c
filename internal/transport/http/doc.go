// Package http contains the chi handlers for the dashboard API.
//
// Handlers stay thin: parse and validate the request, call the dashboard
// or health service, render the result with go-chi/render. Parsing,
// aggregation and snapshot state live behind the service layer, so every
// handler is exercisable with httptest and a mocked service.
//
// # Reads
//
// The read endpoints (records, summary/members, summary/team, leaderboard,
// filters, snapshot) share one query vocabulary handled by parseTaskFilter:
// months=YYYY-MM, members=, statuses= and projects=, all comma-separated.
// Results render as a success envelope:
//
//	{"status": "success", "data": [...], "count": 42}
//
// # Writes
//
// POST upload accepts a multipart workbook and checks the form field, the
// size cap and the file signature before any bytes reach the service.
// POST reload re-reads whatever source the configuration points at. Both
// answer with the info block of the snapshot they installed.
//
// # Errors
//
// Service errors render as RFC 7807 problem documents through
// errors.MapPipelineError, sharing one type-URI vocabulary with the
// router's NotFound and MethodNotAllowed fallbacks:
//
//	{
//	    "type": "/errors/data/not-loaded",
//	    "title": "No Dataset Loaded",
//	    "status": 404,
//	    "detail": "No source has been loaded yet. Upload a workbook or trigger a reload.",
//	    "instance": "/api/dashboard#trace-abc123",
//	    "trace_id": "abc123"
//	}
//
// The one deliberate exception is the leaderboard: a filter that matches no
// records renders {"status":"empty"} with a 200 so clients can clear their
// boards, while the cold-start state (nothing loaded at all) stays a 404
// problem.
package http
