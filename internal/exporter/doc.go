// Package exporter writes the report artifacts for the normalized task
// dataset: the full record table, the member and team monthly aggregates,
// the leaderboard, per-member history files, and parquet variants of the
// main tables.
//
// Every export lands atomically. Writers produce a temporary sibling file
// and rename it over the target on success, so a dashboard download or a
// watcher-triggered reload never sees a half-written report. Summary
// tables carry a UTF-8 BOM for Excel; streamed tables are byte-identical
// to their buffered counterparts.
//
//	reports := exporter.NewReportExporter(paths)
//	err := reports.ExportNormalized(records, "normalized.csv")
//
//	members := exporter.NewMemberExporter(paths)
//	summaries := members.GenerateMemberSummaries(memberMonthly)
//	err = members.ExportMemberSummary(summaries, "member_summary.csv")
package exporter
