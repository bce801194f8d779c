// Package dataprocessing implements the core pipeline: it reads task
// workbooks, coerces every heterogeneous row into a canonical TaskRecord,
// and computes the monthly aggregate tables the dashboard serves.
//
// Each load runs three strictly sequential stages:
//
//	Workbook → Parser → RawTable → Normalizer → TaskRecords → Aggregator → Monthly tables
//
// A full pass over a workbook:
//
//	parser := dataprocessing.NewParser(logger, schema)
//	table, err := parser.ParseFile(ctx, "tasks.xlsx")
//	if err != nil {
//	    return err
//	}
//
//	normalizer := dataprocessing.NewNormalizer(logger, schema)
//	records, flags := normalizer.Normalize(ctx, table)
//
//	aggregator := dataprocessing.NewAggregator(logger)
//	memberMonthly := aggregator.MemberMonthly(ctx, records)
//	teamMonthly := aggregator.TeamMonthly(ctx, records)
//
// # Failure Policy
//
// Cell-level parsing is total: a malformed date, range or number degrades
// that one field to nil and the row survives. Only a load that yields no
// usable rows at all fails, with an error wrapping ErrNoData. Absent
// optional columns disable their dependent derivations through ColumnFlags
// instead of erroring.
//
// # Normalization Rules
//
// Dates accept compact YYYYMMDD serials (with calendar validation), a fixed
// layout list, and a permissive fallback. Duration cells split at the first
// hyphen, dash, slash or "to". Fraction columns are rescaled from percentage
// points by a single column-wide decision, never per row. Efficiency comes
// from target/actual hours whenever both columns exist, superseding any
// supplied efficiency column.
package dataprocessing
