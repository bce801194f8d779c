// Package files watches and inspects the workbook directories.
//
// The Watcher monitors the upload directory and reports a workbook change
// only after the file stops growing, so half-written uploads are never
// picked up. The discovery helpers answer which workbooks and reports a
// directory currently holds, and which workbook is newest when a source
// path points at a directory instead of a single file.
package files
