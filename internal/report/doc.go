// Package report renders finished study results to files: CSV tables for
// spreadsheets and downstream tooling, XLSX workbooks with one sheet per
// table, and self-contained HTML chart pages.
//
// The Writer implements the reporter interface the operations pipeline
// expects, so the report step stays ignorant of formats and paths.
package report
