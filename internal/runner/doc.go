// Package runner drives one dataset through the provider lifecycle:
//
//	prepare → execute → extract grid → compare results → annotate → postprocess
//
// Every run is recorded in the ledger (internal/store) with its output
// folder, final status and the versions of the programs involved. A dry run,
// or a provider that only prepares inputs, ends after prepare with the
// status "prepared".
//
// Warnings and errors raised once the output folder exists are also written
// to errors.log inside it.
package runner
