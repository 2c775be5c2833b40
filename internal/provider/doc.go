// Package provider implements the external programs that produce grids.
//
// A dataset's runcard folder decides which provider runs it (see Decide).
// Every provider goes through the same lifecycle, driven by the runner:
//
//	Prepare -> Execute -> ExtractGrid -> CollectResults -> Annotate -> Postprocess
//
// Prepare may ask the runner to stop early, which is how the NNLOJET
// provider only writes runcards. Execute is skipped when an existing output
// folder is reused.
package provider
