// Package nnlojet turns pinecards into NNLOJET runcards.
//
// A pinecard is the YAML description of an NNLOJET run (process, channels,
// cuts and histograms). From it this package writes one warmup and one
// production runcard per active channel together with a combine.ini for
// merging the channel results, and it can autogenerate pinecards from a
// dataset descriptor.
package nnlojet
