// Package transform implements the bin algebra used to mirror a
// rapidity-symmetric grid onto an experimental binning.
//
// A symmetric prediction is split into a negative and a positive half.
// Each half is normalized by the same factor, the negative half is reversed
// so its bins run in ascending order, and the two halves are concatenated:
//
//	pos := Modify(G, true, 2)
//	neg := Modify(G', false, 2)
//	rev := ReverseBins(neg)
//	out := MergeBins(rev, pos)
//
// The order of these steps matters. Reversal rebuilds the normalizations
// from the reversed bin widths and applies the factor of two once, so the
// reversed half predicts exactly half of the original cross section per bin.
//
// Every operation works on one-dimensional grids only and fails with a
// dimensionality error otherwise.
package transform
