// Package grid provides the binned interpolation grid used throughout pinefarm.
//
// A Grid holds, for every (order, bin, channel) triple, a dense table of
// interpolation weights over (scale, x1, x2) nodes. Bins carry one limit pair
// per observable dimension and a normalization; predictions are the convolved
// weights divided by the bin normalization.
//
// This package imports nothing internal. Every other package builds on it.
//
// Key constraints:
//   - Channels and orders are immutable after New
//   - Bin limits change only through Remap (and Merge, which appends bins)
//   - Metadata round-trips exactly through Write/Read and every transform
//   - Numeric arrays are serialized as raw IEEE-754 bits, so a round trip is
//     bit-for-bit (including negative zero)
package grid
